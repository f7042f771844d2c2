package engine

import (
	"encoding/json"
	"fmt"
)

// State identifies one sync engine state.
type State string

const (
	StateNotConfigured State = "NotConfigured"
	StateIdle          State = "Idle"
	StateSyncing       State = "Syncing"
	StateConflict      State = "Conflict"
	StateError         State = "Error"
)

// Status is the engine's externally visible state. Message is set only
// when State is StateError.
type Status struct {
	State   State
	Message string
}

// MarshalJSON encodes plain states as a bare string and the error state
// as {"Error": "message"}.
func (s Status) MarshalJSON() ([]byte, error) {
	if s.State == StateError {
		return json.Marshal(map[string]string{string(StateError): s.Message})
	}
	return json.Marshal(string(s.State))
}

// UnmarshalJSON accepts both encodings produced by MarshalJSON.
func (s *Status) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		switch State(plain) {
		case StateNotConfigured, StateIdle, StateSyncing, StateConflict:
			s.State = State(plain)
			s.Message = ""
			return nil
		}
		return fmt.Errorf("engine: unknown sync state %q", plain)
	}

	var tagged map[string]string
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("engine: decode sync status: %w", err)
	}
	msg, ok := tagged[string(StateError)]
	if !ok {
		return fmt.Errorf("engine: decode sync status: missing Error field")
	}
	s.State = StateError
	s.Message = msg
	return nil
}

func (s Status) String() string {
	if s.State == StateError {
		return fmt.Sprintf("Error: %s", s.Message)
	}
	return string(s.State)
}
