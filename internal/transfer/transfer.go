// Package transfer runs file transfers between a local directory and a
// remote WebDAV endpoint by shelling out to rclone, and turns the tool's
// log output into structured per-file events.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Outcome classifies what happened to a single file during a transfer.
type Outcome string

const (
	OutcomeUploaded   Outcome = "uploaded"
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeDeleted    Outcome = "deleted"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeConflict   Outcome = "conflict"
)

// FileEvent is one per-file outcome extracted from the tool output.
type FileEvent struct {
	Path    string
	Outcome Outcome
	Detail  string
}

// Request describes one directory pair to synchronize.
type Request struct {
	LocalPath string
	RemoteURL string
	Username  string
	Token     string
	// MaxFileSizeBytes skips files above this size when > 0.
	MaxFileSizeBytes int64
}

// Result holds everything observed during one transfer run. Events may be
// partially populated even when the run itself failed.
type Result struct {
	Events []FileEvent
}

// Conflicts returns the subset of events that are conflicts.
func (r Result) Conflicts() []FileEvent {
	var out []FileEvent
	for _, ev := range r.Events {
		if ev.Outcome == OutcomeConflict {
			out = append(out, ev)
		}
	}
	return out
}

// Counts tallies events per outcome.
func (r Result) Counts() map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, ev := range r.Events {
		counts[ev.Outcome]++
	}
	return counts
}

// Adapter abstracts the transfer tool so the engine can be tested without
// a real subprocess.
type Adapter interface {
	Sync(ctx context.Context, req Request) (Result, error)
}

// ErrTimeout reports that a transfer exceeded its wall-clock bound.
var ErrTimeout = errors.New("transfer: timed out")

// TransferError is a non-zero exit from the transfer tool.
type TransferError struct {
	ExitCode int
	Stderr   string
}

func (e *TransferError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("transfer: tool exited with code %d", e.ExitCode)
	}
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return fmt.Sprintf("transfer: tool exited with code %d: %s", e.ExitCode, msg)
}

// IsTransferError reports whether err is a TransferError, returning it.
func IsTransferError(err error) (*TransferError, bool) {
	var te *TransferError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
