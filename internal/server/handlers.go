package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/config/store"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/session"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/version"
)

const maxRequestBody = 1 << 20

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case session.IsValidation(err) || store.IsValidation(err):
		return http.StatusBadRequest
	case session.IsAuth(err) || errors.Is(err, session.ErrNotLoggedIn):
		return http.StatusUnauthorized
	case session.IsNetwork(err):
		return http.StatusBadGateway
	case store.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type loginRequest struct {
	ServerURL string `json:"server_url"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

func (s *APIServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identity, err := s.sessions.Login(r.Context(), req.ServerURL, req.Email, req.Password)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

func (s *APIServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(r.Context()); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *APIServer) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": s.engine.Status()})
}

func (s *APIServer) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	// Fire and forget; the caller polls status or watches the event feed.
	s.engine.TriggerSync()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (s *APIServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.GetSyncConfig(r.Context())
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *APIServer) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var edits store.SyncConfigEdits
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&edits); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := s.store.UpdateSyncConfig(r.Context(), edits)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *APIServer) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := s.store.RecentActivity(r.Context(), limit)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	if entries == nil {
		entries = []store.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type daemonStatusResponse struct {
	Version       string `json:"version"`
	Port          int    `json:"port"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	SyncStatus    any    `json:"sync_status"`
	LoggedIn      bool   `json:"logged_in"`
	ServerURL     string `json:"server_url,omitempty"`
	UserEmail     string `json:"user_email,omitempty"`
}

func (s *APIServer) handleDaemonStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	start := s.startTime
	port := s.port
	s.mu.Unlock()

	resp := daemonStatusResponse{
		Version:       version.String(),
		Port:          port,
		UptimeSeconds: int64(time.Since(start).Seconds()),
		SyncStatus:    s.engine.Status(),
	}
	if serverURL, email, _, err := s.sessions.CurrentIdentity(r.Context()); err == nil {
		resp.LoggedIn = true
		resp.ServerURL = serverURL
		resp.UserEmail = email
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleDaemonShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "shutting_down"})
	s.RequestShutdown()
}
