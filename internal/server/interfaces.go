package server

import (
	"context"

	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/engine"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/session"
)

// SessionManager is the slice of the session package the API needs.
type SessionManager interface {
	Login(ctx context.Context, serverURL, email, password string) (session.Identity, error)
	Logout(ctx context.Context) error
	CurrentIdentity(ctx context.Context) (serverURL, email, tenantID string, err error)
}

// SyncEngine is the slice of the engine the API needs.
type SyncEngine interface {
	Status() engine.Status
	TriggerSync()
	Subscribe() (<-chan engine.Status, func())
}
