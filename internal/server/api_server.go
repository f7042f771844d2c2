// Package server exposes the daemon's command surface over loopback HTTP:
// session commands, sync status and triggers, config reads and edits, the
// activity feed, and a WebSocket status stream.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/config/store"
)

// Options configures an APIServer.
type Options struct {
	Store    *store.Store
	Sessions SessionManager
	Engine   SyncEngine
	// Port to listen on. Zero picks an ephemeral port; the effective
	// port is available from Port() after Start.
	Port int
}

// APIServer serves the daemon command surface. It implements
// runtime.Service.
type APIServer struct {
	store    *store.Store
	sessions SessionManager
	engine   SyncEngine

	mu        sync.Mutex
	httpSrv   *http.Server
	listener  net.Listener
	port      int
	startTime time.Time

	shutdownMu sync.RWMutex
	shutdownFn func(context.Context) error
}

// New creates an API server. Store, Sessions, and Engine are required.
func New(opts Options) (*APIServer, error) {
	if opts.Store == nil || opts.Sessions == nil || opts.Engine == nil {
		return nil, fmt.Errorf("server: store, sessions, and engine are required")
	}
	return &APIServer{
		store:    opts.Store,
		sessions: opts.Sessions,
		engine:   opts.Engine,
		port:     opts.Port,
	}, nil
}

// SetShutdownFunc registers a handler invoked when a shutdown is requested
// over the API.
func (s *APIServer) SetShutdownFunc(fn func(context.Context) error) {
	s.shutdownMu.Lock()
	s.shutdownFn = fn
	s.shutdownMu.Unlock()
}

// RequestShutdown triggers a graceful daemon shutdown using the registered
// shutdown function.
func (s *APIServer) RequestShutdown() {
	s.shutdownMu.RLock()
	fn := s.shutdownFn
	s.shutdownMu.RUnlock()
	if fn != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := fn(ctx); err != nil {
				log.Printf("[APIServer] shutdown error: %v", err)
			}
		}()
	}
}

// Start binds the loopback listener and begins serving.
func (s *APIServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return fmt.Errorf("server: already started")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.startTime = time.Now()

	s.httpSrv = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("[APIServer] serve error: %v", err)
		}
	}()

	log.Printf("[APIServer] Listening on 127.0.0.1:%d", s.port)
	return nil
}

// Shutdown stops the HTTP server, draining in-flight requests.
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.httpSrv = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Port returns the bound port. Valid after Start.
func (s *APIServer) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// BaseURL returns the loopback base URL clients should use. Valid after
// Start.
func (s *APIServer) BaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.Port())
}

func (s *APIServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("GET /sync/status", s.handleSyncStatus)
	mux.HandleFunc("POST /sync/trigger", s.handleSyncTrigger)
	mux.HandleFunc("GET /sync/events", s.handleSyncEvents)
	mux.HandleFunc("GET /config/sync", s.handleGetConfig)
	mux.HandleFunc("PUT /config/sync", s.handleUpdateConfig)
	mux.HandleFunc("GET /activity", s.handleActivity)
	mux.HandleFunc("GET /daemon/status", s.handleDaemonStatus)
	mux.HandleFunc("POST /daemon/shutdown", s.handleDaemonShutdown)
	return mux
}
