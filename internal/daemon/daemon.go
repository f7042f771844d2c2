// Package daemon wires the configuration store, session manager, sync
// engine, and API server into one supervised process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/bootstrap"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/config"
	configstore "github.com/ReadyNextOs/ReadyNextOsDrive/internal/config/store"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/engine"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/procutil"
	daemonruntime "github.com/ReadyNextOs/ReadyNextOsDrive/internal/runtime"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/server"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/session"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/transfer"
)

const (
	serviceOpTimeout  = 10 * time.Second
	storeQueryTimeout = 5 * time.Second
)

// Options groups dependencies required to construct a Daemon.
type Options struct {
	Store *configstore.Store
}

// Daemon owns the long-running services and their shutdown order.
type Daemon struct {
	store          *configstore.Store
	sessionManager *session.Manager
	syncEngine     *engine.Engine
	apiServer      *server.APIServer
	serviceHost    *daemonruntime.ServiceHost
	lifecycle      *daemonruntime.Lifecycle
	instancePaths  config.InstancePaths

	ctx    context.Context
	cancel context.CancelFunc

	errMu  sync.Mutex
	runErr error
}

// New creates a daemon bound to the provided configuration store.
func New(opts Options) (*Daemon, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("daemon: store is required")
	}

	paths, err := config.EnsureInstanceDirs(config.DefaultInstance)
	if err != nil {
		return nil, fmt.Errorf("daemon: prepare instance directories: %w", err)
	}

	sessionManager, err := session.NewManager(session.Options{Store: opts.Store})
	if err != nil {
		return nil, fmt.Errorf("daemon: create session manager: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeQueryTimeout)
	transportCfg, err := opts.Store.GetTransportConfig(ctx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("daemon: load transport config: %w", err)
	}

	adapter := transfer.NewRcloneAdapter(transfer.RcloneOptions{
		BinaryPath: transportCfg.RclonePath,
	})
	if err := adapter.Available(); err != nil {
		log.Printf("[Daemon] %v; sync cycles will fail until rclone is installed", err)
	}

	syncEngine, err := engine.New(engine.Options{
		Store:    opts.Store,
		Sessions: sessionManager,
		Adapter:  adapter,
	})
	if err != nil {
		return nil, fmt.Errorf("daemon: create sync engine: %w", err)
	}

	apiServer, err := server.New(server.Options{
		Store:    opts.Store,
		Sessions: sessionManager,
		Engine:   syncEngine,
		Port:     transportCfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("daemon: create api server: %w", err)
	}

	host := daemonruntime.NewServiceHost()
	if err := host.Register("engine", func(ctx context.Context) (daemonruntime.Service, error) {
		return syncEngine, nil
	}); err != nil {
		return nil, err
	}
	if err := host.Register("api", func(ctx context.Context) (daemonruntime.Service, error) {
		return apiServer, nil
	}); err != nil {
		return nil, err
	}

	d := &Daemon{
		store:          opts.Store,
		sessionManager: sessionManager,
		syncEngine:     syncEngine,
		apiServer:      apiServer,
		serviceHost:    host,
		lifecycle:      daemonruntime.NewLifecycle(),
		instancePaths:  paths,
	}

	apiServer.SetShutdownFunc(func(ctx context.Context) error {
		go func() {
			if err := d.Shutdown(); err != nil {
				log.Printf("[Daemon] shutdown via API returned error: %v", err)
			}
		}()
		return nil
	})

	return d, nil
}

// Start runs all services and blocks until the daemon shuts down.
func (d *Daemon) Start() error {
	if err := daemonruntime.WritePIDFile(d.instancePaths.Lock, os.Getpid()); err != nil {
		return fmt.Errorf("daemon: write pid file: %w", err)
	}
	defer daemonruntime.RemovePIDFile(d.instancePaths.Lock)

	d.ctx, d.cancel = context.WithCancel(context.Background())

	if err := d.serviceHost.Start(d.ctx); err != nil {
		d.cancel()
		return fmt.Errorf("daemon: start services: %w", err)
	}
	d.watchHostErrors()

	if err := bootstrap.Save(&bootstrap.Config{
		BaseURL: d.apiServer.BaseURL(),
		PID:     os.Getpid(),
	}); err != nil {
		log.Printf("[Daemon] write bootstrap file: %v", err)
	}
	log.Printf("[Daemon] API listening on %s", d.apiServer.BaseURL())

	<-d.lifecycle.Done()

	if d.cancel != nil {
		d.cancel()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), serviceOpTimeout)
	if err := d.serviceHost.Stop(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "daemon: service shutdown error: %v\n", err)
		d.setRunError(err)
	}
	cancel()

	if err := bootstrap.Remove(); err != nil {
		log.Printf("[Daemon] remove bootstrap file: %v", err)
	}

	if err := d.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "daemon: store close error: %v\n", err)
	}

	return d.getRunError()
}

// Shutdown signals the daemon to stop. Safe to call more than once.
func (d *Daemon) Shutdown() error {
	d.lifecycle.Shutdown()
	if d.cancel != nil {
		d.cancel()
	}
	return nil
}

func (d *Daemon) watchHostErrors() {
	go func() {
		for err := range d.serviceHost.Errors() {
			if err == nil {
				continue
			}
			d.setRunError(err)
			fmt.Fprintf(os.Stderr, "%v\n", err)
			d.lifecycle.Shutdown()
		}
	}()
}

func (d *Daemon) setRunError(err error) {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	if d.runErr == nil {
		d.runErr = err
	}
}

func (d *Daemon) getRunError() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.runErr
}

// IsRunning reports whether another daemon instance already holds the
// lock file with a live process.
func IsRunning() bool {
	paths := config.GetInstancePaths("")

	data, err := os.ReadFile(paths.Lock)
	if err != nil {
		return false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		os.Remove(paths.Lock)
		return false
	}

	if !procutil.IsProcessAlive(pid) {
		os.Remove(paths.Lock)
		return false
	}

	return true
}
