package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	applogger "SigPull/pkg/logger"
)

// Component is a background unit with a start/stop lifecycle: periodic tasks,
// supervised adapters, pipelines.
type Component interface {
	Name() string
	Start(ctx context.Context)
	Stop()
}

// HTTPServer is the HTTP surface the app starts last and stops first.
type HTTPServer interface {
	Start() error
	Stop(ctx context.Context) error
	Err() <-chan error
}

// Closer releases an infrastructure resource during shutdown.
type Closer struct {
	Name  string
	Close func(ctx context.Context) error
}

// App encapsulates the entire application lifecycle.
type App struct {
	log             *applogger.Logger
	http            HTTPServer
	components      []Component
	closers         []Closer
	shutdownTimeout time.Duration
}

// New creates an App. Components start in order and stop in reverse order;
// closers run after everything has stopped, in order.
func New(lgr *applogger.Logger, http HTTPServer, components []Component, closers []Closer, shutdownTimeout time.Duration) *App {
	if lgr == nil {
		lgr = applogger.Nop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &App{
		log:             lgr.With("app"),
		http:            http,
		components:      components,
		closers:         closers,
		shutdownTimeout: shutdownTimeout,
	}
}

// Run starts everything and blocks until ctx is cancelled or the HTTP server
// fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	for _, c := range a.components {
		c.Start(ctx)
		a.log.Info("component started", applogger.String("name", c.Name()))
	}

	var httpErr <-chan error
	if a.http != nil {
		if err := a.http.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			_ = a.shutdown()
			return err
		}
		httpErr = a.http.Err()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-httpErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	a.log.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	if a.http != nil {
		if err := a.http.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	for i := len(a.components) - 1; i >= 0; i-- {
		a.components[i].Stop()
		a.log.Debug("component stopped", applogger.String("name", a.components[i].Name()))
	}

	for _, c := range a.closers {
		if err := c.Close(ctx); err != nil {
			a.log.Warn("close error", applogger.String("name", c.Name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.Name, err))
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
