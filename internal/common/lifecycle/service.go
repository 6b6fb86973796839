package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

const stopTimeout = 30 * time.Second

// Service is a startable, stoppable component.
type Service interface {
	// Name identifies the service in logs.
	Name() string

	// Start runs the service. It blocks until ctx is cancelled or
	// returns an error if startup fails.
	Start(ctx context.Context) error

	// Stop shuts the service down within the context deadline.
	Stop(ctx context.Context) error
}

// Run starts the given services and blocks until a shutdown signal
// arrives or a service fails. This is the main loop of every binary.
func Run(ctx context.Context, services ...Service) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sup := newSupervisor(services...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- sup.run(ctx)
	}()

	select {
	case sig := <-quit:
		slog.Info("Shutdown signal received", "signal", sig)
		cancel()
	case err := <-errCh:
		if err != nil {
			slog.Error("Service failure", "error", err)
			return err
		}
	}

	select {
	case err := <-errCh:
		return err
	case <-time.After(stopTimeout + 5*time.Second):
		slog.Error("Shutdown timed out")
		return nil
	}
}

type supervisor struct {
	services []Service
	mu       sync.Mutex
	running  bool
}

func newSupervisor(services ...Service) *supervisor {
	return &supervisor{services: services}
}

// run starts services in order and stops them in reverse order once
// ctx is cancelled.
func (s *supervisor) run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("supervisor already running")
	}
	s.running = true
	s.mu.Unlock()

	var started []Service
	for _, svc := range s.services {
		slog.Info("Starting service", "service", svc.Name())

		errCh := make(chan error, 1)
		go func(service Service) {
			errCh <- service.Start(ctx)
		}(svc)

		// Catch immediate startup failures before moving on.
		select {
		case err := <-errCh:
			if err != nil {
				s.stopAll(started)
				return fmt.Errorf("service %s failed to start: %w", svc.Name(), err)
			}
		case <-time.After(100 * time.Millisecond):
		}

		started = append(started, svc)
	}

	<-ctx.Done()
	slog.Info("Stopping services")
	s.stopAll(started)

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

func (s *supervisor) stopAll(services []Service) {
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]

		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		if err := svc.Stop(stopCtx); err != nil {
			slog.Error("Service stop error", "service", svc.Name(), "error", err)
		} else {
			slog.Info("Service stopped", "service", svc.Name())
		}
		cancel()
	}
}

// HTTPService adapts an http.Server to the Service interface.
type HTTPService struct {
	name   string
	server *http.Server
}

func NewHTTPService(name string, server *http.Server) *HTTPService {
	return &HTTPService{name: name, server: server}
}

func (s *HTTPService) Name() string { return s.name }

func (s *HTTPService) Start(ctx context.Context) error {
	slog.Info("Starting HTTP server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
	}

	<-ctx.Done()
	return nil
}

func (s *HTTPService) Stop(ctx context.Context) error {
	slog.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}
