// Package persist is the read-only adapter over the object-persistence
// store: which namespaces and scenes currently have persisted content. It is
// consulted for staff/administrative listings and namespace-existence
// checks; it must never be able to abort token issuance.
package persist

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"go.scenegrid.dev/internal/common/metrics"
)

// Reader is the raw lookup contract. Implementations return transport
// errors; Service above them applies the degrade policy.
type Reader interface {
	// AllNamespaces returns every namespace with persisted objects.
	AllNamespaces(ctx context.Context) ([]string, error)
	// AllScenes returns every "namespace/scene" with persisted objects.
	AllScenes(ctx context.Context) ([]string, error)
	// ScenesUnderNamespaces returns persisted scenes in the given
	// namespaces only.
	ScenesUnderNamespaces(ctx context.Context, namespaces []string) ([]string, error)
	// Ping reports store reachability for health checks.
	Ping(ctx context.Context) error
}

// Service wraps a Reader with a circuit breaker and the documented failure
// policy: lookups degrade to empty results with a logged warning. A slow or
// down persistence store makes listings incomplete, never requests fail.
type Service struct {
	reader  Reader
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewService creates the degrading persistence service.
func NewService(reader Reader, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Service{
		reader:  reader,
		timeout: timeout,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "persist",
			Interval: 60 * time.Second,
			Timeout:  15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.Requests >= 5 && counts.TotalFailures*2 >= counts.Requests
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("Persistence breaker state change",
					"breaker", name, "from", from.String(), "to", to.String())
				metrics.PersistBreakerState.Set(breakerStateValue(to))
			},
		}),
	}
}

// AllNamespaces lists persisted namespaces, empty on failure.
func (s *Service) AllNamespaces(ctx context.Context) []string {
	return s.lookup(ctx, "all_namespaces", s.reader.AllNamespaces)
}

// AllScenes lists persisted scenes, empty on failure.
func (s *Service) AllScenes(ctx context.Context) []string {
	return s.lookup(ctx, "all_scenes", s.reader.AllScenes)
}

// ScenesUnderNamespaces lists persisted scenes in the given namespaces,
// empty on failure.
func (s *Service) ScenesUnderNamespaces(ctx context.Context, namespaces []string) []string {
	if len(namespaces) == 0 {
		return nil
	}
	return s.lookup(ctx, "scenes_under_namespaces", func(ctx context.Context) ([]string, error) {
		return s.reader.ScenesUnderNamespaces(ctx, namespaces)
	})
}

// Ping reports reachability; the breaker is bypassed so health reflects the
// store itself.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.reader.Ping(ctx)
}

func (s *Service) lookup(ctx context.Context, op string, fn func(context.Context) ([]string, error)) []string {
	result, err := s.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return fn(ctx)
	})
	if err != nil {
		slog.Warn("Persistence lookup degraded to empty result", "op", op, "error", err)
		metrics.PersistLookups.WithLabelValues(op, "degraded").Inc()
		return nil
	}
	metrics.PersistLookups.WithLabelValues(op, "success").Inc()
	names, _ := result.([]string)
	return names
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return metrics.BreakerOpen
	case gobreaker.StateHalfOpen:
		return metrics.BreakerHalfOpen
	default:
		return metrics.BreakerClosed
	}
}
