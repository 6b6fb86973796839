// Package health aggregates dependency reachability checks behind the
// service health endpoint.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// ResultSuccess is the body value clients poll for.
const ResultSuccess = "success"

// ResultError marks a response carrying per-dependency failures.
const ResultError = "error"

// checkTimeout bounds each dependency ping.
const checkTimeout = 3 * time.Second

// CheckFunc pings one dependency.
type CheckFunc func(ctx context.Context) error

type namedCheck struct {
	name  string
	check CheckFunc
}

// Checker runs the registered dependency checks and serves the health
// endpoint. The service is healthy only when every dependency is.
type Checker struct {
	mu     sync.RWMutex
	checks []namedCheck
}

// NewChecker creates a checker with no registered dependencies.
func NewChecker() *Checker {
	return &Checker{}
}

// Add registers a dependency check under a name. Names become the keys of
// the per-dependency status strings in an unhealthy response.
func (c *Checker) Add(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, namedCheck{name: name, check: check})
}

// Statuses runs all checks and returns the per-dependency status strings
// plus overall health. A dependency's status is "ok" or its error text.
func (c *Checker) Statuses(ctx context.Context) (map[string]string, bool) {
	c.mu.RLock()
	checks := make([]namedCheck, len(c.checks))
	copy(checks, c.checks)
	c.mu.RUnlock()

	statuses := make(map[string]string, len(checks))
	healthy := true
	for _, nc := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := nc.check(checkCtx)
		cancel()
		if err != nil {
			statuses[nc.name] = err.Error()
			healthy = false
		} else {
			statuses[nc.name] = "ok"
		}
	}
	return statuses, healthy
}

// Handler serves the health endpoint: 200 {"result":"success"} when every
// dependency is reachable, 503 with per-dependency status strings
// otherwise.
func (c *Checker) Handler(w http.ResponseWriter, r *http.Request) {
	statuses, healthy := c.Statuses(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"result": ResultSuccess})
		return
	}

	body := map[string]string{"result": ResultError}
	for name, status := range statuses {
		body[name] = status
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(body)
}

// PingCheck adapts a Ping-style dependency method.
func PingCheck(ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) error {
		return ping(ctx)
	}
}
