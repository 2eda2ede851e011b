// Package health provides health check capabilities for the node.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cmatc13/p2pservice/pkg/logging"
	"github.com/cmatc13/p2pservice/pkg/service"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusUp indicates the component is healthy.
	StatusUp Status = "UP"
	// StatusDown indicates the component is unhealthy.
	StatusDown Status = "DOWN"
	// StatusUnknown indicates the component's health is unknown.
	StatusUnknown Status = "UNKNOWN"
)

// Check represents a health check for a component.
type Check struct {
	// Name is the name of the component being checked.
	Name string
	// Status is the health status of the component.
	Status Status
	// Message is an optional message providing more details about the health status.
	Message string
	// LastChecked is the time when the component was last checked.
	LastChecked time.Time
	// Error is an optional error that occurred during the health check.
	Error error
}

// MarshalJSON implements the json.Marshaler interface.
func (c Check) MarshalJSON() ([]byte, error) {
	var errorStr string
	if c.Error != nil {
		errorStr = c.Error.Error()
	}

	return json.Marshal(struct {
		Name        string    `json:"name"`
		Status      Status    `json:"status"`
		Message     string    `json:"message,omitempty"`
		LastChecked time.Time `json:"last_checked"`
		Error       string    `json:"error,omitempty"`
	}{
		Name:        c.Name,
		Status:      c.Status,
		Message:     c.Message,
		LastChecked: c.LastChecked,
		Error:       errorStr,
	})
}

// Checker defines a function that performs a health check.
type Checker func(ctx context.Context) Check

// Registry manages the node's health checks.
type Registry struct {
	checks map[string]Checker
	mutex  sync.RWMutex
	logger *logging.Logger
	now    func() time.Time
}

// NewRegistry creates a new health check registry.
func NewRegistry(logger *logging.Logger) *Registry {
	return &Registry{
		checks: make(map[string]Checker),
		logger: logger,
		now:    time.Now,
	}
}

// Register adds a health check to the registry, replacing any check of the
// same name.
func (r *Registry) Register(name string, checker Checker) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.checks[name] = checker
	r.logger.Debug("Registered health check", "name", name)
}

// Unregister removes a health check from the registry.
func (r *Registry) Unregister(name string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.checks, name)
	r.logger.Debug("Unregistered health check", "name", name)
}

// Names returns the registered check names in sorted order.
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunChecks runs all registered health checks.
func (r *Registry) RunChecks(ctx context.Context) map[string]Check {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	results := make(map[string]Check, len(r.checks))
	for name, checker := range r.checks {
		results[name] = checker(ctx)
	}

	return results
}

// Overall folds individual results into one status: any DOWN makes the node
// DOWN, otherwise any UNKNOWN makes it UNKNOWN.
func Overall(checks map[string]Check) Status {
	status := StatusUp
	for _, check := range checks {
		switch check.Status {
		case StatusDown:
			return StatusDown
		case StatusUnknown:
			status = StatusUnknown
		}
	}
	return status
}

// IsHealthy returns true if all health checks are passing.
func (r *Registry) IsHealthy(ctx context.Context) bool {
	return Overall(r.RunChecks(ctx)) == StatusUp
}

// Handler returns an HTTP handler for health checks.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		checks := r.RunChecks(req.Context())
		status := Overall(checks)

		response := struct {
			Status    Status           `json:"status"`
			Timestamp time.Time        `json:"timestamp"`
			Checks    map[string]Check `json:"checks"`
		}{
			Status:    status,
			Timestamp: r.now(),
			Checks:    checks,
		}

		w.Header().Set("Content-Type", "application/json")
		if status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			r.logger.Error("Failed to encode health check response", "error", err)
		}
	})
}

// ServiceChecker reports a Service's lifecycle position. A running service is
// UP; one that has not started yet is UNKNOWN; a service that is cancelling or
// finished is DOWN.
func ServiceChecker(s *service.Service) Checker {
	return func(ctx context.Context) Check {
		check := Check{
			Name:        s.Name(),
			LastChecked: time.Now(),
		}

		switch status := s.Status(); status {
		case service.StatusRunning:
			check.Status = StatusUp
			check.Message = fmt.Sprintf("Service %s is running", s.Name())
		case service.StatusNotStarted:
			check.Status = StatusUnknown
			check.Message = fmt.Sprintf("Service %s has not started", s.Name())
		default:
			check.Status = StatusDown
			check.Message = fmt.Sprintf("Service %s is %s", s.Name(), status)
		}

		return check
	}
}

// RedisChecker creates a health check for Redis.
func RedisChecker(redisAddr string, pingFn func(ctx context.Context) error) Checker {
	return DependencyChecker("redis", func(ctx context.Context) error {
		if err := pingFn(ctx); err != nil {
			return fmt.Errorf("redis at %s: %w", redisAddr, err)
		}
		return nil
	})
}

// DependencyChecker creates a health check for a dependency.
func DependencyChecker(dependencyName string, checkFn func(ctx context.Context) error) Checker {
	return func(ctx context.Context) Check {
		check := Check{
			Name:        dependencyName,
			Status:      StatusUnknown,
			LastChecked: time.Now(),
		}

		err := checkFn(ctx)
		if err != nil {
			check.Status = StatusDown
			check.Error = err
			check.Message = fmt.Sprintf("Dependency %s is unhealthy: %v", dependencyName, err)
		} else {
			check.Status = StatusUp
			check.Message = fmt.Sprintf("Dependency %s is healthy", dependencyName)
		}

		return check
	}
}
