// Custom Reports - On-demand Web Analytics Report Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/customreports

package eventprocessor

import (
	"context"
	"sort"
	"sync"
	"time"
)

// HealthStatusType is the aggregated health of all components.
type HealthStatusType string

const (
	HealthStatusHealthy   HealthStatusType = "healthy"
	HealthStatusDegraded  HealthStatusType = "degraded"
	HealthStatusUnhealthy HealthStatusType = "unhealthy"
)

// DefaultHealthTimeout bounds a single component check.
const DefaultHealthTimeout = 5 * time.Second

// ComponentHealth is the result of one component check.
type ComponentHealth struct {
	Healthy   bool                   `json:"healthy"`
	Degraded  bool                   `json:"degraded,omitempty"`
	Name      string                 `json:"name"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	LastCheck time.Time              `json:"last_check"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func newComponentHealth(name string) ComponentHealth {
	return ComponentHealth{
		Name:      name,
		LastCheck: time.Now(),
		Details:   make(map[string]interface{}),
	}
}

// HealthCheckable is implemented by components that report their health.
type HealthCheckable interface {
	HealthCheck(ctx context.Context) ComponentHealth
}

// PingCheck adapts a ping function (a store or cache connection) to
// HealthCheckable.
type PingCheck func(ctx context.Context) error

// HealthCheck implements HealthCheckable.
func (f PingCheck) HealthCheck(ctx context.Context) ComponentHealth {
	health := newComponentHealth("")
	if err := f(ctx); err != nil {
		health.Error = err.Error()
		return health
	}
	health.Healthy = true
	return health
}

// OverallHealth aggregates component results.
type OverallHealth struct {
	Healthy    bool                       `json:"healthy"`
	Status     HealthStatusType           `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthChecker runs registered component checks concurrently, each under
// its own timeout.
type HealthChecker struct {
	timeout    time.Duration
	mu         sync.RWMutex
	components map[string]HealthCheckable
}

// NewHealthChecker returns a checker. A non-positive timeout uses
// DefaultHealthTimeout.
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	return &HealthChecker{
		timeout:    timeout,
		components: make(map[string]HealthCheckable),
	}
}

// RegisterComponent adds or replaces the check named name.
func (h *HealthChecker) RegisterComponent(name string, component HealthCheckable) {
	h.mu.Lock()
	h.components[name] = component
	h.mu.Unlock()
}

// Components returns the registered names, sorted.
func (h *HealthChecker) Components() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.components))
	for name := range h.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckAll checks every component. One unhealthy component makes the whole
// result unhealthy; a degraded one downgrades a healthy result.
func (h *HealthChecker) CheckAll(ctx context.Context) OverallHealth {
	h.mu.RLock()
	components := make(map[string]HealthCheckable, len(h.components))
	for name, c := range h.components {
		components[name] = c
	}
	h.mu.RUnlock()

	overall := OverallHealth{
		Healthy:    true,
		Status:     HealthStatusHealthy,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth, len(components)),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, c := range components {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := h.check(ctx, name, c)

			mu.Lock()
			defer mu.Unlock()
			overall.Components[name] = result
			switch {
			case !result.Healthy:
				overall.Healthy = false
				overall.Status = HealthStatusUnhealthy
			case result.Degraded && overall.Status == HealthStatusHealthy:
				overall.Status = HealthStatusDegraded
			}
		}()
	}
	wg.Wait()
	return overall
}

// CheckComponent checks a single registered component.
func (h *HealthChecker) CheckComponent(ctx context.Context, name string) ComponentHealth {
	h.mu.RLock()
	c, ok := h.components[name]
	h.mu.RUnlock()
	if !ok {
		result := newComponentHealth(name)
		result.Error = "component not found"
		return result
	}
	return h.check(ctx, name, c)
}

func (h *HealthChecker) check(ctx context.Context, name string, c HealthCheckable) ComponentHealth {
	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	resultCh := make(chan ComponentHealth, 1)
	go func() {
		resultCh <- c.HealthCheck(checkCtx)
	}()

	var result ComponentHealth
	select {
	case result = <-resultCh:
	case <-checkCtx.Done():
		result = ComponentHealth{Error: "health check timeout"}
	}
	result.Name = name
	result.LastCheck = time.Now()
	return result
}
