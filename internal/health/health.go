// Package health aggregates per-component health checks for the
// daemon and exposes them over HTTP alongside metrics.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Status is the health state of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// CheckResult is the outcome of one health check run.
type CheckResult struct {
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ns"`
	Error       string         `json:"error,omitempty"`
}

// Check performs one health check.
type Check func(ctx context.Context) CheckResult

// Component is a named check. Critical components make the overall
// status unhealthy when they fail; others only degrade it.
type Component struct {
	Name     string
	Critical bool
	Check    Check
	Timeout  time.Duration
}

// Checker runs registered checks and aggregates their results.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*Component
	results    map[string]CheckResult
	startTime  time.Time
	ready      bool
}

func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]*Component),
		results:    make(map[string]CheckResult),
		startTime:  time.Now(),
	}
}

// Register adds a component.
func (c *Checker) Register(component *Component) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if component.Timeout == 0 {
		component.Timeout = 5 * time.Second
	}
	c.components[component.Name] = component
	c.results[component.Name] = CheckResult{Status: StatusUnknown}
}

// RegisterFunc adds a component from a bare check function.
func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{Name: name, Critical: critical, Check: check})
}

// SetReady marks the daemon as finished with startup.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Check runs every registered check concurrently and stores the
// results.
func (c *Checker) Check(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	components := make([]*Component, 0, len(c.components))
	for _, comp := range c.components {
		components = append(components, comp)
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult)
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	for _, comp := range components {
		wg.Add(1)
		go func(comp *Component) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, comp.Timeout)
			defer cancel()

			start := time.Now()
			result := runCheck(checkCtx, comp.Check)
			result.LastChecked = start
			result.Duration = time.Since(start)

			c.mu.Lock()
			c.results[comp.Name] = result
			c.mu.Unlock()

			resultsMu.Lock()
			results[comp.Name] = result
			resultsMu.Unlock()
		}(comp)
	}

	wg.Wait()
	return results
}

func runCheck(ctx context.Context, check Check) CheckResult {
	var result CheckResult
	done := make(chan struct{})
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result = CheckResult{
					Status:  StatusUnhealthy,
					Message: "check panicked",
					Error:   fmt.Sprintf("%v", r),
				}
			}
			close(done)
		}()
		result = check(ctx)
	}()

	select {
	case <-done:
		return result
	case <-ctx.Done():
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "check timed out",
			Error:   ctx.Err().Error(),
		}
	}
}

// Results returns a copy of the last stored results.
func (c *Checker) Results() map[string]CheckResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]CheckResult, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// OverallStatus aggregates stored results.
func (c *Checker) OverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hasUnknown := false
	hasDegraded := false
	for name, result := range c.results {
		comp := c.components[name]
		if comp == nil {
			continue
		}
		switch result.Status {
		case StatusUnhealthy:
			if comp.Critical {
				return StatusUnhealthy
			}
			hasDegraded = true
		case StatusDegraded:
			hasDegraded = true
		case StatusUnknown:
			if comp.Critical {
				hasUnknown = true
			}
		}
	}

	if hasUnknown {
		return StatusUnknown
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// Summary is a one-line description of overall health for status
// replies. It runs all checks.
func (c *Checker) Summary(ctx context.Context) (bool, string) {
	results := c.Check(ctx)
	status := c.OverallStatus()
	if status == StatusHealthy {
		return true, "all components healthy"
	}

	for name, res := range results {
		if res.Status == StatusUnhealthy || res.Status == StatusDegraded {
			detail := res.Message
			if res.Error != "" {
				detail = res.Error
			}
			return status != StatusUnhealthy, fmt.Sprintf("%s: %s", name, detail)
		}
	}
	return status != StatusUnhealthy, string(status)
}

// Response is the body served by the HTTP health endpoint.
type Response struct {
	Status     Status                 `json:"status"`
	Ready      bool                   `json:"ready"`
	Uptime     string                 `json:"uptime"`
	Components map[string]CheckResult `json:"components,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Handler serves health state. ?full=true runs and includes every
// component check.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var components map[string]CheckResult
		if r.URL.Query().Get("full") == "true" {
			components = c.Check(r.Context())
		}

		c.mu.RLock()
		ready := c.ready
		uptime := time.Since(c.startTime)
		c.mu.RUnlock()

		resp := Response{
			Status:     c.OverallStatus(),
			Ready:      ready,
			Uptime:     uptime.Round(time.Second).String(),
			Components: components,
			Timestamp:  time.Now(),
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == StatusUnhealthy || !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(resp)
	})
}

// DatabaseCheck wraps a database ping.
func DatabaseCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: "history database unreachable",
				Error:   err.Error(),
			}
		}
		return CheckResult{Status: StatusHealthy, Message: "history database ok"}
	}
}

// ListenerCheck reports on event capture. A listener with no open
// devices is unhealthy; drops only degrade it.
func ListenerCheck(devices func() int, dropped func() uint64) Check {
	// Checks may run concurrently from Summary and the HTTP handler.
	var lastDropped atomic.Uint64
	return func(ctx context.Context) CheckResult {
		n := devices()
		d := dropped()
		details := map[string]any{
			"devices":        n,
			"dropped_events": d,
		}
		if n == 0 {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: "no input devices open",
				Details: details,
			}
		}
		if d > lastDropped.Swap(d) {
			return CheckResult{
				Status:  StatusDegraded,
				Message: "events dropped since last check",
				Details: details,
			}
		}
		return CheckResult{Status: StatusHealthy, Message: "capturing", Details: details}
	}
}

// CheckpointCheck verifies state was persisted recently. maxAge
// should be a small multiple of the checkpoint interval.
func CheckpointCheck(last func() time.Time, maxAge time.Duration) Check {
	return func(ctx context.Context) CheckResult {
		ts := last()
		if ts.IsZero() {
			return CheckResult{Status: StatusUnknown, Message: "no checkpoint yet"}
		}
		age := time.Since(ts)
		details := map[string]any{"last_checkpoint": ts, "age": age.String()}
		if age > maxAge {
			return CheckResult{
				Status:  StatusDegraded,
				Message: "checkpoint overdue",
				Details: details,
			}
		}
		return CheckResult{Status: StatusHealthy, Message: "checkpointing", Details: details}
	}
}
