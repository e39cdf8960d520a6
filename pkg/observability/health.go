package observability

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// HealthStatus classifies a dependency check result. A degraded dependency
// (cache, broker) leaves the pipeline running on fallbacks; an unhealthy
// one (the task store database) does not.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResult is the outcome of probing one dependency.
type HealthCheckResult struct {
	Status    HealthStatus   `json:"status"`
	Message   string         `json:"message,omitempty"`
	Duration  time.Duration  `json:"duration_ns"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// HealthChecker probes a single dependency.
type HealthChecker func(ctx context.Context) HealthCheckResult

// HealthRegistry runs the dependency checks backing the worker's health
// endpoint.
type HealthRegistry struct {
	mu      sync.RWMutex
	checks  map[string]HealthChecker
	results map[string]HealthCheckResult
}

// NewHealthRegistry creates an empty health registry.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{
		checks:  make(map[string]HealthChecker),
		results: make(map[string]HealthCheckResult),
	}
}

// Register adds a named dependency check.
func (r *HealthRegistry) Register(name string, check HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = check
}

// Check probes every registered dependency concurrently and caches the
// results for OverallStatus.
func (r *HealthRegistry) Check(ctx context.Context) map[string]HealthCheckResult {
	r.mu.RLock()
	checks := make(map[string]HealthChecker, len(r.checks))
	for name, check := range r.checks {
		checks[name] = check
	}
	r.mu.RUnlock()

	var (
		wg       sync.WaitGroup
		resultMu sync.Mutex
		results  = make(map[string]HealthCheckResult, len(checks))
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check HealthChecker) {
			defer wg.Done()
			start := time.Now()
			result := check(ctx)
			result.Duration = time.Since(start)
			result.Timestamp = time.Now()

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
		}(name, check)
	}
	wg.Wait()

	r.mu.Lock()
	r.results = results
	r.mu.Unlock()

	return results
}

// OverallStatus folds the cached results into one status. Any unhealthy
// dependency wins over degraded; an empty registry is healthy.
func (r *HealthRegistry) OverallStatus() HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := HealthStatusHealthy
	for _, result := range r.results {
		switch result.Status {
		case HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case HealthStatusDegraded:
			status = HealthStatusDegraded
		}
	}
	return status
}

// OverallHealth is the health endpoint response body.
type OverallHealth struct {
	Status    HealthStatus                 `json:"status"`
	Timestamp time.Time                    `json:"timestamp"`
	Checks    map[string]HealthCheckResult `json:"checks"`
}

// GetOverallHealth runs all checks and aggregates them.
func (r *HealthRegistry) GetOverallHealth(ctx context.Context) OverallHealth {
	checks := r.Check(ctx)
	return OverallHealth{
		Status:    r.OverallStatus(),
		Timestamp: time.Now(),
		Checks:    checks,
	}
}

// ToJSON serializes the overall health to JSON.
func (h OverallHealth) ToJSON() ([]byte, error) {
	return json.Marshal(h)
}

// DatabaseHealthChecker probes the task store database. Without it the
// pipeline cannot plan, so a failed ping is unhealthy.
func DatabaseHealthChecker(ping func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheckResult {
		if err := ping(ctx); err != nil {
			return HealthCheckResult{
				Status:  HealthStatusUnhealthy,
				Message: "database connection failed: " + err.Error(),
			}
		}
		return HealthCheckResult{
			Status:  HealthStatusHealthy,
			Message: "database connection healthy",
		}
	}
}

// RedisHealthChecker probes the snapshot cache. Runs fall back to
// replanning every cycle without it, so a failed ping is only degraded.
func RedisHealthChecker(ping func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheckResult {
		if err := ping(ctx); err != nil {
			return HealthCheckResult{
				Status:  HealthStatusDegraded,
				Message: "redis connection failed: " + err.Error(),
			}
		}
		return HealthCheckResult{
			Status:  HealthStatusHealthy,
			Message: "redis connection healthy",
		}
	}
}

// RabbitMQHealthChecker probes the event bus connection. Domain events are
// dropped while it is down, but the pipeline keeps running, so a failed
// ping is only degraded.
func RabbitMQHealthChecker(ping func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheckResult {
		if err := ping(ctx); err != nil {
			return HealthCheckResult{
				Status:  HealthStatusDegraded,
				Message: "rabbitmq connection failed: " + err.Error(),
			}
		}
		return HealthCheckResult{
			Status:  HealthStatusHealthy,
			Message: "rabbitmq connection healthy",
		}
	}
}
