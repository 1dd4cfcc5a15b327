// Package health reports the state of the service's dependencies and serves
// it next to the Prometheus metrics endpoint.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/resilience/internal/core/failure"
)

// SystemStatus represents the health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc struct {
	Component string
	Fn        func(ctx context.Context) error
}

func (c CheckFunc) Name() string                    { return c.Component }
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// ComponentHealth is the result of one check.
type ComponentHealth struct {
	Name           string                  `json:"name"`
	Status         SystemStatus            `json:"status"`
	Error          string                  `json:"error,omitempty"`
	Classification *failure.Classification `json:"classification,omitempty"`
	Latency        time.Duration           `json:"latency_ns"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus      `json:"system_status"`
	Components   []ComponentHealth `json:"components"`
}

// Monitor runs checks concurrently with a per-check timeout.
type Monitor struct {
	checkers []Checker
	timeout  time.Duration
}

// NewMonitor creates a monitor. A timeout of 0 means 2s.
func NewMonitor(timeout time.Duration, checkers ...Checker) *Monitor {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Monitor{checkers: checkers, timeout: timeout}
}

// CheckHealth runs every check. A retryable failure degrades the system;
// any other failure makes it critical.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	results := make([]ComponentHealth, len(m.checkers))

	var wg sync.WaitGroup
	for i, c := range m.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = m.check(ctx, c)
		}()
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	report := HealthReport{SystemStatus: StatusHealthy, Components: results}
	// Worst case wins.
	for _, r := range results {
		if r.Status == StatusCritical {
			report.SystemStatus = StatusCritical
			break
		}
		if r.Status == StatusDegraded {
			report.SystemStatus = StatusDegraded
		}
	}
	return report
}

func (m *Monitor) check(ctx context.Context, c Checker) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	err := c.Check(ctx)
	h := ComponentHealth{Name: c.Name(), Status: StatusHealthy, Latency: time.Since(start)}
	if err == nil {
		return h
	}

	cls := failure.Classify(err)
	h.Error = err.Error()
	h.Classification = &cls
	if cls.Retryable {
		h.Status = StatusDegraded
	} else {
		h.Status = StatusCritical
	}
	return h
}
