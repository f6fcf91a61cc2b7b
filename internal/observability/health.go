package observability

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ComponentStatus represents the health status of a dependency.
type ComponentStatus string

const (
	StatusHealthy   ComponentStatus = "healthy"
	StatusDegraded  ComponentStatus = "degraded"
	StatusUnhealthy ComponentStatus = "unhealthy"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) ComponentHealth

// ComponentHealth is the health report for a single dependency.
type ComponentHealth struct {
	Name        string          `json:"name"`
	Status      ComponentStatus `json:"status"`
	Message     string          `json:"message,omitempty"`
	LastChecked time.Time       `json:"last_checked"`
	LatencyMs   int64           `json:"latency_ms"`
}

// SystemHealth is the aggregate health served on /api/health.
type SystemHealth struct {
	Status        ComponentStatus            `json:"status"`
	Components    map[string]ComponentHealth `json:"components"`
	Timestamp     time.Time                  `json:"ts"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
}

// TransitionFunc is called when a dependency changes status.
type TransitionFunc func(prev ComponentStatus, cur ComponentHealth)

// PingCheck adapts an error-returning probe. Optional dependencies report
// degraded rather than unhealthy when the probe fails.
func PingCheck(ping func(ctx context.Context) error, optional bool) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			status := StatusUnhealthy
			if optional {
				status = StatusDegraded
			}
			return ComponentHealth{Status: status, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusHealthy}
	}
}

// HealthMonitor probes registered dependencies on demand and, when
// started, on an interval.
type HealthMonitor struct {
	mu           sync.RWMutex
	checks       map[string]HealthCheck
	results      map[string]ComponentHealth
	startTime    time.Time
	interval     time.Duration
	checkTimeout time.Duration
	onTransition TransitionFunc
	stopCh       chan struct{}
	stopped      sync.Once
}

// NewHealthMonitor creates a monitor. Each probe gets checkTimeout.
func NewHealthMonitor(interval, checkTimeout time.Duration) *HealthMonitor {
	if checkTimeout <= 0 {
		checkTimeout = 5 * time.Second
	}
	return &HealthMonitor{
		checks:       make(map[string]HealthCheck),
		results:      make(map[string]ComponentHealth),
		startTime:    time.Now(),
		interval:     interval,
		checkTimeout: checkTimeout,
		stopCh:       make(chan struct{}),
	}
}

// Register adds a named health check.
func (m *HealthMonitor) Register(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// OnTransition installs a callback for status changes.
func (m *HealthMonitor) OnTransition(fn TransitionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = fn
}

// Start runs checks every interval until ctx ends or Stop is called.
func (m *HealthMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.runChecks(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.runChecks(ctx)
		}
	}
}

// Stop ends the periodic loop.
func (m *HealthMonitor) Stop() {
	m.stopped.Do(func() { close(m.stopCh) })
}

// Check runs every probe now and returns the aggregate.
func (m *HealthMonitor) Check(ctx context.Context) SystemHealth {
	m.runChecks(ctx)
	return m.snapshot()
}

// ComponentStatus returns the latest result for one dependency.
func (m *HealthMonitor) ComponentStatus(name string) (ComponentHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.results[name]
	return h, ok
}

// -----------------------------------------------------------------------
// Internal
// -----------------------------------------------------------------------

// runChecks probes all dependencies concurrently.
func (m *HealthMonitor) runChecks(ctx context.Context) {
	m.mu.RLock()
	names := make([]string, 0, len(m.checks))
	checks := make(map[string]HealthCheck, len(m.checks))
	for name, fn := range m.checks {
		names = append(names, name)
		checks[name] = fn
	}
	onTransition := m.onTransition
	m.mu.RUnlock()
	sort.Strings(names)

	results := make([]ComponentHealth, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, m.checkTimeout)
			defer cancel()

			start := time.Now()
			r := checks[name](cctx)
			r.Name = name
			r.LastChecked = time.Now()
			r.LatencyMs = time.Since(start).Milliseconds()
			if r.Status == "" {
				r.Status = StatusHealthy
			}
			results[i] = r
		}(i, name)
	}
	wg.Wait()

	m.mu.Lock()
	prev := m.results
	m.results = make(map[string]ComponentHealth, len(results))
	for _, r := range results {
		m.results[r.Name] = r
	}
	m.mu.Unlock()

	if onTransition == nil {
		return
	}
	for _, cur := range results {
		old, existed := prev[cur.Name]
		if existed && old.Status != cur.Status {
			onTransition(old.Status, cur)
		}
	}
}

// snapshot aggregates to the worst component status.
func (m *HealthMonitor) snapshot() SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	components := make(map[string]ComponentHealth, len(m.results))
	worst := StatusHealthy
	for name, h := range m.results {
		components[name] = h
		if statusSeverity(h.Status) > statusSeverity(worst) {
			worst = h.Status
		}
	}

	return SystemHealth{
		Status:        worst,
		Components:    components,
		Timestamp:     time.Now(),
		UptimeSeconds: int64(time.Since(m.startTime).Seconds()),
	}
}

func statusSeverity(s ComponentStatus) int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	case StatusUnhealthy:
		return 2
	default:
		return -1
	}
}
