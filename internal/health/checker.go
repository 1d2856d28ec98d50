package health

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult holds the result of a health check.
type CheckResult struct {
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// Component represents a checked dependency.
type Component struct {
	Name string `json:"name"`
	Type string `json:"type"` // store or backend
	CheckResult
}

// Pinger is a local store that can report whether it is usable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPClient is the subset of *http.Client the backend probe needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds health checker configuration.
type Config struct {
	// BackendURL is probed at /auth/v1/health with the anon key.
	BackendURL string
	AnonKey    string
	HTTPClient HTTPClient

	// Stores are pinged by name; a failing store makes the daemon unhealthy.
	Stores map[string]Pinger

	StoreTimeout    time.Duration
	HTTPTimeout     time.Duration
	MaxStoreLatency time.Duration
}

// Checker performs health checks on the daemon's dependencies.
type Checker struct {
	cfg Config

	mu         sync.RWMutex
	components []Component
}

// New creates a new health checker.
func New(cfg Config) *Checker {
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	if cfg.MaxStoreLatency == 0 {
		cfg.MaxStoreLatency = 100 * time.Millisecond
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	return &Checker{cfg: cfg}
}

// Check runs every probe concurrently and returns the overall status.
func (c *Checker) Check(ctx context.Context) HealthStatus {
	var wg sync.WaitGroup
	results := make(chan Component, len(c.cfg.Stores)+1)

	for name, store := range c.cfg.Stores {
		if store == nil {
			continue
		}
		wg.Add(1)
		go func(name string, store Pinger) {
			defer wg.Done()
			results <- c.checkStore(ctx, name, store)
		}(name, store)
	}
	if c.cfg.BackendURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.checkBackend(ctx)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	components := make([]Component, 0, cap(results))
	for comp := range results {
		components = append(components, comp)
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	c.mu.Lock()
	c.components = components
	c.mu.Unlock()

	return overallStatus(components)
}

func (c *Checker) checkStore(ctx context.Context, name string, store Pinger) Component {
	comp := Component{Name: name, Type: "store", CheckResult: CheckResult{Timestamp: time.Now()}}

	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	defer cancel()
	err := store.Ping(pingCtx)
	comp.Latency = time.Since(start)

	switch {
	case err != nil:
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		comp.Message = "Store unavailable"
	case comp.Latency > c.cfg.MaxStoreLatency:
		comp.Status = StatusDegraded
		comp.Message = fmt.Sprintf("High latency: %v", comp.Latency)
	default:
		comp.Status = StatusHealthy
		comp.Message = "Available"
	}
	return comp
}

// checkBackend treats any answer below 500 as reachable; an unreachable
// backend degrades the daemon without making it unhealthy.
func (c *Checker) checkBackend(ctx context.Context) Component {
	comp := Component{Name: "backend", Type: "backend", CheckResult: CheckResult{Timestamp: time.Now()}}

	start := time.Now()
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.HTTPTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.cfg.BackendURL+"/auth/v1/health", nil)
	if err != nil {
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
		return comp
	}
	if c.cfg.AnonKey != "" {
		req.Header.Set("apikey", c.cfg.AnonKey)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	comp.Latency = time.Since(start)
	if err != nil {
		comp.Status = StatusDegraded
		comp.Error = err.Error()
		comp.Message = "Backend unreachable"
		return comp
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		comp.Status = StatusDegraded
		comp.Message = fmt.Sprintf("Backend error (HTTP %d)", resp.StatusCode)
		return comp
	}
	comp.Status = StatusHealthy
	comp.Message = fmt.Sprintf("Reachable (HTTP %d)", resp.StatusCode)
	return comp
}

func overallStatus(components []Component) HealthStatus {
	overall := StatusHealthy
	for _, comp := range components {
		switch comp.Status {
		case StatusUnhealthy:
			if comp.Type == "store" {
				overall = StatusUnhealthy
			} else if overall == StatusHealthy {
				overall = StatusDegraded
			}
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return HealthStatus{Status: overall, Timestamp: time.Now(), Components: components}
}

// HealthStatus represents the overall health of the daemon.
type HealthStatus struct {
	Status     Status      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Components []Component `json:"components"`
}

// LastStatus returns the most recent check result without probing again.
func (c *Checker) LastStatus() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.components) == 0 {
		return HealthStatus{Status: StatusHealthy, Timestamp: time.Now()}
	}
	return overallStatus(append([]Component(nil), c.components...))
}
