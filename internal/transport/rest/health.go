package rest

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/transport"
)

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

type HealthResponse struct {
	Status     HealthStatus          `json:"status"`
	CheckedAt  time.Time             `json:"checked_at"`
	Components map[string]CheckEntry `json:"components"`
}

type CheckEntry struct {
	Status     HealthStatus `json:"status"`
	Message    string       `json:"message,omitempty"`
	CheckedAt  time.Time    `json:"checked_at"`
	DurationMs int64        `json:"duration_ms"`
}

// Checker pings one backing component: the store, redis, the gateway config.
type Checker func(ctx context.Context) error

type HealthHandler struct {
	transport.BaseHandler
	checks  map[string]Checker
	timeout time.Duration
}

func NewHealthHandler(checks map[string]Checker) *HealthHandler {
	return &HealthHandler{
		BaseHandler: *transport.NewBaseHandler(nil),
		checks:      checks,
		timeout:     2 * time.Second,
	}
}

func (h *HealthHandler) pingHandler(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// healthCheckHandler runs every check concurrently under one deadline.
func (h *HealthHandler) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := internal.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		components = make(map[string]CheckEntry, len(names))
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string, check Checker) {
			defer wg.Done()
			start := time.Now()
			entry := CheckEntry{Status: HealthHealthy}
			if err := check(ctx); err != nil {
				entry.Status = HealthUnhealthy
				entry.Message = err.Error()
			}
			entry.CheckedAt = time.Now()
			entry.DurationMs = time.Since(start).Milliseconds()

			mu.Lock()
			components[name] = entry
			mu.Unlock()
		}(name, h.checks[name])
	}
	wg.Wait()

	resp := HealthResponse{
		Status:     HealthHealthy,
		CheckedAt:  time.Now(),
		Components: components,
	}
	statusCode := http.StatusOK
	for _, entry := range components {
		if entry.Status == HealthUnhealthy {
			resp.Status = HealthUnhealthy
			statusCode = http.StatusServiceUnavailable
			break
		}
	}

	h.WriteJSON(w, statusCode, resp)
}
