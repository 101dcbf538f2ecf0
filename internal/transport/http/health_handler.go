package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// Pinger is a dependency that can report its health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes. Readiness checks
// the registered dependencies; liveness only proves the process is serving.
type HealthHandler struct {
	logger  *slog.Logger
	version string
	deps    map[string]Pinger
}

// NewHealthHandler creates a health handler. deps maps a dependency name
// ("database", "redis") to its pinger; nil entries are skipped.
func NewHealthHandler(logger *slog.Logger, version string, deps map[string]Pinger) *HealthHandler {
	filtered := make(map[string]Pinger)
	for name, p := range deps {
		if p != nil {
			filtered[name] = p
		}
	}
	return &HealthHandler{
		logger:  logger.With(slog.String("handler", "health")),
		version: version,
		deps:    filtered,
	}
}

// HealthResponse is the health probe payload.
type HealthResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Routes returns the health endpoints.
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Ready)
	r.Get("/live", h.Live)
	r.Get("/ready", h.Ready)
	return r
}

// Live handles GET /api/health/live
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, &HealthResponse{
		Status:    "ok",
		Version:   h.version,
		Timestamp: time.Now().UTC(),
	})
}

// Ready handles GET /api/health and /api/health/ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.deps))
	for name, p := range h.deps {
		if err := p.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "dependency unhealthy",
				slog.String("dependency", name),
				slog.String("error", err.Error()))
			deps[name] = "unhealthy"
			status = "degraded"
			continue
		}
		deps[name] = "healthy"
	}

	if status != "ok" {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, &HealthResponse{
		Status:       status,
		Version:      h.version,
		Timestamp:    time.Now().UTC(),
		Dependencies: deps,
	})
}
