// Package health exposes service liveness and dependency checks.
package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/varannik/dental-saas/cache"
	"github.com/varannik/dental-saas/system"
)

const serviceName = "voice-agent"

type systemStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

type report struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp string            `json:"timestamp"`
	System    systemStats       `json:"system"`
	Checks    map[string]string `json:"checks"`
}

// Handler reports service health, including Redis connectivity and
// host resource usage.
type Handler struct {
	cache  *cache.Client
	logger *slog.Logger
}

func NewHandler(c *cache.Client, logger *slog.Logger) *Handler {
	return &Handler{cache: c, logger: logger.With("component", "health")}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rep := report{
		Status:    "healthy",
		Service:   serviceName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    map[string]string{},
	}

	if err := h.cache.Ping(r.Context()); err != nil {
		h.logger.Error("redis check failed", "error", err)
		rep.Status = "degraded"
		rep.Checks["redis"] = "unreachable"
	} else {
		rep.Checks["redis"] = "ok"
	}

	// Resource stats are informational; failures don't degrade status.
	if cpuPct, err := system.CPUPercent(); err == nil {
		rep.System.CPUPercent = cpuPct
	}
	if memPct, err := system.MemoryPercent(); err == nil {
		rep.System.MemoryPercent = memPct
	}

	w.Header().Set("Content-Type", "application/json")
	if rep.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(rep)
}
