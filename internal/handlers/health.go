package handlers

import (
	"net/http"
	"time"

	"github.com/otcheredev/ris-viewer-manager/internal/connectors"
	"github.com/otcheredev/ris-viewer-manager/internal/version"
)

type HealthHandler struct {
	ping     func() error
	registry *connectors.Registry
	versions *version.Store
}

// NewHealthHandler reports on the database reached through ping, the
// connector registry and the version table
func NewHealthHandler(ping func() error, registry *connectors.Registry, versions *version.Store) *HealthHandler {
	return &HealthHandler{ping: ping, registry: registry, versions: versions}
}

type healthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Services   map[string]string `json:"services"`
	Connectors int               `json:"connectors"`
	Releases   int               `json:"releases"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := healthResponse{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Services:   make(map[string]string),
		Connectors: len(h.registry.Snapshot().IDs()),
		Releases:   h.versions.Load().Len(),
	}

	if err := h.ping(); err != nil {
		response.Services["database"] = "unhealthy"
		response.Status = "degraded"
	} else {
		response.Services["database"] = "healthy"
	}

	// without a version table no client can be checked
	if response.Releases == 0 {
		response.Services["versions"] = "empty"
		response.Status = "degraded"
	} else {
		response.Services["versions"] = "loaded"
	}

	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.ping(); err != nil {
		http.Error(w, "Service not ready", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
