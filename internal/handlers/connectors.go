package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/otcheredev/ris-viewer-manager/internal/services"
	"github.com/rs/zerolog/log"
)

type ConnectorHandler struct {
	connectors *services.ConnectorService
}

func NewConnectorHandler(connectors *services.ConnectorService) *ConnectorHandler {
	return &ConnectorHandler{connectors: connectors}
}

// List returns the configured connectors
func (h *ConnectorHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectors.List())
}

// Refresh reloads the connector file
func (h *ConnectorHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	infos, err := h.connectors.Reload(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.Info().Str("principal", requester(r)).Int("connectors", len(infos)).Msg("Connectors refreshed")
	writeJSON(w, http.StatusOK, infos)
}

// Test pings a connector
func (h *ConnectorHandler) Test(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := h.connectors.Test(r.Context(), id)
	if status == nil {
		writeError(w, r, err)
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("archive_id", id).Msg("Connection test failed")
	}
	// a failed test is still a 200 carrying is_connected false
	writeJSON(w, http.StatusOK, status)
}

// Audit lists the latest audit entries of a connector
func (h *ConnectorHandler) Audit(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err == nil && limit == 0 {
		limit = 50
	}
	offset, offErr := queryInt(r, "offset", 0)
	if err == nil {
		err = offErr
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	logs, err := h.connectors.Audit(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
