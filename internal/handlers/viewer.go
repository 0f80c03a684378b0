package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/otcheredev/ris-viewer-manager/internal/launch"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"github.com/otcheredev/ris-viewer-manager/internal/services"
)

type ViewerHandler struct {
	viewer *services.ViewerService
}

func NewViewerHandler(viewer *services.ViewerService) *ViewerHandler {
	return &ViewerHandler{viewer: viewer}
}

// Launch resolves preferences, archive results and client version of a
// viewer launch
func (h *ViewerHandler) Launch(w http.ResponseWriter, r *http.Request) {
	var req services.LaunchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.User == "" {
		if name := requester(r); name != "anonymous" {
			req.User = name
		}
	}

	resp, err := h.viewer.Launch(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Search fans a search out over the requested archives. Archives that fail
// are reported per archive next to the ones that answered.
func (h *ViewerHandler) Search(w http.ResponseWriter, r *http.Request) {
	var criteria models.SearchCriteria
	if err := decode(r, &criteria); err != nil {
		writeError(w, r, err)
		return
	}

	outcome, err := h.viewer.Search(r.Context(), criteria, requester(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// Version reports the compatibility of a client version
func (h *ViewerHandler) Version(w http.ResponseWriter, r *http.Request) {
	compat, err := h.viewer.CheckVersion(chi.URLParam(r, "version"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, compat)
}

// Duplicates lists launches sharing a (config, preferred) pair. Repeat the
// config and preferred query parameters to restrict the search.
func (h *ViewerHandler) Duplicates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := launch.Filter{
		Configs:   q["config"],
		Preferred: q["preferred"],
	}

	groups, err := h.viewer.Duplicates(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if groups == nil {
		groups = []launch.DuplicateGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}
