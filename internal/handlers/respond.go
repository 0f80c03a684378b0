package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/otcheredev/ris-viewer-manager/internal/apperr"
	"github.com/otcheredev/ris-viewer-manager/internal/middleware"
	"github.com/rs/zerolog/log"
)

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps a classified error to its status code
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Request failed")

	writeJSON(w, status, errorResponse{
		Error:     err.Error(),
		Kind:      string(apperr.KindOf(err)),
		Retryable: apperr.Retryable(err),
	})
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.KindValidation, "request", err)
	}
	return nil
}

// requester names the caller for audit entries
func requester(r *http.Request) string {
	if p, ok := middleware.GetPrincipal(r.Context()); ok && p.Name != "" {
		return p.Name
	}
	return "anonymous"
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.Newf(apperr.KindValidation, "request", "%s must be a non-negative integer", key)
	}
	return n, nil
}
