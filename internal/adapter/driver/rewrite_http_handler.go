package driver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/alorle/catalog-sync/internal/application"
	"github.com/alorle/catalog-sync/internal/catalog"
	"github.com/alorle/catalog-sync/internal/run"
)

// maxRewriteBodyBytes bounds the size of a rewrite request body.
const maxRewriteBodyBytes = 64 << 10

// RewriteHTTPHandler handles HTTP requests for URL rewrites.
type RewriteHTTPHandler struct {
	coordinator *application.Coordinator
}

// NewRewriteHTTPHandler creates a new HTTP handler for rewrites.
func NewRewriteHTTPHandler(coordinator *application.Coordinator) *RewriteHTTPHandler {
	return &RewriteHTTPHandler{coordinator: coordinator}
}

// rewriteRequest represents the JSON body for starting a rewrite.
type rewriteRequest struct {
	Table  string `json:"table" validate:"required,oneof=contents episodes banners categories"`
	Source string `json:"source" validate:"required,max=2048"`
	Target string `json:"target" validate:"max=2048,nefield=Source"`
}

// ServeHTTP handles POST /rewrites
func (h *RewriteHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSuffix(r.URL.Path, "/") != "/rewrites" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req rewriteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRewriteBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Table = strings.ToLower(strings.TrimSpace(req.Table))

	if err := validateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	table, err := catalog.ParseTableKind(req.Table)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.coordinator.StartRewrite(application.RewriteRequest{
		Table:  table,
		Source: req.Source,
		Target: req.Target,
	})
	if err != nil {
		switch {
		case errors.Is(err, application.ErrEmptySource),
			errors.Is(err, application.ErrSourceIsTarget),
			errors.Is(err, application.ErrNoURLFieldMapped),
			errors.Is(err, catalog.ErrUnknownTable),
			errors.Is(err, catalog.ErrTableNotConfigured):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, run.ErrRunInProgress):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, context.Canceled):
			writeError(w, http.StatusServiceUnavailable, "shutting down")
		default:
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	w.Header().Set("Location", "/api/runs/"+snap.ID)
	writeJSON(w, http.StatusAccepted, snap)
}
