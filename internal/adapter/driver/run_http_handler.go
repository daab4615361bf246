package driver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/alorle/catalog-sync/internal/application"
	"github.com/alorle/catalog-sync/internal/run"
)

// RunHTTPHandler handles HTTP requests for run status and history.
type RunHTTPHandler struct {
	coordinator *application.Coordinator
}

// NewRunHTTPHandler creates a new HTTP handler for runs.
func NewRunHTTPHandler(coordinator *application.Coordinator) *RunHTTPHandler {
	return &RunHTTPHandler{coordinator: coordinator}
}

// ServeHTTP routes the request to the appropriate handler based on method and path.
func (h *RunHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/runs"), "/")

	switch {
	case path == "":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleList(w, r)
	case path == "current":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleCurrent(w)
	case path == "current/cancel":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleCancel(w)
	case !strings.Contains(path, "/"):
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleGet(w, r, path)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *RunHTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	runs, err := h.coordinator.History(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *RunHTTPHandler) handleCurrent(w http.ResponseWriter) {
	snap, err := h.coordinator.Current()
	if err != nil {
		if errors.Is(err, run.ErrNoActiveRun) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *RunHTTPHandler) handleCancel(w http.ResponseWriter) {
	snap, err := h.coordinator.Cancel()
	if err != nil {
		if errors.Is(err, run.ErrNoActiveRun) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

func (h *RunHTTPHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	summary, err := h.coordinator.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, run.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
