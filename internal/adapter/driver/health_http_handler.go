package driver

import (
	"net/http"

	"github.com/alorle/catalog-sync/internal/application"
)

// HealthHTTPHandler handles HTTP requests for health checks.
type HealthHTTPHandler struct {
	service *application.HealthService
}

// NewHealthHTTPHandler creates a new HTTP handler for health checks.
func NewHealthHTTPHandler(service *application.HealthService) *HealthHTTPHandler {
	return &HealthHTTPHandler{service: service}
}

// healthResponse represents the JSON response for health check endpoint.
type healthResponse struct {
	Status   string `json:"status"`
	DB       string `json:"db"`
	RowStore string `json:"row_store"`
	Error    string `json:"error,omitempty"`
}

// ServeHTTP handles GET /health
func (h *HealthHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status := h.service.Check(r.Context())

	resp := healthResponse{
		Status:   status.Status,
		DB:       status.DB.Status,
		RowStore: status.RowStore.Status,
	}
	if status.DB.Error != "" {
		resp.Error = status.DB.Error
	} else if status.RowStore.Error != "" {
		resp.Error = status.RowStore.Error
	}

	httpStatus := http.StatusOK
	if status.Status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, resp)
}
