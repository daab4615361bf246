package driver

import (
	"bufio"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/alorle/catalog-sync/internal/application"
	"github.com/alorle/catalog-sync/internal/run"
)

// maxPlaylistBytes bounds the size of an uploaded playlist.
const maxPlaylistBytes = 32 << 20

var errMissingPlaylistFile = errors.New("missing playlist file")

// ImportHTTPHandler handles HTTP requests for playlist imports.
type ImportHTTPHandler struct {
	coordinator *application.Coordinator
	imports     *application.ImportService
}

// NewImportHTTPHandler creates a new HTTP handler for imports.
func NewImportHTTPHandler(coordinator *application.Coordinator, imports *application.ImportService) *ImportHTTPHandler {
	return &ImportHTTPHandler{
		coordinator: coordinator,
		imports:     imports,
	}
}

// ServeHTTP routes the request to the appropriate handler based on method and path.
//
//	POST /imports          starts an import run
//	POST /imports/preview  parses and groups a playlist without importing it
func (h *ImportHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/imports"), "/")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch path {
	case "":
		h.handleStart(w, r)
	case "/preview":
		h.handlePreview(w, r)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *ImportHTTPHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	body, err := playlistBody(w, r)
	if err != nil {
		writePlaylistError(w, err)
		return
	}
	defer body.Close()

	snap, err := h.coordinator.StartImport(body)
	if err != nil {
		writePlaylistError(w, err)
		return
	}

	w.Header().Set("Location", "/api/runs/"+snap.ID)
	writeJSON(w, http.StatusAccepted, snap)
}

func (h *ImportHTTPHandler) handlePreview(w http.ResponseWriter, r *http.Request) {
	body, err := playlistBody(w, r)
	if err != nil {
		writePlaylistError(w, err)
		return
	}
	defer body.Close()

	preview, err := h.imports.Preview(body)
	if err != nil {
		writePlaylistError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, preview)
}

// playlistBody returns the uploaded playlist. It accepts either a raw
// body or a multipart form with a "file" field.
func playlistBody(w http.ResponseWriter, r *http.Request) (io.ReadCloser, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPlaylistBytes)

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.Body, nil
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
			return nil, err
		}
		return nil, errMissingPlaylistFile
	}
	return file, nil
}

func writePlaylistError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge), errors.Is(err, multipart.ErrMessageTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "playlist too large")
	case errors.Is(err, errMissingPlaylistFile), errors.Is(err, application.ErrEmptyPlaylist), errors.Is(err, bufio.ErrTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	case errors.Is(err, run.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
