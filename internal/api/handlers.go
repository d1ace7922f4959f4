package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/ec-store/internal/infrastructure/blob"
)

// StorageHandlers serves stored product images by reference
type StorageHandlers struct {
	blobs  blob.Store
	logger *zap.Logger
}

func NewStorageHandlers(blobs blob.Store, logger *zap.Logger) *StorageHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorageHandlers{blobs: blobs, logger: logger}
}

// Get writes the blob named by the {ref} path segment
func (h *StorageHandlers) Get(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := h.blobs.Get(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
