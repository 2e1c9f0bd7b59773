package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/jasonhq/relay/internal/domain"
	"github.com/jasonhq/relay/internal/service"
	"github.com/jasonhq/relay/internal/transport/http/middleware"
)

const maxUploadSize = 25 << 20 // 25 MB

type UploadHandler struct {
	uploadService *service.UploadService
	log           *zap.SugaredLogger
}

func NewUploadHandler(uploadService *service.UploadService, log *zap.SugaredLogger) *UploadHandler {
	return &UploadHandler{uploadService: uploadService, log: log}
}

// Upload accepts a multipart form with a single "file" part.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "Expected a multipart form with a file field")
		return
	}
	defer file.Close()

	up, err := h.uploadService.Store(r.Context(), userID, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		h.log.Errorw("store upload", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusCreated, up)
}

func (h *UploadHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	up, err := h.uploadService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrUploadNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Upload not found")
		} else {
			h.log.Errorw("get upload", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, up)
}

func (h *UploadHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	uploads, err := h.uploadService.ListByUser(r.Context(), userID)
	if err != nil {
		h.log.Errorw("list uploads", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	if uploads == nil {
		uploads = []domain.Upload{}
	}
	writeJSON(w, http.StatusOK, uploads)
}
