package handler

import (
	"errors"
	"net/http"

	"github.com/Rrens/kb-chat/internal/api/middleware"
	"github.com/Rrens/kb-chat/internal/api/response"
	"github.com/Rrens/kb-chat/internal/domain"
	"github.com/Rrens/kb-chat/internal/service"
	"github.com/rs/zerolog/log"
)

// multipartOverhead leaves room for boundaries and headers around the file
const multipartOverhead = 1 << 20

// UploadHandler handles reference document uploads
type UploadHandler struct {
	uploadService *service.UploadService
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(uploadService *service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// Upload stores the multipart "file" field
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		response.LoginRequired(w)
		return
	}

	if max := h.uploadService.MaxBytes(); max > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, max+multipartOverhead)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.BadRequest(w, "file too large")
			return
		}
		response.BadRequest(w, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "no file uploaded")
		return
	}
	defer file.Close()

	result, err := h.uploadService.Upload(r.Context(), sessionID, header.Filename, file, header.Size)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnauthorized):
			response.LoginRequired(w)
		case errors.Is(err, domain.ErrInvalidFileName), errors.Is(err, domain.ErrFileTooLarge):
			response.BadRequest(w, err.Error())
		case errors.Is(err, domain.ErrStorage):
			response.Error(w, http.StatusBadGateway, "upload failed")
		default:
			log.Error().Err(err).Msg("upload failed")
			response.InternalError(w, "upload failed")
		}
		return
	}

	response.Created(w, result)
}
