package handler

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/Rrens/kb-chat/internal/api/middleware"
	"github.com/Rrens/kb-chat/internal/api/response"
	"github.com/Rrens/kb-chat/internal/domain"
	"github.com/Rrens/kb-chat/internal/service"
	"github.com/rs/zerolog/log"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type indexPage struct {
	View      *domain.SessionView
	Success   string
	Error     string
	Extension string
}

// IndexHandler renders the chat page
type IndexHandler struct {
	chatService *service.ChatService
	extension   string
}

// NewIndexHandler creates a new index handler
func NewIndexHandler(chatService *service.ChatService, extension string) *IndexHandler {
	return &IndexHandler{chatService: chatService, extension: extension}
}

// Index renders the login link or the chat page with history
func (h *IndexHandler) Index(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		response.InternalError(w, "missing session")
		return
	}

	view, err := h.chatService.View(r.Context(), sessionID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load session")
		response.InternalError(w, "failed to load session")
		return
	}

	page := indexPage{
		View:      view,
		Success:   r.URL.Query().Get("success"),
		Error:     r.URL.Query().Get("error"),
		Extension: h.extension,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, page); err != nil {
		log.Error().Err(err).Msg("failed to render index")
	}
}
