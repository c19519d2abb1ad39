package handler

import (
	"net/http"

	"github.com/Rrens/kb-chat/internal/api/middleware"
	"github.com/Rrens/kb-chat/internal/api/response"
	"github.com/Rrens/kb-chat/internal/service"
	"github.com/rs/zerolog/log"
)

// SessionHandler exposes the caller's session
type SessionHandler struct {
	chatService *service.ChatService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(chatService *service.ChatService) *SessionHandler {
	return &SessionHandler{chatService: chatService}
}

// Get returns identity and history of the current session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	response.OK(w, view)
}
