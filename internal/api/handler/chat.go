package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Rrens/kb-chat/internal/api/middleware"
	"github.com/Rrens/kb-chat/internal/api/response"
	"github.com/Rrens/kb-chat/internal/domain"
	"github.com/Rrens/kb-chat/internal/service"
	"github.com/Rrens/kb-chat/internal/stream"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

// maxChatBody bounds the JSON request body
const maxChatBody = 64 << 10

// ChatHandler streams answers to chat questions
type ChatHandler struct {
	chatService *service.ChatService
	encoder     *stream.Encoder
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *service.ChatService, encoder *stream.Encoder) *ChatHandler {
	return &ChatHandler{chatService: chatService, encoder: encoder}
}

// Stream answers the posted question as a chunked text/plain body
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		response.Unauthenticated(w)
		return
	}

	// Reject anonymous callers before reading the body
	if err := h.chatService.Authorize(r.Context(), sessionID); err != nil {
		writeChatError(w, r, err)
		return
	}

	var req domain.ChatRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		req.Question = r.PostFormValue("question")
	} else if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
			response.BadRequest(w, "invalid request body")
			return
		}
	}

	if err := validate.Struct(req); err != nil {
		response.Invalid(w, err)
		return
	}

	turn, err := h.chatService.Ask(r.Context(), sessionID, req.Question)
	if err != nil {
		writeChatError(w, r, err)
		return
	}

	// Pacing a long answer can outlast the server write timeout
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		log.Debug().Err(err).Msg("write deadline not cleared")
	}

	response.BeginStream(w)
	if _, err := h.encoder.Stream(r.Context(), w, turn.Bot); err != nil {
		log.Debug().Err(err).Str("session_id", sessionID).Msg("stream interrupted")
	}
}

func writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		response.Unauthenticated(w)
	case errors.Is(err, domain.ErrEmptyInput):
		response.NoContent(w)
	case errors.Is(err, domain.ErrBackendTimeout):
		response.Error(w, http.StatusGatewayTimeout, "the knowledge base took too long to answer")
	case errors.Is(err, domain.ErrBackend):
		response.Error(w, http.StatusBadGateway, "the knowledge base is unavailable")
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// client went away
	default:
		log.Error().Err(err).Msg("chat failed")
		response.InternalError(w, "chat failed")
	}
}
