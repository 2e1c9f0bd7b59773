package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/jasonhq/relay/internal/access"
	"github.com/jasonhq/relay/internal/domain"
	"github.com/jasonhq/relay/internal/service"
	"github.com/jasonhq/relay/internal/transport/http/middleware"
)

// MessageHandler serves channel history; sends, edits, and deletes go
// over the socket.
type MessageHandler struct {
	messageService *service.MessageService
	log            *zap.SugaredLogger
}

func NewMessageHandler(messageService *service.MessageService, log *zap.SugaredLogger) *MessageHandler {
	return &MessageHandler{messageService: messageService, log: log}
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID := r.PathValue("id")

	messages, err := h.messageService.List(r.Context(), userID, channelID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrChannelNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Channel not found")
		case errors.Is(err, access.ErrAccessDenied), errors.Is(err, service.ErrNotChannelMember):
			writeError(w, http.StatusForbidden, "FORBIDDEN", "You do not have access to this channel")
		default:
			h.log.Errorw("list messages", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	if messages == nil {
		messages = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
