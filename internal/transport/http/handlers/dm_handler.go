package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/jasonhq/relay/internal/domain"
	"github.com/jasonhq/relay/internal/service"
	"github.com/jasonhq/relay/internal/transport/http/middleware"
)

type DMHandler struct {
	dmService *service.DMService
	log       *zap.SugaredLogger
}

func NewDMHandler(dmService *service.DMService, log *zap.SugaredLogger) *DMHandler {
	return &DMHandler{dmService: dmService, log: log}
}

// Conversations returns the caller's DM rollups, most recent first.
func (h *DMHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	convs, err := h.dmService.Conversations(r.Context(), userID)
	if err != nil {
		h.log.Errorw("list conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, convs)
}

func (h *DMHandler) Thread(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	otherUserID := r.PathValue("uid")

	messages, err := h.dmService.Thread(r.Context(), userID, otherUserID)
	if err != nil {
		h.log.Errorw("list thread", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	if messages == nil {
		messages = []domain.DirectMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *DMHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	otherUserID := r.PathValue("uid")

	if err := h.dmService.MarkThreadRead(r.Context(), userID, otherUserID); err != nil {
		h.log.Errorw("mark thread read", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DMHandler) UnreadCounts(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	counts, err := h.dmService.UnreadCounts(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		} else {
			h.log.Errorw("unread counts", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	if counts == nil {
		counts = map[string]int{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
}
