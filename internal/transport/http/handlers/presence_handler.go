package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/jasonhq/relay/internal/domain"
	"github.com/jasonhq/relay/internal/service"
)

// PresenceHandler serves the poll endpoint clients hit on reconnect and
// on their periodic refresh tick.
type PresenceHandler struct {
	presenceService *service.PresenceService
	log             *zap.SugaredLogger
}

func NewPresenceHandler(presenceService *service.PresenceService, log *zap.SugaredLogger) *PresenceHandler {
	return &PresenceHandler{presenceService: presenceService, log: log}
}

func (h *PresenceHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.presenceService.List(r.Context())
	if err != nil {
		h.log.Errorw("list presence", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	if records == nil {
		records = []domain.PresenceRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
