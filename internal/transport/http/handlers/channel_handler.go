package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/jasonhq/relay/internal/access"
	"github.com/jasonhq/relay/internal/domain"
	"github.com/jasonhq/relay/internal/service"
	"github.com/jasonhq/relay/internal/transport/http/middleware"
	"github.com/jasonhq/relay/pkg/validator"
)

type ChannelHandler struct {
	channelService *service.ChannelService
	log            *zap.SugaredLogger
}

func NewChannelHandler(channelService *service.ChannelService, log *zap.SugaredLogger) *ChannelHandler {
	return &ChannelHandler{channelService: channelService, log: log}
}

func (h *ChannelHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.CreateChannelInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if errs := validator.ValidateChannel(input.Name); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	ch, err := h.channelService.Create(r.Context(), userID, input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotAdmin):
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Administrator access required")
		default:
			h.log.Errorw("create channel", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusCreated, ch)
}

// List returns channels visible to the caller, narrowed by the browse
// filters in the query string.
func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	q := r.URL.Query()
	filter := domain.ChannelFilter{
		Search:       q.Get("search"),
		ShowPrivate:  q.Get("showPrivate") == "true",
		ShowArchived: q.Get("showArchived") == "true",
	}
	if t := q.Get("tier"); t != "" {
		tier := domain.Tier(t)
		if !tier.Valid() {
			writeError(w, http.StatusBadRequest, "INVALID_TIER", "Unknown tier filter")
			return
		}
		filter.Tier = &tier
	}

	channels, err := h.channelService.List(r.Context(), userID, filter)
	if err != nil {
		h.log.Errorw("list channels", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	if channels == nil {
		channels = []domain.Channel{}
	}
	writeJSON(w, http.StatusOK, channels)
}

// Join is idempotent: joining a channel you already belong to succeeds.
func (h *ChannelHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID := r.PathValue("id")

	var body struct {
		Message string `json:"message"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}

	result, err := h.channelService.Join(r.Context(), userID, channelID, body.Message)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyMember):
			writeJSON(w, http.StatusOK, &service.JoinResult{Joined: true})
		case errors.Is(err, service.ErrChannelNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Channel not found")
		case errors.Is(err, access.ErrChannelArchived):
			writeError(w, http.StatusConflict, "CHANNEL_ARCHIVED", "Archived channels cannot be joined")
		case errors.Is(err, access.ErrAccessDenied):
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Your license tier does not grant access")
		default:
			h.log.Errorw("join channel", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *ChannelHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID := r.PathValue("id")

	if err := h.channelService.Leave(r.Context(), userID, channelID); err != nil {
		if errors.Is(err, service.ErrNotChannelMember) {
			writeError(w, http.StatusBadRequest, "NOT_MEMBER", "You are not a member of this channel")
		} else {
			h.log.Errorw("leave channel", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ChannelHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID := r.PathValue("id")

	members, err := h.channelService.ListMembers(r.Context(), userID, channelID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrChannelNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Channel not found")
		case errors.Is(err, access.ErrAccessDenied), errors.Is(err, service.ErrNotChannelMember):
			writeError(w, http.StatusForbidden, "FORBIDDEN", "You do not have access to this channel")
		default:
			h.log.Errorw("list channel members", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	if members == nil {
		members = []domain.ChannelMember{}
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *ChannelHandler) Archive(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID := r.PathValue("id")

	if err := h.channelService.Archive(r.Context(), userID, channelID); err != nil {
		switch {
		case errors.Is(err, service.ErrChannelNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Channel not found")
		case errors.Is(err, service.ErrNotAdmin):
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Administrator access required")
		default:
			h.log.Errorw("archive channel", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ChannelHandler) PendingRequests(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID := r.PathValue("id")

	requests, err := h.channelService.PendingRequests(r.Context(), userID, channelID)
	if err != nil {
		if errors.Is(err, service.ErrNotAdmin) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Administrator access required")
		} else {
			h.log.Errorw("list join requests", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	if requests == nil {
		requests = []domain.JoinRequest{}
	}
	writeJSON(w, http.StatusOK, requests)
}

func (h *ChannelHandler) ResolveRequest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	requestID := r.PathValue("rid")

	var body struct {
		Approve bool `json:"approve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.channelService.ResolveRequest(r.Context(), userID, requestID, body.Approve); err != nil {
		switch {
		case errors.Is(err, service.ErrNotAdmin):
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Administrator access required")
		case errors.Is(err, service.ErrJoinRequestNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Join request not found")
		default:
			h.log.Errorw("resolve join request", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
