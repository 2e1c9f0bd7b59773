package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jasonhq/relay/internal/access"
	"github.com/jasonhq/relay/internal/domain"
	"github.com/jasonhq/relay/internal/repository"
)

var (
	ErrChannelNotFound     = errors.New("channel not found")
	ErrNotChannelMember    = errors.New("user is not a member of this channel")
	ErrAlreadyMember       = errors.New("user is already a member")
	ErrNotAdmin            = errors.New("administrator access required")
	ErrJoinRequestNotFound = errors.New("join request not found")
)

// JoinResult is either immediate membership or a pending join request.
type JoinResult struct {
	Joined  bool                `json:"joined"`
	Request *domain.JoinRequest `json:"request,omitempty"`
}

// SubscriptionSink keeps live session subscriptions in step with
// membership changes.
type SubscriptionSink interface {
	Subscribe(userID, channelID string)
	Unsubscribe(userID, channelID string)
}

type ChannelService struct {
	channelRepo repository.ChannelRepository
	requestRepo repository.JoinRequestRepository
	userRepo    repository.UserRepository
	subs        SubscriptionSink
}

func NewChannelService(
	channelRepo repository.ChannelRepository,
	requestRepo repository.JoinRequestRepository,
	userRepo repository.UserRepository,
) *ChannelService {
	return &ChannelService{
		channelRepo: channelRepo,
		requestRepo: requestRepo,
		userRepo:    userRepo,
	}
}

// SetSubscriptions sets the live session sink (optional dependency).
func (s *ChannelService) SetSubscriptions(subs SubscriptionSink) {
	s.subs = subs
}

type CreateChannelInput struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Tier        domain.Tier `json:"tier"`
	IsPrivate   bool        `json:"isPrivate"`
}

// Create makes a new channel; administrators only.
func (s *ChannelService) Create(ctx context.Context, userID string, input CreateChannelInput) (*domain.Channel, error) {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin {
		return nil, ErrNotAdmin
	}

	tier := input.Tier
	if tier == "" {
		tier = domain.TierNonLicensed
	}
	if !tier.Valid() {
		return nil, fmt.Errorf("unknown tier %q", input.Tier)
	}

	var desc *string
	if input.Description != "" {
		desc = &input.Description
	}
	ch := &domain.Channel{
		ID:          uuid.NewString(),
		Name:        input.Name,
		Description: desc,
		Tier:        tier,
		IsPrivate:   input.IsPrivate,
		CreatedBy:   userID,
		CreatedAt:   time.Now(),
	}
	if err := s.channelRepo.Create(ctx, ch); err != nil {
		return nil, fmt.Errorf("creating channel: %w", err)
	}

	member := &domain.ChannelMember{
		ChannelID: ch.ID,
		UserID:    userID,
		Role:      "admin",
		JoinedAt:  time.Now(),
	}
	if err := s.channelRepo.AddMember(ctx, member); err != nil {
		return nil, fmt.Errorf("adding creator as member: %w", err)
	}
	return ch, nil
}

// List returns the channels visible to the user under the access policy,
// narrowed by browse filters.
func (s *ChannelService) List(ctx context.Context, userID string, filter domain.ChannelFilter) ([]domain.Channel, error) {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	all, err := s.channelRepo.List(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	return access.AccessibleChannels(user, all), nil
}

// AccessibleIDs returns the channel ids a fresh session subscribes to.
func (s *ChannelService) AccessibleIDs(ctx context.Context, userID string) ([]string, error) {
	channels, err := s.List(ctx, userID, domain.ChannelFilter{
		ShowPrivate:  true,
		ShowArchived: true,
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(channels))
	for _, ch := range channels {
		ids = append(ids, ch.ID)
	}
	return ids, nil
}

// Join grants immediate membership on public non-archived channels and
// files a pending join request on private ones. Archived channels are
// rejected outright.
func (s *ChannelService) Join(ctx context.Context, userID, channelID, message string) (*JoinResult, error) {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, ErrChannelNotFound
	}
	if member, err := s.channelRepo.GetMember(ctx, channelID, userID); err != nil {
		return nil, err
	} else if member != nil {
		return nil, ErrAlreadyMember
	}

	outcome, err := access.CheckJoin(user, ch)
	if err != nil {
		return nil, err
	}

	if outcome == access.JoinNeedsRequest {
		// Reuse an existing pending request instead of stacking them.
		if existing, err := s.requestRepo.GetPending(ctx, channelID, userID); err != nil {
			return nil, err
		} else if existing != nil {
			return &JoinResult{Request: existing}, nil
		}
		req := &domain.JoinRequest{
			ID:        uuid.NewString(),
			ChannelID: channelID,
			UserID:    userID,
			Message:   message,
			Status:    domain.JoinRequestPending,
			CreatedAt: time.Now(),
		}
		if err := s.requestRepo.Create(ctx, req); err != nil {
			return nil, fmt.Errorf("creating join request: %w", err)
		}
		return &JoinResult{Request: req}, nil
	}

	member := &domain.ChannelMember{
		ChannelID: channelID,
		UserID:    userID,
		Role:      "member",
		JoinedAt:  time.Now(),
	}
	if err := s.channelRepo.AddMember(ctx, member); err != nil {
		return nil, fmt.Errorf("adding member: %w", err)
	}
	if s.subs != nil {
		s.subs.Subscribe(userID, channelID)
	}
	return &JoinResult{Joined: true}, nil
}

func (s *ChannelService) Leave(ctx context.Context, userID, channelID string) error {
	member, err := s.channelRepo.GetMember(ctx, channelID, userID)
	if err != nil {
		return err
	}
	if member == nil {
		return ErrNotChannelMember
	}
	if err := s.channelRepo.RemoveMember(ctx, channelID, userID); err != nil {
		return err
	}
	if s.subs != nil {
		s.subs.Unsubscribe(userID, channelID)
	}
	return nil
}

func (s *ChannelService) ListMembers(ctx context.Context, userID, channelID string) ([]domain.ChannelMember, error) {
	if _, err := s.requireAccess(ctx, userID, channelID); err != nil {
		return nil, err
	}
	return s.channelRepo.ListMembers(ctx, channelID)
}

// Archive retires a channel; administrators only.
func (s *ChannelService) Archive(ctx context.Context, userID, channelID string) error {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.IsAdmin {
		return ErrNotAdmin
	}
	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	if ch == nil {
		return ErrChannelNotFound
	}
	return s.channelRepo.Archive(ctx, channelID)
}

// PendingRequests lists a channel's pending join requests for admins.
func (s *ChannelService) PendingRequests(ctx context.Context, userID, channelID string) ([]domain.JoinRequest, error) {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin {
		return nil, ErrNotAdmin
	}
	return s.requestRepo.ListPending(ctx, channelID)
}

// ResolveRequest approves or denies a pending join request; approval adds
// the requester as a member.
func (s *ChannelService) ResolveRequest(ctx context.Context, adminID, requestID string, approve bool) error {
	admin, err := s.requireUser(ctx, adminID)
	if err != nil {
		return err
	}
	if !admin.IsAdmin {
		return ErrNotAdmin
	}
	req, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req == nil || req.Status != domain.JoinRequestPending {
		return ErrJoinRequestNotFound
	}

	status := domain.JoinRequestDenied
	if approve {
		status = domain.JoinRequestApproved
	}
	if err := s.requestRepo.UpdateStatus(ctx, requestID, status); err != nil {
		return err
	}
	if approve {
		member := &domain.ChannelMember{
			ChannelID: req.ChannelID,
			UserID:    req.UserID,
			Role:      "member",
			JoinedAt:  time.Now(),
		}
		if err := s.channelRepo.AddMember(ctx, member); err != nil {
			return err
		}
		if s.subs != nil {
			s.subs.Subscribe(req.UserID, req.ChannelID)
		}
	}
	return nil
}

// requireAccess checks the user may read the channel: tier satisfied and,
// for private channels, membership.
func (s *ChannelService) requireAccess(ctx context.Context, userID, channelID string) (*domain.Channel, error) {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, ErrChannelNotFound
	}
	if !access.TierSatisfied(user, ch.Tier) {
		return nil, access.ErrAccessDenied
	}
	if ch.IsPrivate && !user.IsAdmin {
		member, err := s.channelRepo.GetMember(ctx, channelID, userID)
		if err != nil {
			return nil, err
		}
		if member == nil {
			return nil, ErrNotChannelMember
		}
	}
	return ch, nil
}

func (s *ChannelService) requireUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
