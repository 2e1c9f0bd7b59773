package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jasonhq/relay/internal/domain"
	"github.com/jasonhq/relay/internal/repository"
)

var (
	ErrCannotDMSelf    = errors.New("cannot message yourself")
	ErrReceiverUnknown = errors.New("receiver not found")
)

const defaultThreadLimit = 100

type SendDMInput struct {
	ReceiverID    string  `json:"receiverId"`
	Content       string  `json:"content"`
	FileURL       *string `json:"fileUrl,omitempty"`
	FileName      *string `json:"fileName,omitempty"`
	IsAiGenerated bool    `json:"isAiGenerated,omitempty"`
	Nonce         string  `json:"nonce,omitempty"`
}

type DMService struct {
	dmRepo   repository.DMRepository
	userRepo repository.UserRepository
	notifier Notifier
}

func NewDMService(dmRepo repository.DMRepository, userRepo repository.UserRepository) *DMService {
	return &DMService{dmRepo: dmRepo, userRepo: userRepo}
}

func (s *DMService) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *DMService) Send(ctx context.Context, senderID string, input SendDMInput) (*domain.DirectMessage, error) {
	if senderID == input.ReceiverID {
		return nil, ErrCannotDMSelf
	}
	receiver, err := s.userRepo.GetByID(ctx, input.ReceiverID)
	if err != nil {
		return nil, err
	}
	if receiver == nil {
		return nil, ErrReceiverUnknown
	}

	dm := &domain.DirectMessage{
		ID:            uuid.NewString(),
		SenderID:      senderID,
		ReceiverID:    input.ReceiverID,
		Content:       input.Content,
		FileURL:       input.FileURL,
		FileName:      input.FileName,
		IsAiGenerated: input.IsAiGenerated,
		Nonce:         input.Nonce,
		CreatedAt:     time.Now(),
	}
	if err := s.dmRepo.Create(ctx, dm); err != nil {
		return nil, fmt.Errorf("creating direct message: %w", err)
	}

	full, err := s.dmRepo.GetByID(ctx, dm.ID)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		counts, err := s.dmRepo.UnreadCounts(ctx, input.ReceiverID)
		if err != nil {
			counts = nil
		}
		s.notifier.NewDirectMessage(full, counts)
	}
	return full, nil
}

// Thread returns the ordered DM history between the user and another.
func (s *DMService) Thread(ctx context.Context, userID, otherUserID string) ([]domain.DirectMessage, error) {
	messages, err := s.dmRepo.ListBetween(ctx, userID, otherUserID, defaultThreadLimit)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []domain.DirectMessage{}
	}
	return messages, nil
}

// Conversations returns the user's DM rollups.
func (s *DMService) Conversations(ctx context.Context, userID string) ([]domain.DMConversation, error) {
	convs, err := s.dmRepo.Conversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []domain.DMConversation{}
	}
	return convs, nil
}

// MarkThreadRead flags the other user's messages as read and pushes the
// updated counts to the reader.
func (s *DMService) MarkThreadRead(ctx context.Context, readerID, otherUserID string) error {
	if err := s.dmRepo.MarkRead(ctx, readerID, otherUserID); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.DMRead(readerID, otherUserID)
	}
	return nil
}

// UnreadCounts exposes per-sender unread totals for the poll path.
func (s *DMService) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	return s.dmRepo.UnreadCounts(ctx, userID)
}
