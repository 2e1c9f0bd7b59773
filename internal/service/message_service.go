package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jasonhq/relay/internal/domain"
	"github.com/jasonhq/relay/internal/repository"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotMessageOwner = errors.New("only the message sender can perform this action")
)

// Notifier broadcasts real-time events to connected clients.
type Notifier interface {
	NewMessage(msg *domain.Message)
	MessageEdited(msg *domain.Message)
	MessageDeleted(channelID, messageID string)
	// NewDirectMessage delivers the DM to both parties along with the
	// receiver's fresh unread counts.
	NewDirectMessage(dm *domain.DirectMessage, receiverUnread map[string]int)
	DMRead(readerID, senderID string)
	FileUploaded(up *domain.Upload)
	ResumeParsed(userID, fileID string, data json.RawMessage, failed bool)
}

const defaultMessageLimit = 100

type SendMessageInput struct {
	ChannelID     string  `json:"channelId"`
	Content       string  `json:"content"`
	FileURL       *string `json:"fileUrl,omitempty"`
	FileName      *string `json:"fileName,omitempty"`
	IsAiGenerated bool    `json:"isAiGenerated,omitempty"`
	Nonce         string  `json:"nonce,omitempty"`
}

type MessageService struct {
	messageRepo repository.MessageRepository
	channels    *ChannelService
	notifier    Notifier
}

func NewMessageService(messageRepo repository.MessageRepository, channels *ChannelService) *MessageService {
	return &MessageService{messageRepo: messageRepo, channels: channels}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *MessageService) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *MessageService) Send(ctx context.Context, senderID string, input SendMessageInput) (*domain.Message, error) {
	// The reserved bot sender has no user row and no membership; the
	// gateway checks the asking user's access before impersonation.
	if senderID != domain.BotSenderID {
		if _, err := s.channels.requireAccess(ctx, senderID, input.ChannelID); err != nil {
			return nil, err
		}
	}

	msg := &domain.Message{
		ID:            uuid.NewString(),
		ChannelID:     input.ChannelID,
		SenderID:      senderID,
		Content:       input.Content,
		FileURL:       input.FileURL,
		FileName:      input.FileName,
		IsAiGenerated: input.IsAiGenerated,
		Nonce:         input.Nonce,
		CreatedAt:     time.Now(),
	}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	full, err := s.messageRepo.GetByID(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.NewMessage(full)
	}
	return full, nil
}

func (s *MessageService) List(ctx context.Context, userID, channelID string) ([]domain.Message, error) {
	if _, err := s.channels.requireAccess(ctx, userID, channelID); err != nil {
		return nil, err
	}
	messages, err := s.messageRepo.ListByChannel(ctx, channelID, defaultMessageLimit)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}

func (s *MessageService) Edit(ctx context.Context, userID, messageID, content string) (*domain.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	if msg.SenderID != userID {
		return nil, ErrNotMessageOwner
	}

	msg.Content = content
	if err := s.messageRepo.Update(ctx, msg); err != nil {
		return nil, fmt.Errorf("updating message: %w", err)
	}

	updated, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.MessageEdited(updated)
	}
	return updated, nil
}

func (s *MessageService) Delete(ctx context.Context, userID, messageID string) error {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return ErrMessageNotFound
	}
	if msg.SenderID != userID {
		return ErrNotMessageOwner
	}

	if err := s.messageRepo.SoftDelete(ctx, messageID); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.MessageDeleted(msg.ChannelID, messageID)
	}
	return nil
}
