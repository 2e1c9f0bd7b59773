package repository

import (
	"context"
	"encoding/json"

	"github.com/jasonhq/relay/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
}

type ChannelRepository interface {
	Create(ctx context.Context, channel *domain.Channel) error
	GetByID(ctx context.Context, id string) (*domain.Channel, error)
	// List applies browse filters; membership flags are annotated for
	// forUserID.
	List(ctx context.Context, forUserID string, filter domain.ChannelFilter) ([]domain.Channel, error)
	Archive(ctx context.Context, id string) error
	AddMember(ctx context.Context, member *domain.ChannelMember) error
	RemoveMember(ctx context.Context, channelID, userID string) error
	GetMember(ctx context.Context, channelID, userID string) (*domain.ChannelMember, error)
	ListMembers(ctx context.Context, channelID string) ([]domain.ChannelMember, error)
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	ListByChannel(ctx context.Context, channelID string, limit int) ([]domain.Message, error)
	Update(ctx context.Context, msg *domain.Message) error
	SoftDelete(ctx context.Context, id string) error
}

type DMRepository interface {
	Create(ctx context.Context, dm *domain.DirectMessage) error
	GetByID(ctx context.Context, id string) (*domain.DirectMessage, error)
	// ListBetween returns the ordered thread between two users.
	ListBetween(ctx context.Context, userA, userB string, limit int) ([]domain.DirectMessage, error)
	// MarkRead flags every unread message from senderID to readerID.
	MarkRead(ctx context.Context, readerID, senderID string) error
	Conversations(ctx context.Context, userID string) ([]domain.DMConversation, error)
	UnreadCounts(ctx context.Context, userID string) (map[string]int, error)
}

type JoinRequestRepository interface {
	Create(ctx context.Context, req *domain.JoinRequest) error
	GetByID(ctx context.Context, id string) (*domain.JoinRequest, error)
	GetPending(ctx context.Context, channelID, userID string) (*domain.JoinRequest, error)
	ListPending(ctx context.Context, channelID string) ([]domain.JoinRequest, error)
	UpdateStatus(ctx context.Context, id string, status domain.JoinRequestStatus) error
}

type UploadRepository interface {
	Create(ctx context.Context, up *domain.Upload) error
	GetByID(ctx context.Context, id string) (*domain.Upload, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Upload, error)
	SetParseResult(ctx context.Context, id string, status domain.ParseStatus, data json.RawMessage) error
}
