package domain

import (
	"time"
)

type DirectMessage struct {
	ID            string     `json:"id"`
	SenderID      string     `json:"senderId"`
	ReceiverID    string     `json:"receiverId"`
	Content       string     `json:"content"`
	FileURL       *string    `json:"fileUrl,omitempty"`
	FileName      *string    `json:"fileName,omitempty"`
	IsRead        bool       `json:"isRead"`
	IsAiGenerated bool       `json:"isAiGenerated"`
	DeletedAt     *time.Time `json:"-"`
	CreatedAt     time.Time  `json:"createdAt"`
	Nonce         string     `json:"nonce,omitempty"`
	// Joined fields
	SenderUsername    string `json:"senderUsername,omitempty"`
	SenderDisplayName string `json:"senderDisplayName,omitempty"`
}

// Before orders DMs within a thread the same way channel messages order.
func (d *DirectMessage) Before(other *DirectMessage) bool {
	if d.CreatedAt.Equal(other.CreatedAt) {
		return d.ID < other.ID
	}
	return d.CreatedAt.Before(other.CreatedAt)
}

// DMConversation is the derived per-user-pair rollup: who the thread is
// with, the last message, and how many inbound messages are unread.
type DMConversation struct {
	OtherUserID          string    `json:"otherUserId"`
	OtherUserUsername    string    `json:"otherUsername,omitempty"`
	OtherUserDisplayName string    `json:"otherDisplayName,omitempty"`
	LastMessage          string    `json:"lastMessage"`
	LastMessageAt        time.Time `json:"lastMessageAt"`
	UnreadCount          int       `json:"unreadCount"`
}
