package domain

import (
	"time"
)

// BotSenderID is the reserved synthetic sender for AI-generated replies.
// Bot messages flow through the same send/broadcast path as human messages
// and differ only by this sender id and the IsAiGenerated flag.
const BotSenderID = "jason-ai"

type Message struct {
	ID            string     `json:"id"`
	ChannelID     string     `json:"channelId"`
	SenderID      string     `json:"senderId"`
	Content       string     `json:"content"`
	FileURL       *string    `json:"fileUrl,omitempty"`
	FileName      *string    `json:"fileName,omitempty"`
	IsEdited      bool       `json:"isEdited"`
	IsAiGenerated bool       `json:"isAiGenerated"`
	DeletedAt     *time.Time `json:"-"`
	CreatedAt     time.Time  `json:"createdAt"`
	// Nonce echoes the client-generated provisional id so the sender can
	// reconcile an optimistic entry with its server echo.
	Nonce string `json:"nonce,omitempty"`
	// Joined fields
	SenderUsername    string `json:"senderUsername,omitempty"`
	SenderDisplayName string `json:"senderDisplayName,omitempty"`
}

// Before reports whether m sorts before other: non-decreasing CreatedAt,
// ties broken by id collation order.
func (m *Message) Before(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}
