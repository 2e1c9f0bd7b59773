package domain

import (
	"time"
)

type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestApproved JoinRequestStatus = "approved"
	JoinRequestDenied   JoinRequestStatus = "denied"
)

// JoinRequest is created when a non-member asks for access to a private
// channel; an administrator resolves it.
type JoinRequest struct {
	ID        string            `json:"id"`
	ChannelID string            `json:"channelId"`
	UserID    string            `json:"userId"`
	Message   string            `json:"message,omitempty"`
	Status    JoinRequestStatus `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
	// Joined fields
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	ChannelName string `json:"channelName,omitempty"`
}
