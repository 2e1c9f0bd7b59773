package domain

import (
	"time"
)

// Tier is the license-based access class gating channel visibility.
type Tier string

const (
	TierNonLicensed Tier = "NON_LICENSED"
	TierFLLicensed  Tier = "FL_LICENSED"
	TierMultiState  Tier = "MULTI_STATE"
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierNonLicensed, TierFLLicensed, TierMultiState:
		return true
	}
	return false
}

type Channel struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Tier        Tier      `json:"tier"`
	IsPrivate   bool      `json:"isPrivate"`
	IsArchived  bool      `json:"isArchived"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	// Joined fields for the requesting user
	IsMember   bool   `json:"isMember"`
	MemberRole string `json:"memberRole,omitempty"`
}

type ChannelMember struct {
	ChannelID string    `json:"channelId"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joinedAt"`
	// Joined fields
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// ChannelFilter narrows channel browsing.
type ChannelFilter struct {
	Search       string
	Tier         *Tier
	ShowPrivate  bool
	ShowArchived bool
}
