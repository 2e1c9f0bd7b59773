// Package protocol defines the transport envelope and payloads shared by
// the server hub and the client sync core.
package protocol

import (
	"encoding/json"

	"github.com/jasonhq/relay/internal/domain"
)

// Event types - client → server
const (
	TypeAuthenticate  = "authenticate"
	TypeMessage       = "message"
	TypeDirectMessage = "direct_message"
	TypeEditMessage   = "edit_message"
	TypeDeleteMessage = "delete_message"
)

// Event types - server → client
const (
	TypeAuthenticated       = "authenticated"
	TypeNewMessage          = "new_message"
	TypeMessageEdited       = "message_edited"
	TypeMessageDeleted      = "message_deleted"
	TypeNewDirectMessage    = "new_direct_message"
	TypeDirectMessageSent   = "direct_message_sent"
	TypeUserStatusChange    = "user_status_change"
	TypeUserOnlineStatus    = "user_online_status"
	TypeFileUploaded        = "file_uploaded"
	TypeResumeParsed        = "resume_parsed"
	TypeDMRead              = "dm_read"
	TypeUnreadCountsUpdated = "unread_counts_updated"
	TypeNotificationSound   = "notification_sound"
	TypeError               = "error"
)

// Event is the envelope for all transport messages. Seq is assigned by the
// server per session, strictly monotonic, so clients can detect gaps;
// client→server events carry Seq zero.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
}

// NewEvent marshals payload into an envelope.
func NewEvent(eventType string, payload any) (*Event, error) {
	if payload == nil {
		return &Event{Type: eventType}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{Type: eventType, Payload: data}, nil
}

// --- Client → server payloads ---

type AuthenticatePayload struct {
	UserID string `json:"userId"`
	Token  string `json:"token,omitempty"`
}

type MessagePayload struct {
	ChannelID     string  `json:"channelId"`
	UserID        string  `json:"userId"`
	Content       string  `json:"content"`
	FileURL       *string `json:"fileUrl,omitempty"`
	FileName      *string `json:"fileName,omitempty"`
	IsAiGenerated bool    `json:"isAiGenerated,omitempty"`
	Nonce         string  `json:"nonce,omitempty"`
}

type DirectMessagePayload struct {
	ReceiverID    string  `json:"receiverId"`
	Content       string  `json:"content"`
	FileURL       *string `json:"fileUrl,omitempty"`
	FileName      *string `json:"fileName,omitempty"`
	IsAiGenerated bool    `json:"isAiGenerated,omitempty"`
	// SenderID is honored only for the reserved bot sender; everyone else
	// is identified by their session.
	SenderID string `json:"senderId,omitempty"`
	Nonce    string `json:"nonce,omitempty"`
}

type EditMessagePayload struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

type DeleteMessagePayload struct {
	MessageID string `json:"messageId"`
}

// --- Server → client payloads ---

type AuthenticatedPayload struct {
	UserID string `json:"userId"`
}

// NewMessagePayload carries the full message for new_message and
// message_edited events.
type NewMessagePayload struct {
	domain.Message
}

type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
	ChannelID string `json:"channelId"`
}

type DirectMessageEventPayload struct {
	domain.DirectMessage
}

type StatusChangePayload struct {
	UserID string `json:"userId"`
	Status string `json:"onlineStatus"`
}

type FileUploadedPayload struct {
	domain.Upload
}

type ResumeParsedPayload struct {
	FileID     string          `json:"fileId"`
	ParsedData json.RawMessage `json:"parsedData,omitempty"`
	Failed     bool            `json:"failed,omitempty"`
}

type DMReadPayload struct {
	ReaderID string `json:"readerId"`
	SenderID string `json:"senderId"`
}

type UnreadCountsPayload struct {
	// Counts maps the other user's id to the number of unread DMs.
	Counts map[string]int `json:"counts"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
