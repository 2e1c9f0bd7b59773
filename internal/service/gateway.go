package service

import (
	"context"
	"errors"

	"github.com/jasonhq/relay/internal/access"
	"github.com/jasonhq/relay/internal/domain"
	"github.com/jasonhq/relay/internal/protocol"
)

var ErrAuthRejected = errors.New("authentication rejected")

// Gateway adapts inbound transport events onto the services. The ws
// package calls it; it is the single entry point for socket-borne
// mutations.
type Gateway struct {
	jwtSecret string
	channels  *ChannelService
	messages  *MessageService
	dms       *DMService
}

func NewGateway(jwtSecret string, channels *ChannelService, messages *MessageService, dms *DMService) *Gateway {
	return &Gateway{
		jwtSecret: jwtSecret,
		channels:  channels,
		messages:  messages,
		dms:       dms,
	}
}

// Authenticate validates the handshake: the token must verify and its
// subject must be the claimed user id.
func (g *Gateway) Authenticate(ctx context.Context, userID, token string) error {
	sub, err := VerifyToken(token, g.jwtSecret)
	if err != nil {
		return ErrAuthRejected
	}
	if sub != userID {
		return ErrAuthRejected
	}
	return nil
}

// SessionChannels returns the channel ids a fresh session subscribes to,
// gated by the access policy.
func (g *Gateway) SessionChannels(ctx context.Context, userID string) ([]string, error) {
	return g.channels.AccessibleIDs(ctx, userID)
}

func (g *Gateway) HandleMessage(ctx context.Context, sessionUserID string, p *protocol.MessagePayload) error {
	senderID := sessionUserID
	// Only the reserved bot sender may be impersonated, and only into
	// channels the asking user can reach.
	if p.UserID == domain.BotSenderID {
		if _, err := g.channels.requireAccess(ctx, sessionUserID, p.ChannelID); err != nil {
			return err
		}
		senderID = domain.BotSenderID
	}
	_, err := g.messages.Send(ctx, senderID, SendMessageInput{
		ChannelID:     p.ChannelID,
		Content:       p.Content,
		FileURL:       p.FileURL,
		FileName:      p.FileName,
		IsAiGenerated: p.IsAiGenerated,
		Nonce:         p.Nonce,
	})
	return err
}

func (g *Gateway) HandleDirectMessage(ctx context.Context, sessionUserID string, p *protocol.DirectMessagePayload) error {
	senderID := sessionUserID
	if p.SenderID == domain.BotSenderID {
		// Bot DM replies land only in the asking user's own thread.
		if p.ReceiverID != sessionUserID {
			return access.ErrAccessDenied
		}
		senderID = domain.BotSenderID
	}
	_, err := g.dms.Send(ctx, senderID, SendDMInput{
		ReceiverID:    p.ReceiverID,
		Content:       p.Content,
		FileURL:       p.FileURL,
		FileName:      p.FileName,
		IsAiGenerated: p.IsAiGenerated,
		Nonce:         p.Nonce,
	})
	return err
}

func (g *Gateway) HandleEdit(ctx context.Context, sessionUserID string, p *protocol.EditMessagePayload) error {
	_, err := g.messages.Edit(ctx, sessionUserID, p.MessageID, p.Content)
	return err
}

func (g *Gateway) HandleDelete(ctx context.Context, sessionUserID string, p *protocol.DeleteMessagePayload) error {
	return g.messages.Delete(ctx, sessionUserID, p.MessageID)
}
