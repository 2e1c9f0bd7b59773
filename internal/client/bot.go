package client

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/jasonhq/relay/internal/config"
	"github.com/jasonhq/relay/internal/domain"
	"github.com/jasonhq/relay/internal/logger"
)

// historyTurns caps the conversation context passed to the responder.
const historyTurns = 5

// Turn is one prior message, role-tagged by whether it was bot-authored.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Responder is the external AI completion collaborator.
type Responder interface {
	Respond(ctx context.Context, message string, history []Turn) (string, error)
}

// OpenAIResponder answers through the OpenAI chat completion API.
type OpenAIResponder struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

func NewOpenAIResponder(cfg config.OpenAIConfig) *OpenAIResponder {
	return &OpenAIResponder{
		client:      openai.NewClient(cfg.APIKey),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
	}
}

func (r *OpenAIResponder) Respond(ctx context.Context, message string, history []Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    messages,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Bot routes bot-directed messages to the responder and re-injects the
// reply as a normal message from the reserved synthetic sender, through
// the exact same send path human messages use.
type Bot struct {
	responder Responder
	store     *Store
	log       *zap.SugaredLogger
}

func NewBot(responder Responder, store *Store, log *zap.SugaredLogger) *Bot {
	if log == nil {
		log = logger.Nop()
	}
	return &Bot{responder: responder, store: store, log: log}
}

// Ask answers a channel message. On responder failure the caller's draft
// is untouched and nothing is sent.
func (b *Bot) Ask(ctx context.Context, channelID, message string) error {
	history := channelHistory(b.store.CurrentMessages(channelID))
	reply, err := b.responder.Respond(ctx, message, history)
	if err != nil {
		b.log.Warnw("responder failed", "channelId", channelID, "error", err)
		return fmt.Errorf("%w: %v", ErrBotUnavailable, err)
	}
	_, err = b.store.SendAs(ctx, domain.BotSenderID, channelID, reply, true)
	return err
}

// AskDM answers inside a DM thread.
func (b *Bot) AskDM(ctx context.Context, dmUserID, message string) error {
	history := threadHistory(b.store.ThreadMessages(dmUserID))
	reply, err := b.responder.Respond(ctx, message, history)
	if err != nil {
		b.log.Warnw("responder failed", "dmUserId", dmUserID, "error", err)
		return fmt.Errorf("%w: %v", ErrBotUnavailable, err)
	}
	_, err = b.store.SendDMAs(ctx, domain.BotSenderID, dmUserID, reply, true)
	return err
}

func channelHistory(msgs []domain.Message) []Turn {
	if len(msgs) > historyTurns {
		msgs = msgs[len(msgs)-historyTurns:]
	}
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, Turn{Role: roleFor(m.IsAiGenerated), Content: m.Content})
	}
	return turns
}

func threadHistory(msgs []domain.DirectMessage) []Turn {
	if len(msgs) > historyTurns {
		msgs = msgs[len(msgs)-historyTurns:]
	}
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, Turn{Role: roleFor(m.IsAiGenerated), Content: m.Content})
	}
	return turns
}

func roleFor(aiGenerated bool) string {
	if aiGenerated {
		return "assistant"
	}
	return "user"
}
