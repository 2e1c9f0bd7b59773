// Package ws holds the real-time side of the server: the hub, per-session
// clients, and the notifier bridging the services onto the socket.
package ws

import (
	"context"

	"go.uber.org/zap"

	"github.com/jasonhq/relay/internal/logger"
	"github.com/jasonhq/relay/internal/protocol"
)

// AppHandler is the application surface the socket layer drives. The
// service gateway implements it.
type AppHandler interface {
	Authenticate(ctx context.Context, userID, token string) error
	SessionChannels(ctx context.Context, userID string) ([]string, error)
	HandleMessage(ctx context.Context, sessionUserID string, p *protocol.MessagePayload) error
	HandleDirectMessage(ctx context.Context, sessionUserID string, p *protocol.DirectMessagePayload) error
	HandleEdit(ctx context.Context, sessionUserID string, p *protocol.EditMessagePayload) error
	HandleDelete(ctx context.Context, sessionUserID string, p *protocol.DeleteMessagePayload) error
}

// PresenceSink receives online/offline flips as sessions come and go.
type PresenceSink interface {
	SetOnline(userID string)
	SetOffline(userID string)
}

// Hub manages all authenticated clients and routes outbound events.
// Sessions queue events unstamped; each write pump assigns its own
// sequence numbers, so the same event fans out with per-session seq.
type Hub struct {
	// clients maps userID → client. A reconnect replaces the old session.
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMsg
	subscribe  chan *subscription

	presence PresenceSink
	log      *zap.SugaredLogger
}

type broadcastMsg struct {
	channelID string // empty means every client
	userID    string // set for direct delivery, overrides channelID
	event     *protocol.Event
	excludeID string
}

type subscription struct {
	userID    string
	channelID string
	remove    bool
}

func NewHub(presence PresenceSink, log *zap.SugaredLogger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMsg, 256),
		subscribe:  make(chan *subscription, 64),
		presence:   presence,
		log:        log,
	}
}

// Run starts the hub's main event loop. Call this in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for _, client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			if old, ok := h.clients[client.userID]; ok {
				h.drop(old)
			}
			h.clients[client.userID] = client
			h.log.Infow("session connected", "userId", client.userID, "total", len(h.clients))
			if h.presence != nil {
				h.presence.SetOnline(client.userID)
			}
			h.broadcastStatus(client.userID, "online")

		case client := <-h.unregister:
			if current, ok := h.clients[client.userID]; ok && current == client {
				delete(h.clients, client.userID)
				h.drop(client)
				h.log.Infow("session disconnected", "userId", client.userID, "total", len(h.clients))
				if h.presence != nil {
					h.presence.SetOffline(client.userID)
				}
				h.broadcastStatus(client.userID, "offline")
			}

		case msg := <-h.broadcast:
			h.deliver(msg)

		case sub := <-h.subscribe:
			if client, ok := h.clients[sub.userID]; ok {
				if sub.remove {
					client.removeChannel(sub.channelID)
				} else {
					client.addChannel(sub.channelID)
				}
			}
		}
	}
}

func (h *Hub) deliver(msg *broadcastMsg) {
	if msg.userID != "" {
		if client, ok := h.clients[msg.userID]; ok {
			h.send(client, msg.event)
		}
		return
	}
	for _, client := range h.clients {
		if msg.excludeID != "" && client.userID == msg.excludeID {
			continue
		}
		if msg.channelID != "" && !client.hasChannel(msg.channelID) {
			continue
		}
		h.send(client, msg.event)
	}
}

// send drops the session when its buffer is full rather than blocking
// the hub loop.
func (h *Hub) send(client *Client, event *protocol.Event) {
	select {
	case client.send <- event:
	default:
		delete(h.clients, client.userID)
		h.drop(client)
		h.log.Warnw("session buffer full, dropped", "userId", client.userID)
	}
}

func (h *Hub) drop(client *Client) {
	client.closeOnce.Do(func() {
		close(client.send)
		close(client.done)
	})
}

// BroadcastToChannel sends an event to all subscribers of a channel.
func (h *Hub) BroadcastToChannel(channelID string, event *protocol.Event, excludeUserID string) {
	h.broadcast <- &broadcastMsg{channelID: channelID, event: event, excludeID: excludeUserID}
}

// BroadcastToUser sends an event directly to a specific user's session.
func (h *Hub) BroadcastToUser(userID string, event *protocol.Event) {
	h.broadcast <- &broadcastMsg{userID: userID, event: event}
}

// BroadcastToAll sends an event to every connected session.
func (h *Hub) BroadcastToAll(event *protocol.Event, excludeUserID string) {
	h.broadcast <- &broadcastMsg{event: event, excludeID: excludeUserID}
}

// Subscribe adds a channel to a live session's subscriptions, if the
// user is connected.
func (h *Hub) Subscribe(userID, channelID string) {
	h.subscribe <- &subscription{userID: userID, channelID: channelID}
}

// Unsubscribe removes a channel from a live session's subscriptions.
func (h *Hub) Unsubscribe(userID, channelID string) {
	h.subscribe <- &subscription{userID: userID, channelID: channelID, remove: true}
}

// broadcastStatus pushes an online/offline flip to everyone else.
// Called from the run loop only.
func (h *Hub) broadcastStatus(userID, status string) {
	evt, err := protocol.NewEvent(protocol.TypeUserStatusChange, protocol.StatusChangePayload{
		UserID: userID,
		Status: status,
	})
	if err != nil {
		return
	}
	for _, client := range h.clients {
		if client.userID == userID {
			continue
		}
		h.send(client, evt)
	}
}
