package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/jasonhq/relay/internal/access"
	"github.com/jasonhq/relay/internal/protocol"
	"github.com/jasonhq/relay/internal/service"
)

const (
	writeWait    = 10 * time.Second
	authWait     = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBufSize  = 256
)

// Client represents a single authenticated session.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	handler AppHandler
	log     *zap.SugaredLogger

	userID string

	// channels tracks which channels this session receives events for.
	mu       sync.RWMutex
	channels map[string]struct{}

	send      chan *protocol.Event
	done      chan struct{}
	closeOnce sync.Once

	// seq is the per-session outbound counter. WritePump is the only
	// writer, so no atomics.
	seq uint64
}

func newClient(hub *Hub, conn *websocket.Conn, handler AppHandler, log *zap.SugaredLogger) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		handler:  handler,
		log:      log,
		channels: make(map[string]struct{}),
		send:     make(chan *protocol.Event, sendBufSize),
		done:     make(chan struct{}),
	}
}

func (c *Client) hasChannel(channelID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channelID]
	return ok
}

func (c *Client) addChannel(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channelID] = struct{}{}
}

func (c *Client) removeChannel(channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channelID)
}

// authenticate runs the handshake: the first frame must be an
// authenticate event whose token verifies for the claimed user. On
// success the session's channel subscriptions are loaded and the ack is
// queued as the first stamped event.
func (c *Client) authenticate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, authWait)
	defer cancel()

	var event protocol.Event
	if err := wsjson.Read(ctx, c.conn, &event); err != nil {
		return fmt.Errorf("reading handshake: %w", err)
	}
	if event.Type != protocol.TypeAuthenticate {
		return fmt.Errorf("expected %s, got %s", protocol.TypeAuthenticate, event.Type)
	}
	var p protocol.AuthenticatePayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return fmt.Errorf("decoding handshake: %w", err)
	}
	if err := c.handler.Authenticate(ctx, p.UserID, p.Token); err != nil {
		return err
	}
	c.userID = p.UserID

	ids, err := c.handler.SessionChannels(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("loading subscriptions: %w", err)
	}
	for _, id := range ids {
		c.channels[id] = struct{}{}
	}

	ack, err := protocol.NewEvent(protocol.TypeAuthenticated, protocol.AuthenticatedPayload{UserID: p.UserID})
	if err != nil {
		return err
	}
	c.send <- ack
	return nil
}

// ReadPump reads events from the socket and dispatches them.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var event protocol.Event
		err := wsjson.Read(context.Background(), c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.log.Debugw("session closed", "userId", c.userID)
			} else {
				c.log.Warnw("read error", "userId", c.userID, "error", err)
			}
			return
		}
		c.handleEvent(&event)
	}
}

// WritePump stamps each outbound event with the session sequence number
// and writes it to the socket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				return
			}
			c.seq++
			// Shallow copy so the shared event keeps seq zero for
			// other sessions.
			stamped := *event
			stamped.Seq = c.seq

			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := wsjson.Write(ctx, c.conn, &stamped)
			cancel()
			if err != nil {
				c.log.Warnw("write error", "userId", c.userID, "error", err)
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *Client) handleEvent(event *protocol.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	switch event.Type {
	case protocol.TypeMessage:
		var p protocol.MessagePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid message payload")
			return
		}
		if err := c.handler.HandleMessage(ctx, c.userID, &p); err != nil {
			c.reportError(err)
		}

	case protocol.TypeDirectMessage:
		var p protocol.DirectMessagePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid direct_message payload")
			return
		}
		if err := c.handler.HandleDirectMessage(ctx, c.userID, &p); err != nil {
			c.reportError(err)
		}

	case protocol.TypeEditMessage:
		var p protocol.EditMessagePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid edit_message payload")
			return
		}
		if err := c.handler.HandleEdit(ctx, c.userID, &p); err != nil {
			c.reportError(err)
		}

	case protocol.TypeDeleteMessage:
		var p protocol.DeleteMessagePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid delete_message payload")
			return
		}
		if err := c.handler.HandleDelete(ctx, c.userID, &p); err != nil {
			c.reportError(err)
		}

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

// reportError maps service errors onto wire error codes.
func (c *Client) reportError(err error) {
	switch {
	case errors.Is(err, access.ErrAccessDenied):
		c.sendError("ACCESS_DENIED", err.Error())
	case errors.Is(err, access.ErrChannelArchived):
		c.sendError("CHANNEL_ARCHIVED", err.Error())
	case errors.Is(err, service.ErrNotChannelMember):
		c.sendError("NOT_MEMBER", err.Error())
	case errors.Is(err, service.ErrChannelNotFound),
		errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, service.ErrReceiverUnknown):
		c.sendError("NOT_FOUND", err.Error())
	case errors.Is(err, service.ErrNotMessageOwner):
		c.sendError("NOT_OWNER", err.Error())
	case errors.Is(err, service.ErrCannotDMSelf):
		c.sendError("INVALID_RECEIVER", err.Error())
	default:
		c.log.Errorw("event handling failed", "userId", c.userID, "error", err)
		c.sendError("INTERNAL", "internal error")
	}
}

func (c *Client) sendError(code, message string) {
	evt, err := protocol.NewEvent(protocol.TypeError, protocol.ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	select {
	case c.send <- evt:
	default:
	}
}
