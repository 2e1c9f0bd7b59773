package client

import (
	"context"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/jasonhq/relay/internal/protocol"
)

// Transport is one underlying socket. Exactly one Conn owns a Transport;
// test harnesses inject in-memory implementations.
type Transport interface {
	ReadEvent(ctx context.Context) (*protocol.Event, error)
	WriteEvent(ctx context.Context, ev *protocol.Event) error
	Close() error
}

// Dialer opens a fresh Transport for every (re)connect attempt.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// WebsocketDialer dials the production WebSocket endpoint.
type WebsocketDialer struct {
	URL string
}

func (d *WebsocketDialer) Dial(ctx context.Context) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, d.URL, nil)
	if err != nil {
		return nil, err
	}
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) ReadEvent(ctx context.Context) (*protocol.Event, error) {
	var ev protocol.Event
	if err := wsjson.Read(ctx, t.conn, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (t *wsTransport) WriteEvent(ctx context.Context, ev *protocol.Event) error {
	return wsjson.Write(ctx, t.conn, ev)
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}
