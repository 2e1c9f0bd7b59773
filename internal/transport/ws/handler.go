package ws

import (
	"net/http"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/jasonhq/relay/internal/logger"
)

// ServeWS returns an HTTP handler that upgrades to WebSocket. Identity
// is established by the first frame, which must be an authenticate
// event; the upgrade itself is unauthenticated.
func ServeWS(hub *Hub, handler AppHandler, log *zap.SugaredLogger) http.HandlerFunc {
	if log == nil {
		log = logger.Nop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true, // origin is enforced by the proxy
		})
		if err != nil {
			log.Warnw("ws accept failed", "error", err)
			return
		}

		client := newClient(hub, conn, handler, log)
		if err := client.authenticate(r.Context()); err != nil {
			log.Infow("ws handshake rejected", "error", err)
			conn.Close(websocket.StatusPolicyViolation, "authentication failed")
			return
		}

		hub.register <- client
		go client.WritePump()
		go client.ReadPump()
	}
}
