package server

import (
	"errors"
	"strings"

	"github.com/fasthttp/websocket"
	"github.com/pulsechat/stream/src/hub"
	"github.com/pulsechat/stream/src/types"
	"github.com/valyala/fasthttp"
)

var upgrader = websocket.FastHTTPUpgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*fasthttp.RequestCtx) bool { return true },
}

// streamHandler returns a raw fasthttp handler for the "/ws" stream
// endpoint. Fiber v3 does not expose *fasthttp.RequestCtx, so the upgrade
// is registered at the app level alongside the fiber handler.
//
// The stream is one-way: events flow server to client. The read loop
// exists only to notice the peer going away; any inbound frame merely
// refreshes liveness.
func (s *Server) streamHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}

		// Identity comes from the already-authenticated caller; it is
		// trusted as-is. The ts query param is a client cache-buster and
		// is deliberately ignored.
		userID := string(ctx.QueryArgs().Peek("userId"))
		username := string(ctx.QueryArgs().Peek("username"))
		if userID == "" || username == "" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"error":"bad_request","message":"userId and username are required"}`)
			return
		}

		err := upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			s.serveStream(conn, userID, username)
		})
		if err != nil {
			s.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

func (s *Server) serveStream(conn *websocket.Conn, userID, username string) {
	transport := &wsTransport{conn: conn}

	connID, err := s.svc.Connect(userID, username, transport)
	if err != nil {
		if errors.Is(err, hub.ErrRateLimited) {
			// Rejection is delivered in-band as an error frame, then the
			// stream terminates.
			_ = transport.WriteEvent(types.Event{
				Type: types.EventError,
				Data: map[string]any{
					"code":    "rate_limited",
					"message": "too many connection attempts",
				},
			}.Stamped())
		}
		_ = conn.Close()
		return
	}

	registry := s.svc.Registry()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		registry.Touch(connID)
	}
	registry.Remove(connID)
}

// wsTransport adapts a fasthttp websocket connection to types.Transport.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) WriteEvent(e types.Event) error { return t.conn.WriteJSON(e) }
func (t *wsTransport) Close() error                   { return t.conn.Close() }
