package client

import (
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/pulsechat/stream/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func newTestConsumer(baseURL string) *Consumer {
	return New(Options{
		BaseURL:     baseURL,
		UserID:      "u1",
		Username:    "alice",
		MaxAttempts: 1,
		BaseDelay:   10 * time.Millisecond,
		Logger:      zerolog.Nop(),
	})
}

// startStreamServer runs a minimal stream endpoint: it upgrades, hands the
// connection to handler, and keeps serving until the test ends.
func startStreamServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	up := websocket.FastHTTPUpgrader{}
	srv := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			_ = up.Upgrade(ctx, func(conn *websocket.Conn) {
				handler(conn)
			})
		},
	}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	return "http://" + ln.Addr().String()
}

func TestConnectResolvesOnConnectionEvent(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)

	received := make(chan types.Event, 8)
	baseURL := startStreamServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(types.Event{
			Type:      types.EventConnection,
			Data:      map[string]any{"connectionId": "c1", "userId": "u1"},
			Timestamp: time.Now(),
		})
		_ = conn.WriteJSON(types.Event{
			Type:      types.EventMessage,
			RoomID:    "r1",
			Data:      map[string]any{"text": "hi"},
			Timestamp: time.Now(),
		})
		<-hold
	})

	c := newTestConsumer(baseURL)
	defer c.Disconnect()
	c.On(types.EventConnection, func(e types.Event) { received <- e })
	c.On(types.EventMessage, func(e types.Event) { received <- e })

	require.True(t, c.Connect())
	assert.True(t, c.Connected())

	// Connect is a no-op when already connected.
	assert.True(t, c.Connect())

	var got []types.Event
	for len(got) < 2 {
		select {
		case e := <-received:
			got = append(got, e)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for events, got %d", len(got))
		}
	}
	assert.Equal(t, types.EventConnection, got[0].Type)
	assert.Equal(t, types.EventMessage, got[1].Type)
	assert.Equal(t, "hi", got[1].Data["text"])
}

func TestConnectFailsWhenServerUnreachable(t *testing.T) {
	c := newTestConsumer("http://127.0.0.1:1")
	defer c.Disconnect()

	terminal := make(chan error, 1)
	c.OnError(func(err error) { terminal <- err })

	assert.False(t, c.Connect())
	assert.False(t, c.Connected())

	// MaxAttempts is 1, so the single failed reconnect surfaces the
	// terminal error.
	select {
	case err := <-terminal:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected terminal error after retry exhaustion")
	}
}

func TestConnectFailsOnErrorFrameBeforeConnection(t *testing.T) {
	baseURL := startStreamServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(types.Event{
			Type:      types.EventError,
			Data:      map[string]any{"code": "rate_limited"},
			Timestamp: time.Now(),
		})
		_ = conn.Close()
	})

	c := newTestConsumer(baseURL)
	defer c.Disconnect()

	assert.False(t, c.Connect())
	assert.False(t, c.Connected())
}

func TestUnknownEventTypesAreIgnored(t *testing.T) {
	c := newTestConsumer("http://example.invalid")
	var calls int
	c.On(types.EventMessage, func(types.Event) { calls++ })

	c.dispatch(types.Event{Type: "mystery-frame"})
	c.dispatch(types.Event{Type: types.EventMessage})

	assert.Equal(t, 1, calls)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	c := newTestConsumer("http://example.invalid")

	c.Disconnect()
	state1 := []any{c.Connected(), c.RoomID()}
	c.Disconnect()
	state2 := []any{c.Connected(), c.RoomID()}

	assert.Equal(t, state1, state2)
	assert.False(t, c.Connected())
	assert.Empty(t, c.RoomID())
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	c := New(Options{
		BaseURL:     "http://127.0.0.1:1",
		UserID:      "u1",
		Username:    "alice",
		MaxAttempts: 10,
		BaseDelay:   50 * time.Millisecond,
		Logger:      zerolog.Nop(),
	})

	assert.False(t, c.Connect())
	c.Disconnect()

	c.mu.Lock()
	assert.Nil(t, c.reconnectTimer)
	assert.Equal(t, 0, c.attempts)
	c.mu.Unlock()
}

func TestStreamURLEscapesIdentity(t *testing.T) {
	c := New(Options{
		BaseURL:  "http://localhost:8080",
		UserID:   "u 1&x",
		Username: "ann marie&co",
		Logger:   zerolog.Nop(),
	})

	u, err := url.Parse(c.streamURL())
	require.NoError(t, err)
	assert.Equal(t, "ws", u.Scheme)
	assert.Equal(t, "/ws", u.Path)

	q := u.Query()
	assert.Equal(t, "u 1&x", q.Get("userId"))
	assert.Equal(t, "ann marie&co", q.Get("username"))
	assert.NotEmpty(t, q.Get("ts"))
}

func TestSendTypingWithoutRoomIsNoopFalse(t *testing.T) {
	c := newTestConsumer("http://example.invalid")
	assert.False(t, c.SendTyping(true))
}

func TestLeaveRoomWithoutRoomIsNoopSuccess(t *testing.T) {
	c := newTestConsumer("http://example.invalid")
	assert.True(t, c.LeaveRoom())
}

func TestJoinRoomFailureLeavesRoomUntracked(t *testing.T) {
	c := newTestConsumer("http://127.0.0.1:1")
	assert.False(t, c.JoinRoom("r1", "general"))
	assert.Empty(t, c.RoomID())
}
