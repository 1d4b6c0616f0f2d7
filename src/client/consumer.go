package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/pulsechat/stream/src/types"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

const (
	connectTimeout = 10 * time.Second
	requestTimeout = 10 * time.Second
)

// Handler receives one dispatched event frame.
type Handler func(e types.Event)

// ErrorHandler receives the terminal error after reconnection gives up.
type ErrorHandler func(err error)

// Options configures a Consumer.
type Options struct {
	BaseURL     string // e.g. "http://localhost:8080"
	UserID      string
	Username    string
	MaxAttempts int           // reconnect ceiling, default 5
	BaseDelay   time.Duration // first reconnect delay, default 1s
	Logger      zerolog.Logger
}

// Consumer is the client side of the event stream: it holds one long-lived
// inbound connection, dispatches typed event frames to registered handlers,
// and reconnects with exponential backoff and jitter when the stream drops.
type Consumer struct {
	baseURL     string
	userID      string
	username    string
	maxAttempts int
	baseDelay   time.Duration
	logger      zerolog.Logger
	http        *fasthttp.Client

	mu             sync.Mutex
	conn           *websocket.Conn
	connected      bool
	roomID         string
	attempts       int
	generation     int
	reconnectTimer *time.Timer
	handlers       map[types.EventType]Handler
	errHandler     ErrorHandler
}

// New creates a stream consumer. Register handlers with On before calling
// Connect.
func New(opts Options) *Consumer {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	return &Consumer{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		userID:      opts.UserID,
		username:    opts.Username,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		logger:      opts.Logger.With().Str("component", "stream-consumer").Logger(),
		http:        &fasthttp.Client{},
		handlers:    make(map[types.EventType]Handler),
	}
}

// On registers the handler for one event type, replacing any previous one.
// Frames with no registered handler are ignored.
func (c *Consumer) On(t types.EventType, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[t] = h
}

// OnError registers the handler invoked once reconnection is exhausted.
func (c *Consumer) OnError(h ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errHandler = h
}

// Connect opens the event stream. It is a no-op returning true when already
// connected, and resolves true only once the connection event arrives. On
// failure it reports false and reconnection handling takes over.
func (c *Consumer) Connect() bool {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()

	if c.dial() {
		return true
	}
	c.scheduleReconnect()
	return false
}

// dial opens the stream and waits for the connection event. On success the
// read loop is started and the attempt counter resets.
func (c *Consumer) dial() bool {
	conn, _, err := websocket.DefaultDialer.Dial(c.streamURL(), nil)
	if err != nil {
		c.logger.Warn().Err(err).Msg("stream dial failed")
		return false
	}

	// The admission handshake: nothing counts as connected until the
	// server pushes the connection event. An error frame or stream error
	// before then fails the attempt.
	_ = conn.SetReadDeadline(time.Now().Add(connectTimeout))
	for {
		var e types.Event
		if err := conn.ReadJSON(&e); err != nil {
			c.logger.Warn().Err(err).Msg("stream closed before connection event")
			_ = conn.Close()
			return false
		}
		if e.Type == types.EventError {
			c.logger.Warn().Interface("data", e.Data).Msg("admission rejected")
			_ = conn.Close()
			return false
		}
		if e.Type != types.EventConnection {
			continue
		}
		_ = conn.SetReadDeadline(time.Time{})

		c.mu.Lock()
		c.conn = conn
		c.connected = true
		c.attempts = 0
		c.generation++
		gen := c.generation
		c.mu.Unlock()

		c.dispatch(e)
		go c.readLoop(conn, gen)

		c.logger.Info().Str("user_id", c.userID).Msg("stream connected")
		return true
	}
}

// readLoop dispatches frames until the stream errors. The generation tag
// lets a deliberate Disconnect invalidate the loop's error handling.
func (c *Consumer) readLoop(conn *websocket.Conn, gen int) {
	for {
		var e types.Event
		if err := conn.ReadJSON(&e); err != nil {
			c.handleStreamError(gen, err)
			return
		}
		c.dispatch(e)
	}
}

func (c *Consumer) dispatch(e types.Event) {
	c.mu.Lock()
	h := c.handlers[e.Type]
	c.mu.Unlock()
	if h != nil {
		h(e)
	}
}

func (c *Consumer) handleStreamError(gen int, err error) {
	c.mu.Lock()
	if gen != c.generation {
		// Disconnect already tore this stream down on purpose.
		c.mu.Unlock()
		return
	}
	c.connected = false
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.logger.Warn().Err(err).Msg("stream error, reconnecting")
	c.scheduleReconnect()
}

// scheduleReconnect arms the backoff timer for the next attempt, or
// surfaces the terminal error once the ceiling is exceeded.
func (c *Consumer) scheduleReconnect() {
	c.mu.Lock()
	c.attempts++
	attempt := c.attempts
	if attempt > c.maxAttempts {
		handler := c.errHandler
		c.mu.Unlock()
		c.logger.Error().Int("attempts", attempt-1).Msg("reconnection exhausted")
		if handler != nil {
			handler(fmt.Errorf("connection lost after %d reconnect attempts", c.maxAttempts))
		}
		return
	}
	delay := reconnectDelay(attempt, c.baseDelay)
	gen := c.generation
	c.reconnectTimer = time.AfterFunc(delay, func() { c.reconnect(gen) })
	c.mu.Unlock()

	c.logger.Info().
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("reconnect scheduled")
}

// reconnect runs one backoff-scheduled attempt. The generation tag makes a
// timer that outlived a deliberate Disconnect a no-op.
func (c *Consumer) reconnect(gen int) {
	c.mu.Lock()
	c.reconnectTimer = nil
	stale := gen != c.generation
	already := c.connected
	c.mu.Unlock()
	if stale || already {
		return
	}
	if !c.dial() {
		c.scheduleReconnect()
	}
}

// Connected reports whether the stream is currently up.
func (c *Consumer) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// JoinRoom issues the join action and tracks the room locally on success.
func (c *Consumer) JoinRoom(roomID, roomName string) bool {
	ok := c.post("/api/rooms/join", joinPayload{
		UserID:   c.userID,
		RoomID:   roomID,
		RoomName: roomName,
	})
	if ok {
		c.mu.Lock()
		c.roomID = roomID
		c.mu.Unlock()
	}
	return ok
}

// LeaveRoom issues the leave action for the tracked room. A no-op success
// when no room is tracked.
func (c *Consumer) LeaveRoom() bool {
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	if roomID == "" {
		return true
	}
	ok := c.post("/api/rooms/leave", leavePayload{UserID: c.userID, RoomID: roomID})
	if ok {
		c.mu.Lock()
		if c.roomID == roomID {
			c.roomID = ""
		}
		c.mu.Unlock()
	}
	return ok
}

// SendTyping broadcasts a typing indicator for the tracked room. It reports
// true only when at least one other member received it; a no-op failure when
// no room is tracked.
func (c *Consumer) SendTyping(isTyping bool) bool {
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	if roomID == "" {
		return false
	}
	var resp typingResponse
	ok := c.postJSON("/api/typing", typingPayload{
		UserID:   c.userID,
		RoomID:   roomID,
		IsTyping: isTyping,
	}, &resp)
	return ok && resp.Delivered > 0
}

// RoomID returns the locally tracked room id, "" when none.
func (c *Consumer) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Disconnect cancels any pending reconnect, closes the stream, and resets
// all local state. Fully idempotent.
func (c *Consumer) Disconnect() {
	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.generation++
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.roomID = ""
	c.attempts = 0
	c.mu.Unlock()
}

type joinPayload struct {
	UserID   string `json:"userId"`
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
}

type leavePayload struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

type typingPayload struct {
	UserID   string `json:"userId"`
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

type typingResponse struct {
	Delivered int `json:"delivered"`
}

// post issues one action round-trip. Failures are logged and reported as
// false, never raised past this boundary.
func (c *Consumer) post(path string, payload any) bool {
	return c.postJSON(path, payload, nil)
}

// postJSON is post with the response body decoded into out when non-nil.
func (c *Consumer) postJSON(path string, payload, out any) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("encode failed")
		return false
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := c.http.DoTimeout(req, resp, requestTimeout); err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("action request failed")
		return false
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		c.logger.Warn().
			Int("status", resp.StatusCode()).
			Str("path", path).
			Msg("action rejected")
		return false
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("decode failed")
			return false
		}
	}
	return true
}

// streamURL builds the stream endpoint URL. Identity values are query
// escaped; ts is a cache-buster the server ignores.
func (c *Consumer) streamURL() string {
	q := url.Values{}
	q.Set("userId", c.userID)
	q.Set("username", c.username)
	q.Set("ts", strconv.FormatInt(time.Now().UnixMilli(), 10))
	return c.wsBase() + "/ws?" + q.Encode()
}

func (c *Consumer) wsBase() string {
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://")
	case strings.HasPrefix(c.baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://")
	default:
		return "ws://" + c.baseURL
	}
}
