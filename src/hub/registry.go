package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pulsechat/stream/config"
	"github.com/pulsechat/stream/src/types"
	"github.com/rs/zerolog"
)

// ErrRateLimited is returned by Admit when a user exceeds the admission
// ceiling within the rolling connect window.
var ErrRateLimited = errors.New("connection rate limit exceeded")

// Registry owns every live stream connection, keyed by connection id and
// by owning user id. At most one live connection exists per user; admitting
// a new one evicts the previous one first.
type Registry struct {
	cfg    *config.StreamConfig
	logger zerolog.Logger

	mu     sync.RWMutex
	conns  map[string]*Connection
	byUser map[string]string // userID -> connectionID

	limiter *admissionLimiter
	rooms   *Rooms

	startTime time.Time
	done      chan struct{}
	stopOnce  sync.Once
}

// NewRegistry creates a connection registry. Call Run in a goroutine to
// start the background reaper, and SetRooms before admitting connections
// so removals can force the implicit room leave.
func NewRegistry(cfg *config.StreamConfig, logger zerolog.Logger) *Registry {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Registry{
		cfg:       cfg,
		logger:    logger.With().Str("component", "registry").Logger(),
		conns:     make(map[string]*Connection),
		byUser:    make(map[string]string),
		limiter:   newAdmissionLimiter(cfg.ConnectCeiling, cfg.ConnectWindow),
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// SetRooms attaches the room directory so connection removal can trigger
// the implicit leave.
func (r *Registry) SetRooms(rooms *Rooms) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = rooms
}

// Admit registers a new connection for the given user over the given
// transport. It rejects with ErrRateLimited when the user exceeds the
// admission ceiling, evicts any prior connection owned by the user, pushes
// the connection event down the new transport, and starts the heartbeat.
func (r *Registry) Admit(userID, username string, transport types.Transport) (string, error) {
	if !r.limiter.allow(userID) {
		r.logger.Warn().Str("user_id", userID).Msg("admission rejected, rate limited")
		return "", ErrRateLimited
	}

	conn := newConnection(uuid.New().String(), userID, username, transport)

	r.mu.Lock()
	evicted := r.byUser[userID]
	r.conns[conn.ID] = conn
	r.byUser[userID] = conn.ID
	r.mu.Unlock()

	// Graceful close of the user's prior connection, after the new one
	// already owns the byUser slot.
	if evicted != "" {
		r.Remove(evicted)
	}

	err := conn.write(types.Event{
		Type:   types.EventConnection,
		UserID: userID,
		Data: map[string]any{
			"connectionId": conn.ID,
			"userId":       userID,
			"username":     username,
		},
	})
	if err != nil {
		r.Remove(conn.ID)
		return "", err
	}

	go conn.heartbeatLoop(r.cfg.HeartbeatInterval, r)

	r.logger.Info().
		Str("connection_id", conn.ID).
		Str("user_id", userID).
		Msg("connection admitted")
	return conn.ID, nil
}

// Remove tears down a connection: heartbeat cancelled, implicit room leave,
// transport closed, record deleted. It is idempotent.
func (r *Registry) Remove(connectionID string) {
	r.mu.Lock()
	conn, ok := r.conns[connectionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connectionID)
	if r.byUser[conn.UserID] == connectionID {
		delete(r.byUser, conn.UserID)
	}
	rooms := r.rooms
	r.mu.Unlock()

	conn.shutdown()

	if roomID := conn.RoomID(); roomID != "" && rooms != nil {
		rooms.leaveConn(conn, roomID)
	}

	r.logger.Info().
		Str("connection_id", connectionID).
		Str("user_id", conn.UserID).
		Msg("connection removed")
}

// FindByUserID returns the connection id currently owned by userID,
// or "" when the user has no live connection.
func (r *Registry) FindByUserID(userID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[userID]
}

// Touch refreshes the liveness timestamp for a connection.
func (r *Registry) Touch(connectionID string) {
	if conn := r.get(connectionID); conn != nil {
		conn.touch()
	}
}

func (r *Registry) get(connectionID string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[connectionID]
}

// Clients returns a snapshot of all live connections.
func (r *Registry) Clients() []types.ClientInfo {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	infos := make([]types.ClientInfo, 0, len(conns))
	for _, c := range conns {
		infos = append(infos, c.Info())
	}
	return infos
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Uptime reports how long the registry has been alive.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.startTime)
}

// Run drives the background reaper until Stop is called. Call in a goroutine.
func (r *Registry) Run() {
	ticker := time.NewTicker(r.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.reap()
			r.limiter.prune()
		case <-r.done:
			return
		}
	}
}

// Stop halts the reaper and tears down every remaining connection.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.done) })

	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Remove(id)
	}
}

// reap removes connections whose transports died without a close
// notification: anything not seen within StaleAfter.
func (r *Registry) reap() {
	cutoff := time.Now().Add(-r.cfg.StaleAfter)

	r.mu.RLock()
	stale := make([]string, 0)
	for id, conn := range r.conns {
		if conn.lastSeen().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		r.logger.Warn().Str("connection_id", id).Msg("reaping stale connection")
		r.Remove(id)
	}
}
