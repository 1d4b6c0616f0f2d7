package hub

import (
	"sync"
	"time"

	"github.com/pulsechat/stream/src/types"
)

// Connection is one admitted server-side endpoint of a long-lived
// one-way event stream, bound to a user. It is owned exclusively by
// the Registry; the room directory only holds its id.
type Connection struct {
	ID          string
	UserID      string
	Username    string
	connectedAt time.Time

	transport types.Transport

	mu         sync.Mutex
	roomID     string
	lastSeenAt time.Time

	stopHB   chan struct{}
	stopOnce sync.Once
}

func newConnection(id, userID, username string, transport types.Transport) *Connection {
	now := time.Now()
	return &Connection{
		ID:          id,
		UserID:      userID,
		Username:    username,
		connectedAt: now,
		transport:   transport,
		lastSeenAt:  now,
		stopHB:      make(chan struct{}),
	}
}

// write pushes one event down the transport. Writes are serialized per
// connection; a successful write refreshes lastSeenAt.
func (c *Connection) write(e types.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.transport.WriteEvent(e.Stamped()); err != nil {
		return err
	}
	c.lastSeenAt = time.Now()
	return nil
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastSeenAt = time.Now()
	c.mu.Unlock()
}

func (c *Connection) lastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeenAt
}

// RoomID returns the room the connection is currently joined to,
// or "" when unattached.
func (c *Connection) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Connection) setRoomID(roomID string) {
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
}

// clearRoomID resets the room reference only if it still points at roomID,
// so a stale leave cannot clobber a newer join.
func (c *Connection) clearRoomID(roomID string) {
	c.mu.Lock()
	if c.roomID == roomID {
		c.roomID = ""
	}
	c.mu.Unlock()
}

// shutdown cancels the heartbeat and closes the transport. Safe to call
// more than once.
func (c *Connection) shutdown() {
	c.stopOnce.Do(func() {
		close(c.stopHB)
		_ = c.transport.Close()
	})
}

// heartbeatLoop periodically writes a heartbeat frame. A failed write means
// the transport is dead, so the connection removes itself from the registry.
func (c *Connection) heartbeatLoop(interval time.Duration, reg *Registry) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.write(types.Event{Type: types.EventHeartbeat}); err != nil {
				reg.Remove(c.ID)
				return
			}
		case <-c.stopHB:
			return
		}
	}
}

// Info returns a snapshot of the connection's metadata.
func (c *Connection) Info() types.ClientInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.ClientInfo{
		ConnectionID: c.ID,
		UserID:       c.UserID,
		Username:     c.Username,
		RoomID:       c.roomID,
		ConnectedAt:  c.connectedAt,
		LastSeenAt:   c.lastSeenAt,
	}
}
