package hub

import (
	"sync"
	"time"

	"github.com/pulsechat/stream/src/types"
	"github.com/rs/zerolog"
)

type member struct {
	connectionID string
	username     string
	joinedAt     time.Time
}

type room struct {
	id        string
	name      string
	createdAt time.Time
	members   map[string]member // keyed by userID, the dedup key
}

// Rooms is the room directory plus broadcast engine. Rooms are created
// lazily on first join and deleted synchronously when their last member
// leaves.
type Rooms struct {
	registry *Registry
	logger   zerolog.Logger

	mu     sync.RWMutex
	rooms  map[string]*room
	bridge MessageBridge
}

// NewRooms creates a room directory bound to the given registry.
func NewRooms(registry *Registry, logger zerolog.Logger) *Rooms {
	return &Rooms{
		registry: registry,
		logger:   logger.With().Str("component", "rooms").Logger(),
		rooms:    make(map[string]*room),
	}
}

// Join adds the connection to the room, creating the room when it does not
// exist yet. A connection already joined to a different room leaves it
// implicitly first. A user already a member of the target room (a reconnect
// racing stale state) is treated as success without duplicating the slot.
func (r *Rooms) Join(connectionID, roomID, roomName string) bool {
	conn := r.registry.get(connectionID)
	if conn == nil {
		return false
	}

	if current := conn.RoomID(); current != "" && current != roomID {
		r.leaveConn(conn, current)
	}

	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{
			id:        roomID,
			name:      roomName,
			createdAt: time.Now(),
			members:   make(map[string]member),
		}
		r.rooms[roomID] = rm
		r.logger.Info().Str("room_id", roomID).Str("name", roomName).Msg("room created")
	}

	if existing, dup := rm.members[conn.UserID]; dup {
		// Reconnect race: the user already holds a member slot. Point it
		// at the live connection and report success.
		if existing.connectionID != connectionID {
			existing.connectionID = connectionID
			rm.members[conn.UserID] = existing
		}
		r.mu.Unlock()
		conn.setRoomID(roomID)
		return true
	}

	rm.members[conn.UserID] = member{
		connectionID: connectionID,
		username:     conn.Username,
		joinedAt:     time.Now(),
	}
	r.mu.Unlock()

	conn.setRoomID(roomID)

	r.broadcast(roomID, types.Event{
		Type:   types.EventUserJoined,
		UserID: conn.UserID,
		Data: map[string]any{
			"userId":   conn.UserID,
			"username": conn.Username,
		},
	}, connectionID, true)
	r.broadcastRoomUsers(roomID)

	r.logger.Debug().
		Str("connection_id", connectionID).
		Str("user_id", conn.UserID).
		Str("room_id", roomID).
		Msg("joined room")
	return true
}

// Leave removes the connection's user from the room. It returns false when
// the connection or room is unknown, or when the user was not actually a
// member; callers rely on the boolean to report errors, so a no-op is a
// failure here (unlike Join, which treats duplicate joins as success).
func (r *Rooms) Leave(connectionID, roomID string) bool {
	conn := r.registry.get(connectionID)
	if conn == nil {
		return false
	}
	return r.leaveConn(conn, roomID)
}

// leaveConn is the leave path shared with registry removal, where the
// connection record has already left the registry.
func (r *Rooms) leaveConn(conn *Connection, roomID string) bool {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	m, isMember := rm.members[conn.UserID]
	if !isMember || m.connectionID != conn.ID {
		// Either not a member, or the slot belongs to a newer connection
		// of the same user. Leave it alone.
		r.mu.Unlock()
		return false
	}
	delete(rm.members, conn.UserID)
	empty := len(rm.members) == 0
	if empty {
		delete(r.rooms, roomID)
		r.logger.Info().Str("room_id", roomID).Msg("room deleted, last member left")
	}
	r.mu.Unlock()

	conn.clearRoomID(roomID)

	if !empty {
		r.broadcast(roomID, types.Event{
			Type:   types.EventUserLeft,
			UserID: conn.UserID,
			Data: map[string]any{
				"userId":   conn.UserID,
				"username": conn.Username,
			},
		}, "", true)
		r.broadcastRoomUsers(roomID)
	}

	r.logger.Debug().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Str("room_id", roomID).
		Msg("left room")
	return true
}

// SendTyping broadcasts a typing indicator to the room, excluding the
// sender. The guard requires the connection to currently be joined to
// exactly that room; ok reports the guard, delivered counts recipients.
// A member alone in a room passes the guard with zero deliveries.
func (r *Rooms) SendTyping(connectionID, roomID string, isTyping bool) (delivered int, ok bool) {
	conn := r.registry.get(connectionID)
	if conn == nil || conn.RoomID() != roomID {
		return 0, false
	}

	delivered = r.broadcast(roomID, types.Event{
		Type:   types.EventTyping,
		UserID: conn.UserID,
		Data: map[string]any{
			"userId":   conn.UserID,
			"username": conn.Username,
			"isTyping": isTyping,
		},
	}, connectionID, true)
	return delivered, true
}

// RoomInfo returns a snapshot of one room, or nil when it does not exist.
func (r *Rooms) RoomInfo(roomID string) *types.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	info := types.RoomInfo{
		RoomID:    rm.id,
		Name:      rm.name,
		CreatedAt: rm.createdAt,
		Members:   memberList(rm),
	}
	return &info
}

// AllRooms returns snapshots of every active room.
func (r *Rooms) AllRooms() []types.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]types.RoomInfo, 0, len(r.rooms))
	for _, rm := range r.rooms {
		infos = append(infos, types.RoomInfo{
			RoomID:    rm.id,
			Name:      rm.name,
			CreatedAt: rm.createdAt,
			Members:   memberList(rm),
		})
	}
	return infos
}

// Count returns the number of active rooms.
func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func memberList(rm *room) []types.MemberInfo {
	members := make([]types.MemberInfo, 0, len(rm.members))
	for userID, m := range rm.members {
		members = append(members, types.MemberInfo{
			UserID:       userID,
			Username:     m.username,
			ConnectionID: m.connectionID,
			JoinedAt:     m.joinedAt,
		})
	}
	return members
}
