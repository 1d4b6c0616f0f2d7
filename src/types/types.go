package types

import "time"

// EventType names a server-to-client event frame.
type EventType string

const (
	EventConnection EventType = "connection"
	EventMessage    EventType = "message"
	EventUserJoined EventType = "user-joined"
	EventUserLeft   EventType = "user-left"
	EventTyping     EventType = "typing"
	EventRoomUsers  EventType = "room-users"
	EventError      EventType = "error"
	EventHeartbeat  EventType = "heartbeat"
)

// Event is the uniform envelope for every frame pushed down a stream.
type Event struct {
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	RoomID    string         `json:"roomId,omitempty"`
	UserID    string         `json:"userId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Stamped returns the event with Timestamp filled in when the caller
// left it zero. Delivery time is the default.
func (e Event) Stamped() Event {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return e
}

// Transport abstracts the outbound half of a stream connection for testability.
type Transport interface {
	WriteEvent(e Event) error
	Close() error
}

// ClientInfo holds metadata about an admitted connection.
type ClientInfo struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	RoomID       string    `json:"roomId,omitempty"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
}

// MemberInfo describes one room member in a room-users snapshot.
type MemberInfo struct {
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	ConnectionID string    `json:"connectionId"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// RoomInfo is a read-only snapshot of one room.
type RoomInfo struct {
	RoomID    string       `json:"roomId"`
	Name      string       `json:"name"`
	Members   []MemberInfo `json:"members"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Stats summarizes registry and room directory state.
type Stats struct {
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
	Uptime      string `json:"uptime"`
}
