package service

import (
	"errors"
	"fmt"

	"github.com/pulsechat/stream/src/hub"
	"github.com/pulsechat/stream/src/types"
	"github.com/rs/zerolog"
)

// ErrNotFound marks lookups of unknown connections or rooms.
var ErrNotFound = errors.New("not found")

// Service provides the high-level inbound-action API over the connection
// registry and room directory. Inbound actions identify callers by user id;
// the service resolves the owning connection.
type Service struct {
	registry *hub.Registry
	rooms    *hub.Rooms
	logger   zerolog.Logger
}

// New creates a service backed by the given registry and room directory.
func New(registry *hub.Registry, rooms *hub.Rooms, logger zerolog.Logger) *Service {
	return &Service{registry: registry, rooms: rooms, logger: logger}
}

// Registry returns the underlying connection registry.
func (s *Service) Registry() *hub.Registry { return s.registry }

// Rooms returns the underlying room directory.
func (s *Service) Rooms() *hub.Rooms { return s.rooms }

// Connect admits a stream connection for an already-authenticated user.
// Identity is trusted as supplied. Returns hub.ErrRateLimited when the user
// exceeds the admission ceiling.
func (s *Service) Connect(userID, username string, transport types.Transport) (string, error) {
	connID, err := s.registry.Admit(userID, username, transport)
	if err != nil {
		return "", err
	}
	s.logger.Debug().
		Str("connection_id", connID).
		Str("user_id", userID).
		Msg("stream connected")
	return connID, nil
}

// Disconnect removes the user's connection, if any.
func (s *Service) Disconnect(userID string) {
	if connID := s.registry.FindByUserID(userID); connID != "" {
		s.registry.Remove(connID)
	}
}

// JoinRoom resolves the caller's connection and joins it to the room.
func (s *Service) JoinRoom(userID, roomID, roomName string) error {
	connID := s.registry.FindByUserID(userID)
	if connID == "" {
		return fmt.Errorf("user %s has no connection: %w", userID, ErrNotFound)
	}
	if ok := s.rooms.Join(connID, roomID, roomName); !ok {
		return fmt.Errorf("join room %s: %w", roomID, ErrNotFound)
	}
	return nil
}

// LeaveRoom resolves the caller's connection and leaves the room. A leave
// for a room the user is not a member of is an error, so the caller can
// tell a stale membership model apart from a successful leave.
func (s *Service) LeaveRoom(userID, roomID string) error {
	connID := s.registry.FindByUserID(userID)
	if connID == "" {
		return fmt.Errorf("user %s has no connection: %w", userID, ErrNotFound)
	}
	if ok := s.rooms.Leave(connID, roomID); !ok {
		return fmt.Errorf("leave room %s: %w", roomID, ErrNotFound)
	}
	return nil
}

// Typing broadcasts a typing indicator for the user to their current room.
// The user must be joined to exactly that room; being alone in it is not an
// error, just zero deliveries.
func (s *Service) Typing(userID, roomID string, isTyping bool) (int, error) {
	connID := s.registry.FindByUserID(userID)
	if connID == "" {
		return 0, fmt.Errorf("user %s has no connection: %w", userID, ErrNotFound)
	}
	delivered, ok := s.rooms.SendTyping(connID, roomID, isTyping)
	if !ok {
		return 0, fmt.Errorf("typing in room %s: %w", roomID, ErrNotFound)
	}
	return delivered, nil
}

// BroadcastMessage fans an already-persisted chat message payload out to a
// room. Message history is owned by the persistence collaborator; this
// side only delivers. When excludeUserID names a connected user, their
// connection is skipped. Returns the delivered count.
func (s *Service) BroadcastMessage(roomID string, data map[string]any, excludeUserID string) int {
	exclude := ""
	if excludeUserID != "" {
		exclude = s.registry.FindByUserID(excludeUserID)
	}
	return s.rooms.Broadcast(roomID, types.Event{
		Type:   types.EventMessage,
		UserID: excludeUserID,
		Data:   data,
	}, exclude)
}

// RoomInfo returns a snapshot of one room.
func (s *Service) RoomInfo(roomID string) (*types.RoomInfo, error) {
	info := s.rooms.RoomInfo(roomID)
	if info == nil {
		return nil, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	return info, nil
}

// AllRooms returns snapshots of every active room.
func (s *Service) AllRooms() []types.RoomInfo {
	return s.rooms.AllRooms()
}

// Clients returns snapshots of all live connections.
func (s *Service) Clients() []types.ClientInfo {
	return s.registry.Clients()
}

// Stats summarizes registry and room directory state.
func (s *Service) Stats() types.Stats {
	return types.Stats{
		Connections: s.registry.Count(),
		Rooms:       s.rooms.Count(),
		Uptime:      s.registry.Uptime().String(),
	}
}
