package hub

import (
	"github.com/pulsechat/stream/src/types"
)

// MessageBridge publishes room events to other server instances.
// Defined here to avoid circular imports with the bridge package.
type MessageBridge interface {
	Publish(roomID string, e types.Event) error
	Available() bool
}

// SetBridge attaches a cross-instance message bridge to the room directory.
// When set, broadcast events are also forwarded to other instances.
func (r *Rooms) SetBridge(b MessageBridge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bridge = b
}

// DeliverLocal fans an event from the bridge out to local room members only.
// It does not re-publish, preventing infinite relay loops.
func (r *Rooms) DeliverLocal(roomID string, e types.Event) {
	r.broadcast(roomID, e, "", false)
}

// Broadcast delivers the event to every member of the room except the
// excluded connection and returns the count of successful local deliveries.
// A write failure for one member removes that connection but does not abort
// delivery to the rest.
func (r *Rooms) Broadcast(roomID string, e types.Event, excludeConnectionID string) int {
	return r.broadcast(roomID, e, excludeConnectionID, true)
}

type target struct {
	userID       string
	connectionID string
}

func (r *Rooms) broadcast(roomID string, e types.Event, excludeConnectionID string, publish bool) int {
	e = e.Stamped()
	e.RoomID = roomID

	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.RUnlock()
		return 0
	}
	// Copy targets to avoid holding the lock during sends.
	targets := make([]target, 0, len(rm.members))
	for userID, m := range rm.members {
		targets = append(targets, target{userID: userID, connectionID: m.connectionID})
	}
	bridge := r.bridge
	r.mu.RUnlock()

	if publish && bridge != nil && bridge.Available() {
		if err := bridge.Publish(roomID, e); err != nil {
			r.logger.Error().Err(err).Str("room_id", roomID).Msg("bridge publish failed")
		}
	}

	delivered := 0
	var dead []string
	for _, t := range targets {
		if t.connectionID == excludeConnectionID {
			continue
		}
		conn := r.registry.get(t.connectionID)
		if conn == nil {
			// Membership pointing at a vanished connection; self-heal.
			r.dropMember(roomID, t.userID, t.connectionID)
			continue
		}
		if err := conn.write(e); err != nil {
			r.logger.Warn().
				Str("connection_id", t.connectionID).
				Str("room_id", roomID).
				Msg("write failed, pruning connection")
			dead = append(dead, t.connectionID)
			continue
		}
		delivered++
	}

	// Lazily discovered deaths: full removal closes the transport and
	// forces the implicit leave, after this delivery loop has finished.
	for _, id := range dead {
		r.registry.Remove(id)
	}
	return delivered
}

// dropMember silently removes a membership whose connection no longer
// exists in the registry. No broadcasts: this is internal pruning.
func (r *Rooms) dropMember(roomID, userID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return
	}
	if m, isMember := rm.members[userID]; isMember && m.connectionID == connectionID {
		delete(rm.members, userID)
		if len(rm.members) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// broadcastRoomUsers pushes the full membership snapshot to every member,
// including whoever triggered the change.
func (r *Rooms) broadcastRoomUsers(roomID string) {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.RUnlock()
		return
	}
	users := memberList(rm)
	r.mu.RUnlock()

	r.broadcast(roomID, types.Event{
		Type: types.EventRoomUsers,
		Data: map[string]any{
			"roomId": roomID,
			"users":  users,
		},
	}, "", true)
}
