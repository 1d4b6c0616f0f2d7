package bridge

import "github.com/pulsechat/stream/src/types"

// Bridge defines the interface for cross-instance room broadcasting.
// Implementations relay room events between multiple server instances.
type Bridge interface {
	// Publish sends a room event to all other instances via the bridge.
	Publish(roomID string, e types.Event) error

	// Start begins listening for events from other instances.
	Start() error

	// Stop shuts down the bridge connection.
	Stop() error

	// Available reports whether the bridge is connected and operational.
	Available() bool
}

// BroadcastTarget is implemented by the room directory to receive events
// relayed from other instances.
type BroadcastTarget interface {
	DeliverLocal(roomID string, e types.Event)
}
