package hub

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pulsechat/stream/config"
	"github.com/pulsechat/stream/src/types"
	"github.com/rs/zerolog"
)

// mockTransport implements types.Transport without a real stream.
type mockTransport struct {
	mu         sync.Mutex
	events     []types.Event
	failWrites bool
	closed     bool
}

func (m *mockTransport) WriteEvent(e types.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errors.New("transport dead")
	}
	m.events = append(m.events, e)
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockTransport) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockTransport) kill() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = true
}

func (m *mockTransport) eventsOfType(t types.EventType) []types.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (m *mockTransport) lastOfType(t types.EventType) (types.Event, bool) {
	evs := m.eventsOfType(t)
	if len(evs) == 0 {
		return types.Event{}, false
	}
	return evs[len(evs)-1], true
}

// quietConfig keeps timers out of the way so tests drive state explicitly.
func quietConfig() *config.StreamConfig {
	return &config.StreamConfig{
		HeartbeatInterval: time.Hour,
		ReaperInterval:    time.Hour,
		StaleAfter:        time.Hour,
		ConnectWindow:     time.Minute,
		ConnectCeiling:    25,
	}
}

func newTestHub(t *testing.T, cfg *config.StreamConfig) (*Registry, *Rooms) {
	t.Helper()
	if cfg == nil {
		cfg = quietConfig()
	}
	reg := NewRegistry(cfg, zerolog.Nop())
	rooms := NewRooms(reg, zerolog.Nop())
	reg.SetRooms(rooms)
	t.Cleanup(reg.Stop)
	return reg, rooms
}

func admit(t *testing.T, reg *Registry, userID, username string) (string, *mockTransport) {
	t.Helper()
	mt := &mockTransport{}
	id, err := reg.Admit(userID, username, mt)
	if err != nil {
		t.Fatalf("admit %s: %v", userID, err)
	}
	return id, mt
}
