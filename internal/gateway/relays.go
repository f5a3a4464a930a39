package gateway

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/chat"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/store"
)

// relayManager shares one observing chat relay per room across sessions.
// A single observer per room keeps the assistant's at-most-once reply
// guarantee: if every session observed, each trigger would be answered
// once per connected client.
type relayManager struct {
	store     store.Store
	responder chat.Responder

	mu      sync.Mutex
	entries map[string]*relayEntry
}

type relayEntry struct {
	relay       *chat.Relay
	unsubscribe func()
	refs        int
}

func newRelayManager(st store.Store, responder chat.Responder) *relayManager {
	return &relayManager{
		store:     st,
		responder: responder,
		entries:   make(map[string]*relayEntry),
	}
}

// acquire returns the room's relay, starting observation on first use.
// The release func must be called exactly once when the session ends.
func (m *relayManager) acquire(ctx context.Context, roomID string) (*chat.Relay, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[roomID]
	if !ok {
		relay := chat.NewRelay(m.store, roomID, m.responder)
		unsubscribe, err := relay.Observe(ctx)
		if err != nil {
			return nil, nil, err
		}
		entry = &relayEntry{relay: relay, unsubscribe: unsubscribe}
		m.entries[roomID] = entry
	}
	entry.refs++

	var once sync.Once
	release := func() {
		once.Do(func() { m.release(roomID) })
	}
	return entry.relay, release, nil
}

func (m *relayManager) release(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[roomID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs > 0 {
		return
	}
	entry.unsubscribe()
	delete(m.entries, roomID)
	logrus.WithField("room_id", roomID).Debug("Stopped observing room chat")
}
