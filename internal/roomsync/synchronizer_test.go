package roomsync

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/presence"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/store"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/store/memory"
)

// countingStore counts upstream writes so the throttle can be observed.
type countingStore struct {
	store.Store
	updates int64
}

func (c *countingStore) UpdateDocument(ctx context.Context, path string, fields map[string]interface{}) error {
	atomic.AddInt64(&c.updates, 1)
	return c.Store.UpdateDocument(ctx, path, fields)
}

func (c *countingStore) Updates() int64 {
	return atomic.LoadInt64(&c.updates)
}

func seedRoom(t *testing.T, st store.Store, room domain.Room) {
	t.Helper()
	require.NoError(t, st.SetDocument(context.Background(), store.RoomPath(room.ID), room))
}

func editableRoom(id, ownerID string, editors ...string) domain.Room {
	return domain.Room{
		ID:        id,
		OwnerID:   ownerID,
		Name:      "calculus drill",
		Status:    domain.RoomStatusActive,
		ExpiresAt: time.Now().Add(time.Hour),
		EditorIDs: append([]string{ownerID}, editors...),
	}
}

func storedState(t *testing.T, st store.Store, roomID string) *domain.Snapshot {
	t.Helper()
	data, err := st.GetDocument(context.Background(), store.RoomPath(roomID))
	require.NoError(t, err)
	var room domain.Room
	require.NoError(t, json.Unmarshal(data, &room))
	snap, err := domain.DecodeSnapshot(room.RoomState)
	require.NoError(t, err)
	return snap
}

func TestStartUnknownRoom(t *testing.T) {
	st := memory.New()
	tracker := presence.NewTracker(st)
	sync := New(st, tracker, "missing", domain.Participant{UserID: "user-a"}, Options{})

	err := sync.Start(context.Background())
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestStartEndedRoom(t *testing.T) {
	st := memory.New()
	tracker := presence.NewTracker(st)
	room := editableRoom("room-1", "user-a")
	room.Status = domain.RoomStatusEnded
	seedRoom(t, st, room)

	sync := New(st, tracker, "room-1", domain.Participant{UserID: "user-a"}, Options{})
	err := sync.Start(context.Background())
	assert.ErrorIs(t, err, ErrRoomEnded)

	_, err = st.GetDocument(context.Background(), store.ParticipantPath("room-1", "user-a"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFirstEditPushesImmediately(t *testing.T) {
	mem := memory.New()
	st := &countingStore{Store: mem}
	tracker := presence.NewTracker(st)
	seedRoom(t, st, editableRoom("room-1", "user-a"))

	sync := New(st, tracker, "room-1", domain.Participant{UserID: "user-a"}, Options{
		PushInterval: 100 * time.Millisecond,
	})
	require.NoError(t, sync.Start(context.Background()))
	defer sync.Close(context.Background())

	require.NoError(t, sync.ApplyLocal(func(s *domain.Snapshot) {
		s.Put(domain.Element{Kind: domain.ElementNote, ID: "n1", Text: "derivatives"})
	}))

	assert.Equal(t, int64(1), st.Updates())
	snap := storedState(t, st, "room-1")
	assert.Equal(t, "derivatives", snap.Elements["n1"].Text)
}

func TestRapidEditsCoalesceIntoTrailingPush(t *testing.T) {
	mem := memory.New()
	st := &countingStore{Store: mem}
	tracker := presence.NewTracker(st)
	seedRoom(t, st, editableRoom("room-1", "user-a"))

	sync := New(st, tracker, "room-1", domain.Participant{UserID: "user-a"}, Options{
		PushInterval: 100 * time.Millisecond,
	})
	require.NoError(t, sync.Start(context.Background()))
	defer sync.Close(context.Background())

	require.NoError(t, sync.ApplyLocal(func(s *domain.Snapshot) {
		s.Put(domain.Element{Kind: domain.ElementNote, ID: "n1", Text: "v1"})
	}))
	require.NoError(t, sync.ApplyLocal(func(s *domain.Snapshot) {
		s.Put(domain.Element{Kind: domain.ElementNote, ID: "n1", Text: "v2"})
	}))
	require.NoError(t, sync.ApplyLocal(func(s *domain.Snapshot) {
		s.Put(domain.Element{Kind: domain.ElementNote, ID: "n1", Text: "v3"})
	}))

	// Leading push only so far; the two follow-ups are pending.
	assert.Equal(t, int64(1), st.Updates())
	assert.Equal(t, "v1", storedState(t, st, "room-1").Elements["n1"].Text)

	// The trailing flush carries the final state in one write.
	assert.Eventually(t, func() bool {
		return st.Updates() == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "v3", storedState(t, st, "room-1").Elements["n1"].Text)
}

func TestOwnPushDoesNotEchoAsRemote(t *testing.T) {
	st := memory.New()
	tracker := presence.NewTracker(st)
	seedRoom(t, st, editableRoom("room-1", "user-a"))

	var remoteEmits int64
	sync := New(st, tracker, "room-1", domain.Participant{UserID: "user-a"}, Options{
		PushInterval: 50 * time.Millisecond,
		OnSnapshot: func(_ *domain.Snapshot, src Source) {
			if src == SourceRemote {
				atomic.AddInt64(&remoteEmits, 1)
			}
		},
	})
	require.NoError(t, sync.Start(context.Background()))
	defer sync.Close(context.Background())

	initial := atomic.LoadInt64(&remoteEmits)
	require.NoError(t, sync.ApplyLocal(func(s *domain.Snapshot) {
		s.Put(domain.Element{Kind: domain.ElementShape, ID: "s1", ShapeType: "rect"})
	}))
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, initial, atomic.LoadInt64(&remoteEmits))
}

func TestRemoteEditPropagatesBetweenSessions(t *testing.T) {
	st := memory.New()
	tracker := presence.NewTracker(st)
	seedRoom(t, st, editableRoom("room-1", "user-a", "user-b"))

	var mu sync.Mutex
	var received *domain.Snapshot
	viewer := New(st, tracker, "room-1", domain.Participant{UserID: "user-b"}, Options{
		PushInterval: 50 * time.Millisecond,
		OnSnapshot: func(snap *domain.Snapshot, src Source) {
			if src == SourceRemote {
				mu.Lock()
				received = snap
				mu.Unlock()
			}
		},
	})
	require.NoError(t, viewer.Start(context.Background()))
	defer viewer.Close(context.Background())

	editor := New(st, tracker, "room-1", domain.Participant{UserID: "user-a"}, Options{
		PushInterval: 50 * time.Millisecond,
	})
	require.NoError(t, editor.Start(context.Background()))
	defer editor.Close(context.Background())

	require.NoError(t, editor.ApplyLocal(func(s *domain.Snapshot) {
		s.Put(domain.Element{Kind: domain.ElementArrow, ID: "a1", FromID: "s1", ToID: "s2"})
	}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		if received == nil {
			return false
		}
		_, ok := received.Elements["a1"]
		return ok
	}, time.Second, 10*time.Millisecond)

	local := viewer.Snapshot()
	assert.Contains(t, local.Elements, "a1")
}

func TestViewerEditsStayLocal(t *testing.T) {
	mem := memory.New()
	st := &countingStore{Store: mem}
	tracker := presence.NewTracker(st)
	seedRoom(t, st, editableRoom("room-1", "owner-1"))

	viewer := New(st, tracker, "room-1", domain.Participant{UserID: "user-b"}, Options{
		PushInterval: 50 * time.Millisecond,
	})
	require.NoError(t, viewer.Start(context.Background()))
	defer viewer.Close(context.Background())

	assert.True(t, viewer.ReadOnly())
	require.NoError(t, viewer.ApplyLocal(func(s *domain.Snapshot) {
		s.Put(domain.Element{Kind: domain.ElementNote, ID: "n1", Text: "scratch"})
	}))

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int64(0), st.Updates())
	assert.Contains(t, viewer.Snapshot().Elements, "n1")
	assert.NotContains(t, storedState(t, st, "room-1").Elements, "n1")
}

func TestGrantedEditorStartsPushing(t *testing.T) {
	mem := memory.New()
	st := &countingStore{Store: mem}
	tracker := presence.NewTracker(st)
	seedRoom(t, st, editableRoom("room-1", "owner-1"))

	viewer := New(st, tracker, "room-1", domain.Participant{UserID: "user-b"}, Options{
		PushInterval: 50 * time.Millisecond,
	})
	require.NoError(t, viewer.Start(context.Background()))
	defer viewer.Close(context.Background())

	require.True(t, viewer.ReadOnly())
	require.NoError(t, viewer.ApplyLocal(func(s *domain.Snapshot) {
		s.Put(domain.Element{Kind: domain.ElementNote, ID: "n1", Text: "scratch"})
	}))
	time.Sleep(120 * time.Millisecond)
	require.Equal(t, int64(0), st.Updates())

	// The owner grants edit rights through the room document; the session
	// picks it up over its subscription.
	require.NoError(t, mem.UpdateDocument(context.Background(), store.RoomPath("room-1"), map[string]interface{}{
		"editorIds": []string{"owner-1", "user-b"},
	}))
	assert.Eventually(t, func() bool {
		return !viewer.ReadOnly()
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, viewer.ApplyLocal(func(s *domain.Snapshot) {
		s.Put(domain.Element{Kind: domain.ElementNote, ID: "n2", Text: "now shared"})
	}))

	assert.Equal(t, int64(1), st.Updates())
	pushed := storedState(t, st, "room-1")
	assert.Contains(t, pushed.Elements, "n1")
	assert.Contains(t, pushed.Elements, "n2")
}

func TestRoomEndedRemotelyFreezesSession(t *testing.T) {
	mem := memory.New()
	st := &countingStore{Store: mem}
	tracker := presence.NewTracker(st)
	seedRoom(t, st, editableRoom("room-1", "user-a"))

	var endedCalls int64
	sync := New(st, tracker, "room-1", domain.Participant{UserID: "user-a"}, Options{
		PushInterval: 50 * time.Millisecond,
		OnEnded:      func() { atomic.AddInt64(&endedCalls, 1) },
	})
	require.NoError(t, sync.Start(context.Background()))
	defer sync.Close(context.Background())

	require.NoError(t, mem.UpdateDocument(context.Background(), store.RoomPath("room-1"), map[string]interface{}{
		"status": domain.RoomStatusEnded,
	}))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&endedCalls) == 1
	}, time.Second, 10*time.Millisecond)
	assert.True(t, sync.ReadOnly())

	before := st.Updates()
	require.NoError(t, sync.ApplyLocal(func(s *domain.Snapshot) {
		s.Put(domain.Element{Kind: domain.ElementNote, ID: "n1", Text: "late"})
	}))
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, before, st.Updates())
}

func TestCloseFlushesPendingEdit(t *testing.T) {
	st := memory.New()
	tracker := presence.NewTracker(st)
	seedRoom(t, st, editableRoom("room-1", "user-a"))

	sync := New(st, tracker, "room-1", domain.Participant{UserID: "user-a"}, Options{
		PushInterval: 10 * time.Second,
	})
	require.NoError(t, sync.Start(context.Background()))

	require.NoError(t, sync.ApplyLocal(func(s *domain.Snapshot) {
		s.Put(domain.Element{Kind: domain.ElementNote, ID: "n1", Text: "v1"}) // leading push
	}))
	require.NoError(t, sync.ApplyLocal(func(s *domain.Snapshot) {
		s.Put(domain.Element{Kind: domain.ElementNote, ID: "n1", Text: "v2"}) // throttled
	}))

	require.NoError(t, sync.Close(context.Background()))

	assert.Equal(t, "v2", storedState(t, st, "room-1").Elements["n1"].Text)
	_, err := st.GetDocument(context.Background(), store.ParticipantPath("room-1", "user-a"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOwnerExpiryEndsRoomForEveryone(t *testing.T) {
	st := memory.New()
	tracker := presence.NewTracker(st)
	room := editableRoom("room-1", "user-a", "user-b")
	room.ExpiresAt = time.Now().Add(60 * time.Millisecond)
	seedRoom(t, st, room)

	var peerEnded int64
	peer := New(st, tracker, "room-1", domain.Participant{UserID: "user-b"}, Options{
		OnEnded: func() { atomic.AddInt64(&peerEnded, 1) },
	})
	require.NoError(t, peer.Start(context.Background()))
	defer peer.Close(context.Background())

	owner := New(st, tracker, "room-1", domain.Participant{UserID: "user-a"}, Options{})
	require.NoError(t, owner.Start(context.Background()))
	defer owner.Close(context.Background())

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&peerEnded) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, owner.ReadOnly())
	assert.True(t, peer.ReadOnly())

	data, err := st.GetDocument(context.Background(), store.RoomPath("room-1"))
	require.NoError(t, err)
	var stored domain.Room
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, domain.RoomStatusEnded, stored.Status)
}
