// Package roomsync keeps a session's local whiteboard mirror converged with
// the authoritative room document in the shared store. Local edits apply
// immediately; pushes to the store are throttled, and remote changes arrive
// through a document subscription.
package roomsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/presence"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/store"
)

// DefaultPushInterval bounds upstream writes to one per second per session.
const DefaultPushInterval = time.Second

var (
	ErrRoomNotFound = errors.New("roomsync: room not found")
	ErrRoomEnded    = errors.New("roomsync: room has ended")
	ErrJoinFailed   = errors.New("roomsync: could not join room")
	ErrClosed       = errors.New("roomsync: synchronizer closed")
)

// Source tags where a snapshot emission originated, so consumers can tell
// the session's own edits apart from changes made by other participants.
type Source string

const (
	SourceUser   Source = "user"
	SourceRemote Source = "remote"
)

// SnapshotFunc receives a cloned snapshot after every applied change.
type SnapshotFunc func(snap *domain.Snapshot, src Source)

// Options configures a Synchronizer. Zero values fall back to defaults.
type Options struct {
	PushInterval time.Duration
	OnSnapshot   SnapshotFunc
	OnEnded      func()
}

// Synchronizer is one participant's live attachment to a room. It owns the
// session's presence record, the local snapshot mirror, and the throttled
// push of that mirror back into the room document.
type Synchronizer struct {
	store        store.Store
	tracker      *presence.Tracker
	roomID       string
	participant  domain.Participant
	pushInterval time.Duration
	onSnapshot   SnapshotFunc
	onEnded      func()

	ctx context.Context

	mu             sync.Mutex
	room           domain.Room
	snap           *domain.Snapshot
	readOnly       bool
	ended          bool
	closed         bool
	started        bool
	dirty          bool
	lastPush       time.Time
	lastPushedBlob string
	flushTimer     *time.Timer
	expiryTimer    *time.Timer
	unsubscribe    func()
}

func New(st store.Store, tracker *presence.Tracker, roomID string, p domain.Participant, opts Options) *Synchronizer {
	if st == nil {
		panic("store cannot be nil for Synchronizer")
	}
	if tracker == nil {
		panic("presence tracker cannot be nil for Synchronizer")
	}
	interval := opts.PushInterval
	if interval <= 0 {
		interval = DefaultPushInterval
	}
	onSnapshot := opts.OnSnapshot
	if onSnapshot == nil {
		onSnapshot = func(*domain.Snapshot, Source) {}
	}
	onEnded := opts.OnEnded
	if onEnded == nil {
		onEnded = func() {}
	}
	return &Synchronizer{
		store:        st,
		tracker:      tracker,
		roomID:       roomID,
		participant:  p,
		pushInterval: interval,
		onSnapshot:   onSnapshot,
		onEnded:      onEnded,
	}
}

// Start attaches to the room: validates it, registers presence, loads the
// current snapshot and begins watching for remote changes. On any failure
// the session holds no presence record and no subscription.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.started = true
	s.mu.Unlock()

	room, err := s.loadRoom(ctx)
	if err != nil {
		return err
	}
	if room.Ended() {
		return ErrRoomEnded
	}

	if err := s.tracker.Join(ctx, s.roomID, s.participant); err != nil {
		switch {
		case errors.Is(err, presence.ErrRoomNotFound):
			return ErrRoomNotFound
		case errors.Is(err, presence.ErrRoomEnded):
			return ErrRoomEnded
		default:
			logrus.WithFields(logrus.Fields{
				"room_id": s.roomID,
				"user_id": s.participant.UserID,
			}).WithError(err).Error("Presence join failed")
			return ErrJoinFailed
		}
	}

	snap, err := domain.DecodeSnapshot(room.RoomState)
	if err != nil {
		_ = s.tracker.Leave(ctx, s.roomID, s.participant.UserID)
		return fmt.Errorf("roomsync: initial snapshot for room %s: %w", s.roomID, err)
	}

	s.mu.Lock()
	s.ctx = context.WithoutCancel(ctx)
	s.room = *room
	s.snap = snap
	s.lastPushedBlob = room.RoomState
	s.readOnly = !room.CanEdit(s.participant.UserID) || room.Expired(time.Now())
	if !room.ExpiresAt.IsZero() {
		if until := time.Until(room.ExpiresAt); until > 0 {
			s.expiryTimer = time.AfterFunc(until, s.onExpiry)
		}
	}
	s.mu.Unlock()

	unsubscribe, err := s.store.SubscribeDocument(ctx, store.RoomPath(s.roomID), s.handleRemote)
	if err != nil {
		_ = s.tracker.Leave(ctx, s.roomID, s.participant.UserID)
		return fmt.Errorf("roomsync: subscribe room %s: %w", s.roomID, err)
	}
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	s.onSnapshot(snap.Clone(), SourceRemote)
	return nil
}

// ApplyLocal runs the mutation against the local mirror and schedules an
// upstream push. The mutation always lands locally; while the session is
// read-only the push is suppressed, so viewers keep a responsive local
// board that simply never propagates.
func (s *Synchronizer) ApplyLocal(mutate func(*domain.Snapshot)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.snap == nil {
		s.mu.Unlock()
		return ErrClosed
	}
	mutate(s.snap)
	clone := s.snap.Clone()

	var pushBlob string
	if !s.readOnly {
		now := time.Now()
		if now.Sub(s.lastPush) >= s.pushInterval {
			blob, err := s.snap.Encode()
			if err != nil {
				s.mu.Unlock()
				return fmt.Errorf("roomsync: encode snapshot: %w", err)
			}
			if blob != s.lastPushedBlob {
				s.lastPushedBlob = blob
				s.lastPush = now
				pushBlob = blob
			}
		} else {
			s.dirty = true
			if s.flushTimer == nil {
				s.flushTimer = time.AfterFunc(s.pushInterval-now.Sub(s.lastPush), s.flush)
			}
		}
	}
	s.mu.Unlock()

	if pushBlob != "" {
		s.push(pushBlob)
	}
	s.onSnapshot(clone, SourceUser)
	return nil
}

// Snapshot returns a clone of the current local mirror.
func (s *Synchronizer) Snapshot() *domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return domain.NewSnapshot()
	}
	return s.snap.Clone()
}

// ReadOnly reports whether local edits currently propagate upstream.
func (s *Synchronizer) ReadOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readOnly
}

// Room returns the last observed room document.
func (s *Synchronizer) Room() domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Close detaches from the room: flushes a pending push if the session may
// still write, cancels the subscription and removes the presence record.
// Close is idempotent.
func (s *Synchronizer) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	if s.expiryTimer != nil {
		s.expiryTimer.Stop()
		s.expiryTimer = nil
	}
	var finalBlob string
	if s.dirty && !s.readOnly && s.snap != nil {
		if blob, err := s.snap.Encode(); err == nil && blob != s.lastPushedBlob {
			s.lastPushedBlob = blob
			finalBlob = blob
		}
	}
	s.dirty = false
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	started := s.started
	s.mu.Unlock()

	if finalBlob != "" {
		s.pushWith(ctx, finalBlob)
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	if started {
		if err := s.tracker.Leave(ctx, s.roomID, s.participant.UserID); err != nil {
			logrus.WithFields(logrus.Fields{
				"room_id": s.roomID,
				"user_id": s.participant.UserID,
			}).WithError(err).Warn("Failed to remove presence record on close")
		}
	}
	return nil
}

// handleRemote processes every change of the room document. Echoes of this
// session's own pushes are recognized by blob identity and dropped before
// they can loop back into another push.
func (s *Synchronizer) handleRemote(data []byte) {
	if data == nil {
		return
	}
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		logrus.WithField("room_id", s.roomID).WithError(err).Warn("Dropping malformed room update")
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	wasEnded := s.ended
	s.room = room
	if room.Ended() {
		s.ended = true
		s.readOnly = true
		if s.flushTimer != nil {
			s.flushTimer.Stop()
			s.flushTimer = nil
		}
		s.dirty = false
	} else {
		s.readOnly = !room.CanEdit(s.participant.UserID) || room.Expired(time.Now())
	}
	justEnded := s.ended && !wasEnded

	var emit *domain.Snapshot
	if room.RoomState != s.lastPushedBlob {
		snap, err := domain.DecodeSnapshot(room.RoomState)
		if err != nil {
			logrus.WithField("room_id", s.roomID).WithError(err).Warn("Dropping undecodable remote snapshot")
		} else {
			s.snap = snap
			s.lastPushedBlob = room.RoomState
			emit = snap.Clone()
		}
	}
	s.mu.Unlock()

	if emit != nil {
		s.onSnapshot(emit, SourceRemote)
	}
	if justEnded {
		s.onEnded()
	}
}

// flush is the trailing-edge push: it fires one interval after the first
// suppressed edit and writes whatever the mirror holds by then.
func (s *Synchronizer) flush() {
	s.mu.Lock()
	s.flushTimer = nil
	if s.closed || s.readOnly || !s.dirty || s.snap == nil {
		s.dirty = false
		s.mu.Unlock()
		return
	}
	s.dirty = false
	blob, err := s.snap.Encode()
	if err != nil {
		s.mu.Unlock()
		logrus.WithField("room_id", s.roomID).WithError(err).Error("Failed to encode snapshot for flush")
		return
	}
	if blob == s.lastPushedBlob {
		s.mu.Unlock()
		return
	}
	s.lastPushedBlob = blob
	s.lastPush = time.Now()
	s.mu.Unlock()

	s.push(blob)
}

func (s *Synchronizer) push(blob string) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	s.pushWith(ctx, blob)
}

// pushWith writes the blob upstream. On failure the mirror is marked dirty
// again so the next tick retries; the local state is never rolled back.
func (s *Synchronizer) pushWith(ctx context.Context, blob string) {
	err := s.store.UpdateDocument(ctx, store.RoomPath(s.roomID), map[string]interface{}{
		"roomState": blob,
	})
	if err == nil {
		return
	}
	logrus.WithFields(logrus.Fields{
		"room_id": s.roomID,
		"user_id": s.participant.UserID,
	}).WithError(err).Warn("Snapshot push failed, will retry")

	s.mu.Lock()
	if !s.closed && !s.readOnly {
		if s.lastPushedBlob == blob {
			s.lastPushedBlob = ""
		}
		s.dirty = true
		if s.flushTimer == nil {
			s.flushTimer = time.AfterFunc(s.pushInterval, s.flush)
		}
	}
	s.mu.Unlock()
}

// onExpiry freezes the session when the room's lifetime lapses. The owner
// session additionally flips the authoritative status so every other
// participant observes the end through the document subscription. A
// background job covers rooms whose owner session is gone.
func (s *Synchronizer) onExpiry() {
	s.mu.Lock()
	if s.closed || s.ended {
		s.mu.Unlock()
		return
	}
	s.readOnly = true
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	s.dirty = false
	isOwner := s.participant.UserID == s.room.OwnerID
	ctx := s.ctx
	s.mu.Unlock()

	if !isOwner {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.store.UpdateDocument(ctx, store.RoomPath(s.roomID), map[string]interface{}{
		"status": domain.RoomStatusEnded,
	})
	if err != nil {
		logrus.WithField("room_id", s.roomID).WithError(err).Warn("Failed to mark expired room ended")
	}
}

func (s *Synchronizer) loadRoom(ctx context.Context) (*domain.Room, error) {
	data, err := s.store.GetDocument(ctx, store.RoomPath(s.roomID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("roomsync: load room %s: %w", s.roomID, err)
	}
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("roomsync: decode room %s: %w", s.roomID, err)
	}
	return &room, nil
}
