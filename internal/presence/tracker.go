// Package presence maintains per-room participant records: one document per
// connected user, owned and written exclusively by that user's session.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/store"
)

var (
	ErrRoomNotFound = errors.New("presence: room not found")
	ErrRoomEnded    = errors.New("presence: room has ended")
	ErrNotJoined    = errors.New("presence: participant not joined")
)

// RosterFunc receives the full participant roster, sorted by join time,
// every time it changes.
type RosterFunc func(roster []domain.Participant)

// Tracker manages participant records in the shared document store.
type Tracker struct {
	store store.Store
}

func NewTracker(st store.Store) *Tracker {
	if st == nil {
		panic("store cannot be nil for Tracker")
	}
	return &Tracker{store: st}
}

// Join verifies the room is live, then writes the participant record. No
// record is created when the check fails, so a rejected join leaves no
// ghost entry to sweep.
func (t *Tracker) Join(ctx context.Context, roomID string, p domain.Participant) error {
	room, err := t.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Ended() {
		return ErrRoomEnded
	}

	now := time.Now().UTC()
	p.JoinedAt = now
	p.HeartbeatAt = now
	if err := t.store.SetDocument(ctx, store.ParticipantPath(roomID, p.UserID), p); err != nil {
		return fmt.Errorf("presence: join room %s: %w", roomID, err)
	}
	logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": p.UserID,
	}).Info("Participant joined room")
	return nil
}

// Leave removes the participant record. Missing records are fine: the
// sweep worker or a crashed prior session may already have removed it.
func (t *Tracker) Leave(ctx context.Context, roomID, userID string) error {
	if err := t.store.DeleteDocument(ctx, store.ParticipantPath(roomID, userID)); err != nil {
		return fmt.Errorf("presence: leave room %s: %w", roomID, err)
	}
	logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": userID,
	}).Info("Participant left room")
	return nil
}

// Heartbeat refreshes the participant's liveness timestamp. The sweep
// worker reaps records whose heartbeat has gone stale, which covers
// sessions that died without calling Leave.
func (t *Tracker) Heartbeat(ctx context.Context, roomID, userID string) error {
	err := t.store.UpdateDocument(ctx, store.ParticipantPath(roomID, userID), map[string]interface{}{
		"heartbeatAt": time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotJoined
		}
		return fmt.Errorf("presence: heartbeat room %s: %w", roomID, err)
	}
	return nil
}

// ToggleHandRaise sets the participant's hand state. Once the room has
// ended the toggle is silently dropped; the roster is frozen at that point.
func (t *Tracker) ToggleHandRaise(ctx context.Context, roomID, userID string, raised bool) error {
	room, err := t.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Ended() {
		return nil
	}

	err = t.store.UpdateDocument(ctx, store.ParticipantPath(roomID, userID), map[string]interface{}{
		"handRaised": raised,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotJoined
		}
		return fmt.Errorf("presence: toggle hand raise room %s: %w", roomID, err)
	}
	return nil
}

// SubscribeRoster emits the current roster immediately, then a fresh full
// roster on every participant change. Each emission replaces the previous
// one entirely; consumers never merge.
func (t *Tracker) SubscribeRoster(ctx context.Context, roomID string, fn RosterFunc) (func(), error) {
	children, err := t.store.ListCollection(ctx, store.PresencePath(roomID))
	if err != nil {
		return nil, fmt.Errorf("presence: list roster for room %s: %w", roomID, err)
	}

	var mu sync.Mutex
	roster := make(map[string]domain.Participant, len(children))
	for id, data := range children {
		var p domain.Participant
		if err := json.Unmarshal(data, &p); err != nil {
			logrus.WithFields(logrus.Fields{
				"room_id": roomID,
				"user_id": id,
			}).WithError(err).Warn("Skipping malformed participant record")
			continue
		}
		roster[id] = p
	}

	// mu serializes roster mutation and delivery together, so emissions
	// reach fn in the order the roster states were produced. fn must not
	// synchronously write presence records for the same room.
	unsubscribe, err := t.store.SubscribeCollection(ctx, store.PresencePath(roomID), func(ev store.ChildEvent) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Type {
		case store.ChildRemoved:
			delete(roster, ev.ID)
		default:
			var p domain.Participant
			if err := json.Unmarshal(ev.Data, &p); err != nil {
				logrus.WithFields(logrus.Fields{
					"room_id": roomID,
					"user_id": ev.ID,
				}).WithError(err).Warn("Skipping malformed participant update")
				return
			}
			roster[ev.ID] = p
		}
		fn(sortedRoster(roster))
	})
	if err != nil {
		return nil, fmt.Errorf("presence: subscribe roster for room %s: %w", roomID, err)
	}

	mu.Lock()
	fn(sortedRoster(roster))
	mu.Unlock()

	return unsubscribe, nil
}

// SweepStale removes participant records whose heartbeat is older than the
// cutoff and returns the reaped user ids. Called from the background sweep
// worker, never from the request path.
func (t *Tracker) SweepStale(ctx context.Context, roomID string, cutoff time.Time) ([]string, error) {
	children, err := t.store.ListCollection(ctx, store.PresencePath(roomID))
	if err != nil {
		return nil, fmt.Errorf("presence: list roster for sweep of room %s: %w", roomID, err)
	}

	var reaped []string
	for id, data := range children {
		var p domain.Participant
		if err := json.Unmarshal(data, &p); err != nil {
			logrus.WithFields(logrus.Fields{
				"room_id": roomID,
				"user_id": id,
			}).WithError(err).Warn("Reaping malformed participant record")
			_ = t.store.DeleteDocument(ctx, store.ParticipantPath(roomID, id))
			reaped = append(reaped, id)
			continue
		}
		if p.HeartbeatAt.Before(cutoff) {
			if err := t.store.DeleteDocument(ctx, store.ParticipantPath(roomID, id)); err != nil {
				logrus.WithFields(logrus.Fields{
					"room_id": roomID,
					"user_id": id,
				}).WithError(err).Warn("Failed to reap stale participant")
				continue
			}
			reaped = append(reaped, id)
		}
	}
	return reaped, nil
}

func (t *Tracker) loadRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	data, err := t.store.GetDocument(ctx, store.RoomPath(roomID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("presence: load room %s: %w", roomID, err)
	}
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("presence: decode room %s: %w", roomID, err)
	}
	return &room, nil
}

func sortedRoster(roster map[string]domain.Participant) []domain.Participant {
	out := make([]domain.Participant, 0, len(roster))
	for _, p := range roster {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}
