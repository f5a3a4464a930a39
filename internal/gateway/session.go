package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/chat"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/roomsync"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/store"
)

// session is the server-side state behind one websocket connection: the
// participant's synchronizer, roster and chat subscriptions, and the
// handlers for incoming frames.
type session struct {
	roomID   string
	userID   string
	userName string

	gateway *Gateway
	ctx     context.Context

	sync         *roomsync.Synchronizer
	relay        *chat.Relay
	releaseRelay func()
	unsubRoster  func()
	unsubChat    func()

	mu          sync.Mutex
	client      *client
	pending     [][]byte
	chatReady   bool
	chatBacklog []domain.ChatMessage
	closed      bool
}

// start attaches the session to the room. Everything set up here is torn
// down by close, which the read pump invokes on disconnect.
func (s *session) start(ctx context.Context) error {
	s.ctx = context.WithoutCancel(ctx)

	s.sync = roomsync.New(s.gateway.store, s.gateway.tracker, s.roomID, domain.Participant{
		UserID:   s.userID,
		Name:     s.userName,
		PhotoURL: "",
	}, roomsync.Options{
		PushInterval: s.gateway.pushInterval,
		OnSnapshot:   s.onSnapshot,
		OnEnded:      s.onEnded,
	})
	if err := s.sync.Start(ctx); err != nil {
		return err
	}

	relay, release, err := s.gateway.relays.acquire(s.ctx, s.roomID)
	if err != nil {
		_ = s.sync.Close(ctx)
		return err
	}
	s.relay = relay
	s.releaseRelay = release

	unsubRoster, err := s.gateway.tracker.SubscribeRoster(s.ctx, s.roomID, s.onRoster)
	if err != nil {
		s.releaseRelay()
		_ = s.sync.Close(ctx)
		return err
	}
	s.unsubRoster = unsubRoster

	unsubChat, err := s.gateway.store.SubscribeCollection(s.ctx, store.ChatPath(s.roomID), s.onChatEvent)
	if err != nil {
		s.unsubRoster()
		s.releaseRelay()
		_ = s.sync.Close(ctx)
		return err
	}
	s.unsubChat = unsubChat

	// Replay recent chat so a reconnecting client has context. Messages
	// that arrive between the subscription and this replay are held in
	// chatBacklog; drain it afterwards, minus what the replay covered.
	history := relay.History()
	seen := make(map[string]bool, len(history))
	for _, msg := range history {
		seen[msg.ID] = true
		s.send(mustFrame(FrameChatMsg, msg))
	}
	s.mu.Lock()
	backlog := s.chatBacklog
	s.chatBacklog = nil
	s.chatReady = true
	s.mu.Unlock()
	for _, msg := range backlog {
		if !seen[msg.ID] {
			s.send(mustFrame(FrameChatMsg, msg))
		}
	}
	return nil
}

func (s *session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cl := s.client
	s.mu.Unlock()

	if s.unsubChat != nil {
		s.unsubChat()
	}
	if s.unsubRoster != nil {
		s.unsubRoster()
	}
	if s.releaseRelay != nil {
		s.releaseRelay()
	}
	if s.sync != nil {
		if err := s.sync.Close(s.ctx); err != nil {
			logrus.WithFields(logrus.Fields{
				"room_id": s.roomID,
				"user_id": s.userID,
			}).WithError(err).Warn("Failed to close synchronizer")
		}
	}
	if cl != nil {
		close(cl.send)
	}
	logrus.WithFields(logrus.Fields{
		"room_id": s.roomID,
		"user_id": s.userID,
	}).Info("Session closed")
}

// attach hands the session its client and flushes frames emitted during
// setup, before the connection existed.
func (s *session) attach(cl *client) {
	s.mu.Lock()
	s.client = cl
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, frame := range pending {
		cl.enqueue(frame)
	}
}

func (s *session) send(frame []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	cl := s.client
	if cl == nil {
		s.pending = append(s.pending, frame)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	cl.enqueue(frame)
}

func (s *session) heartbeat() {
	if err := s.gateway.tracker.Heartbeat(s.ctx, s.roomID, s.userID); err != nil {
		logrus.WithFields(logrus.Fields{
			"room_id": s.roomID,
			"user_id": s.userID,
		}).WithError(err).Debug("Heartbeat failed")
	}
}

// handleFrame dispatches one client frame. Malformed frames earn an error
// frame back, never a disconnect.
func (s *session) handleFrame(raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.send(mustFrame(FrameError, errorPayload{Message: "malformed frame"}))
		return
	}

	switch frame.Type {
	case FrameEdit:
		s.handleEdit(frame.Payload)
	case FrameChat:
		s.handleChat(frame.Payload)
	case FrameHandRaise:
		s.handleHandRaise(frame.Payload)
	case FrameHeartbeat:
		s.heartbeat()
	default:
		s.send(mustFrame(FrameError, errorPayload{Message: "unknown frame type: " + frame.Type}))
	}
}

func (s *session) handleEdit(payload json.RawMessage) {
	var edit editPayload
	if err := json.Unmarshal(payload, &edit); err != nil {
		s.send(mustFrame(FrameError, errorPayload{Message: "malformed edit payload"}))
		return
	}

	var mutate func(*domain.Snapshot)
	switch edit.Action {
	case EditPut:
		if edit.Element == nil || edit.Element.ID == "" {
			s.send(mustFrame(FrameError, errorPayload{Message: "edit put requires an element with an id"}))
			return
		}
		el := *edit.Element
		mutate = func(snap *domain.Snapshot) { snap.Put(el) }
	case EditDelete:
		if edit.ElementID == "" {
			s.send(mustFrame(FrameError, errorPayload{Message: "edit delete requires elementId"}))
			return
		}
		id := edit.ElementID
		mutate = func(snap *domain.Snapshot) { snap.Delete(id) }
	default:
		s.send(mustFrame(FrameError, errorPayload{Message: "unknown edit action: " + edit.Action}))
		return
	}

	if err := s.sync.ApplyLocal(mutate); err != nil {
		if !errors.Is(err, roomsync.ErrClosed) {
			logrus.WithFields(logrus.Fields{
				"room_id": s.roomID,
				"user_id": s.userID,
			}).WithError(err).Warn("Edit failed")
		}
		s.send(mustFrame(FrameError, errorPayload{Message: "edit failed"}))
	}
}

func (s *session) handleChat(payload json.RawMessage) {
	var msg chatPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.send(mustFrame(FrameError, errorPayload{Message: "malformed chat payload"}))
		return
	}
	if _, err := s.relay.SendMessage(s.ctx, s.userID, s.userName, msg.Content); err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			s.send(mustFrame(FrameError, errorPayload{Message: "chat message is empty"}))
			return
		}
		logrus.WithFields(logrus.Fields{
			"room_id": s.roomID,
			"user_id": s.userID,
		}).WithError(err).Warn("Chat send failed")
		s.send(mustFrame(FrameError, errorPayload{Message: "chat send failed"}))
	}
}

func (s *session) handleHandRaise(payload json.RawMessage) {
	var hr handRaisePayload
	if err := json.Unmarshal(payload, &hr); err != nil {
		s.send(mustFrame(FrameError, errorPayload{Message: "malformed hand_raise payload"}))
		return
	}
	if err := s.gateway.tracker.ToggleHandRaise(s.ctx, s.roomID, s.userID, hr.Raised); err != nil {
		logrus.WithFields(logrus.Fields{
			"room_id": s.roomID,
			"user_id": s.userID,
		}).WithError(err).Warn("Hand raise toggle failed")
	}
}

func (s *session) onSnapshot(snap *domain.Snapshot, src roomsync.Source) {
	s.send(mustFrame(FrameSnapshot, snapshotPayload{
		Snapshot: snap,
		Source:   string(src),
		ReadOnly: s.sync.ReadOnly(),
	}))
}

func (s *session) onRoster(roster []domain.Participant) {
	s.send(mustFrame(FrameRoster, rosterPayload{Participants: roster}))
}

func (s *session) onChatEvent(ev store.ChildEvent) {
	if ev.Type != store.ChildAdded {
		return
	}
	var msg domain.ChatMessage
	if err := json.Unmarshal(ev.Data, &msg); err != nil {
		return
	}
	s.mu.Lock()
	if !s.chatReady {
		s.chatBacklog = append(s.chatBacklog, msg)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.send(mustFrame(FrameChatMsg, msg))
}

func (s *session) onEnded() {
	s.send(mustFrame(FrameEnded, struct{}{}))
}
