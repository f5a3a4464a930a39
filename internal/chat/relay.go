// Package chat relays room chat messages through the shared document store
// and drives the study buddy: an assistant participant that answers when a
// message mentions it.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/store"
)

const (
	// BuddyUserID is the reserved author id for assistant messages. No
	// human session may claim it.
	BuddyUserID = "study-buddy"
	BuddyName   = "Study Buddy"

	// MentionToken triggers an assistant reply when present in a message.
	MentionToken = "@buddy"

	defaultHistoryLimit = 20

	fallbackReply = "Sorry, I couldn't come up with an answer right now. Try asking again in a moment."
)

var ErrEmptyMessage = errors.New("chat: message content is empty")

// Responder produces the assistant's answer to a triggering message given
// the recent conversation. Implementations call out to an external model.
type Responder interface {
	Reply(ctx context.Context, prompt string, history []domain.ChatMessage) (string, error)
}

// Relay is one room's chat pipeline. Exactly one observing relay per room
// should run per deployment, otherwise the assistant answers every trigger
// once per observer.
type Relay struct {
	store        store.Store
	roomID       string
	responder    Responder
	historyLimit int

	mu        sync.Mutex
	history   []domain.ChatMessage
	processed map[string]bool
}

// NewRelay builds a relay for the room. A nil responder disables assistant
// replies; messages still flow.
func NewRelay(st store.Store, roomID string, responder Responder) *Relay {
	if st == nil {
		panic("store cannot be nil for Relay")
	}
	return &Relay{
		store:        st,
		roomID:       roomID,
		responder:    responder,
		historyLimit: defaultHistoryLimit,
		processed:    make(map[string]bool),
	}
}

// SendMessage validates and persists a chat message, returning the stored
// form with its generated id and timestamp.
func (r *Relay) SendMessage(ctx context.Context, userID, userName, content string) (domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.ChatMessage{}, ErrEmptyMessage
	}

	msg := domain.ChatMessage{
		ID:        uuid.NewString(),
		UserID:    userID,
		UserName:  userName,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	if err := r.store.SetDocument(ctx, store.ChatMessagePath(r.roomID, msg.ID), msg); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("chat: send message in room %s: %w", r.roomID, err)
	}
	return msg, nil
}

// Observe loads existing history and starts watching for new messages.
// Messages already present at observation time never trigger the
// assistant; only messages arriving afterwards do, each at most once.
func (r *Relay) Observe(ctx context.Context) (func(), error) {
	children, err := r.store.ListCollection(ctx, store.ChatPath(r.roomID))
	if err != nil {
		return nil, fmt.Errorf("chat: load history for room %s: %w", r.roomID, err)
	}

	var seed []domain.ChatMessage
	r.mu.Lock()
	for id, data := range children {
		var msg domain.ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logrus.WithFields(logrus.Fields{
				"room_id":    r.roomID,
				"message_id": id,
			}).WithError(err).Warn("Skipping malformed chat message")
			continue
		}
		r.processed[id] = true
		seed = append(seed, msg)
	}
	sort.Slice(seed, func(i, j int) bool { return seed[i].Timestamp.Before(seed[j].Timestamp) })
	r.history = seed
	r.trimHistoryLocked()
	r.mu.Unlock()

	callCtx := context.WithoutCancel(ctx)
	unsubscribe, err := r.store.SubscribeCollection(ctx, store.ChatPath(r.roomID), func(ev store.ChildEvent) {
		if ev.Type != store.ChildAdded {
			return
		}
		r.handleIncoming(callCtx, ev)
	})
	if err != nil {
		return nil, fmt.Errorf("chat: subscribe room %s: %w", r.roomID, err)
	}
	return unsubscribe, nil
}

// History returns the retained recent messages, oldest first.
func (r *Relay) History() []domain.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ChatMessage, len(r.history))
	copy(out, r.history)
	return out
}

func (r *Relay) handleIncoming(ctx context.Context, ev store.ChildEvent) {
	var msg domain.ChatMessage
	if err := json.Unmarshal(ev.Data, &msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"room_id":    r.roomID,
			"message_id": ev.ID,
		}).WithError(err).Warn("Dropping malformed chat message")
		return
	}

	r.mu.Lock()
	if r.processed[ev.ID] {
		r.mu.Unlock()
		return
	}
	// Marked before any reply work, so a redelivered event cannot cause
	// a second assistant answer.
	r.processed[ev.ID] = true
	r.history = append(r.history, msg)
	r.trimHistoryLocked()
	var history []domain.ChatMessage
	trigger := r.responder != nil &&
		msg.UserID != BuddyUserID &&
		strings.Contains(strings.ToLower(msg.Content), MentionToken)
	if trigger {
		history = make([]domain.ChatMessage, len(r.history))
		copy(history, r.history)
	}
	r.mu.Unlock()

	if trigger {
		go r.respond(ctx, msg, history)
	}
}

func (r *Relay) respond(ctx context.Context, msg domain.ChatMessage, history []domain.ChatMessage) {
	reply, err := r.responder.Reply(ctx, msg.Content, history)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"room_id":    r.roomID,
			"message_id": msg.ID,
		}).WithError(err).Error("Assistant reply failed")
		reply = fallbackReply
	}
	if strings.TrimSpace(reply) == "" {
		return
	}
	if _, err := r.SendMessage(ctx, BuddyUserID, BuddyName, reply); err != nil {
		logrus.WithField("room_id", r.roomID).WithError(err).Error("Failed to post assistant reply")
	}
}

// trimHistoryLocked drops the oldest messages beyond the retention limit.
// Must be called with the lock held.
func (r *Relay) trimHistoryLocked() {
	if extra := len(r.history) - r.historyLimit; extra > 0 {
		r.history = append([]domain.ChatMessage(nil), r.history[extra:]...)
	}
}
