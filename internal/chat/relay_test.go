package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/store/memory"
)

// stubResponder records calls and returns a canned answer.
type stubResponder struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	reply   string
	err     error
}

func (s *stubResponder) Reply(_ context.Context, prompt string, _ []domain.ChatMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

func (s *stubResponder) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func buddyMessages(history []domain.ChatMessage) []domain.ChatMessage {
	var out []domain.ChatMessage
	for _, msg := range history {
		if msg.UserID == BuddyUserID {
			out = append(out, msg)
		}
	}
	return out
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	st := memory.New()
	relay := NewRelay(st, "room-1", nil)

	_, err := relay.SendMessage(context.Background(), "user-a", "Ada", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSendMessageAssignsIDAndTimestamp(t *testing.T) {
	st := memory.New()
	relay := NewRelay(st, "room-1", nil)

	msg, err := relay.SendMessage(context.Background(), "user-a", "Ada", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "hello", msg.Content)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestObserveKeepsOrderedHistory(t *testing.T) {
	st := memory.New()
	relay := NewRelay(st, "room-1", nil)

	unsubscribe, err := relay.Observe(context.Background())
	require.NoError(t, err)
	defer unsubscribe()

	for i := 1; i <= 3; i++ {
		_, err := relay.SendMessage(context.Background(), "user-a", "Ada", fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	history := relay.History()
	require.Len(t, history, 3)
	assert.Equal(t, "msg 1", history[0].Content)
	assert.Equal(t, "msg 3", history[2].Content)
}

func TestHistoryIsBounded(t *testing.T) {
	st := memory.New()
	relay := NewRelay(st, "room-1", nil)

	unsubscribe, err := relay.Observe(context.Background())
	require.NoError(t, err)
	defer unsubscribe()

	for i := 0; i < defaultHistoryLimit+5; i++ {
		_, err := relay.SendMessage(context.Background(), "user-a", "Ada", fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	history := relay.History()
	assert.Len(t, history, defaultHistoryLimit)
	assert.Equal(t, "msg 5", history[0].Content)
}

func TestMentionTriggersExactlyOneReply(t *testing.T) {
	st := memory.New()
	responder := &stubResponder{reply: "x equals 4"}
	relay := NewRelay(st, "room-1", responder)

	unsubscribe, err := relay.Observe(context.Background())
	require.NoError(t, err)
	defer unsubscribe()

	_, err = relay.SendMessage(context.Background(), "user-a", "Ada", "@buddy solve 2x = 8")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(buddyMessages(relay.History())) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, responder.Calls())
	buddy := buddyMessages(relay.History())[0]
	assert.Equal(t, BuddyName, buddy.UserName)
	assert.Equal(t, "x equals 4", buddy.Content)
}

func TestPlainMessageDoesNotTrigger(t *testing.T) {
	st := memory.New()
	responder := &stubResponder{reply: "unused"}
	relay := NewRelay(st, "room-1", responder)

	unsubscribe, err := relay.Observe(context.Background())
	require.NoError(t, err)
	defer unsubscribe()

	_, err = relay.SendMessage(context.Background(), "user-a", "Ada", "anyone got the notes?")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, responder.Calls())
	assert.Empty(t, buddyMessages(relay.History()))
}

func TestPreexistingMentionDoesNotTrigger(t *testing.T) {
	st := memory.New()
	seeder := NewRelay(st, "room-1", nil)
	_, err := seeder.SendMessage(context.Background(), "user-a", "Ada", "@buddy what is pi?")
	require.NoError(t, err)

	responder := &stubResponder{reply: "unused"}
	relay := NewRelay(st, "room-1", responder)
	unsubscribe, err := relay.Observe(context.Background())
	require.NoError(t, err)
	defer unsubscribe()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, responder.Calls())
	require.Len(t, relay.History(), 1)
}

func TestAssistantReplyDoesNotRetrigger(t *testing.T) {
	st := memory.New()
	responder := &stubResponder{reply: "mention me with @buddy any time"}
	relay := NewRelay(st, "room-1", responder)

	unsubscribe, err := relay.Observe(context.Background())
	require.NoError(t, err)
	defer unsubscribe()

	_, err = relay.SendMessage(context.Background(), "user-a", "Ada", "@buddy hello")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(buddyMessages(relay.History())) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The reply itself contains the mention token; it must not loop.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, responder.Calls())
	assert.Len(t, buddyMessages(relay.History()), 1)
}

func TestResponderFailurePostsFallback(t *testing.T) {
	st := memory.New()
	responder := &stubResponder{err: errors.New("model overloaded")}
	relay := NewRelay(st, "room-1", responder)

	unsubscribe, err := relay.Observe(context.Background())
	require.NoError(t, err)
	defer unsubscribe()

	_, err = relay.SendMessage(context.Background(), "user-a", "Ada", "@buddy help")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msgs := buddyMessages(relay.History())
		return len(msgs) == 1 && msgs[0].Content == fallbackReply
	}, 2*time.Second, 10*time.Millisecond)
}
