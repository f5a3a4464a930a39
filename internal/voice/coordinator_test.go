package voice

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/store"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/store/memory"
)

// silentSource blocks until closed and never yields a sample.
type silentSource struct {
	done chan struct{}
}

func newSilentSource() *silentSource {
	return &silentSource{done: make(chan struct{})}
}

func (s *silentSource) NextSample() (media.Sample, error) {
	<-s.done
	return media.Sample{}, io.EOF
}

func (s *silentSource) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return nil
}

func roster(ids ...string) []domain.Participant {
	out := make([]domain.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Participant{UserID: id})
	}
	return out
}

func TestJoinVoiceWithoutCapture(t *testing.T) {
	st := memory.New()
	c := NewCoordinator(st, "room-1", "user-a", Options{})

	err := c.JoinVoice(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMediaUnavailable)
}

func TestJoinVoiceTwice(t *testing.T) {
	st := memory.New()
	c := NewCoordinator(st, "room-1", "user-a", Options{})
	src := newSilentSource()
	defer src.Close()

	require.NoError(t, c.JoinVoice(context.Background(), src))
	err := c.JoinVoice(context.Background(), newSilentSource())
	assert.ErrorIs(t, err, ErrAlreadyJoined)
	require.NoError(t, c.LeaveVoice(context.Background()))
}

func TestSmallerIDSendsOffer(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	a := NewCoordinator(st, "room-1", "user-a", Options{})
	b := NewCoordinator(st, "room-1", "user-b", Options{})
	srcA, srcB := newSilentSource(), newSilentSource()
	require.NoError(t, a.JoinVoice(ctx, srcA))
	require.NoError(t, b.JoinVoice(ctx, srcB))
	defer a.LeaveVoice(ctx)
	defer b.LeaveVoice(ctx)

	full := roster("user-a", "user-b")
	a.SyncRoster(full)
	b.SyncRoster(full)

	// user-a sorts first, so it must be the one publishing the offer.
	require.Eventually(t, func() bool {
		data, err := st.GetDocument(ctx, store.SignalPath("room-1", "user-a", "user-b"))
		if err != nil {
			return false
		}
		var msg signalMessage
		return json.Unmarshal(data, &msg) == nil && msg.Type == "offer"
	}, 5*time.Second, 20*time.Millisecond)

	// user-b answers into its own direction of the pair.
	require.Eventually(t, func() bool {
		data, err := st.GetDocument(ctx, store.SignalPath("room-1", "user-b", "user-a"))
		if err != nil {
			return false
		}
		var msg signalMessage
		return json.Unmarshal(data, &msg) == nil && msg.Type == "answer"
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, []string{"user-b"}, a.LinkedPeers())
	assert.Equal(t, []string{"user-a"}, b.LinkedPeers())
}

func TestSyncRosterIsIdempotent(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	a := NewCoordinator(st, "room-1", "user-a", Options{})
	src := newSilentSource()
	require.NoError(t, a.JoinVoice(ctx, src))
	defer a.LeaveVoice(ctx)

	full := roster("user-a", "user-b")
	a.SyncRoster(full)
	a.SyncRoster(full)
	a.SyncRoster(full)

	assert.Equal(t, []string{"user-b"}, a.LinkedPeers())
}

func TestDepartedPeerTearsDownLink(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	a := NewCoordinator(st, "room-1", "user-a", Options{})
	src := newSilentSource()
	require.NoError(t, a.JoinVoice(ctx, src))
	defer a.LeaveVoice(ctx)

	a.SyncRoster(roster("user-a", "user-b"))
	require.Eventually(t, func() bool {
		_, err := st.GetDocument(ctx, store.SignalPath("room-1", "user-a", "user-b"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	a.SyncRoster(roster("user-a"))

	assert.Empty(t, a.LinkedPeers())
	_, err := st.GetDocument(ctx, store.SignalPath("room-1", "user-a", "user-b"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestThreePartyMeshConvergence(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	a := NewCoordinator(st, "room-1", "user-a", Options{})
	b := NewCoordinator(st, "room-1", "user-b", Options{})
	c := NewCoordinator(st, "room-1", "user-c", Options{})
	require.NoError(t, a.JoinVoice(ctx, newSilentSource()))
	require.NoError(t, b.JoinVoice(ctx, newSilentSource()))
	require.NoError(t, c.JoinVoice(ctx, newSilentSource()))
	defer a.LeaveVoice(ctx)
	defer c.LeaveVoice(ctx)

	full := roster("user-a", "user-b", "user-c")
	a.SyncRoster(full)
	b.SyncRoster(full)
	c.SyncRoster(full)

	// Full mesh: every participant links to the other two.
	require.Eventually(t, func() bool {
		return len(a.LinkedPeers()) == 2 && len(b.LinkedPeers()) == 2 && len(c.LinkedPeers()) == 2
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, b.LeaveVoice(ctx))
	rest := roster("user-a", "user-c")
	a.SyncRoster(rest)
	c.SyncRoster(rest)

	assert.Equal(t, []string{"user-c"}, a.LinkedPeers())
	assert.Equal(t, []string{"user-a"}, c.LinkedPeers())
}

func TestFailedLinkClearsStaleSignaling(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	a := NewCoordinator(st, "room-1", "user-a", Options{})
	require.NoError(t, a.JoinVoice(ctx, newSilentSource()))
	defer a.LeaveVoice(ctx)

	a.SyncRoster(roster("user-a", "user-b"))
	require.Eventually(t, func() bool {
		_, err := st.GetDocument(ctx, store.SignalPath("room-1", "user-a", "user-b"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	a.handleLinkFailure("user-b")

	// The failed attempt's offer is gone right away, so the counterpart's
	// rebuilt link cannot replay it.
	_, err := st.GetDocument(ctx, store.SignalPath("room-1", "user-a", "user-b"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	// After the backoff the rebuilt link publishes a fresh offer.
	require.Eventually(t, func() bool {
		_, err := st.GetDocument(ctx, store.SignalPath("room-1", "user-a", "user-b"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"user-b"}, a.LinkedPeers())
}

func TestLeaveVoiceCleansSignalingState(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	a := NewCoordinator(st, "room-1", "user-a", Options{})
	src := newSilentSource()
	require.NoError(t, a.JoinVoice(ctx, src))
	a.SyncRoster(roster("user-a", "user-b"))
	require.Eventually(t, func() bool {
		_, err := st.GetDocument(ctx, store.SignalPath("room-1", "user-a", "user-b"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, a.LeaveVoice(ctx))
	require.NoError(t, a.LeaveVoice(ctx))

	assert.Empty(t, a.LinkedPeers())
	_, err := st.GetDocument(ctx, store.SignalPath("room-1", "user-a", "user-b"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	cands, err := st.ListCollection(ctx, store.CandidatePath("room-1", "user-a", "user-b"))
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestToggleMute(t *testing.T) {
	st := memory.New()
	c := NewCoordinator(st, "room-1", "user-a", Options{})
	src := newSilentSource()
	require.NoError(t, c.JoinVoice(context.Background(), src))
	defer c.LeaveVoice(context.Background())

	assert.False(t, c.Muted())
	c.ToggleMute(true)
	assert.True(t, c.Muted())
	c.ToggleMute(false)
	assert.False(t, c.Muted())
}

func TestSyncRosterBeforeJoinIsNoop(t *testing.T) {
	st := memory.New()
	c := NewCoordinator(st, "room-1", "user-a", Options{})

	c.SyncRoster(roster("user-a", "user-b"))
	assert.Empty(t, c.LinkedPeers())
}
