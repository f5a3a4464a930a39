package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/presence"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/repository/mocks"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/service"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/store"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/store/memory"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/tasks"
)

func TestPresenceSweepReapsAcrossRooms(t *testing.T) {
	st := memory.New()
	tracker := presence.NewTracker(st)
	archive := new(mocks.MockRoomArchiveRepository)
	archive.On("ListActiveRoomIDs", mock.Anything).Return([]string{"room-1"}, nil)

	room := domain.Room{ID: "room-1", OwnerID: "owner-1", Status: domain.RoomStatusActive}
	require.NoError(t, st.SetDocument(context.Background(), store.RoomPath("room-1"), room))

	stale := domain.Participant{UserID: "ghost", HeartbeatAt: time.Now().Add(-10 * time.Minute)}
	require.NoError(t, st.SetDocument(context.Background(), store.ParticipantPath("room-1", "ghost"), stale))
	require.NoError(t, tracker.Join(context.Background(), "room-1", domain.Participant{UserID: "live"}))

	handler := NewPresenceSweepHandler(tracker, archive, DefaultStaleAfter)
	require.NoError(t, handler.ProcessTask(context.Background(), tasks.NewPresenceSweepTask()))

	_, err := st.GetDocument(context.Background(), store.ParticipantPath("room-1", "ghost"))
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.GetDocument(context.Background(), store.ParticipantPath("room-1", "live"))
	assert.NoError(t, err)
}

func TestRoomExpiryEndsLapsedRooms(t *testing.T) {
	st := memory.New()
	archive := new(mocks.MockRoomArchiveRepository)
	archive.On("FindExpiredActive", mock.Anything, mock.Anything).
		Return([]domain.RoomRecord{{RoomID: "room-1"}}, nil)
	archive.On("MarkEnded", mock.Anything, "room-1", mock.Anything).Return(nil)

	room := domain.Room{
		ID:        "room-1",
		OwnerID:   "owner-1",
		Status:    domain.RoomStatusActive,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, st.SetDocument(context.Background(), store.RoomPath("room-1"), room))

	svc := service.NewRoomService(st, archive, nil)
	handler := NewRoomExpiryHandler(svc, archive)
	require.NoError(t, handler.ProcessTask(context.Background(), tasks.NewRoomExpiryTask()))

	ended, err := svc.FindRoomByID(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusEnded, ended.Status)
	archive.AssertExpectations(t)
}

func TestSnapshotArchiveStoresFinalState(t *testing.T) {
	st := memory.New()
	snap := domain.NewSnapshot()
	snap.Put(domain.Element{Kind: domain.ElementNote, ID: "n1", Text: "summary"})
	blob, err := snap.Encode()
	require.NoError(t, err)

	room := domain.Room{ID: "room-1", Status: domain.RoomStatusEnded, RoomState: blob}
	require.NoError(t, st.SetDocument(context.Background(), store.RoomPath("room-1"), room))

	snapshots := new(mocks.MockSnapshotArchiveRepository)
	snapshots.On("SaveSnapshot", mock.Anything, mock.MatchedBy(func(r *domain.SnapshotRecord) bool {
		return r.RoomID == "room-1" && r.Data == blob
	})).Return(nil)

	handler := NewSnapshotArchiveHandler(st, snapshots)
	task, err := tasks.NewSnapshotArchiveTask("room-1")
	require.NoError(t, err)
	require.NoError(t, handler.ProcessTask(context.Background(), task))
	snapshots.AssertExpectations(t)
}

func TestSnapshotArchiveSkipsEmptyBoard(t *testing.T) {
	st := memory.New()
	room := domain.Room{ID: "room-1", Status: domain.RoomStatusEnded}
	require.NoError(t, st.SetDocument(context.Background(), store.RoomPath("room-1"), room))

	snapshots := new(mocks.MockSnapshotArchiveRepository)
	handler := NewSnapshotArchiveHandler(st, snapshots)

	task, err := tasks.NewSnapshotArchiveTask("room-1")
	require.NoError(t, err)
	require.NoError(t, handler.ProcessTask(context.Background(), task))
	snapshots.AssertNotCalled(t, "SaveSnapshot", mock.Anything, mock.Anything)
}

func TestSnapshotArchiveMissingRoomIsNotAnError(t *testing.T) {
	st := memory.New()
	snapshots := new(mocks.MockSnapshotArchiveRepository)
	handler := NewSnapshotArchiveHandler(st, snapshots)

	task, err := tasks.NewSnapshotArchiveTask("gone")
	require.NoError(t, err)
	assert.NoError(t, handler.ProcessTask(context.Background(), task))
}
