package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/presence"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/repository"
)

// DefaultStaleAfter is how long a participant heartbeat may lag before the
// record counts as abandoned. It must comfortably exceed the client
// heartbeat period so a single missed beat never reaps a live session.
const DefaultStaleAfter = 90 * time.Second

// PresenceSweepHandler reaps participant records left behind by sessions
// that died without leaving, across every active room.
type PresenceSweepHandler struct {
	tracker     *presence.Tracker
	archiveRepo repository.RoomArchiveRepository
	staleAfter  time.Duration
}

func NewPresenceSweepHandler(tracker *presence.Tracker, archiveRepo repository.RoomArchiveRepository, staleAfter time.Duration) *PresenceSweepHandler {
	if tracker == nil {
		panic("presence tracker cannot be nil for PresenceSweepHandler")
	}
	if archiveRepo == nil {
		panic("archive repository cannot be nil for PresenceSweepHandler")
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &PresenceSweepHandler{tracker: tracker, archiveRepo: archiveRepo, staleAfter: staleAfter}
}

func (h *PresenceSweepHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	roomIDs, err := h.archiveRepo.ListActiveRoomIDs(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-h.staleAfter)
	total := 0
	for _, roomID := range roomIDs {
		reaped, err := h.tracker.SweepStale(ctx, roomID, cutoff)
		if err != nil {
			logrus.WithField("room_id", roomID).WithError(err).Warn("Presence sweep failed for room")
			continue
		}
		total += len(reaped)
	}
	if total > 0 {
		logrus.WithFields(logrus.Fields{
			"rooms":  len(roomIDs),
			"reaped": total,
		}).Info("Presence sweep reaped stale participants")
	}
	return nil
}
