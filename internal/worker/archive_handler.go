package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/repository"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/store"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/tasks"
)

// SnapshotArchiveHandler copies a room's final whiteboard state from the
// realtime store into durable storage once the room has ended.
type SnapshotArchiveHandler struct {
	store        store.Store
	snapshotRepo repository.SnapshotArchiveRepository
}

func NewSnapshotArchiveHandler(st store.Store, snapshotRepo repository.SnapshotArchiveRepository) *SnapshotArchiveHandler {
	if st == nil {
		panic("store cannot be nil for SnapshotArchiveHandler")
	}
	if snapshotRepo == nil {
		panic("snapshot repository cannot be nil for SnapshotArchiveHandler")
	}
	return &SnapshotArchiveHandler{store: st, snapshotRepo: snapshotRepo}
}

func (h *SnapshotArchiveHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload tasks.SnapshotArchivePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("worker: decode snapshot archive payload: %v: %w", err, asynq.SkipRetry)
	}

	data, err := h.store.GetDocument(ctx, store.RoomPath(payload.RoomID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logrus.WithField("room_id", payload.RoomID).Warn("Live room document gone, nothing to archive")
			return nil
		}
		return err
	}
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return fmt.Errorf("worker: decode room %s: %v: %w", payload.RoomID, err, asynq.SkipRetry)
	}
	if room.RoomState == "" {
		logrus.WithField("room_id", payload.RoomID).Info("Room ended with an empty whiteboard, skipping archive")
		return nil
	}

	// Reject undecodable blobs before they reach durable storage.
	if _, err := domain.DecodeSnapshot(room.RoomState); err != nil {
		return fmt.Errorf("worker: room %s state: %v: %w", payload.RoomID, err, asynq.SkipRetry)
	}

	record := &domain.SnapshotRecord{RoomID: payload.RoomID, Data: room.RoomState}
	if err := h.snapshotRepo.SaveSnapshot(ctx, record); err != nil {
		return err
	}
	logrus.WithField("room_id", payload.RoomID).Info("Archived final room snapshot")
	return nil
}
