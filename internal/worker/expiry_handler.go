package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/repository"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/service"
)

// RoomExpiryHandler ends rooms whose lifetime lapsed without an owner
// session around to end them. The owner session normally handles expiry
// itself; this scan is the safety net.
type RoomExpiryHandler struct {
	roomService *service.RoomService
	archiveRepo repository.RoomArchiveRepository
}

func NewRoomExpiryHandler(roomService *service.RoomService, archiveRepo repository.RoomArchiveRepository) *RoomExpiryHandler {
	if roomService == nil {
		panic("room service cannot be nil for RoomExpiryHandler")
	}
	if archiveRepo == nil {
		panic("archive repository cannot be nil for RoomExpiryHandler")
	}
	return &RoomExpiryHandler{roomService: roomService, archiveRepo: archiveRepo}
}

func (h *RoomExpiryHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	expired, err := h.archiveRepo.FindExpiredActive(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	for _, record := range expired {
		if err := h.roomService.EndRoomBySystem(ctx, record.RoomID); err != nil {
			logrus.WithField("room_id", record.RoomID).WithError(err).Warn("Failed to end expired room")
			continue
		}
		logrus.WithField("room_id", record.RoomID).Info("Expired room ended by worker")
	}
	return nil
}
