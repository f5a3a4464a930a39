package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/repository"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/store"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/tasks"
)

// DefaultRoomTTL bounds a room's lifetime when the creator does not pick
// one.
const DefaultRoomTTL = 4 * time.Hour

// TaskEnqueuer is the slice of asynq.Client the service needs, kept as an
// interface so tests can observe enqueued work.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// RoomService owns the room lifecycle: it writes the live room document
// into the realtime store and mirrors lifecycle changes into the archive.
type RoomService struct {
	store       store.Store
	archiveRepo repository.RoomArchiveRepository
	enqueuer    TaskEnqueuer
}

// NewRoomService builds the service. The enqueuer may be nil, in which
// case end-of-room archival runs only through the periodic worker scan.
func NewRoomService(st store.Store, archiveRepo repository.RoomArchiveRepository, enqueuer TaskEnqueuer) *RoomService {
	if st == nil {
		panic("store cannot be nil for RoomService")
	}
	if archiveRepo == nil {
		panic("archive repository cannot be nil for RoomService")
	}
	return &RoomService{store: st, archiveRepo: archiveRepo, enqueuer: enqueuer}
}

// CreateRoomInput carries the creator's choices; zero values fall back to
// private visibility and the default lifetime.
type CreateRoomInput struct {
	OwnerID     string
	Name        string
	Visibility  domain.Visibility
	LessonTitle string
	TTL         time.Duration
}

// CreateRoom writes the live room document and its archive record. The
// owner starts as the only editor.
func (s *RoomService) CreateRoom(ctx context.Context, in CreateRoomInput) (*domain.Room, error) {
	if in.OwnerID == "" || in.Name == "" {
		return nil, ErrInvalidInput
	}
	visibility := in.Visibility
	switch visibility {
	case domain.VisibilityPublic, domain.VisibilityPrivate:
	case "":
		visibility = domain.VisibilityPrivate
	default:
		return nil, ErrInvalidInput
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = DefaultRoomTTL
	}

	room := &domain.Room{
		ID:          uuid.NewString(),
		OwnerID:     in.OwnerID,
		Name:        in.Name,
		Visibility:  visibility,
		Status:      domain.RoomStatusActive,
		ExpiresAt:   time.Now().UTC().Add(ttl),
		EditorIDs:   []string{in.OwnerID},
		LessonTitle: in.LessonTitle,
	}

	if err := s.store.SetDocument(ctx, store.RoomPath(room.ID), room); err != nil {
		logrus.WithField("room_id", room.ID).WithError(err).Error("Failed to write live room document")
		return nil, ErrInternalServer
	}

	record := &domain.RoomRecord{
		RoomID:      room.ID,
		OwnerID:     room.OwnerID,
		Name:        room.Name,
		Visibility:  string(room.Visibility),
		Status:      string(room.Status),
		LessonTitle: room.LessonTitle,
		ExpiresAt:   room.ExpiresAt,
	}
	if err := s.archiveRepo.Save(ctx, record); err != nil {
		logrus.WithField("room_id", room.ID).WithError(err).Error("Failed to archive room record")
		_ = s.store.DeleteDocument(ctx, store.RoomPath(room.ID))
		return nil, ErrInternalServer
	}

	logrus.WithFields(logrus.Fields{
		"room_id":  room.ID,
		"owner_id": room.OwnerID,
	}).Info("Room created")
	return room, nil
}

// FindRoomByID returns the live room document.
func (s *RoomService) FindRoomByID(ctx context.Context, roomID string) (*domain.Room, error) {
	return s.loadRoom(ctx, roomID)
}

// EndRoom flips the room to ended. Only the owner may end a room; ending
// an already ended room succeeds without effect so client retries and the
// expiry worker cannot conflict.
func (s *RoomService) EndRoom(ctx context.Context, roomID, requesterID string) error {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.OwnerID != requesterID {
		return ErrNotOwner
	}
	if room.Ended() {
		return nil
	}
	return s.endRoom(ctx, roomID)
}

// EndRoomBySystem ends a room without an owner check, for the expiry
// worker. Idempotent like EndRoom.
func (s *RoomService) EndRoomBySystem(ctx context.Context, roomID string) error {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			// Live document already gone; settle the archive side only.
			now := time.Now().UTC()
			if err := s.archiveRepo.MarkEnded(ctx, roomID, now); err != nil {
				logrus.WithField("room_id", roomID).WithError(err).Error("Failed to mark orphaned room ended")
				return ErrInternalServer
			}
			return nil
		}
		return err
	}
	if room.Ended() {
		return nil
	}
	return s.endRoom(ctx, roomID)
}

func (s *RoomService) endRoom(ctx context.Context, roomID string) error {
	err := s.store.UpdateDocument(ctx, store.RoomPath(roomID), map[string]interface{}{
		"status": domain.RoomStatusEnded,
	})
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to end live room document")
		return ErrInternalServer
	}
	if err := s.archiveRepo.MarkEnded(ctx, roomID, time.Now().UTC()); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to mark room record ended")
		return ErrInternalServer
	}

	if s.enqueuer != nil {
		task, err := tasks.NewSnapshotArchiveTask(roomID)
		if err == nil {
			_, err = s.enqueuer.EnqueueContext(ctx, task, asynq.Queue("low"), asynq.MaxRetry(5))
		}
		if err != nil {
			logrus.WithField("room_id", roomID).WithError(err).Warn("Failed to enqueue snapshot archive task")
		}
	}

	logrus.WithField("room_id", roomID).Info("Room ended")
	return nil
}

// GrantEditor adds the target user to the room's editor set. Owner only;
// granting an existing editor again is a no-op.
func (s *RoomService) GrantEditor(ctx context.Context, roomID, requesterID, targetID string) error {
	return s.mutateEditors(ctx, roomID, requesterID, func(editors []string) []string {
		for _, id := range editors {
			if id == targetID {
				return editors
			}
		}
		return append(editors, targetID)
	})
}

// RevokeEditor removes the target user from the editor set. The owner's
// own edit grant cannot be revoked.
func (s *RoomService) RevokeEditor(ctx context.Context, roomID, requesterID, targetID string) error {
	if targetID == requesterID {
		return ErrInvalidInput
	}
	return s.mutateEditors(ctx, roomID, requesterID, func(editors []string) []string {
		out := editors[:0]
		for _, id := range editors {
			if id != targetID {
				out = append(out, id)
			}
		}
		return out
	})
}

func (s *RoomService) mutateEditors(ctx context.Context, roomID, requesterID string, apply func([]string) []string) error {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.OwnerID != requesterID {
		return ErrNotOwner
	}
	if room.Ended() {
		return ErrRoomEnded
	}

	updated := apply(room.EditorIDs)
	err = s.store.UpdateDocument(ctx, store.RoomPath(roomID), map[string]interface{}{
		"editorIds": updated,
	})
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to update room editors")
		return ErrInternalServer
	}
	return nil
}

func (s *RoomService) loadRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	if roomID == "" {
		return nil, ErrInvalidInput
	}
	data, err := s.store.GetDocument(ctx, store.RoomPath(roomID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to load live room document")
		return nil, ErrInternalServer
	}
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Live room document is malformed")
		return nil, ErrInternalServer
	}
	return &room, nil
}
