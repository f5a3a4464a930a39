package repository

import (
	"context"
	"time"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
)

// RoomArchiveRepository persists the durable room records that outlive the
// live documents in the realtime store.
type RoomArchiveRepository interface {
	// Save inserts the archive record for a new room. Returns
	// ErrDuplicateEntry if the room id is already archived.
	Save(ctx context.Context, record *domain.RoomRecord) error

	// FindByRoomID returns the archive record, or ErrNotFound.
	FindByRoomID(ctx context.Context, roomID string) (*domain.RoomRecord, error)

	// MarkEnded stamps the record as ended. Marking an already ended
	// record is a no-op, so retries are safe.
	MarkEnded(ctx context.Context, roomID string, endedAt time.Time) error

	// FindExpiredActive returns rooms still marked active whose expiry
	// passed before the cutoff.
	FindExpiredActive(ctx context.Context, cutoff time.Time) ([]domain.RoomRecord, error)

	// ListActiveRoomIDs returns the ids of all rooms marked active.
	ListActiveRoomIDs(ctx context.Context) ([]string, error)
}
