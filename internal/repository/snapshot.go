package repository

import (
	"context"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
)

// SnapshotArchiveRepository stores whiteboard snapshots at rest. Archived
// snapshots back post-session review; the live blob stays in the realtime
// store until the room ends.
type SnapshotArchiveRepository interface {
	// SaveSnapshot appends an archived snapshot for the room.
	SaveSnapshot(ctx context.Context, record *domain.SnapshotRecord) error

	// GetLatest returns the most recent archived snapshot, or ErrNotFound.
	GetLatest(ctx context.Context, roomID string) (*domain.SnapshotRecord, error)
}
