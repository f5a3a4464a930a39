package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/repository"
)

// GormSnapshotArchiveRepository is the GORM implementation of
// repository.SnapshotArchiveRepository.
type GormSnapshotArchiveRepository struct {
	db *gorm.DB
}

func NewGormSnapshotArchiveRepository(db *gorm.DB) *GormSnapshotArchiveRepository {
	if db == nil {
		panic("database connection cannot be nil for GormSnapshotArchiveRepository")
	}
	return &GormSnapshotArchiveRepository{db: db}
}

func (r *GormSnapshotArchiveRepository) SaveSnapshot(ctx context.Context, record *domain.SnapshotRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("gorm: save snapshot for room %s: %w", record.RoomID, err)
	}
	return nil
}

func (r *GormSnapshotArchiveRepository) GetLatest(ctx context.Context, roomID string) (*domain.SnapshotRecord, error) {
	var record domain.SnapshotRecord
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("gorm: latest snapshot for room %s: %w", roomID, err)
	}
	return &record, nil
}
