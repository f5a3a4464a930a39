package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/repository"
)

// GormRoomArchiveRepository is the GORM implementation of
// repository.RoomArchiveRepository.
type GormRoomArchiveRepository struct {
	db *gorm.DB
}

func NewGormRoomArchiveRepository(db *gorm.DB) *GormRoomArchiveRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomArchiveRepository")
	}
	return &GormRoomArchiveRepository{db: db}
}

func (r *GormRoomArchiveRepository) Save(ctx context.Context, record *domain.RoomRecord) error {
	err := r.db.WithContext(ctx).Create(record).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save room record %s: %w", record.RoomID, err)
	}
	return nil
}

func (r *GormRoomArchiveRepository) FindByRoomID(ctx context.Context, roomID string) (*domain.RoomRecord, error) {
	var record domain.RoomRecord
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("gorm: find room record %s: %w", roomID, err)
	}
	return &record, nil
}

// MarkEnded only touches rows still marked active, so a second call for
// the same room changes nothing.
func (r *GormRoomArchiveRepository) MarkEnded(ctx context.Context, roomID string, endedAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&domain.RoomRecord{}).
		Where("room_id = ? AND status = ?", roomID, string(domain.RoomStatusActive)).
		Updates(map[string]interface{}{
			"status":   string(domain.RoomStatusEnded),
			"ended_at": endedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("gorm: mark room record %s ended: %w", roomID, err)
	}
	return nil
}

func (r *GormRoomArchiveRepository) FindExpiredActive(ctx context.Context, cutoff time.Time) ([]domain.RoomRecord, error) {
	var records []domain.RoomRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", string(domain.RoomStatusActive), cutoff).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find expired active rooms: %w", err)
	}
	return records, nil
}

func (r *GormRoomArchiveRepository) ListActiveRoomIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&domain.RoomRecord{}).
		Where("status = ?", string(domain.RoomStatusActive)).
		Pluck("room_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list active room ids: %w", err)
	}
	return ids, nil
}
