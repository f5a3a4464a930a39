package setup

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
)

// MigrateDB applies the archive schema.
func MigrateDB(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.RoomRecord{},
		&domain.SnapshotRecord{},
	)
	if err != nil {
		return fmt.Errorf("setup: auto-migrate archive schema: %w", err)
	}
	return nil
}
