package domain

import "time"

// RoomRecord is the durable archive row for a room, written on creation
// and updated when the session ends. The live room document in the shared
// store stays authoritative while the session runs.
type RoomRecord struct {
	ID          uint       `gorm:"primaryKey"`
	RoomID      string     `gorm:"uniqueIndex;size:191;not null"`
	OwnerID     string     `gorm:"index;size:191;not null"`
	Name        string     `gorm:"size:255"`
	Visibility  string     `gorm:"size:20"`
	Status      string     `gorm:"size:20;index"`
	LessonTitle string     `gorm:"size:255"`
	ExpiresAt   time.Time  `gorm:"index"`
	EndedAt     *time.Time `gorm:""`
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`
}

// SnapshotRecord stores a whiteboard snapshot blob at rest, archived when
// a room ends.
type SnapshotRecord struct {
	ID        uint      `gorm:"primaryKey"`
	RoomID    string    `gorm:"index;size:191;not null"`
	Data      string    `gorm:"type:longtext;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}
