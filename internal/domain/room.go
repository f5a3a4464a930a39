package domain

import "time"

// RoomStatus is the lifecycle state of a study room.
type RoomStatus string

const (
	RoomStatusActive RoomStatus = "active"
	RoomStatusEnded  RoomStatus = "ended"
)

// Visibility controls whether a room is listed publicly.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Room is the live room document held in the shared document store.
// The store holds the authoritative copy; clients mirror it and push the
// RoomState blob back under the synchronizer's throttle.
type Room struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	Name        string     `json:"name"`
	Visibility  Visibility `json:"visibility"`
	Status      RoomStatus `json:"status"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	EditorIDs   []string   `json:"editorIds"`
	RoomState   string     `json:"roomState"`
	LessonTitle string     `json:"lessonTitle,omitempty"`
}

// Ended reports whether the room is permanently read-only.
func (r *Room) Ended() bool {
	return r.Status == RoomStatusEnded
}

// Expired reports whether the room's expiry timestamp has passed.
func (r *Room) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// CanEdit reports whether the given user holds edit permission.
// Ended rooms accept no edits from anyone, the owner included.
func (r *Room) CanEdit(userID string) bool {
	if r.Ended() {
		return false
	}
	for _, id := range r.EditorIDs {
		if id == userID {
			return true
		}
	}
	return false
}
