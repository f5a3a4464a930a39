package domain

import "time"

// Participant is a per-room presence record. Exactly one record exists per
// (room, user) pair while the user is connected; the record is owned and
// written only by the participant it represents.
type Participant struct {
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	PhotoURL    string    `json:"photoURL,omitempty"`
	HandRaised  bool      `json:"handRaised"`
	JoinedAt    time.Time `json:"joinedAt"`
	HeartbeatAt time.Time `json:"heartbeatAt"`
}
