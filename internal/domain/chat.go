package domain

import "time"

// ChatMessage is one entry in a room's append-only chat log.
// Messages are never mutated or deleted.
type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
