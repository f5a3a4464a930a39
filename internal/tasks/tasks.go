// Package tasks defines the asynq task types and payloads shared between
// the API process that enqueues work and the worker that executes it.
package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// TypePresenceSweep is the periodic reap of participant records whose
	// heartbeat went stale, covering sessions that died without leaving.
	TypePresenceSweep = "presence:sweep"

	// TypeRoomExpiry is the periodic scan that ends rooms whose lifetime
	// lapsed while no owner session was around to end them.
	TypeRoomExpiry = "room:expiry"

	// TypeSnapshotArchive copies a room's final whiteboard state from the
	// realtime store into durable storage after the room ends.
	TypeSnapshotArchive = "room:archive_snapshot"
)

// SnapshotArchivePayload identifies the room whose state gets archived.
type SnapshotArchivePayload struct {
	RoomID string `json:"room_id"`
}

func NewPresenceSweepTask() *asynq.Task {
	return asynq.NewTask(TypePresenceSweep, nil)
}

func NewRoomExpiryTask() *asynq.Task {
	return asynq.NewTask(TypeRoomExpiry, nil)
}

func NewSnapshotArchiveTask(roomID string) (*asynq.Task, error) {
	payload, err := json.Marshal(SnapshotArchivePayload{RoomID: roomID})
	if err != nil {
		return nil, fmt.Errorf("tasks: marshal snapshot archive payload: %w", err)
	}
	return asynq.NewTask(TypeSnapshotArchive, payload), nil
}
