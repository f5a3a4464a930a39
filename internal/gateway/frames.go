// Package gateway is the websocket front of the room core. Each connection
// becomes a session that owns a synchronizer, a presence record and a view
// of the room chat, all multiplexed over typed JSON frames.
package gateway

import (
	"encoding/json"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
)

// Frame is the envelope for every message in both directions.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client-to-server frame types.
const (
	FrameEdit      = "edit"
	FrameChat      = "chat"
	FrameHandRaise = "hand_raise"
	FrameHeartbeat = "heartbeat"
)

// Server-to-client frame types.
const (
	FrameSnapshot = "snapshot"
	FrameRoster   = "roster"
	FrameChatMsg  = "chat_message"
	FrameEnded    = "ended"
	FrameError    = "error"
)

// Edit actions.
const (
	EditPut    = "put"
	EditDelete = "delete"
)

type editPayload struct {
	Action    string          `json:"action"`
	Element   *domain.Element `json:"element,omitempty"`
	ElementID string          `json:"elementId,omitempty"`
}

type chatPayload struct {
	Content string `json:"content"`
}

type handRaisePayload struct {
	Raised bool `json:"raised"`
}

type snapshotPayload struct {
	Snapshot *domain.Snapshot `json:"snapshot"`
	Source   string           `json:"source"`
	ReadOnly bool             `json:"readOnly"`
}

type rosterPayload struct {
	Participants []domain.Participant `json:"participants"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func mustFrame(frameType string, payload interface{}) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		// Payload types are all local structs; a marshal failure is a bug.
		panic(err)
	}
	out, err := json.Marshal(Frame{Type: frameType, Payload: data})
	if err != nil {
		panic(err)
	}
	return out
}
