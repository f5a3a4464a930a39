package store

// Path helpers for the room core's layout within the document store.
// Keeping them here ensures every component addresses the same documents.

func RoomPath(roomID string) string {
	return "rooms/" + roomID
}

func PresencePath(roomID string) string {
	return RoomPath(roomID) + "/participants"
}

func ParticipantPath(roomID, userID string) string {
	return PresencePath(roomID) + "/" + userID
}

func ChatPath(roomID string) string {
	return RoomPath(roomID) + "/chat"
}

func ChatMessagePath(roomID, messageID string) string {
	return ChatPath(roomID) + "/" + messageID
}

// SignalPath is the offer/answer document written by `from` for `to`.
// Each side writes only into its own sub-structure and subscribes to the
// counterpart's.
func SignalPath(roomID, from, to string) string {
	return RoomPath(roomID) + "/signals/" + from + "/peers/" + to
}

// CandidatePath is the append-only ICE candidate collection for the
// `from` → `to` direction.
func CandidatePath(roomID, from, to string) string {
	return SignalPath(roomID, from, to) + "/candidates"
}
