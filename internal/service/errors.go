package service

import "errors"

// Business errors returned by the service layer. Handlers map these onto
// HTTP status codes; anything unexpected becomes ErrInternalServer so
// infrastructure detail never leaks to clients.
var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomEnded      = errors.New("room has already ended")
	ErrNotOwner       = errors.New("only the room owner may do this")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInternalServer = errors.New("internal server error")
)
