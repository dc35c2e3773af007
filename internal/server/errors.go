package server

import "errors"

// Validation and policy errors. Handlers map these to HTTP status codes;
// anything else coming out of the store is treated as a transient
// collaborator failure.
var (
	ErrEmptyMessage   = errors.New("message text cannot be empty")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
	ErrInvalidRoomID  = errors.New("invalid room id")
	ErrRoomFull       = errors.New("room is full")
	ErrAnonymous      = errors.New("anonymous access is disabled")
	ErrUnauthorized   = errors.New("unauthorized")
)
