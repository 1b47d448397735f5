package room

import "errors"

// RoomError is a sentinel error raised by the registry and state machine.
type RoomError string

// Error implements the error interface
func (e RoomError) Error() string {
	return string(e)
}

const (
	ErrRoomNotFound     RoomError = "room not found"
	ErrUnauthorized     RoomError = "only the host may perform this action"
	ErrInvalidState     RoomError = "action not allowed in current session state"
	ErrSessionFinished  RoomError = "session already finished"
	ErrRoomFull         RoomError = "room is at maximum capacity"
	ErrInvalidPIN       RoomError = "pin must be a 6-digit number"
	ErrNotMember        RoomError = "connection is not a member of this room"
	ErrNotHostPaced     RoomError = "room does not use host paced questions"
	ErrInvalidHostToken RoomError = "host token is invalid"
)

// Code maps an error to the stable code sent to clients.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidHostToken):
		return "unauthorized"
	case errors.Is(err, ErrSessionFinished):
		return "session_finished"
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrNotHostPaced):
		return "invalid_state"
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrInvalidPIN):
		return "invalid_pin"
	case errors.Is(err, ErrNotMember):
		return "not_member"
	default:
		return "internal"
	}
}
