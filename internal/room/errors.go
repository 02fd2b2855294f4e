package room

import "errors"

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrAlreadyQueued       = errors.New("participant already queued or seated")
	ErrUnknownCondition    = errors.New("unknown condition")
	ErrRolesAssigned       = errors.New("roles already assigned")
	ErrRoomNotFull         = errors.New("room not full")
	ErrRegistryFull        = errors.New("registry full")
)
