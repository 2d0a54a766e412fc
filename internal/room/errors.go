package room

import "errors"

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room is full")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrWrongGameType      = errors.New("unknown game type")
	ErrNotInRoom          = errors.New("not in room")
	ErrNotAPlayer         = errors.New("spectators cannot act")
	ErrRoomIDTaken        = errors.New("room id already in use")
	ErrSeatReserved       = errors.New("seat is reserved for a tournament entrant")
	ErrRematchUnavailable = errors.New("rematch unavailable")
)
