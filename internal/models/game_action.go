package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// MoveRecord is one accepted move in a room's append-only history.
type MoveRecord struct {
	RoomID    int64           `json:"room_id"`
	Index     int             `json:"index"`
	ActorID   uuid.UUID       `json:"actor_id"`
	Side      Side            `json:"side"`
	GameType  GameType        `json:"game_type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}
