package models

import "github.com/google/uuid"

// PlayerResult identifies one participant of a concluded game for result recording.
type PlayerResult struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
	Side     Side      `json:"side"`
}
