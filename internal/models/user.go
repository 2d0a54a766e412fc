package models

import "github.com/google/uuid"

// User is the slice of a profile the arena needs to decorate broadcasts.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Avatar   string    `json:"avatar,omitempty"`
}
