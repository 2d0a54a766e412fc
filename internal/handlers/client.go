// internal/handlers/client.go
package handlers

import (
	"context"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Client is one authenticated socket. A user may hold several.
type Client struct {
	id      uuid.UUID
	UserID  uuid.UUID
	Name    string
	OutChan chan map[string]interface{}
	Cancel  context.CancelFunc

	mu     sync.Mutex
	roomID int64
}

// NewClient builds a client with a buffered outbound queue.
func NewClient(userID uuid.UUID, name string, buffer int) *Client {
	return &Client{
		id:      uuid.New(),
		UserID:  userID,
		Name:    name,
		OutChan: make(chan map[string]interface{}, buffer),
	}
}

func (c *Client) ID() uuid.UUID { return c.id }

// Write pushes a message onto OutChan without blocking. A full queue drops the message.
func (c *Client) Write(msg map[string]interface{}) {
	select {
	case c.OutChan <- msg:
	default:
		msgType, _ := msg["type"].(string)
		log.WithFields(log.Fields{"user": c.Name, "conn": c.id}).Warnf("outbound queue full, dropped %q", msgType)
	}
}

// WriteError sends an error frame with a machine readable code.
func (c *Client) WriteError(code, message string) {
	c.Write(map[string]interface{}{
		"type":    "error",
		"code":    code,
		"message": message,
	})
}

func (c *Client) Attach(roomID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
}

func (c *Client) Detach(roomID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.roomID != roomID {
		return false
	}
	c.roomID = 0
	return true
}

// RoomID is the room the client currently occupies, or 0.
func (c *Client) RoomID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}
