// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/arena/internal/models"
	"github.com/redis/go-redis/v9"
)

// Rdb is the global Redis client. Connect it once at application startup.
var Rdb *redis.Client

// Pusher is the subset of a Redis client needed to enqueue records.
type Pusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// ConnectRedis initializes the global Redis client and pings it.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	Rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return Rdb, nil
}

// MovePublisher pushes accepted moves onto the history queue for the historian.
type MovePublisher struct {
	rdb   Pusher
	queue string
}

func NewMovePublisher(rdb Pusher, queue string) *MovePublisher {
	return &MovePublisher{rdb: rdb, queue: queue}
}

// Publish serializes the record to JSON, then RPushes it to the queue.
func (p *MovePublisher) Publish(ctx context.Context, record models.MoveRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal MoveRecord: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}

// NopPublisher drops records when Redis is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.MoveRecord) error { return nil }
