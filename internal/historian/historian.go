// Package historian drains the move-history queue from Redis into Postgres in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/arena/internal/models"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Popper is the subset of a Redis client the historian reads with.
type Popper interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Sink persists one batch of records atomically.
type Sink func(ctx context.Context, batch []models.MoveRecord) error

// Options tune batching. Zero values fall back to defaults.
type Options struct {
	Queue      string
	BatchSize  int
	FlushDelay time.Duration
	// PopTimeout bounds each BLPop so cancellation is noticed.
	PopTimeout time.Duration
	// Idle is how long a room may go without moves before its counters are dropped.
	Idle time.Duration
}

// Service pops records, accumulates them and flushes them to the sink.
type Service struct {
	rdb  Popper
	sink Sink
	opts Options

	// lastActivity maps room id to its most recent activity and persisted count.
	lastActivity sync.Map

	batchMu sync.Mutex
	batch   []models.MoveRecord
}

type roomActivity struct {
	last  time.Time
	moves int
}

// maxBacklog caps how many unflushed records are retained across sink failures.
const maxBacklog = 10

func New(rdb Popper, sink Sink, opts Options) *Service {
	if opts.Queue == "" {
		opts.Queue = "arena_moves"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = 500 * time.Millisecond
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 3 * time.Second
	}
	if opts.Idle <= 0 {
		opts.Idle = 10 * time.Minute
	}
	return &Service{
		rdb:   rdb,
		sink:  sink,
		opts:  opts,
		batch: make([]models.MoveRecord, 0, opts.BatchSize),
	}
}

// Run reads the queue until ctx is cancelled, then flushes whatever is pending.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.FlushDelay)
	defer ticker.Stop()
	idle := time.NewTicker(time.Minute)
	defer idle.Stop()

	log.Infof("historian reading %q", s.opts.Queue)
	for {
		select {
		case <-ctx.Done():
			// The caller's context is gone; give the last flush its own deadline.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.Flush(flushCtx)
			cancel()
			log.Info("historian stopped")
			return nil

		case <-ticker.C:
			s.Flush(ctx)

		case now := <-idle.C:
			s.sweepIdle(now)

		default:
			res, err := s.rdb.BLPop(ctx, s.opts.PopTimeout, s.opts.Queue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					log.Errorf("BLPop: %v", err)
				}
				continue
			}
			// res[0] is the queue name and res[1] the payload.
			if len(res) < 2 {
				continue
			}
			s.handlePayload(ctx, res[1])
		}
	}
}

func (s *Service) handlePayload(ctx context.Context, payload string) {
	var rec models.MoveRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		log.Warnf("invalid move record: %v", err)
		return
	}
	if rec.RoomID == 0 || len(rec.Payload) == 0 {
		log.Warnf("move record missing room or payload: %s", payload)
		return
	}
	s.Append(ctx, rec)
}

// Append adds a record to the batch and flushes once the batch is full.
func (s *Service) Append(ctx context.Context, rec models.MoveRecord) {
	s.touch(rec.RoomID)

	s.batchMu.Lock()
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.opts.BatchSize
	s.batchMu.Unlock()

	if full {
		s.Flush(ctx)
	}
}

// Flush writes the pending batch. On failure the records are kept for the next
// attempt, up to a bounded backlog.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	pending := make([]models.MoveRecord, len(s.batch))
	copy(pending, s.batch)
	s.batch = s.batch[:0]
	s.batchMu.Unlock()

	if err := s.sink(ctx, pending); err != nil {
		log.Errorf("flush %d moves: %v", len(pending), err)
		s.requeue(pending)
		return
	}
	log.Debugf("flushed %d moves", len(pending))
}

func (s *Service) requeue(failed []models.MoveRecord) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	merged := append(failed, s.batch...)
	if limit := maxBacklog * s.opts.BatchSize; len(merged) > limit {
		log.Warnf("dropping %d moves over backlog limit", len(merged)-limit)
		merged = merged[len(merged)-limit:]
	}
	s.batch = merged
}

// Pending reports how many records await a flush.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}

func (s *Service) touch(roomID int64) {
	v, _ := s.lastActivity.LoadOrStore(roomID, &roomActivity{})
	a := v.(*roomActivity)
	// Only the Run goroutine touches activity entries.
	a.last = time.Now()
	a.moves++
}

// sweepIdle forgets rooms that have been quiet longer than the idle window.
func (s *Service) sweepIdle(now time.Time) int {
	dropped := 0
	s.lastActivity.Range(func(key, val interface{}) bool {
		roomID, ok1 := key.(int64)
		a, ok2 := val.(*roomActivity)
		if ok1 && ok2 && now.Sub(a.last) > s.opts.Idle {
			log.Debugf("room %d went quiet after %d moves", roomID, a.moves)
			s.lastActivity.Delete(roomID)
			dropped++
		}
		return true
	})
	return dropped
}
