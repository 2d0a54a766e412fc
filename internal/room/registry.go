package room

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
	log "github.com/sirupsen/logrus"
)

const (
	roomIDMin = 100000
	roomIDMax = 999999
)

// Registry is the authoritative map of live rooms. Its hooks are invoked
// without any room lock held.
type Registry struct {
	mu    sync.Mutex
	rooms map[int64]*Room
	rng   *rand.Rand
	cfg   Config

	// OnChange fires after any create, destroy, join or leave.
	OnChange func()
	// OnFinish fires exactly once per concluded game.
	OnFinish func(res Result)
	// OnMove fires for every accepted move.
	OnMove func(rec models.MoveRecord)
}

// NewRegistry returns an empty registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		rooms: make(map[int64]*Room),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cfg:   cfg.withDefaults(),
	}
}

// CreateRoom builds a waiting room and registers it under a fresh id, or
// under opts.ID when one is given.
func (reg *Registry) CreateRoom(t models.GameType, name string, opts Options) (*Room, error) {
	if !t.Playable() {
		return nil, fmt.Errorf("create room %q: %w", t, ErrWrongGameType)
	}
	r, err := newRoom(t, name, reg.cfg, opts)
	if err != nil {
		return nil, err
	}
	if err := reg.add(r); err != nil {
		return nil, err
	}
	if r.IsTournamentMatch() {
		r.Mu.Lock()
		if r.Status == models.StatusWaiting {
			r.armSeatUnsafe()
		}
		r.Mu.Unlock()
	}
	log.WithFields(log.Fields{"room": r.ID, "game": t}).Info("room created")
	reg.changed()
	return r, nil
}

// add assigns an id and publishes the room.
func (reg *Registry) add(r *Room) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r.ID != 0 {
		if _, taken := reg.rooms[r.ID]; taken {
			return fmt.Errorf("room %d: %w", r.ID, ErrRoomIDTaken)
		}
	} else {
		r.ID = reg.nextIDUnsafe()
	}
	if r.Name == "" {
		r.Name = fmt.Sprintf("%s #%d", r.Type, r.ID)
	}
	r.onExpire = func(expired *Room) {
		log.WithField("room", expired.ID).Info("grace window elapsed")
		reg.Destroy(expired.ID)
	}
	r.onConclude = func(res Result) {
		reg.finished(res)
		reg.changed()
	}
	reg.rooms[r.ID] = r
	return nil
}

// nextIDUnsafe rejection-samples a six digit id that is not live.
func (reg *Registry) nextIDUnsafe() int64 {
	for {
		id := int64(roomIDMin + reg.rng.Intn(roomIDMax-roomIDMin+1))
		if _, taken := reg.rooms[id]; !taken {
			return id
		}
	}
}

// Get looks up a live room.
func (reg *Registry) Get(id int64) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[id]
	return r, ok
}

// Len is the number of live rooms.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// Destroy removes a room and stops its timers. Destroying an absent room is
// a no-op.
func (reg *Registry) Destroy(id int64) {
	reg.destroy(id, ReasonExpired)
}

func (reg *Registry) destroy(id int64, reason string) {
	reg.mu.Lock()
	r, ok := reg.rooms[id]
	delete(reg.rooms, id)
	reg.mu.Unlock()
	if !ok {
		return
	}
	if r.close(reason) {
		log.WithField("room", id).Info("room destroyed")
	}
	reg.changed()
}

// List returns summaries of every live room ordered by id.
func (reg *Registry) List() []Summary {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.Unlock()

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	out := make([]Summary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Summary())
	}
	return out
}

// Join seats occ in room id.
func (reg *Registry) Join(id int64, occ *Occupant, asSpectator bool) (*Room, error) {
	r, ok := reg.Get(id)
	if !ok {
		return nil, fmt.Errorf("join %d: %w", id, ErrRoomNotFound)
	}
	if err := r.Join(occ, asSpectator); err != nil {
		return nil, fmt.Errorf("join %d: %w", id, err)
	}
	reg.changed()
	return r, nil
}

// Leave removes connID from room id and tears the room down when the
// disconnection policy asks for it.
func (reg *Registry) Leave(id int64, connID uuid.UUID) error {
	r, ok := reg.Get(id)
	if !ok {
		return fmt.Errorf("leave %d: %w", id, ErrRoomNotFound)
	}
	out, err := r.Leave(connID)
	if err != nil {
		return fmt.Errorf("leave %d: %w", id, err)
	}
	if out.Result != nil {
		reg.finished(*out.Result)
	}
	if out.Teardown {
		reg.destroy(id, out.reason())
		return nil
	}
	reg.changed()
	return nil
}

func (o LeaveOutcome) reason() string {
	if o.Result != nil && o.Result.Reason != "" {
		return o.Result.Reason
	}
	return ReasonExpired
}

// Move applies a move from connID in room id.
func (reg *Registry) Move(id int64, connID uuid.UUID, raw json.RawMessage) error {
	r, ok := reg.Get(id)
	if !ok {
		return fmt.Errorf("move in %d: %w", id, ErrRoomNotFound)
	}
	out, err := r.ApplyMove(connID, raw)
	if err != nil {
		return err
	}
	if reg.OnMove != nil {
		reg.OnMove(out.Record)
	}
	if out.Result != nil {
		reg.finished(*out.Result)
		reg.changed()
	}
	return nil
}

// Shutdown closes every room, notifying occupants.
func (reg *Registry) Shutdown() {
	reg.mu.Lock()
	ids := make([]int64, 0, len(reg.rooms))
	for id := range reg.rooms {
		ids = append(ids, id)
	}
	reg.mu.Unlock()
	for _, id := range ids {
		reg.destroy(id, ReasonShutdown)
	}
}

func (reg *Registry) finished(res Result) {
	if reg.OnFinish != nil {
		reg.OnFinish(res)
	}
}

func (reg *Registry) changed() {
	if reg.OnChange != nil {
		reg.OnChange()
	}
}
