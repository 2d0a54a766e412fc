package tournament

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
)

// Capacities are the supported field sizes.
var Capacities = []int{4, 8, 16}

func validCapacity(n int) bool {
	for _, c := range Capacities {
		if c == n {
			return true
		}
	}
	return false
}

// Store keeps tournaments in memory.
type Store struct {
	// createMu serializes Create so the duplicate check and the insert
	// are one step. It is never held by anything else.
	createMu    sync.Mutex
	mu          sync.Mutex
	tournaments map[uuid.UUID]*Tournament
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{tournaments: make(map[uuid.UUID]*Tournament)}
}

// Create registers a tournament with the creator as its first entrant. A
// repeated create by the same creator for the same game type and size
// returns the waiting tournament it already made, with created false.
func (s *Store) Create(creator Entrant, name string, gameType models.GameType, capacity int) (*Tournament, bool, error) {
	if !validCapacity(capacity) {
		return nil, false, fmt.Errorf("size %d: %w", capacity, ErrInvalidSize)
	}
	if !gameType.Playable() && gameType != models.GameMixed {
		return nil, false, fmt.Errorf("game type %q: %w", gameType, ErrInvalidGameType)
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()
	for _, t := range s.all() {
		if t.CreatorID == creator.UserID && t.GameType == gameType && t.Capacity == capacity && t.waiting() {
			return t, false, nil
		}
	}
	t := newTournament(creator, name, gameType, capacity)
	s.mu.Lock()
	s.tournaments[t.ID] = t
	s.mu.Unlock()
	return t, true, nil
}

// all copies the current set so tournament locks are never taken under the
// store lock.
func (s *Store) all() []*Tournament {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Tournament, 0, len(s.tournaments))
	for _, t := range s.tournaments {
		out = append(out, t)
	}
	return out
}

func (t *Tournament) waiting() bool {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	return t.Status == models.StatusWaiting
}

// Get looks a tournament up by id.
func (s *Store) Get(id uuid.UUID) (*Tournament, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tournaments[id]
	return t, ok
}

// Delete drops a tournament, used for events cancelled before they started.
func (s *Store) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tournaments, id)
}

// List snapshots every tournament, oldest first.
func (s *Store) List() []View {
	all := s.all()
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	out := make([]View, 0, len(all))
	for _, t := range all {
		out = append(out, t.Snapshot())
	}
	return out
}

// Sweep removes tournaments that concluded before cutoff and returns how
// many were dropped.
func (s *Store) Sweep(cutoff time.Time) int {
	var stale []uuid.UUID
	for _, t := range s.all() {
		t.Mu.Lock()
		if t.Status == models.StatusFinished && t.FinishedAt.Before(cutoff) {
			stale = append(stale, t.ID)
		}
		t.Mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range stale {
		delete(s.tournaments, id)
	}
	return len(stale)
}
