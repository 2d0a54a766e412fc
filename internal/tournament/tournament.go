// internal/tournament/tournament.go
package tournament

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
	log "github.com/sirupsen/logrus"
)

// Entrant is a registered participant. Brackets refer to entrants by name.
type Entrant struct {
	UserID uuid.UUID `json:"userId"`
	Name   string    `json:"name"`
}

// Tournament is a single-elimination event over a fixed number of entrants.
type Tournament struct {
	ID          uuid.UUID
	Name        string
	GameType    models.GameType
	Capacity    int
	CreatorID   uuid.UUID
	Entrants    []Entrant
	StartedWith []string
	Status      models.RoomStatus
	Bracket     *Bracket
	// CurrentRound is zero based.
	CurrentRound int
	Winner       string
	Aborted      bool
	AbortReason  string
	CreatedAt    time.Time
	FinishedAt   time.Time

	rng *rand.Rand
	Mu  sync.Mutex
}

// Advance reports what a recorded result unlocked.
type Advance struct {
	RoundComplete bool
	// Round is the round that just completed.
	Round int
	// Ready lists next-round matches that now need rooms.
	Ready    []*Match
	Finished bool
	Winner   string
}

func newTournament(creator Entrant, name string, gameType models.GameType, capacity int) *Tournament {
	t := &Tournament{
		ID:        uuid.New(),
		Name:      name,
		GameType:  gameType,
		Capacity:  capacity,
		CreatorID: creator.UserID,
		Status:    models.StatusWaiting,
		CreatedAt: time.Now(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if t.Name == "" {
		t.Name = fmt.Sprintf("%s cup (%d)", gameType, capacity)
	}
	t.Entrants = append(t.Entrants, creator)
	return t
}

func (t *Tournament) entrantIndexUnsafe(userID uuid.UUID) int {
	for i, e := range t.Entrants {
		if e.UserID == userID {
			return i
		}
	}
	return -1
}

// IsEntrant reports whether userID is registered.
func (t *Tournament) IsEntrant(userID uuid.UUID) bool {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	return t.entrantIndexUnsafe(userID) >= 0
}

// Join registers an entrant. Joining twice is a no-op.
func (t *Tournament) Join(e Entrant) error {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	if t.entrantIndexUnsafe(e.UserID) >= 0 {
		return nil
	}
	if t.Status != models.StatusWaiting {
		return ErrTournamentStarted
	}
	if len(t.Entrants) >= t.Capacity {
		return ErrTournamentFull
	}
	for _, other := range t.Entrants {
		if other.Name == e.Name {
			return fmt.Errorf("%q: %w", e.Name, ErrNameTaken)
		}
	}
	t.Entrants = append(t.Entrants, e)
	return nil
}

// Leave withdraws an entrant before the start. The creator leaving cancels
// the tournament, reported by the returned flag.
func (t *Tournament) Leave(userID uuid.UUID) (bool, error) {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	i := t.entrantIndexUnsafe(userID)
	if i < 0 {
		return false, nil
	}
	if t.Status != models.StatusWaiting {
		return false, ErrTournamentStarted
	}
	t.Entrants = append(t.Entrants[:i], t.Entrants[i+1:]...)
	if userID == t.CreatorID {
		t.abortUnsafe("creator left")
		return true, nil
	}
	return false, nil
}

// Start builds the bracket from the current entrants and returns the first
// round's matches. Starting a running tournament returns nothing.
func (t *Tournament) Start(userID uuid.UUID) ([]*Match, error) {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	if userID != t.CreatorID {
		return nil, ErrNotCreator
	}
	switch t.Status {
	case models.StatusInProgress:
		return nil, nil
	case models.StatusFinished:
		return nil, ErrTournamentOver
	}
	if len(t.Entrants) != t.Capacity {
		return nil, ErrNotEnoughEntrants
	}
	names := make([]string, len(t.Entrants))
	for i, e := range t.Entrants {
		names[i] = e.Name
	}
	b, err := GenerateBracket(names)
	if err != nil {
		return nil, err
	}
	t.StartedWith = names
	t.Bracket = b
	t.CurrentRound = 0
	t.Status = models.StatusInProgress
	for _, m := range b.Rounds[0] {
		m.GameType = t.pickTypeUnsafe()
	}
	log.WithFields(log.Fields{"tournament": t.ID, "entrants": len(names)}).Info("tournament started")
	return append([]*Match(nil), b.Rounds[0]...), nil
}

func (t *Tournament) pickTypeUnsafe() models.GameType {
	if t.GameType != models.GameMixed {
		return t.GameType
	}
	return models.GameTypes[t.rng.Intn(len(models.GameTypes))]
}

// RecordMatchResult writes a match winner and advances the bracket. A
// repeated report for a decided match is ignored. Corruption aborts the
// tournament and is returned wrapped in ErrBracketCorrupt.
func (t *Tournament) RecordMatchResult(matchID uuid.UUID, winner string) (Advance, error) {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	if t.Status != models.StatusInProgress || t.Bracket == nil {
		return Advance{}, ErrTournamentOver
	}
	m, ok := t.Bracket.Find(matchID)
	if !ok {
		return Advance{}, t.corruptUnsafe(fmt.Errorf("match %s: %w", matchID, ErrBracketCorrupt))
	}
	if m.Winner != "" {
		return Advance{}, nil
	}
	if err := t.Bracket.recordWinner(m, winner); err != nil {
		return Advance{}, t.corruptUnsafe(err)
	}

	adv := Advance{Round: m.Round}
	if !t.Bracket.RoundComplete(m.Round) || m.Round != t.CurrentRound {
		return adv, nil
	}
	adv.RoundComplete = true
	if t.Bracket.IsFinal(m.Round) {
		t.Status = models.StatusFinished
		t.Winner = winner
		t.FinishedAt = time.Now()
		adv.Finished = true
		adv.Winner = winner
		log.WithFields(log.Fields{"tournament": t.ID, "winner": winner}).Info("tournament finished")
		return adv, nil
	}

	t.CurrentRound++
	for _, next := range t.Bracket.Rounds[t.CurrentRound] {
		if !next.Ready() {
			return Advance{}, t.corruptUnsafe(fmt.Errorf("round %d match %d not populated: %w", next.Round, next.Index, ErrBracketCorrupt))
		}
		next.GameType = t.pickTypeUnsafe()
		adv.Ready = append(adv.Ready, next)
	}
	return adv, nil
}

func (t *Tournament) corruptUnsafe(err error) error {
	if errors.Is(err, ErrBracketCorrupt) {
		log.WithFields(log.Fields{"tournament": t.ID, "error": err}).Error("aborting tournament")
		t.abortUnsafe(err.Error())
	}
	return err
}

func (t *Tournament) abortUnsafe(reason string) {
	t.Status = models.StatusFinished
	t.Aborted = true
	t.AbortReason = reason
	t.FinishedAt = time.Now()
}

// AttachRoom records the room hosting a match.
func (t *Tournament) AttachRoom(matchID uuid.UUID, roomID int64) {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	if t.Bracket == nil {
		return
	}
	if m, ok := t.Bracket.Find(matchID); ok {
		m.RoomID = roomID
	}
}

// EntrantByName finds a registered entrant by display name.
func (t *Tournament) EntrantByName(name string) (Entrant, bool) {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	for _, e := range t.Entrants {
		if e.Name == name {
			return e, true
		}
	}
	return Entrant{}, false
}

// View is the client payload of a tournament.
type View struct {
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name"`
	GameType     models.GameType   `json:"gameType"`
	Capacity     int               `json:"capacity"`
	CreatorID    uuid.UUID         `json:"creatorId"`
	Entrants     []Entrant         `json:"entrants"`
	StartedWith  []string          `json:"startedWith,omitempty"`
	Status       models.RoomStatus `json:"status"`
	Rounds       [][]Match         `json:"rounds,omitempty"`
	CurrentRound int               `json:"currentRound"`
	Winner       string            `json:"winner,omitempty"`
	Aborted      bool              `json:"aborted"`
	AbortReason  string            `json:"abortReason,omitempty"`
}

// Snapshot copies the tournament for serialization.
func (t *Tournament) Snapshot() View {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	v := View{
		ID:           t.ID,
		Name:         t.Name,
		GameType:     t.GameType,
		Capacity:     t.Capacity,
		CreatorID:    t.CreatorID,
		Entrants:     append([]Entrant{}, t.Entrants...),
		StartedWith:  append([]string(nil), t.StartedWith...),
		Status:       t.Status,
		CurrentRound: t.CurrentRound,
		Winner:       t.Winner,
		Aborted:      t.Aborted,
		AbortReason:  t.AbortReason,
	}
	if t.Bracket != nil {
		for _, round := range t.Bracket.Rounds {
			copied := make([]Match, 0, len(round))
			for _, m := range round {
				copied = append(copied, *m)
			}
			v.Rounds = append(v.Rounds, copied)
		}
	}
	return v
}
