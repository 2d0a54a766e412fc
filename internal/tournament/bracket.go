package tournament

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
)

// Match is one bracket slot. Empty names mean the slot is not decided yet.
type Match struct {
	ID       uuid.UUID       `json:"id"`
	Round    int             `json:"round"`
	Index    int             `json:"index"`
	SideA    string          `json:"sideA"`
	SideB    string          `json:"sideB"`
	Winner   string          `json:"winner"`
	GameType models.GameType `json:"gameType,omitempty"`
	RoomID   int64           `json:"roomId,omitempty"`
}

// Ready reports whether both sides are known and the match is undecided.
func (m *Match) Ready() bool {
	return m.SideA != "" && m.SideB != "" && m.Winner == ""
}

// Bracket is a single-elimination tree stored as rounds of matches.
type Bracket struct {
	Rounds [][]*Match `json:"rounds"`
}

// GenerateBracket pairs entrants by list order for the first round and
// pre-allocates every later round with empty sides.
func GenerateBracket(entrants []string) (*Bracket, error) {
	n := len(entrants)
	if n < 2 || n&(n-1) != 0 {
		return nil, fmt.Errorf("%d entrants: %w", n, ErrInvalidSize)
	}
	b := &Bracket{}
	first := make([]*Match, n/2)
	for i := range first {
		first[i] = &Match{
			ID:    uuid.New(),
			Round: 0,
			Index: i,
			SideA: entrants[2*i],
			SideB: entrants[2*i+1],
		}
	}
	b.Rounds = append(b.Rounds, first)
	for size, r := n/4, 1; size >= 1; size, r = size/2, r+1 {
		round := make([]*Match, size)
		for i := range round {
			round[i] = &Match{ID: uuid.New(), Round: r, Index: i}
		}
		b.Rounds = append(b.Rounds, round)
	}
	return b, nil
}

// Find locates a match by id.
func (b *Bracket) Find(id uuid.UUID) (*Match, bool) {
	for _, round := range b.Rounds {
		for _, m := range round {
			if m != nil && m.ID == id {
				return m, true
			}
		}
	}
	return nil, false
}

// IsFinal reports whether round r is the last one.
func (b *Bracket) IsFinal(r int) bool {
	return r == len(b.Rounds)-1
}

// RoundComplete reports whether every match of round r has a winner.
func (b *Bracket) RoundComplete(r int) bool {
	if r < 0 || r >= len(b.Rounds) {
		return false
	}
	for _, m := range b.Rounds[r] {
		if m == nil || m.Winner == "" {
			return false
		}
	}
	return true
}

// recordWinner writes the winner and feeds round r+1, match i/2. Side A
// receives winners of even matches and side B those of odd ones.
func (b *Bracket) recordWinner(m *Match, winner string) error {
	if m.SideA == "" || m.SideB == "" {
		return fmt.Errorf("match %s has an empty side: %w", m.ID, ErrBracketCorrupt)
	}
	if winner != m.SideA && winner != m.SideB {
		return fmt.Errorf("%q did not play match %s: %w", winner, m.ID, ErrBracketCorrupt)
	}
	if m.Round >= len(b.Rounds) || m.Index >= len(b.Rounds[m.Round]) || b.Rounds[m.Round][m.Index] != m {
		return fmt.Errorf("match %s is misplaced: %w", m.ID, ErrBracketCorrupt)
	}
	if b.IsFinal(m.Round) {
		m.Winner = winner
		return nil
	}
	nextRound := b.Rounds[m.Round+1]
	if m.Index/2 >= len(nextRound) || nextRound[m.Index/2] == nil {
		return fmt.Errorf("round %d has no slot for match %d: %w", m.Round+1, m.Index, ErrBracketCorrupt)
	}
	next := nextRound[m.Index/2]
	m.Winner = winner
	if m.Index%2 == 0 {
		next.SideA = winner
	} else {
		next.SideB = winner
	}
	return nil
}
