package game

import (
	"encoding/json"
	"math/rand"
	"time"

	"github.com/jason-s-yu/arena/internal/models"
)

var memorySymbols = []string{
	"anchor", "bell", "clover", "crown", "diamond", "feather", "flame", "gear",
	"heart", "key", "leaf", "moon", "note", "rocket", "shell", "star",
	"sun", "tree", "wave", "bolt", "cloud", "drop", "flag", "gem",
}

// Card is a single face of the memory deck.
type Card struct {
	ID       int    `json:"id"`
	Symbol   string `json:"symbol,omitempty"`
	Revealed bool   `json:"revealed"`
	Matched  bool   `json:"matched"`
}

// Memory is the pair-matching game. A mismatched pair stays face up until
// the room calls ResolvePending after the flip-back delay.
type Memory struct {
	Deck    []Card
	Pending []int
	Matches [2]int
	Active  models.Side
	Winner  models.Side

	deckSize int
	delay    time.Duration
	over     bool
	rng      *rand.Rand
}

type memoryMove struct {
	CardID *int `json:"cardId"`
}

// MemoryView hides the symbol of every face-down card.
type MemoryView struct {
	Cards   []Card              `json:"cards"`
	Pending []int               `json:"pending,omitempty"`
	Matches map[models.Side]int `json:"matches"`
	Turn    models.Side         `json:"turn"`
	Winner  models.Side         `json:"winner,omitempty"`
}

// NewMemory builds a game over deckSize cards. Odd sizes are rounded down
// and the size is capped by the available symbols.
func NewMemory(rng *rand.Rand, deckSize int, delay time.Duration) *Memory {
	if deckSize > 2*len(memorySymbols) {
		deckSize = 2 * len(memorySymbols)
	}
	if deckSize < 2 {
		deckSize = 2
	}
	g := &Memory{rng: rng, deckSize: deckSize - deckSize%2, delay: delay}
	g.Initialize()
	return g
}

func (g *Memory) Type() models.GameType { return models.GameMemory }

// Initialize deals a freshly shuffled deck.
func (g *Memory) Initialize() {
	g.Deck = make([]Card, 0, g.deckSize)
	for i := 0; i < g.deckSize/2; i++ {
		g.Deck = append(g.Deck, Card{Symbol: memorySymbols[i]}, Card{Symbol: memorySymbols[i]})
	}
	g.rng.Shuffle(len(g.Deck), func(i, j int) {
		g.Deck[i], g.Deck[j] = g.Deck[j], g.Deck[i]
	})
	for i := range g.Deck {
		g.Deck[i].ID = i
	}
	g.Pending = nil
	g.Matches = [2]int{}
	g.Active = models.SideA
	g.Winner = models.SideNone
	g.over = false
}

func (g *Memory) Start(time.Time) {
	g.Active = models.SideA
}

func (g *Memory) Turn() models.Side {
	if g.over {
		return models.SideNone
	}
	return g.Active
}

func (g *Memory) CheckTerminal() Outcome {
	return Outcome{Over: g.over, Winner: g.Winner}
}

// ApplyMove reveals one card. The second reveal of a turn settles the pair.
func (g *Memory) ApplyMove(side models.Side, raw json.RawMessage) (MoveResult, error) {
	if g.over {
		return MoveResult{}, moveErr(CodeWrongPhase, "game is over")
	}
	if side != g.Active {
		return MoveResult{}, moveErr(CodeNotYourTurn, "waiting for %s", g.Active)
	}
	if len(g.Pending) >= 2 {
		return MoveResult{}, moveErr(CodeWrongPhase, "cards are still face up")
	}
	var mv memoryMove
	if err := decodeMove(raw, &mv); err != nil {
		return MoveResult{}, err
	}
	if mv.CardID == nil {
		return MoveResult{}, moveErr(CodeInvalidMove, "cardId is required")
	}
	id := *mv.CardID
	if id < 0 || id >= len(g.Deck) {
		return MoveResult{}, moveErr(CodeOutOfBounds, "card %d", id)
	}
	card := &g.Deck[id]
	if card.Matched || card.Revealed {
		return MoveResult{}, moveErr(CodeIllegalCell, "card %d is already face up", id)
	}

	card.Revealed = true
	g.Pending = append(g.Pending, id)
	if len(g.Pending) < 2 {
		return MoveResult{}, nil
	}

	first, second := &g.Deck[g.Pending[0]], &g.Deck[g.Pending[1]]
	var res MoveResult
	if first.Symbol == second.Symbol {
		first.Matched, second.Matched = true, true
		g.Pending = nil
		g.Matches[side.Index()]++
		g.settle()
		return res, nil
	}

	g.Active = side.Opponent()
	res.add(Effect{Kind: EffectFlipBack, Cards: append([]int(nil), g.Pending...), Delay: g.delay})
	res.add(Effect{Kind: EffectTurnPassed})
	return res, nil
}

// ResolvePending flips an unmatched pair back face down. It reports false
// when there was nothing to resolve.
func (g *Memory) ResolvePending() bool {
	if len(g.Pending) != 2 {
		return false
	}
	for _, id := range g.Pending {
		if !g.Deck[id].Matched {
			g.Deck[id].Revealed = false
		}
	}
	g.Pending = nil
	return true
}

func (g *Memory) settle() {
	if g.Matches[0]+g.Matches[1] < len(g.Deck)/2 {
		return
	}
	g.over = true
	switch {
	case g.Matches[0] > g.Matches[1]:
		g.Winner = models.SideA
	case g.Matches[1] > g.Matches[0]:
		g.Winner = models.SideB
	default:
		g.Winner = models.SideAt(g.rng.Intn(2))
	}
}

func (g *Memory) View(models.Side) any {
	cards := make([]Card, len(g.Deck))
	for i, c := range g.Deck {
		cards[i] = c
		if !c.Revealed && !c.Matched {
			cards[i].Symbol = ""
		}
	}
	return MemoryView{
		Cards:   cards,
		Pending: append([]int(nil), g.Pending...),
		Matches: map[models.Side]int{models.SideA: g.Matches[0], models.SideB: g.Matches[1]},
		Turn:    g.Turn(),
		Winner:  g.Winner,
	}
}
