// internal/game/engine.go
package game

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/jason-s-yu/arena/internal/models"
)

// EffectKind names a side effect the caller of ApplyMove has to react to.
type EffectKind string

const (
	// EffectTurnPassed means the side to move changed.
	EffectTurnPassed EffectKind = "turn_passed"
	// EffectFlipBack asks the caller to call ResolvePending after Delay.
	EffectFlipBack EffectKind = "flip_back"
	// EffectCancelDeadline means a pending deadline is no longer needed.
	EffectCancelDeadline EffectKind = "cancel_deadline"
	// EffectTieBreak reports the cell vacated by the anti-stalemate rule.
	EffectTieBreak EffectKind = "tie_break"
)

// Effect is a single side effect of an accepted move.
type Effect struct {
	Kind  EffectKind    `json:"kind"`
	Cards []int         `json:"cards,omitempty"`
	Cell  *int          `json:"cell,omitempty"`
	Delay time.Duration `json:"-"`
}

// MoveResult is returned for every accepted move.
type MoveResult struct {
	Effects []Effect `json:"effects,omitempty"`
}

// Has reports whether the result carries an effect of kind k.
func (r MoveResult) Has(k EffectKind) bool {
	for _, e := range r.Effects {
		if e.Kind == k {
			return true
		}
	}
	return false
}

// Find returns the first effect of kind k.
func (r MoveResult) Find(k EffectKind) (Effect, bool) {
	for _, e := range r.Effects {
		if e.Kind == k {
			return e, true
		}
	}
	return Effect{}, false
}

func (r *MoveResult) add(e Effect) {
	r.Effects = append(r.Effects, e)
}

// Outcome is the terminal verdict of an engine.
type Outcome struct {
	Over   bool        `json:"over"`
	Winner models.Side `json:"winner,omitempty"`
	Draw   bool        `json:"draw,omitempty"`
}

// Engine is the rule contract every game variant implements. Engines do no
// I/O and are not safe for concurrent use; the owning room serializes calls.
type Engine interface {
	Type() models.GameType
	// Initialize resets the payload to a fresh waiting state.
	Initialize()
	// Start makes the payload playable. now anchors any deadline.
	Start(now time.Time)
	// ApplyMove validates and applies a move. On error the state is unchanged
	// and the error is a *MoveError.
	ApplyMove(side models.Side, move json.RawMessage) (MoveResult, error)
	CheckTerminal() Outcome
	// Turn is the side allowed to act, or SideNone when both may act.
	Turn() models.Side
	// View is the client payload for viewer; SideNone is a spectator.
	View(viewer models.Side) any
}

// DeadlineEngine is implemented by engines with a server-enforced deadline.
type DeadlineEngine interface {
	Deadline() (time.Time, bool)
	// AutoComplete finishes whatever the deadline guards.
	AutoComplete() MoveResult
}

// PendingResolver is implemented by engines with delayed resolution steps.
type PendingResolver interface {
	ResolvePending() bool
}

// Options configures engine construction.
type Options struct {
	Rand             *rand.Rand
	DeckSize         int
	PlacementTimeout time.Duration
	FlipBackDelay    time.Duration
}

const (
	DefaultDeckSize         = 16
	DefaultPlacementTimeout = 60 * time.Second
	DefaultFlipBackDelay    = 1200 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.DeckSize <= 0 {
		o.DeckSize = DefaultDeckSize
	}
	if o.PlacementTimeout <= 0 {
		o.PlacementTimeout = DefaultPlacementTimeout
	}
	if o.FlipBackDelay <= 0 {
		o.FlipBackDelay = DefaultFlipBackDelay
	}
	return o
}

// NewEngine builds an initialized engine for a playable game type.
func NewEngine(t models.GameType, opts Options) (Engine, error) {
	opts = opts.withDefaults()
	var e Engine
	switch t {
	case models.GameMorris:
		e = NewMorris(opts.Rand)
	case models.GameMemory:
		e = NewMemory(opts.Rand, opts.DeckSize, opts.FlipBackDelay)
	case models.GameNaval:
		e = NewNaval(opts.Rand, opts.PlacementTimeout)
	default:
		return nil, fmt.Errorf("unknown game type %q", t)
	}
	e.Initialize()
	return e, nil
}

// decodeMove unmarshals a raw move into dst, mapping failures to invalid_move.
func decodeMove(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return moveErr(CodeInvalidMove, "empty move")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return moveErr(CodeInvalidMove, "malformed move: %v", err)
	}
	return nil
}

func intPtr(v int) *int {
	return &v
}
