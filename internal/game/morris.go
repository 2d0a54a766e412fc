package game

import (
	"encoding/json"
	"math/rand"
	"time"

	"github.com/jason-s-yu/arena/internal/models"
)

// MorrisPhase is the stage of a placement/movement game.
type MorrisPhase string

const (
	MorrisPlacement MorrisPhase = "placement"
	MorrisMovement  MorrisPhase = "movement"
)

const (
	morrisCells = 9
	// morrisPieces is how many pieces each side places.
	morrisPieces = 3
	// a completed line only forces a removal when the opponent holds more
	// pieces than this; otherwise the line wins outright.
	morrisRemovalThreshold = 3
)

// Cells are numbered row-major on a 3x3 grid. The outer ring
// 0-1-2-5-8-7-6-3-0 is connected and the center touches every cell.
var morrisAdjacency = [morrisCells][]int{
	0: {1, 3, 4},
	1: {0, 2, 4},
	2: {1, 4, 5},
	3: {0, 4, 6},
	4: {0, 1, 2, 3, 5, 6, 7, 8},
	5: {2, 4, 8},
	6: {3, 4, 7},
	7: {4, 6, 8},
	8: {4, 5, 7},
}

var morrisLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Morris is a three-piece placement-then-movement game on nine cells.
type Morris struct {
	Board      [morrisCells]models.Side
	Phase      MorrisPhase
	Placed     [2]int
	Selected   int
	MustRemove bool
	Active     models.Side
	Winner     models.Side

	over bool
	rng  *rand.Rand
}

type morrisMove struct {
	Cell *int `json:"cell"`
}

// MorrisView is the public payload; the board holds no hidden information.
type MorrisView struct {
	Board      [morrisCells]models.Side `json:"board"`
	Phase      MorrisPhase              `json:"phase"`
	Placed     map[models.Side]int      `json:"placed"`
	Selected   *int                     `json:"selected,omitempty"`
	MustRemove bool                     `json:"mustRemove"`
	Turn       models.Side              `json:"turn"`
	Winner     models.Side              `json:"winner,omitempty"`
}

func NewMorris(rng *rand.Rand) *Morris {
	m := &Morris{rng: rng}
	m.Initialize()
	return m
}

func (m *Morris) Type() models.GameType { return models.GameMorris }

func (m *Morris) Initialize() {
	m.Board = [morrisCells]models.Side{}
	m.Phase = MorrisPlacement
	m.Placed = [2]int{}
	m.Selected = -1
	m.MustRemove = false
	m.Active = models.SideA
	m.Winner = models.SideNone
	m.over = false
}

func (m *Morris) Start(time.Time) {
	m.Active = models.SideA
}

func (m *Morris) Turn() models.Side {
	if m.over {
		return models.SideNone
	}
	return m.Active
}

func (m *Morris) CheckTerminal() Outcome {
	return Outcome{Over: m.over, Winner: m.Winner}
}

// ApplyMove interprets a cell click according to the current phase.
func (m *Morris) ApplyMove(side models.Side, raw json.RawMessage) (MoveResult, error) {
	if m.over {
		return MoveResult{}, moveErr(CodeWrongPhase, "game is over")
	}
	if side != m.Active {
		return MoveResult{}, moveErr(CodeNotYourTurn, "waiting for %s", m.Active)
	}
	var mv morrisMove
	if err := decodeMove(raw, &mv); err != nil {
		return MoveResult{}, err
	}
	if mv.Cell == nil {
		return MoveResult{}, moveErr(CodeInvalidMove, "cell is required")
	}
	cell := *mv.Cell
	if cell < 0 || cell >= morrisCells {
		return MoveResult{}, moveErr(CodeOutOfBounds, "cell %d", cell)
	}

	switch {
	case m.MustRemove:
		return m.remove(side, cell)
	case m.Phase == MorrisPlacement:
		return m.place(side, cell)
	default:
		return m.moveOrSelect(side, cell)
	}
}

func (m *Morris) remove(side models.Side, cell int) (MoveResult, error) {
	opp := side.Opponent()
	if m.Board[cell] != opp {
		return MoveResult{}, moveErr(CodeIllegalCell, "cell %d is not an opposing piece", cell)
	}
	m.Board[cell] = models.SideNone
	m.MustRemove = false
	if m.Phase == MorrisPlacement {
		// the piece returns to hand
		m.Placed[opp.Index()]--
	}
	return m.passTurn(side), nil
}

func (m *Morris) place(side models.Side, cell int) (MoveResult, error) {
	if m.Board[cell] != models.SideNone {
		return MoveResult{}, moveErr(CodeIllegalCell, "cell %d is occupied", cell)
	}
	if m.Placed[side.Index()] >= morrisPieces {
		return MoveResult{}, moveErr(CodeWrongPhase, "all pieces placed")
	}
	m.Board[cell] = side
	m.Placed[side.Index()]++
	return m.afterMove(side), nil
}

func (m *Morris) moveOrSelect(side models.Side, cell int) (MoveResult, error) {
	switch m.Board[cell] {
	case side:
		if m.Selected == cell {
			m.Selected = -1
		} else {
			m.Selected = cell
		}
		return MoveResult{}, nil
	case models.SideNone:
		if m.Selected < 0 {
			return MoveResult{}, moveErr(CodeIllegalCell, "select a piece first")
		}
		if !morrisAdjacent(m.Selected, cell) {
			return MoveResult{}, moveErr(CodeIllegalCell, "cell %d is not adjacent to %d", cell, m.Selected)
		}
		m.Board[m.Selected] = models.SideNone
		m.Board[cell] = side
		m.Selected = -1
		return m.afterMove(side), nil
	default:
		return MoveResult{}, moveErr(CodeIllegalCell, "cell %d is occupied", cell)
	}
}

// afterMove settles a completed placement or movement by side.
func (m *Morris) afterMove(side models.Side) MoveResult {
	if m.hasLine(side) {
		if m.count(side.Opponent()) > morrisRemovalThreshold {
			m.MustRemove = true
			return MoveResult{}
		}
		m.over = true
		m.Winner = side
		return MoveResult{}
	}
	return m.passTurn(side)
}

func (m *Morris) passTurn(side models.Side) MoveResult {
	var res MoveResult
	if m.Phase == MorrisPlacement && m.Placed[0] >= morrisPieces && m.Placed[1] >= morrisPieces {
		m.Phase = MorrisMovement
	}
	m.Active = side.Opponent()
	m.Selected = -1
	res.add(Effect{Kind: EffectTurnPassed})

	if m.Phase == MorrisMovement && m.count(m.Active) == 0 {
		m.over = true
		m.Winner = side
		return res
	}
	for m.stalemated() {
		cell := m.vacateRandom()
		if cell < 0 {
			break
		}
		res.add(Effect{Kind: EffectTieBreak, Cell: intPtr(cell)})
	}
	return res
}

// stalemated is true when the board is full or the side to move cannot
// slide any piece.
func (m *Morris) stalemated() bool {
	if m.full() {
		return true
	}
	return m.Phase == MorrisMovement && !m.canMove(m.Active)
}

func (m *Morris) vacateRandom() int {
	var occupied []int
	for i, s := range m.Board {
		if s != models.SideNone {
			occupied = append(occupied, i)
		}
	}
	if len(occupied) == 0 {
		return -1
	}
	cell := occupied[m.rng.Intn(len(occupied))]
	m.Board[cell] = models.SideNone
	return cell
}

func (m *Morris) canMove(side models.Side) bool {
	for i, s := range m.Board {
		if s != side {
			continue
		}
		for _, n := range morrisAdjacency[i] {
			if m.Board[n] == models.SideNone {
				return true
			}
		}
	}
	return false
}

func (m *Morris) hasLine(side models.Side) bool {
	for _, line := range morrisLines {
		if m.Board[line[0]] == side && m.Board[line[1]] == side && m.Board[line[2]] == side {
			return true
		}
	}
	return false
}

func (m *Morris) count(side models.Side) int {
	n := 0
	for _, s := range m.Board {
		if s == side {
			n++
		}
	}
	return n
}

func (m *Morris) full() bool {
	for _, s := range m.Board {
		if s == models.SideNone {
			return false
		}
	}
	return true
}

func morrisAdjacent(a, b int) bool {
	for _, n := range morrisAdjacency[a] {
		if n == b {
			return true
		}
	}
	return false
}

func (m *Morris) View(models.Side) any {
	v := MorrisView{
		Board:      m.Board,
		Phase:      m.Phase,
		Placed:     map[models.Side]int{models.SideA: m.Placed[0], models.SideB: m.Placed[1]},
		MustRemove: m.MustRemove,
		Turn:       m.Turn(),
		Winner:     m.Winner,
	}
	if m.Selected >= 0 {
		v.Selected = intPtr(m.Selected)
	}
	return v
}
