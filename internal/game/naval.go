package game

import (
	"encoding/json"
	"math/rand"
	"sort"
	"time"

	"github.com/jason-s-yu/arena/internal/models"
)

// NavalPhase is the stage of a naval combat game.
type NavalPhase string

const (
	NavalPlacement NavalPhase = "placement"
	NavalPlaying   NavalPhase = "playing"
)

// NavalCell is the content of one grid cell.
type NavalCell string

const (
	CellEmpty NavalCell = "empty"
	CellShip  NavalCell = "ship"
	CellHit   NavalCell = "hit"
	CellMiss  NavalCell = "miss"
)

const (
	NavalSize  = 7
	navalCells = NavalSize * NavalSize
)

// ShipSpec is one entry of the fleet.
type ShipSpec struct {
	ID     string `json:"id"`
	Length int    `json:"length"`
}

// Fleet is placed by both sides. Ship ids double as their type names.
var Fleet = []ShipSpec{
	{ID: "battleship", Length: 4},
	{ID: "cruiser", Length: 3},
	{ID: "submarine", Length: 3},
	{ID: "destroyer", Length: 2},
}

func fleetSpec(id string) (ShipSpec, bool) {
	for _, s := range Fleet {
		if s.ID == id {
			return s, true
		}
	}
	return ShipSpec{}, false
}

// Ship is a placed ship.
type Ship struct {
	ID    string `json:"id"`
	Cells []int  `json:"cells"`
	Hits  int    `json:"hits"`
}

func (s *Ship) sunk() bool {
	return s.Hits >= len(s.Cells)
}

// NavalBoard is one side's grid and fleet.
type NavalBoard struct {
	Cells    [navalCells]NavalCell
	Ships    map[string]*Ship
	Sunk     []string
	Finished bool
}

func newNavalBoard() *NavalBoard {
	b := &NavalBoard{Ships: make(map[string]*Ship)}
	for i := range b.Cells {
		b.Cells[i] = CellEmpty
	}
	return b
}

func (b *NavalBoard) shipAt(cell int) *Ship {
	for _, s := range b.Ships {
		for _, c := range s.Cells {
			if c == cell {
				return s
			}
		}
	}
	return nil
}

func (b *NavalBoard) clear(id string) {
	s, ok := b.Ships[id]
	if !ok {
		return
	}
	for _, c := range s.Cells {
		b.Cells[c] = CellEmpty
	}
	delete(b.Ships, id)
}

func (b *NavalBoard) put(id string, cells []int) {
	b.clear(id)
	b.Ships[id] = &Ship{ID: id, Cells: cells}
	for _, c := range cells {
		b.Cells[c] = CellShip
	}
}

func (b *NavalBoard) complete() bool {
	return len(b.Ships) == len(Fleet)
}

// Guess is the most recent shot.
type Guess struct {
	Side models.Side `json:"side"`
	Cell int         `json:"cell"`
	Hit  bool        `json:"hit"`
	Sunk string      `json:"sunk,omitempty"`
}

// Naval is the hidden-fleet shooting game. Both sides place at the same
// time under a shared deadline, then A shoots first.
type Naval struct {
	Boards    [2]*NavalBoard
	Phase     NavalPhase
	Active    models.Side
	Winner    models.Side
	LastGuess *Guess
	deadline  time.Time

	timeout time.Duration
	over    bool
	rng     *rand.Rand
}

type navalMove struct {
	Action      string `json:"action"`
	Ship        string `json:"ship"`
	Cells       []int  `json:"cells"`
	Start       *int   `json:"start"`
	Orientation string `json:"orientation"`
	Cell        *int   `json:"cell"`
}

func NewNaval(rng *rand.Rand, timeout time.Duration) *Naval {
	n := &Naval{rng: rng, timeout: timeout}
	n.Initialize()
	return n
}

func (n *Naval) Type() models.GameType { return models.GameNaval }

func (n *Naval) Initialize() {
	n.Boards = [2]*NavalBoard{newNavalBoard(), newNavalBoard()}
	n.Phase = NavalPlacement
	n.Active = models.SideNone
	n.Winner = models.SideNone
	n.LastGuess = nil
	n.deadline = time.Time{}
	n.over = false
}

// Start opens placement and arms its deadline.
func (n *Naval) Start(now time.Time) {
	n.Phase = NavalPlacement
	n.deadline = now.Add(n.timeout)
}

// Deadline is the placement cutoff while placement is open.
func (n *Naval) Deadline() (time.Time, bool) {
	if n.over || n.Phase != NavalPlacement || n.deadline.IsZero() {
		return time.Time{}, false
	}
	return n.deadline, true
}

func (n *Naval) Turn() models.Side {
	if n.over || n.Phase != NavalPlaying {
		return models.SideNone
	}
	return n.Active
}

func (n *Naval) CheckTerminal() Outcome {
	return Outcome{Over: n.over, Winner: n.Winner}
}

func (n *Naval) board(side models.Side) *NavalBoard {
	return n.Boards[side.Index()]
}

// ApplyMove dispatches on the move's action field.
func (n *Naval) ApplyMove(side models.Side, raw json.RawMessage) (MoveResult, error) {
	if n.over {
		return MoveResult{}, moveErr(CodeWrongPhase, "game is over")
	}
	if !side.Valid() {
		return MoveResult{}, moveErr(CodeNotYourTurn, "not a player")
	}
	var mv navalMove
	if err := decodeMove(raw, &mv); err != nil {
		return MoveResult{}, err
	}
	switch mv.Action {
	case "place", "remove", "finish":
		if n.Phase != NavalPlacement {
			return MoveResult{}, moveErr(CodeWrongPhase, "placement is over")
		}
		if n.board(side).Finished {
			return MoveResult{}, moveErr(CodeWrongPhase, "placement already finished")
		}
	case "guess":
		if n.Phase != NavalPlaying {
			return MoveResult{}, moveErr(CodeWrongPhase, "placement still open")
		}
	default:
		return MoveResult{}, moveErr(CodeInvalidMove, "unknown action %q", mv.Action)
	}

	switch mv.Action {
	case "place":
		return MoveResult{}, n.place(side, mv)
	case "remove":
		b := n.board(side)
		if _, ok := b.Ships[mv.Ship]; !ok {
			return MoveResult{}, moveErr(CodeInvalidMove, "ship %q is not placed", mv.Ship)
		}
		b.clear(mv.Ship)
		return MoveResult{}, nil
	case "finish":
		b := n.board(side)
		if !b.complete() {
			return MoveResult{}, moveErr(CodeInvalidMove, "place every ship first")
		}
		b.Finished = true
		return n.maybeBeginPlay(), nil
	default:
		return n.guess(side, mv)
	}
}

func (n *Naval) place(side models.Side, mv navalMove) error {
	spec, ok := fleetSpec(mv.Ship)
	if !ok {
		return moveErr(CodeInvalidMove, "unknown ship %q", mv.Ship)
	}
	cells := mv.Cells
	if len(cells) == 0 {
		if mv.Start == nil {
			return moveErr(CodeInvalidMove, "cells or start is required")
		}
		var err error
		if cells, err = lineFrom(*mv.Start, spec.Length, mv.Orientation); err != nil {
			return err
		}
	}
	if len(cells) != spec.Length {
		return moveErr(CodeInvalidMove, "%s needs %d cells", spec.ID, spec.Length)
	}
	for _, c := range cells {
		if c < 0 || c >= navalCells {
			return moveErr(CodeOutOfBounds, "cell %d", c)
		}
	}
	sorted := append([]int(nil), cells...)
	sort.Ints(sorted)
	if !straight(sorted) {
		return moveErr(CodeIllegalCell, "ship cells must form a straight contiguous line")
	}
	b := n.board(side)
	for _, c := range sorted {
		if s := b.shipAt(c); s != nil && s.ID != spec.ID {
			return moveErr(CodeOverlappingShip, "cell %d holds %s", c, s.ID)
		}
	}
	b.put(spec.ID, sorted)
	return nil
}

// lineFrom expands a start cell and orientation into ship cells.
func lineFrom(start, length int, orientation string) ([]int, error) {
	if start < 0 || start >= navalCells {
		return nil, moveErr(CodeOutOfBounds, "cell %d", start)
	}
	row, col := start/NavalSize, start%NavalSize
	cells := make([]int, 0, length)
	switch orientation {
	case "h", "":
		if col+length > NavalSize {
			return nil, moveErr(CodeOutOfBounds, "ship runs off the board")
		}
		for i := 0; i < length; i++ {
			cells = append(cells, start+i)
		}
	case "v":
		if row+length > NavalSize {
			return nil, moveErr(CodeOutOfBounds, "ship runs off the board")
		}
		for i := 0; i < length; i++ {
			cells = append(cells, start+i*NavalSize)
		}
	default:
		return nil, moveErr(CodeInvalidMove, "orientation must be h or v")
	}
	return cells, nil
}

func straight(sorted []int) bool {
	if len(sorted) < 2 {
		return len(sorted) == 1
	}
	row := sorted[0] / NavalSize
	horizontal := true
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1]+1 || sorted[i]/NavalSize != row {
			horizontal = false
			break
		}
	}
	if horizontal {
		return true
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1]+NavalSize {
			return false
		}
	}
	return true
}

func (n *Naval) guess(side models.Side, mv navalMove) (MoveResult, error) {
	if side != n.Active {
		return MoveResult{}, moveErr(CodeNotYourTurn, "waiting for %s", n.Active)
	}
	if mv.Cell == nil {
		return MoveResult{}, moveErr(CodeInvalidMove, "cell is required")
	}
	cell := *mv.Cell
	if cell < 0 || cell >= navalCells {
		return MoveResult{}, moveErr(CodeOutOfBounds, "cell %d", cell)
	}
	target := n.board(side.Opponent())
	switch target.Cells[cell] {
	case CellHit, CellMiss:
		return MoveResult{}, moveErr(CodeDuplicateGuess, "cell %d was already targeted", cell)
	case CellShip:
		target.Cells[cell] = CellHit
		g := &Guess{Side: side, Cell: cell, Hit: true}
		if s := target.shipAt(cell); s != nil {
			s.Hits++
			if s.sunk() {
				target.Sunk = append(target.Sunk, s.ID)
				g.Sunk = s.ID
			}
		}
		n.LastGuess = g
		if len(target.Sunk) == len(target.Ships) {
			n.over = true
			n.Winner = side
		}
		return MoveResult{}, nil
	default:
		target.Cells[cell] = CellMiss
		n.LastGuess = &Guess{Side: side, Cell: cell}
		n.Active = side.Opponent()
		return MoveResult{Effects: []Effect{{Kind: EffectTurnPassed}}}, nil
	}
}

func (n *Naval) maybeBeginPlay() MoveResult {
	if !n.Boards[0].Finished || !n.Boards[1].Finished {
		return MoveResult{}
	}
	n.Phase = NavalPlaying
	n.Active = models.SideA
	n.deadline = time.Time{}
	return MoveResult{Effects: []Effect{{Kind: EffectCancelDeadline}, {Kind: EffectTurnPassed}}}
}

// AutoComplete randomly places the missing ships of every unfinished side
// and opens play.
func (n *Naval) AutoComplete() MoveResult {
	if n.over || n.Phase != NavalPlacement {
		return MoveResult{}
	}
	for _, b := range n.Boards {
		if b.Finished {
			continue
		}
		for _, spec := range Fleet {
			if _, ok := b.Ships[spec.ID]; ok {
				continue
			}
			if cells := n.randomSlot(b, spec.Length); cells != nil {
				b.put(spec.ID, cells)
			}
		}
		b.Finished = true
	}
	return n.maybeBeginPlay()
}

func (n *Naval) randomSlot(b *NavalBoard, length int) []int {
	var slots [][]int
	for start := 0; start < navalCells; start++ {
		for _, o := range []string{"h", "v"} {
			cells, err := lineFrom(start, length, o)
			if err != nil {
				continue
			}
			free := true
			for _, c := range cells {
				if b.Cells[c] != CellEmpty {
					free = false
					break
				}
			}
			if free {
				slots = append(slots, cells)
			}
		}
	}
	if len(slots) == 0 {
		return nil
	}
	return slots[n.rng.Intn(len(slots))]
}

// NavalSideView is one board as seen by a particular viewer.
type NavalSideView struct {
	Cells    []NavalCell `json:"cells"`
	Ships    []Ship      `json:"ships"`
	Sunk     []string    `json:"sunkShips"`
	Finished bool        `json:"finished"`
}

// NavalView redacts unhit ship positions of every board the viewer does
// not own.
type NavalView struct {
	Phase     NavalPhase                    `json:"phase"`
	Boards    map[models.Side]NavalSideView `json:"boards"`
	Fleet     []ShipSpec                    `json:"fleet"`
	Turn      models.Side                   `json:"turn"`
	Deadline  int64                         `json:"deadline,omitempty"`
	LastGuess *Guess                        `json:"lastGuess,omitempty"`
	Winner    models.Side                   `json:"winner,omitempty"`
}

func (n *Naval) View(viewer models.Side) any {
	v := NavalView{
		Phase:     n.Phase,
		Boards:    make(map[models.Side]NavalSideView, 2),
		Fleet:     Fleet,
		Turn:      n.Turn(),
		LastGuess: n.LastGuess,
		Winner:    n.Winner,
	}
	if d, ok := n.Deadline(); ok {
		v.Deadline = d.UnixMilli()
	}
	for i, b := range n.Boards {
		owner := models.SideAt(i)
		v.Boards[owner] = n.sideView(b, viewer == owner || n.over)
	}
	return v
}

func (n *Naval) sideView(b *NavalBoard, full bool) NavalSideView {
	sv := NavalSideView{
		Cells:    make([]NavalCell, navalCells),
		Ships:    []Ship{},
		Sunk:     append([]string{}, b.Sunk...),
		Finished: b.Finished,
	}
	for i, c := range b.Cells {
		if c == CellShip && !full {
			c = CellEmpty
		}
		sv.Cells[i] = c
	}
	for _, spec := range Fleet {
		s, ok := b.Ships[spec.ID]
		if !ok || (!full && !s.sunk()) {
			continue
		}
		sv.Ships = append(sv.Ships, Ship{ID: s.ID, Cells: append([]int(nil), s.Cells...), Hits: s.Hits})
	}
	return sv
}
