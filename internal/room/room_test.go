package room

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/game"
	"github.com/jason-s-yu/arena/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records every message instead of writing to a socket.
type fakeConn struct {
	id   uuid.UUID
	mu   sync.Mutex
	room int64
	msgs []map[string]interface{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{id: uuid.New()}
}

func (c *fakeConn) ID() uuid.UUID { return c.id }

func (c *fakeConn) Write(msg map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *fakeConn) Attach(roomID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = roomID
}

func (c *fakeConn) Detach(roomID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room != roomID {
		return false
	}
	c.room = 0
	return true
}

func (c *fakeConn) roomID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *fakeConn) count(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.msgs {
		if m["type"] == kind {
			n++
		}
	}
	return n
}

func (c *fakeConn) last(kind string) map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.msgs) - 1; i >= 0; i-- {
		if c.msgs[i]["type"] == kind {
			return c.msgs[i]
		}
	}
	return nil
}

func occupant(c *fakeConn, name string) *Occupant {
	return &Occupant{Conn: c, UserID: uuid.New(), Name: name}
}

func cell(n int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"cell":%d}`, n))
}

type recorder struct {
	mu      sync.Mutex
	results []Result
	moves   []models.MoveRecord
	changes int
}

func newTestRegistry(cfg Config) (*Registry, *recorder) {
	reg := NewRegistry(cfg)
	rec := &recorder{}
	reg.OnFinish = func(res Result) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.results = append(rec.results, res)
	}
	reg.OnMove = func(m models.MoveRecord) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.moves = append(rec.moves, m)
	}
	reg.OnChange = func() {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.changes++
	}
	return reg, rec
}

func (rec *recorder) resultCount() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.results)
}

// startedRoom creates a room of type t with two seated players.
func startedRoom(t *testing.T, reg *Registry, gt models.GameType) (*Room, *fakeConn, *fakeConn) {
	t.Helper()
	r, err := reg.CreateRoom(gt, "", Options{})
	require.NoError(t, err)
	a, b := newFakeConn(), newFakeConn()
	_, err = reg.Join(r.ID, occupant(a, "alice"), false)
	require.NoError(t, err)
	_, err = reg.Join(r.ID, occupant(b, "bob"), false)
	require.NoError(t, err)
	return r, a, b
}

// playMorrisWin makes side A complete the top row.
func playMorrisWin(t *testing.T, reg *Registry, r *Room, a, b *fakeConn) {
	t.Helper()
	moves := []struct {
		c    *fakeConn
		cell int
	}{{a, 0}, {b, 3}, {a, 1}, {b, 4}, {a, 2}}
	for _, m := range moves {
		require.NoError(t, reg.Move(r.ID, m.c.ID(), cell(m.cell)))
	}
}

func TestJoinSeatsSidesAndStarts(t *testing.T) {
	reg, _ := newTestRegistry(Config{})
	r, a, b := startedRoom(t, reg, models.GameMorris)

	assert.Equal(t, models.StatusInProgress, r.Status)
	assert.Equal(t, models.SideA, r.Players[0].Side)
	assert.Equal(t, models.SideB, r.Players[1].Side)
	assert.Equal(t, r.ID, a.roomID())
	assert.Equal(t, r.ID, b.roomID())

	state := b.last(MsgRoomState)
	require.NotNil(t, state)
	assert.Equal(t, models.SideB, state["you"])
	assert.Equal(t, models.StatusInProgress, state["status"])
	assert.Equal(t, models.SideA, state["turn"])

	late := newFakeConn()
	_, err := reg.Join(r.ID, occupant(late, "carol"), false)
	assert.ErrorIs(t, err, ErrGameAlreadyStarted)
	assert.Zero(t, late.roomID())

	_, err = reg.Join(r.ID, occupant(late, "carol"), true)
	require.NoError(t, err)
	assert.Equal(t, "spectator", late.last(MsgRoomState)["role"])
}

func TestJoinUnknownRoom(t *testing.T) {
	reg, _ := newTestRegistry(Config{})
	_, err := reg.Join(424242, occupant(newFakeConn(), "x"), false)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMoveValidationAndHistory(t *testing.T) {
	reg, rec := newTestRegistry(Config{})
	r, a, b := startedRoom(t, reg, models.GameMorris)

	err := reg.Move(r.ID, b.ID(), cell(0))
	assert.ErrorIs(t, err, game.ErrNotYourTurn)

	spectator := newFakeConn()
	_, err = reg.Join(r.ID, occupant(spectator, "sam"), true)
	require.NoError(t, err)
	assert.ErrorIs(t, reg.Move(r.ID, spectator.ID(), cell(0)), ErrNotAPlayer)
	assert.ErrorIs(t, reg.Move(r.ID, uuid.New(), cell(0)), ErrNotInRoom)

	require.NoError(t, reg.Move(r.ID, a.ID(), cell(4)))
	require.Len(t, r.History, 1)
	assert.Equal(t, models.SideA, r.History[0].Side)
	assert.Len(t, rec.moves, 1)
	assert.Equal(t, r.ID, rec.moves[0].RoomID)

	assert.Equal(t, models.SideB, spectator.last(MsgRoomState)["turn"])
}

func TestGameEndRecordsResultOnce(t *testing.T) {
	reg, rec := newTestRegistry(Config{Grace: time.Hour})
	r, a, b := startedRoom(t, reg, models.GameMorris)

	playMorrisWin(t, reg, r, a, b)

	assert.Equal(t, models.StatusFinished, r.Status)
	assert.Equal(t, models.SideA, r.Winner)
	require.Equal(t, 1, rec.resultCount())
	assert.Equal(t, "alice", rec.results[0].WinnerName)
	assert.Len(t, rec.results[0].Players, 2)
	assert.Equal(t, 1, a.count(MsgGameFinished))
	assert.Equal(t, 1, b.count(MsgGameFinished))

	err := reg.Move(r.ID, b.ID(), cell(5))
	assert.ErrorIs(t, err, game.ErrWrongPhase)
	_, ok := reg.Get(r.ID)
	assert.True(t, ok, "finished room stays for the grace window")
}

func TestDisconnectForfeitsInProgressGame(t *testing.T) {
	reg, rec := newTestRegistry(Config{})
	r, a, b := startedRoom(t, reg, models.GameMorris)
	spectator := newFakeConn()
	_, err := reg.Join(r.ID, occupant(spectator, "sam"), true)
	require.NoError(t, err)

	require.NoError(t, reg.Leave(r.ID, a.ID()))

	_, ok := reg.Get(r.ID)
	assert.False(t, ok)
	assert.True(t, r.Destroyed())
	assert.Equal(t, 1, b.count(MsgPlayerDisconnected))
	assert.Equal(t, 0, b.count(MsgGameFinished))
	assert.Equal(t, 1, spectator.count(MsgGameFinished))
	assert.Equal(t, true, b.last(MsgPlayerDisconnected)["forcedLeave"])
	assert.Equal(t, models.SideB, b.last(MsgPlayerDisconnected)["winner"])
	assert.Zero(t, b.roomID())
	assert.Zero(t, spectator.roomID())

	require.Equal(t, 1, rec.resultCount())
	assert.Equal(t, ReasonOpponentDisconnected, rec.results[0].Reason)
	assert.Equal(t, "bob", rec.results[0].WinnerName)

	assert.ErrorIs(t, reg.Leave(r.ID, a.ID()), ErrRoomNotFound)
}

func TestConcurrentLeaveAndDisconnectNotifyOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		reg, rec := newTestRegistry(Config{})
		r, a, b := startedRoom(t, reg, models.GameMemory)
		spectator := newFakeConn()
		_, err := reg.Join(r.ID, occupant(spectator, "sam"), true)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = reg.Leave(r.ID, a.ID())
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, b.count(MsgPlayerDisconnected))
		assert.Equal(t, 1, spectator.count(MsgGameFinished))
		assert.Equal(t, 1, rec.resultCount())
		assert.Zero(t, reg.Len())
	}
}

func TestLeaveWaitingRoomDestroysWhenEmpty(t *testing.T) {
	reg, _ := newTestRegistry(Config{})
	r, err := reg.CreateRoom(models.GameNaval, "", Options{})
	require.NoError(t, err)
	a := newFakeConn()
	_, err = reg.Join(r.ID, occupant(a, "alice"), false)
	require.NoError(t, err)

	require.NoError(t, reg.Leave(r.ID, a.ID()))

	_, ok := reg.Get(r.ID)
	assert.False(t, ok)
	assert.Zero(t, a.roomID())
}

func TestCreatorLeavingBeforeStartClosesRoom(t *testing.T) {
	reg, _ := newTestRegistry(Config{})
	creator := newFakeConn()
	r, err := reg.CreateRoom(models.GameMorris, "lobby", Options{CreatorID: creator.ID()})
	require.NoError(t, err)
	_, err = reg.Join(r.ID, occupant(creator, "alice"), false)
	require.NoError(t, err)
	spectator := newFakeConn()
	_, err = reg.Join(r.ID, occupant(spectator, "sam"), true)
	require.NoError(t, err)

	require.NoError(t, reg.Leave(r.ID, creator.ID()))

	closed := spectator.last(MsgRoomClosed)
	require.NotNil(t, closed)
	assert.Equal(t, ReasonCreatorLeft, closed["reason"])
	assert.Zero(t, spectator.roomID())
	_, ok := reg.Get(r.ID)
	assert.False(t, ok)
}

func TestTournamentRoomReservesSeats(t *testing.T) {
	reg, _ := newTestRegistry(Config{})
	r, err := reg.CreateRoom(models.GameMorris, "", Options{
		TournamentID: uuid.New(),
		MatchID:      uuid.New(),
		Reserved:     [2]string{"alice", "bob"},
	})
	require.NoError(t, err)

	_, err = reg.Join(r.ID, occupant(newFakeConn(), "mallory"), false)
	assert.ErrorIs(t, err, ErrSeatReserved)

	b := newFakeConn()
	_, err = reg.Join(r.ID, occupant(b, "bob"), false)
	require.NoError(t, err)
	assert.Equal(t, models.SideB, r.Players[0].Side, "reserved names keep their bracket side")

	require.NoError(t, reg.Leave(r.ID, b.ID()))
	_, ok := reg.Get(r.ID)
	assert.True(t, ok, "waiting match rooms survive being empty")
}

func TestLeavingFinishedRoomTellsRematchPartner(t *testing.T) {
	reg, _ := newTestRegistry(Config{Grace: time.Hour})
	r, a, b := startedRoom(t, reg, models.GameMorris)
	playMorrisWin(t, reg, r, a, b)

	_, err := reg.RequestRematch(r.ID, a.ID())
	require.NoError(t, err)
	require.NoError(t, reg.Leave(r.ID, b.ID()))

	assert.Equal(t, 1, a.count(MsgRematchPartnerLeft))
	_, ok := reg.Get(r.ID)
	assert.True(t, ok)

	require.NoError(t, reg.Leave(r.ID, a.ID()))
	_, ok = reg.Get(r.ID)
	assert.False(t, ok)
}

func TestVoterLeavingTellsWaitingPartner(t *testing.T) {
	reg, _ := newTestRegistry(Config{Grace: time.Hour})
	r, a, b := startedRoom(t, reg, models.GameMorris)
	playMorrisWin(t, reg, r, a, b)

	_, err := reg.RequestRematch(r.ID, a.ID())
	require.NoError(t, err)
	require.Equal(t, 1, b.count(MsgRematchRequested))
	require.NoError(t, reg.Leave(r.ID, a.ID()))

	assert.Equal(t, 1, b.count(MsgRematchPartnerLeft))
	assert.Equal(t, "alice", b.last(MsgRematchPartnerLeft)["name"])
	assert.Zero(t, a.count(MsgRematchPartnerLeft))
}

func TestLeavingWithoutVotesSendsNoRematchNotice(t *testing.T) {
	reg, _ := newTestRegistry(Config{Grace: time.Hour})
	r, a, b := startedRoom(t, reg, models.GameMorris)
	playMorrisWin(t, reg, r, a, b)

	require.NoError(t, reg.Leave(r.ID, a.ID()))
	assert.Zero(t, b.count(MsgRematchPartnerLeft))
}

func TestGraceWindowDestroysFinishedRoom(t *testing.T) {
	reg, _ := newTestRegistry(Config{Grace: 20 * time.Millisecond})
	r, a, b := startedRoom(t, reg, models.GameMorris)
	playMorrisWin(t, reg, r, a, b)

	assert.Eventually(t, func() bool {
		_, ok := reg.Get(r.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, ReasonExpired, a.last(MsgRoomClosed)["reason"])
}

func TestMemoryFlipBackTimer(t *testing.T) {
	reg, _ := newTestRegistry(Config{Engine: game.Options{FlipBackDelay: 10 * time.Millisecond}})
	r, a, b := startedRoom(t, reg, models.GameMemory)

	mem := r.Engine.(*game.Memory)
	first := mem.Deck[0]
	other := -1
	for _, c := range mem.Deck {
		if c.Symbol != first.Symbol {
			other = c.ID
			break
		}
	}
	require.NoError(t, reg.Move(r.ID, a.ID(), json.RawMessage(`{"cardId":0}`)))
	require.NoError(t, reg.Move(r.ID, a.ID(), json.RawMessage(fmt.Sprintf(`{"cardId":%d}`, other))))

	assert.Eventually(t, func() bool {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		return len(mem.Pending) == 0 && !mem.Deck[0].Revealed
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.SideB, b.last(MsgRoomState)["turn"])
}

func TestNavalPlacementDeadline(t *testing.T) {
	reg, _ := newTestRegistry(Config{Engine: game.Options{PlacementTimeout: 20 * time.Millisecond}})
	r, _, _ := startedRoom(t, reg, models.GameNaval)

	naval := r.Engine.(*game.Naval)
	assert.Eventually(t, func() bool {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		return naval.Phase == game.NavalPlaying
	}, time.Second, 5*time.Millisecond)
}

func matchRoom(t *testing.T, reg *Registry) *Room {
	t.Helper()
	r, err := reg.CreateRoom(models.GameMorris, "cup R1 M1", Options{
		TournamentID: uuid.New(),
		MatchID:      uuid.New(),
		Reserved:     [2]string{"alice", "bob"},
	})
	require.NoError(t, err)
	return r
}

func TestNoShowAwardsSeatedPlayer(t *testing.T) {
	reg, rec := newTestRegistry(Config{SeatTimeout: 20 * time.Millisecond, Grace: time.Hour})
	r := matchRoom(t, reg)
	b := newFakeConn()
	_, err := reg.Join(r.ID, occupant(b, "bob"), false)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return rec.resultCount() == 1 }, time.Second, 5*time.Millisecond)
	res := rec.results[0]
	assert.Equal(t, models.SideB, res.Winner)
	assert.Equal(t, "bob", res.WinnerName)
	assert.Equal(t, ReasonNoShow, res.Reason)
	assert.Equal(t, r.MatchID, res.MatchID)
	assert.Equal(t, ReasonNoShow, b.last(MsgGameFinished)["reason"])

	late := newFakeConn()
	_, err = reg.Join(r.ID, occupant(late, "alice"), false)
	assert.ErrorIs(t, err, ErrGameAlreadyStarted)
}

func TestNoShowOnEmptyMatchGoesToSideA(t *testing.T) {
	reg, rec := newTestRegistry(Config{SeatTimeout: 20 * time.Millisecond, Grace: time.Hour})
	matchRoom(t, reg)

	assert.Eventually(t, func() bool { return rec.resultCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "alice", rec.results[0].WinnerName)
	assert.Empty(t, rec.results[0].Players)
}

func TestSeatClockStopsOnceMatchStarts(t *testing.T) {
	reg, rec := newTestRegistry(Config{SeatTimeout: 20 * time.Millisecond})
	r := matchRoom(t, reg)
	a, b := newFakeConn(), newFakeConn()
	_, err := reg.Join(r.ID, occupant(a, "alice"), false)
	require.NoError(t, err)
	_, err = reg.Join(r.ID, occupant(b, "bob"), false)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, rec.resultCount())
	assert.Equal(t, models.StatusInProgress, r.Summary().Status)
}
