// internal/room/room.go
package room

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/game"
	"github.com/jason-s-yu/arena/internal/models"
	log "github.com/sirupsen/logrus"
)

// Conn is the outbound half of a client connection as seen by a room.
type Conn interface {
	ID() uuid.UUID
	// Write queues a message without blocking.
	Write(msg map[string]interface{})
	// Attach points the connection's room association at roomID.
	Attach(roomID int64)
	// Detach clears the association if it still points at roomID and
	// reports whether it did.
	Detach(roomID int64) bool
}

// Occupant is a player or spectator inside a room.
type Occupant struct {
	Conn   Conn
	UserID uuid.UUID
	Name   string
	Avatar string
	Side   models.Side
}

func (o *Occupant) info() map[string]interface{} {
	return map[string]interface{}{
		"name":   o.Name,
		"side":   o.Side,
		"avatar": o.Avatar,
	}
}

// Config carries the tunables shared by every room of a registry.
type Config struct {
	// Grace is how long a finished room lingers for review and rematch.
	Grace time.Duration
	// SeatTimeout bounds how long a tournament match waits for its
	// reserved players.
	SeatTimeout time.Duration
	Engine      game.Options
}

const (
	DefaultGrace       = 60 * time.Second
	DefaultSeatTimeout = 2 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.Grace <= 0 {
		c.Grace = DefaultGrace
	}
	if c.SeatTimeout <= 0 {
		c.SeatTimeout = DefaultSeatTimeout
	}
	return c
}

// Options describe a single room at creation.
type Options struct {
	// ID requests an explicit id; zero picks a random free one.
	ID        int64
	CreatorID uuid.UUID
	// Tournament match rooms only seat the reserved names, by side.
	TournamentID uuid.UUID
	MatchID      uuid.UUID
	Reserved     [2]string
}

// Result describes a concluded game. It is produced once per room.
type Result struct {
	RoomID       int64
	GameType     models.GameType
	Winner       models.Side
	WinnerName   string
	Draw         bool
	Players      []models.PlayerResult
	Reason       string
	TournamentID uuid.UUID
	MatchID      uuid.UUID
}

// MoveOutcome is what an accepted move produced.
type MoveOutcome struct {
	Record models.MoveRecord
	Result *Result
}

// LeaveOutcome tells the registry how to follow up on a removal.
type LeaveOutcome struct {
	Result   *Result
	Teardown bool
}

// Room owns one game: its players, spectators, engine and timers.
type Room struct {
	ID        int64
	Name      string
	Type      models.GameType
	CreatorID uuid.UUID
	CreatedAt time.Time

	Players    []*Occupant
	Spectators []*Occupant

	Status     models.RoomStatus
	Winner     models.Side
	Engine     game.Engine
	History    []models.MoveRecord
	FinishedAt time.Time

	// RematchVotes is keyed by connection id.
	RematchVotes map[uuid.UUID]bool

	TournamentID uuid.UUID
	MatchID      uuid.UUID
	Reserved     [2]string

	cfg         Config
	lastEffects []game.Effect

	deadlineTimer *time.Timer
	flipTimer     *time.Timer
	graceTimer    *time.Timer
	seatTimer     *time.Timer
	destroyed     bool

	// onExpire runs without the lock once the grace window elapses.
	onExpire func(r *Room)
	// onConclude runs without the lock for results produced by a timer.
	onConclude func(res Result)

	Mu sync.Mutex
}

func newRoom(t models.GameType, name string, cfg Config, opts Options) (*Room, error) {
	engine, err := game.NewEngine(t, cfg.Engine)
	if err != nil {
		return nil, ErrWrongGameType
	}
	cfg = cfg.withDefaults()
	return &Room{
		ID:           opts.ID,
		Name:         name,
		Type:         t,
		CreatorID:    opts.CreatorID,
		CreatedAt:    time.Now(),
		Status:       models.StatusWaiting,
		Winner:       models.SideNone,
		Engine:       engine,
		RematchVotes: make(map[uuid.UUID]bool),
		TournamentID: opts.TournamentID,
		MatchID:      opts.MatchID,
		Reserved:     opts.Reserved,
		cfg:          cfg,
	}, nil
}

// IsTournamentMatch reports whether the room hosts a bracket match.
func (r *Room) IsTournamentMatch() bool {
	return r.TournamentID != uuid.Nil
}

// Join seats occ as the next player, or as a spectator. Joining twice with
// the same connection only resends the state.
func (r *Room) Join(occ *Occupant, asSpectator bool) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.destroyed {
		return ErrRoomNotFound
	}
	if existing := r.findUnsafe(occ.Conn.ID()); existing != nil {
		existing.Conn.Attach(r.ID)
		existing.Conn.Write(r.stateMessageUnsafe(existing))
		return nil
	}

	if asSpectator {
		occ.Side = models.SideNone
		r.Spectators = append(r.Spectators, occ)
		occ.Conn.Attach(r.ID)
		r.broadcastStateUnsafe()
		return nil
	}

	if r.Status != models.StatusWaiting {
		return ErrGameAlreadyStarted
	}
	if len(r.Players) >= 2 {
		return ErrRoomFull
	}
	side, err := r.seatForUnsafe(occ.Name)
	if err != nil {
		return err
	}
	occ.Side = side
	r.Players = append(r.Players, occ)
	sort.Slice(r.Players, func(i, j int) bool {
		return r.Players[i].Side.Index() < r.Players[j].Side.Index()
	})
	occ.Conn.Attach(r.ID)

	if len(r.Players) == 2 {
		r.startUnsafe(time.Now())
	}
	r.broadcastStateUnsafe()
	return nil
}

func (r *Room) seatForUnsafe(name string) (models.Side, error) {
	if r.IsTournamentMatch() {
		for i, reserved := range r.Reserved {
			side := models.SideAt(i)
			if reserved == name && r.playerOnSideUnsafe(side) == nil {
				return side, nil
			}
		}
		return models.SideNone, ErrSeatReserved
	}
	if r.playerOnSideUnsafe(models.SideA) == nil {
		return models.SideA, nil
	}
	return models.SideB, nil
}

// startUnsafe moves the room to in_progress and arms the engine deadline.
func (r *Room) startUnsafe(now time.Time) {
	r.Status = models.StatusInProgress
	if r.seatTimer != nil {
		r.seatTimer.Stop()
		r.seatTimer = nil
	}
	r.Engine.Start(now)
	if de, ok := r.Engine.(game.DeadlineEngine); ok {
		if d, ok := de.Deadline(); ok {
			r.armDeadlineUnsafe(d.Sub(now))
		}
	}
	log.WithFields(log.Fields{"room": r.ID, "game": r.Type}).Info("game started")
}

// ApplyMove routes a player's move to the engine and broadcasts the result.
func (r *Room) ApplyMove(connID uuid.UUID, raw json.RawMessage) (MoveOutcome, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.destroyed {
		return MoveOutcome{}, ErrRoomNotFound
	}
	p := r.playerUnsafe(connID)
	if p == nil {
		if r.findUnsafe(connID) != nil {
			return MoveOutcome{}, ErrNotAPlayer
		}
		return MoveOutcome{}, ErrNotInRoom
	}
	if r.Status != models.StatusInProgress {
		return MoveOutcome{}, &game.MoveError{Code: game.CodeWrongPhase, Message: "game is not in progress"}
	}
	if turn := r.Engine.Turn(); turn != models.SideNone && turn != p.Side {
		return MoveOutcome{}, &game.MoveError{Code: game.CodeNotYourTurn, Message: "waiting for " + string(turn)}
	}

	res, err := r.Engine.ApplyMove(p.Side, raw)
	if err != nil {
		return MoveOutcome{}, err
	}

	rec := models.MoveRecord{
		RoomID:    r.ID,
		Index:     len(r.History),
		ActorID:   p.UserID,
		Side:      p.Side,
		GameType:  r.Type,
		Payload:   append(json.RawMessage(nil), raw...),
		Timestamp: time.Now().UnixMilli(),
	}
	r.History = append(r.History, rec)
	r.applyEffectsUnsafe(res)

	out := MoveOutcome{Record: rec}
	if verdict := r.Engine.CheckTerminal(); verdict.Over {
		out.Result = r.concludeUnsafe(verdict, "", r.playerResultsUnsafe())
		r.broadcastStateUnsafe()
		r.broadcastUnsafe(map[string]interface{}{
			"type":        MsgGameFinished,
			"roomId":      r.ID,
			"winner":      r.Winner,
			"draw":        verdict.Draw,
			"forcedLeave": false,
		})
		return out, nil
	}
	r.broadcastStateUnsafe()
	return out, nil
}

func (r *Room) applyEffectsUnsafe(res game.MoveResult) {
	r.lastEffects = res.Effects
	for _, e := range res.Effects {
		switch e.Kind {
		case game.EffectFlipBack:
			r.armFlipBackUnsafe(e.Delay)
		case game.EffectCancelDeadline:
			if r.deadlineTimer != nil {
				r.deadlineTimer.Stop()
				r.deadlineTimer = nil
			}
		}
	}
}

// concludeUnsafe marks the room finished. It returns nil when the room was
// already finished so callers never report a result twice.
func (r *Room) concludeUnsafe(verdict game.Outcome, reason string, players []models.PlayerResult) *Result {
	if r.Status == models.StatusFinished {
		return nil
	}
	r.Status = models.StatusFinished
	r.Winner = verdict.Winner
	r.FinishedAt = time.Now()
	r.stopTimersUnsafe()
	if reason == "" {
		r.armGraceUnsafe()
	}

	res := &Result{
		RoomID:       r.ID,
		GameType:     r.Type,
		Winner:       verdict.Winner,
		Draw:         verdict.Draw,
		Players:      players,
		Reason:       reason,
		TournamentID: r.TournamentID,
		MatchID:      r.MatchID,
	}
	for _, p := range players {
		if p.Side == verdict.Winner {
			res.WinnerName = p.Username
		}
	}
	log.WithFields(log.Fields{"room": r.ID, "winner": verdict.Winner, "reason": reason}).Info("game finished")
	return res
}

// Leave removes a connection and applies the disconnection policy. A
// connection that is no longer an occupant gets ErrNotInRoom, which makes a
// leave racing a disconnect harmless.
func (r *Room) Leave(connID uuid.UUID) (LeaveOutcome, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.destroyed {
		return LeaveOutcome{}, ErrRoomNotFound
	}
	leaver := r.findUnsafe(connID)
	if leaver == nil {
		return LeaveOutcome{}, ErrNotInRoom
	}
	leaver.Conn.Detach(r.ID)
	isPlayer := leaver.Side.Valid()
	players := r.playerResultsUnsafe()
	hadVotes := len(r.RematchVotes) > 0
	r.removeUnsafe(connID)

	switch {
	case isPlayer && r.Status == models.StatusInProgress && len(r.Players) == 1:
		res := r.concludeUnsafe(game.Outcome{Over: true, Winner: leaver.Side.Opponent()}, ReasonOpponentDisconnected, players)
		for _, o := range r.occupantsUnsafe() {
			if !o.Conn.Detach(r.ID) {
				continue
			}
			kind := MsgGameFinished
			if o.Side.Valid() {
				kind = MsgPlayerDisconnected
			}
			o.Conn.Write(map[string]interface{}{
				"type":        kind,
				"roomId":      r.ID,
				"winner":      r.Winner,
				"reason":      ReasonOpponentDisconnected,
				"forcedLeave": true,
			})
		}
		r.Players, r.Spectators = nil, nil
		return LeaveOutcome{Result: res, Teardown: true}, nil

	case r.Status == models.StatusInProgress && isPlayer:
		// the last player of an in-progress room left
		r.evictUnsafe(ReasonOpponentDisconnected)
		return LeaveOutcome{Teardown: true}, nil

	case r.Status == models.StatusWaiting:
		if r.IsTournamentMatch() {
			r.broadcastStateUnsafe()
			return LeaveOutcome{}, nil
		}
		if connID == r.CreatorID && len(r.Spectators) > 0 {
			r.evictUnsafe(ReasonCreatorLeft)
			return LeaveOutcome{Teardown: true}, nil
		}

	case r.Status == models.StatusFinished && isPlayer:
		if hadVotes {
			for _, partner := range r.Players {
				partner.Conn.Write(map[string]interface{}{
					"type":   MsgRematchPartnerLeft,
					"roomId": r.ID,
					"name":   leaver.Name,
				})
			}
		}
		r.RematchVotes = make(map[uuid.UUID]bool)
	}

	if len(r.Players) == 0 && len(r.Spectators) == 0 && !(r.IsTournamentMatch() && r.Status == models.StatusWaiting) {
		return LeaveOutcome{Teardown: true}, nil
	}
	r.broadcastStateUnsafe()
	return LeaveOutcome{}, nil
}

// evictUnsafe detaches every remaining occupant with a room_closed notice.
func (r *Room) evictUnsafe(reason string) {
	for _, o := range r.occupantsUnsafe() {
		if o.Conn.Detach(r.ID) {
			o.Conn.Write(map[string]interface{}{
				"type":        MsgRoomClosed,
				"roomId":      r.ID,
				"reason":      reason,
				"forcedLeave": true,
			})
		}
	}
	r.Players, r.Spectators = nil, nil
}

// close tears the room down. It is a no-op on an already closed room.
func (r *Room) close(reason string) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.destroyed {
		return false
	}
	r.destroyed = true
	r.stopTimersUnsafe()
	r.evictUnsafe(reason)
	return true
}

// Destroyed reports whether the room has been torn down.
func (r *Room) Destroyed() bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.destroyed
}

func (r *Room) armDeadlineUnsafe(d time.Duration) {
	if r.deadlineTimer != nil {
		r.deadlineTimer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		if r.destroyed || r.deadlineTimer != timer || r.Status != models.StatusInProgress {
			return
		}
		r.deadlineTimer = nil
		de, ok := r.Engine.(game.DeadlineEngine)
		if !ok {
			return
		}
		log.WithField("room", r.ID).Info("deadline reached, auto-completing")
		r.applyEffectsUnsafe(de.AutoComplete())
		r.broadcastStateUnsafe()
	})
	r.deadlineTimer = timer
}

func (r *Room) armFlipBackUnsafe(d time.Duration) {
	if r.flipTimer != nil {
		r.flipTimer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		r.Mu.Lock()
		defer r.Mu.Unlock()
		if r.destroyed || r.flipTimer != timer {
			return
		}
		r.flipTimer = nil
		pr, ok := r.Engine.(game.PendingResolver)
		if !ok || !pr.ResolvePending() {
			return
		}
		r.lastEffects = nil
		r.broadcastStateUnsafe()
	})
	r.flipTimer = timer
}

func (r *Room) armGraceUnsafe() {
	var timer *time.Timer
	timer = time.AfterFunc(r.cfg.Grace, func() {
		r.Mu.Lock()
		expired := !r.destroyed && r.graceTimer == timer
		r.Mu.Unlock()
		if expired && r.onExpire != nil {
			r.onExpire(r)
		}
	})
	r.graceTimer = timer
}

// armSeatUnsafe starts the no-show clock of a tournament match.
func (r *Room) armSeatUnsafe() {
	var timer *time.Timer
	timer = time.AfterFunc(r.cfg.SeatTimeout, func() {
		r.Mu.Lock()
		if r.destroyed || r.seatTimer != timer || r.Status != models.StatusWaiting {
			r.Mu.Unlock()
			return
		}
		r.seatTimer = nil
		res := r.forfeitSeatsUnsafe()
		r.Mu.Unlock()
		if res != nil && r.onConclude != nil {
			r.onConclude(*res)
		}
	})
	r.seatTimer = timer
}

// forfeitSeatsUnsafe awards a match nobody completed seating for. A lone
// seated player wins; an empty room goes to side A.
func (r *Room) forfeitSeatsUnsafe() *Result {
	winner := models.SideA
	if len(r.Players) == 1 {
		winner = r.Players[0].Side
	}
	res := r.concludeUnsafe(game.Outcome{Over: true, Winner: winner}, ReasonNoShow, r.playerResultsUnsafe())
	if res == nil {
		return nil
	}
	if res.WinnerName == "" {
		res.WinnerName = r.Reserved[winner.Index()]
	}
	r.armGraceUnsafe()
	r.broadcastStateUnsafe()
	r.broadcastUnsafe(map[string]interface{}{
		"type":        MsgGameFinished,
		"roomId":      r.ID,
		"winner":      r.Winner,
		"draw":        false,
		"reason":      ReasonNoShow,
		"forcedLeave": false,
	})
	log.WithFields(log.Fields{"room": r.ID, "match": r.MatchID, "winner": res.WinnerName}).Info("match awarded on no-show")
	return res
}

func (r *Room) stopTimersUnsafe() {
	for _, t := range []**time.Timer{&r.deadlineTimer, &r.flipTimer, &r.graceTimer, &r.seatTimer} {
		if *t != nil {
			(*t).Stop()
			*t = nil
		}
	}
}

func (r *Room) findUnsafe(connID uuid.UUID) *Occupant {
	if p := r.playerUnsafe(connID); p != nil {
		return p
	}
	for _, s := range r.Spectators {
		if s.Conn.ID() == connID {
			return s
		}
	}
	return nil
}

func (r *Room) playerUnsafe(connID uuid.UUID) *Occupant {
	for _, p := range r.Players {
		if p.Conn.ID() == connID {
			return p
		}
	}
	return nil
}

func (r *Room) playerOnSideUnsafe(side models.Side) *Occupant {
	for _, p := range r.Players {
		if p.Side == side {
			return p
		}
	}
	return nil
}

func (r *Room) removeUnsafe(connID uuid.UUID) {
	keep := func(list []*Occupant) []*Occupant {
		out := list[:0]
		for _, o := range list {
			if o.Conn.ID() != connID {
				out = append(out, o)
			}
		}
		return out
	}
	r.Players = keep(r.Players)
	r.Spectators = keep(r.Spectators)
	delete(r.RematchVotes, connID)
}

func (r *Room) occupantsUnsafe() []*Occupant {
	out := make([]*Occupant, 0, len(r.Players)+len(r.Spectators))
	out = append(out, r.Players...)
	return append(out, r.Spectators...)
}

func (r *Room) playerResultsUnsafe() []models.PlayerResult {
	out := make([]models.PlayerResult, 0, len(r.Players))
	for _, p := range r.Players {
		out = append(out, models.PlayerResult{UserID: p.UserID, Username: p.Name, Side: p.Side})
	}
	return out
}

func (r *Room) turnUnsafe() models.Side {
	if r.Status != models.StatusInProgress {
		return models.SideNone
	}
	return r.Engine.Turn()
}

func (r *Room) broadcastUnsafe(msg map[string]interface{}) {
	for _, o := range r.occupantsUnsafe() {
		o.Conn.Write(msg)
	}
}

// broadcastStateUnsafe sends every occupant its own redacted view.
func (r *Room) broadcastStateUnsafe() {
	for _, o := range r.occupantsUnsafe() {
		o.Conn.Write(r.stateMessageUnsafe(o))
	}
}

func (r *Room) stateMessageUnsafe(viewer *Occupant) map[string]interface{} {
	side := viewer.Side
	role := "spectator"
	if side.Valid() {
		role = "player"
	}
	players := make([]map[string]interface{}, 0, len(r.Players))
	for _, p := range r.Players {
		players = append(players, p.info())
	}
	msg := map[string]interface{}{
		"type":         MsgRoomState,
		"roomId":       r.ID,
		"name":         r.Name,
		"gameType":     r.Type,
		"status":       r.Status,
		"turn":         r.turnUnsafe(),
		"winner":       r.Winner,
		"players":      players,
		"spectators":   len(r.Spectators),
		"you":          side,
		"role":         role,
		"rematchVotes": len(r.RematchVotes),
		"state":        r.Engine.View(side),
	}
	if len(r.lastEffects) > 0 {
		msg["effects"] = r.lastEffects
	}
	if r.IsTournamentMatch() {
		msg["tournamentId"] = r.TournamentID
		msg["matchId"] = r.MatchID
	}
	return msg
}

// Summary is the lobby listing entry of a room.
type Summary struct {
	ID           int64             `json:"id"`
	Name         string            `json:"name"`
	GameType     models.GameType   `json:"gameType"`
	Status       models.RoomStatus `json:"status"`
	Players      int               `json:"players"`
	Spectators   int               `json:"spectators"`
	PlayerNames  []string          `json:"playerNames"`
	TournamentID *uuid.UUID        `json:"tournamentId,omitempty"`
}

func (r *Room) Summary() Summary {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	s := Summary{
		ID:          r.ID,
		Name:        r.Name,
		GameType:    r.Type,
		Status:      r.Status,
		Players:     len(r.Players),
		Spectators:  len(r.Spectators),
		PlayerNames: make([]string, 0, len(r.Players)),
	}
	for _, p := range r.Players {
		s.PlayerNames = append(s.PlayerNames, p.Name)
	}
	if r.IsTournamentMatch() {
		id := r.TournamentID
		s.TournamentID = &id
	}
	return s
}
