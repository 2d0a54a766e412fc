// internal/handlers/dispatch.go
package handlers

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/game"
	"github.com/jason-s-yu/arena/internal/models"
	"github.com/jason-s-yu/arena/internal/room"
	"github.com/jason-s-yu/arena/internal/tournament"
	"github.com/sirupsen/logrus"
)

// inbound is the union of every client message.
type inbound struct {
	Type         string          `json:"type"`
	RoomID       int64           `json:"roomId"`
	GameType     models.GameType `json:"gameType"`
	Name         string          `json:"name"`
	AsSpectator  bool            `json:"asSpectator"`
	Move         json.RawMessage `json:"move"`
	TournamentID string          `json:"tournamentId"`
	Size         int             `json:"size"`
}

var errorCodes = []struct {
	err  error
	code string
}{
	{room.ErrRoomNotFound, "room_not_found"},
	{room.ErrRoomFull, "room_full"},
	{room.ErrGameAlreadyStarted, "game_already_started"},
	{room.ErrWrongGameType, "wrong_game_type"},
	{room.ErrNotInRoom, "not_in_room"},
	{room.ErrNotAPlayer, "not_a_player"},
	{room.ErrSeatReserved, "seat_reserved"},
	{room.ErrRematchUnavailable, "rematch_unavailable"},
	{room.ErrRoomIDTaken, "room_id_taken"},
	{tournament.ErrTournamentNotFound, "tournament_not_found"},
	{tournament.ErrTournamentFull, "tournament_full"},
	{tournament.ErrTournamentStarted, "tournament_started"},
	{tournament.ErrTournamentOver, "tournament_over"},
	{tournament.ErrNameTaken, "name_taken"},
	{tournament.ErrNotCreator, "not_creator"},
	{tournament.ErrNotEnoughEntrants, "not_enough_entrants"},
	{tournament.ErrInvalidSize, "invalid_size"},
	{tournament.ErrInvalidGameType, "wrong_game_type"},
	{tournament.ErrBracketCorrupt, "bracket_corrupt"},
}

// errorCode maps a lifecycle error to its wire code.
func errorCode(err error) string {
	var me *game.MoveError
	if errors.As(err, &me) {
		return me.Code
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal_error"
}

// HandleMessage decodes and routes one text frame from c.
func (s *ArenaServer) HandleMessage(c *Client, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.WriteError("invalid_json", "invalid JSON format")
		return
	}
	log := s.logger.WithFields(logrus.Fields{"user": c.Name, "type": msg.Type})

	var err error
	switch msg.Type {
	case "ping":
		c.Write(map[string]interface{}{"type": "pong"})
	case "create_room":
		err = s.createRoom(c, msg)
	case "join_room":
		err = s.joinRoom(c, msg.RoomID, msg.AsSpectator)
	case "leave_room":
		err = s.leaveRoom(c, msg.RoomID)
	case "make_move":
		s.makeMove(c, msg)
	case "request_rematch":
		err = s.requestRematch(c, msg.RoomID)
	case "list_rooms":
		c.Write(s.roomsListMessage())
	case "tournament_create":
		err = s.createTournament(c, msg)
	case "tournament_join", "tournament_leave", "tournament_start":
		err = s.tournamentAction(c, msg)
	default:
		c.WriteError("unknown_type", "unknown message type: "+msg.Type)
		return
	}
	if err != nil {
		log.Debugf("rejected: %v", err)
		c.WriteError(errorCode(err), err.Error())
	}
}

// targetRoom falls back to the client's current room when none is named.
func targetRoom(c *Client, id int64) int64 {
	if id != 0 {
		return id
	}
	return c.RoomID()
}

// leavePrevious drops c out of prev once it has been seated in keep.
func (s *ArenaServer) leavePrevious(c *Client, prev, keep int64) {
	if prev == 0 || prev == keep {
		return
	}
	if err := s.Rooms.Leave(prev, c.ID()); err != nil {
		c.Detach(prev)
	}
}

func (s *ArenaServer) createRoom(c *Client, msg inbound) error {
	r, err := s.Rooms.CreateRoom(msg.GameType, msg.Name, room.Options{CreatorID: c.ID()})
	if err != nil {
		return err
	}
	c.Write(map[string]interface{}{
		"type":     "room_created",
		"roomId":   r.ID,
		"gameType": r.Type,
	})
	return s.joinRoom(c, r.ID, false)
}

func (s *ArenaServer) joinRoom(c *Client, id int64, asSpectator bool) error {
	// a rejected join must not cost the client its current seat
	prev := c.RoomID()
	if _, err := s.Rooms.Join(id, s.occupant(c), asSpectator); err != nil {
		return err
	}
	s.leavePrevious(c, prev, id)
	c.Write(map[string]interface{}{
		"type":        "joined",
		"roomId":      id,
		"asSpectator": asSpectator,
	})
	return nil
}

func (s *ArenaServer) leaveRoom(c *Client, id int64) error {
	id = targetRoom(c, id)
	if id == 0 {
		return room.ErrNotInRoom
	}
	if err := s.Rooms.Leave(id, c.ID()); err != nil {
		return err
	}
	c.Write(map[string]interface{}{"type": "left", "roomId": id})
	c.Write(s.roomsListMessage())
	return nil
}

// makeMove reports rule violations as move_error to the actor only.
func (s *ArenaServer) makeMove(c *Client, msg inbound) {
	id := targetRoom(c, msg.RoomID)
	err := s.Rooms.Move(id, c.ID(), msg.Move)
	if err == nil {
		return
	}
	var me *game.MoveError
	if errors.As(err, &me) {
		c.Write(map[string]interface{}{
			"type":    "move_error",
			"roomId":  id,
			"reason":  me.Code,
			"message": me.Message,
		})
		return
	}
	c.WriteError(errorCode(err), err.Error())
}

func (s *ArenaServer) requestRematch(c *Client, id int64) error {
	_, err := s.Rooms.RequestRematch(targetRoom(c, id), c.ID())
	return err
}

func (s *ArenaServer) createTournament(c *Client, msg inbound) error {
	t, created, err := s.Tournaments.Create(tournament.Entrant{UserID: c.UserID, Name: c.Name}, msg.Name, msg.GameType, msg.Size)
	if err != nil {
		return err
	}
	c.Write(map[string]interface{}{
		"type":       "tournament_created",
		"created":    created,
		"tournament": t.Snapshot(),
	})
	s.broadcastRooms()
	return nil
}

func (s *ArenaServer) tournamentAction(c *Client, msg inbound) error {
	id, err := uuid.Parse(msg.TournamentID)
	if err != nil {
		return tournament.ErrTournamentNotFound
	}
	t, ok := s.Tournaments.Get(id)
	if !ok {
		return tournament.ErrTournamentNotFound
	}

	switch msg.Type {
	case "tournament_join":
		if err := t.Join(tournament.Entrant{UserID: c.UserID, Name: c.Name}); err != nil {
			return err
		}
		s.tournamentUpdate(t)

	case "tournament_leave":
		// the leaver stops counting as an entrant, so it is told directly
		wasEntrant := t.IsEntrant(c.UserID)
		cancelled, err := t.Leave(c.UserID)
		if err != nil {
			return err
		}
		if wasEntrant {
			c.Write(map[string]interface{}{"type": "tournament_left", "tournamentId": t.ID, "cancelled": cancelled})
		}
		s.tournamentUpdate(t)
		if cancelled {
			s.Tournaments.Delete(t.ID)
		}

	case "tournament_start":
		matches, err := t.Start(c.UserID)
		if err != nil {
			return err
		}
		if matches != nil {
			s.launchMatches(t, matches)
		}
	}
	s.broadcastRooms()
	return nil
}
