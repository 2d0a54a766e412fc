package room

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
	log "github.com/sirupsen/logrus"
)

// RequestRematch records connID's vote in finished room id. The first vote
// notifies the other player; the second replaces the room with a fresh one
// that keeps both sides, and returns it.
func (reg *Registry) RequestRematch(id int64, connID uuid.UUID) (*Room, error) {
	r, ok := reg.Get(id)
	if !ok {
		return nil, fmt.Errorf("rematch %d: %w", id, ErrRoomNotFound)
	}

	r.Mu.Lock()
	next, err := reg.voteUnsafe(r, connID)
	r.Mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("rematch %d: %w", id, err)
	}
	if next == nil {
		return nil, nil
	}
	reg.destroy(id, ReasonRematch)
	return next, nil
}

func (reg *Registry) voteUnsafe(r *Room, connID uuid.UUID) (*Room, error) {
	if r.destroyed {
		return nil, ErrRoomNotFound
	}
	voter := r.playerUnsafe(connID)
	if voter == nil {
		if r.findUnsafe(connID) != nil {
			return nil, ErrNotAPlayer
		}
		return nil, ErrNotInRoom
	}
	if r.Status != models.StatusFinished || r.IsTournamentMatch() || len(r.Players) < 2 {
		return nil, ErrRematchUnavailable
	}

	r.RematchVotes[connID] = true
	if len(r.RematchVotes) < 2 {
		if other := r.playerOnSideUnsafe(voter.Side.Opponent()); other != nil {
			other.Conn.Write(map[string]interface{}{
				"type":   MsgRematchRequested,
				"roomId": r.ID,
				"from":   voter.Name,
			})
		}
		return nil, nil
	}

	next, err := newRoom(r.Type, r.Name, reg.cfg, Options{CreatorID: r.CreatorID})
	if err != nil {
		return nil, err
	}
	for _, p := range r.Players {
		next.Players = append(next.Players, &Occupant{
			Conn:   p.Conn,
			UserID: p.UserID,
			Name:   p.Name,
			Avatar: p.Avatar,
			Side:   p.Side,
		})
	}
	next.Mu.Lock()
	defer next.Mu.Unlock()
	next.startUnsafe(time.Now())
	if err := reg.add(next); err != nil {
		next.stopTimersUnsafe()
		return nil, err
	}

	for _, s := range r.Spectators {
		if s.Conn.Detach(r.ID) {
			s.Conn.Write(map[string]interface{}{
				"type":      MsgRoomClosed,
				"roomId":    r.ID,
				"newRoomId": next.ID,
				"reason":    ReasonRematch,
			})
		}
	}
	for _, p := range next.Players {
		p.Conn.Attach(next.ID)
		p.Conn.Write(map[string]interface{}{
			"type":      MsgRematchStarted,
			"oldRoomId": r.ID,
			"roomId":    next.ID,
		})
	}
	r.Players, r.Spectators = nil, nil
	r.RematchVotes = make(map[uuid.UUID]bool)
	next.broadcastStateUnsafe()

	log.WithFields(log.Fields{"room": r.ID, "next": next.ID}).Info("rematch started")
	return next, nil
}
