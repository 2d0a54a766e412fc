// internal/handlers/tournaments.go
package handlers

import (
	"fmt"

	"github.com/jason-s-yu/arena/internal/models"
	"github.com/jason-s-yu/arena/internal/room"
	"github.com/jason-s-yu/arena/internal/tournament"
	"github.com/sirupsen/logrus"
)

// broadcastTournament sends msg to every connected entrant of t.
func (s *ArenaServer) broadcastTournament(t *tournament.Tournament, msg map[string]interface{}) {
	for _, c := range s.snapshotClients() {
		if t.IsEntrant(c.UserID) {
			c.Write(msg)
		}
	}
}

func (s *ArenaServer) tournamentUpdate(t *tournament.Tournament) {
	s.broadcastTournament(t, map[string]interface{}{
		"type":       "tournament_update",
		"tournament": t.Snapshot(),
	})
}

// launchMatches opens a reserved room per match and calls its players in.
func (s *ArenaServer) launchMatches(t *tournament.Tournament, matches []*tournament.Match) {
	for _, m := range matches {
		name := fmt.Sprintf("%s R%d M%d", t.Name, m.Round+1, m.Index+1)
		r, err := s.Rooms.CreateRoom(m.GameType, name, room.Options{
			TournamentID: t.ID,
			MatchID:      m.ID,
			Reserved:     [2]string{m.SideA, m.SideB},
		})
		if err != nil {
			s.logger.WithFields(logrus.Fields{"tournament": t.ID, "match": m.ID}).Errorf("create match room: %v", err)
			continue
		}
		t.AttachRoom(m.ID, r.ID)

		for i, name := range []string{m.SideA, m.SideB} {
			e, ok := t.EntrantByName(name)
			if !ok {
				continue
			}
			opponent := m.SideB
			if i == 1 {
				opponent = m.SideA
			}
			for _, c := range s.clientsOf(e.UserID) {
				c.Write(map[string]interface{}{
					"type":         "tournament_match_ready",
					"tournamentId": t.ID,
					"matchId":      m.ID,
					"roomId":       r.ID,
					"round":        m.Round,
					"gameType":     m.GameType,
					"opponent":     opponent,
				})
				if cur := c.RoomID(); cur != 0 {
					// only step out of a finished room, never a live game
					prev, ok := s.Rooms.Get(cur)
					if ok && prev.Summary().Status != models.StatusFinished {
						continue
					}
					_ = s.Rooms.Leave(cur, c.ID())
				}
				if _, err := s.Rooms.Join(r.ID, s.occupant(c), false); err != nil {
					s.logger.WithFields(logrus.Fields{"room": r.ID, "user": c.Name}).Debugf("auto-join: %v", err)
				}
			}
		}
	}
	s.tournamentUpdate(t)
}

// advanceTournament feeds a concluded match room back into its bracket.
func (s *ArenaServer) advanceTournament(res room.Result) {
	t, ok := s.Tournaments.Get(res.TournamentID)
	if !ok {
		return
	}
	winner := res.WinnerName
	if winner == "" {
		// games here cannot draw; fall back to side A so the bracket keeps moving
		for _, p := range res.Players {
			if p.Side == models.SideA {
				winner = p.Username
			}
		}
	}
	fields := logrus.Fields{"tournament": t.ID, "match": res.MatchID, "winner": winner}

	adv, err := t.RecordMatchResult(res.MatchID, winner)
	if err != nil {
		s.logger.WithFields(fields).Errorf("record match result: %v", err)
		s.tournamentUpdate(t)
		return
	}
	s.logger.WithFields(fields).Info("match recorded")
	if !adv.RoundComplete {
		s.tournamentUpdate(t)
		return
	}
	s.broadcastTournament(t, map[string]interface{}{
		"type":         "tournament_round_complete",
		"tournamentId": t.ID,
		"round":        adv.Round,
	})
	if adv.Finished {
		s.broadcastTournament(t, map[string]interface{}{
			"type":         "tournament_finished",
			"tournamentId": t.ID,
			"winner":       adv.Winner,
		})
		s.tournamentUpdate(t)
		return
	}
	s.launchMatches(t, adv.Ready)
}
