// internal/handlers/server.go
package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
	"github.com/jason-s-yu/arena/internal/room"
	"github.com/jason-s-yu/arena/internal/tournament"
	"github.com/sirupsen/logrus"
)

// UserDirectory decorates occupants with profile data.
type UserDirectory interface {
	LookupAvatar(ctx context.Context, username string) (string, error)
}

// ResultRecorder persists concluded games.
type ResultRecorder interface {
	RecordResult(ctx context.Context, winner models.Side, players []models.PlayerResult, gameType models.GameType) error
}

// MovePublisher ships accepted moves to the history queue.
type MovePublisher interface {
	Publish(ctx context.Context, rec models.MoveRecord) error
}

// ArenaServer routes client events to rooms and tournaments and fans out
// the resulting notifications.
type ArenaServer struct {
	Rooms       *room.Registry
	Tournaments *tournament.Store

	users   UserDirectory
	results ResultRecorder
	moves   MovePublisher
	logger  *logrus.Logger

	mu      sync.Mutex
	clients map[uuid.UUID]*Client

	// background tracks result recording and publishing.
	background sync.WaitGroup
}

// NewArenaServer wires a registry and tournament store to the given collaborators.
func NewArenaServer(logger *logrus.Logger, cfg room.Config, users UserDirectory, results ResultRecorder, moves MovePublisher) *ArenaServer {
	s := &ArenaServer{
		Rooms:       room.NewRegistry(cfg),
		Tournaments: tournament.NewStore(),
		users:       users,
		results:     results,
		moves:       moves,
		logger:      logger,
		clients:     make(map[uuid.UUID]*Client),
	}
	s.Rooms.OnChange = s.broadcastRooms
	s.Rooms.OnFinish = s.onGameFinished
	s.Rooms.OnMove = s.onMove
	return s
}

// Register adds a connected client and sends it the lobby listing.
func (s *ArenaServer) Register(c *Client) {
	s.mu.Lock()
	s.clients[c.ID()] = c
	s.mu.Unlock()

	c.Write(map[string]interface{}{
		"type":   "welcome",
		"connId": c.ID(),
		"userId": c.UserID,
		"name":   c.Name,
	})
	c.Write(s.roomsListMessage())
}

// Disconnect removes a client, applying the disconnection policy to its room.
func (s *ArenaServer) Disconnect(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.ID())
	s.mu.Unlock()

	if id := c.RoomID(); id != 0 {
		if err := s.Rooms.Leave(id, c.ID()); err != nil {
			s.logger.WithFields(logrus.Fields{"room": id, "user": c.Name}).Debugf("leave on disconnect: %v", err)
		}
	}
}

// Shutdown closes every room and drops every client.
func (s *ArenaServer) Shutdown() {
	s.Rooms.Shutdown()
	for _, c := range s.snapshotClients() {
		if c.Cancel != nil {
			c.Cancel()
		}
	}
}

// Wait blocks until background recording and publishing has drained.
func (s *ArenaServer) Wait() {
	s.background.Wait()
}

func (s *ArenaServer) snapshotClients() []*Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

// clientsOf returns every connected socket of userID.
func (s *ArenaServer) clientsOf(userID uuid.UUID) []*Client {
	var out []*Client
	for _, c := range s.snapshotClients() {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

func (s *ArenaServer) roomsListMessage() map[string]interface{} {
	return map[string]interface{}{
		"type":        "rooms_list",
		"rooms":       s.Rooms.List(),
		"tournaments": s.Tournaments.List(),
	}
}

// broadcastRooms sends the listing to every client not inside a room.
func (s *ArenaServer) broadcastRooms() {
	var observers []*Client
	for _, c := range s.snapshotClients() {
		if c.RoomID() == 0 {
			observers = append(observers, c)
		}
	}
	if len(observers) == 0 {
		return
	}
	msg := s.roomsListMessage()
	for _, c := range observers {
		c.Write(msg)
	}
}

func (s *ArenaServer) occupant(c *Client) *room.Occupant {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	avatar, err := s.users.LookupAvatar(ctx, c.Name)
	if err != nil {
		s.logger.WithField("user", c.Name).Warnf("avatar lookup: %v", err)
	}
	return &room.Occupant{Conn: c, UserID: c.UserID, Name: c.Name, Avatar: avatar}
}

func (s *ArenaServer) onMove(rec models.MoveRecord) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.moves.Publish(ctx, rec); err != nil {
			s.logger.WithField("room", rec.RoomID).Warnf("publish move: %v", err)
		}
	}()
}

// onGameFinished records the result and advances any tournament the room belongs to.
func (s *ArenaServer) onGameFinished(res room.Result) {
	if len(res.Players) == 0 {
		// a match nobody showed up for has nothing to record
		if res.TournamentID != uuid.Nil {
			s.advanceTournament(res)
		}
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		winner := res.Winner
		if res.Draw {
			winner = models.SideNone
		}
		if err := s.results.RecordResult(ctx, winner, res.Players, res.GameType); err != nil {
			s.logger.WithFields(logrus.Fields{"room": res.RoomID, "game": res.GameType}).Errorf("record result: %v", err)
		}
	}()

	if res.TournamentID != uuid.Nil {
		s.advanceTournament(res)
	}
}

// ClientCount is the number of connected sockets.
func (s *ArenaServer) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
