// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/auth"
	"github.com/jason-s-yu/arena/internal/middleware"
	"github.com/sirupsen/logrus"
)

const (
	subprotocol  = "arena"
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
	outBuffer    = 64
)

// WSHandler upgrades to the arena socket, authenticates the caller and pumps
// messages between the socket and the ArenaServer until either side closes.
func WSHandler(logger *logrus.Logger, s *ArenaServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{subprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != subprotocol {
			c.Close(BadSubprotocolError, "client must speak the arena subprotocol")
			return
		}

		who, err := auth.AuthenticateJWT(requestToken(r))
		if err != nil {
			logger.Warnf("websocket auth failed from %s: %v", r.RemoteAddr, err)
			c.Close(InvalidAuthTokenError, "invalid auth token")
			return
		}
		if who.UserID == uuid.Nil {
			c.Close(InvalidUserIDError, "invalid user id")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		client := NewClient(who.UserID, who.Name, outBuffer)
		client.Cancel = cancel

		s.Register(client)
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, who.Name)

		go writePump(ctx, c, client, logger)
		readErr := readPump(ctx, c, client, s)

		s.Disconnect(client)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, who.Name, readErr)
		if ctx.Err() != nil && r.Context().Err() == nil {
			c.Close(ServerShutdownError, "server shutting down")
			return
		}
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// readPump feeds text frames to the server. It returns the error that ended
// the connection, or nil on a normal close.
func readPump(ctx context.Context, c *websocket.Conn, client *Client, s *ArenaServer) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			client.WriteError("invalid_frame", "only text frames are accepted")
			continue
		}
		s.HandleMessage(client, data)
	}
}

// writePump drains OutChan to the socket and pings on an interval.
func writePump(ctx context.Context, c *websocket.Conn, client *Client, logger *logrus.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-client.OutChan:
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("failed to marshal outgoing msg for %s: %v", client.Name, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Debugf("write to %s failed: %v", client.Name, err)
				client.Cancel()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Debugf("ping to %s failed: %v", client.Name, err)
				client.Cancel()
				return
			}
		}
	}
}
