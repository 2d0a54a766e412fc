package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/auth"
	"github.com/jason-s-yu/arena/internal/game"
	"github.com/jason-s-yu/arena/internal/models"
	"github.com/jason-s-yu/arena/internal/room"
	"github.com/jason-s-yu/arena/internal/tournament"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h *harness) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	Routes(r, h.s)
	r.Get("/ws", WSHandler(h.s.logger, h.s))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
		HTTPHeader:   http.Header{"Cookie": {"auth_token=" + token}},
	})
	return c, err
}

// readUntil reads frames until one of type typ arrives.
func readUntil(t *testing.T, c *websocket.Conn, typ string) map[string]interface{} {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, data, err := c.Read(ctx)
		require.NoError(t, err)
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg["type"] == typ {
			return msg
		}
	}
}

func TestWebSocketSession(t *testing.T) {
	require.NoError(t, auth.Init())
	h := newHarness(t)
	srv := newTestServer(t, h)

	token, err := auth.CreateJWT(uuid.New(), "alice")
	require.NoError(t, err)
	c, err := dial(t, srv, token)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	welcome := readUntil(t, c, "welcome")
	assert.Equal(t, "alice", welcome["name"])
	readUntil(t, c, "rooms_list")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)))
	readUntil(t, c, "pong")

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`{"type":"create_room","gameType":"naval"}`)))
	created := readUntil(t, c, "room_created")
	assert.Equal(t, "naval", created["gameType"])
	assert.Equal(t, 1, h.s.Rooms.Len())

	c.Close(websocket.StatusNormalClosure, "bye")
	assert.Eventually(t, func() bool { return h.s.Rooms.Len() == 0 && h.s.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	require.NoError(t, auth.Init())
	srv := newTestServer(t, newHarness(t))

	c, err := dial(t, srv, "garbage")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err = c.Read(ctx)
	assert.Equal(t, websocket.StatusCode(InvalidAuthTokenError), websocket.CloseStatus(err))
}

func TestHTTPListings(t *testing.T) {
	h := newHarness(t)
	srv := newTestServer(t, h)
	_, err := h.s.Rooms.CreateRoom(models.GameMemory, "pairs", room.Options{})
	require.NoError(t, err)
	tour, _, err := h.s.Tournaments.Create(tournament.Entrant{UserID: uuid.New(), Name: "alice"}, "cup", models.GameMixed, 8)
	require.NoError(t, err)

	get := func(path string) (*http.Response, map[string]interface{}, []interface{}) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		var raw json.RawMessage
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
		var obj map[string]interface{}
		var arr []interface{}
		if json.Unmarshal(raw, &obj) != nil {
			require.NoError(t, json.Unmarshal(raw, &arr))
		}
		return resp, obj, arr
	}

	resp, health, _ := get("/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(1), health["rooms"])

	_, _, rooms := get("/rooms")
	require.Len(t, rooms, 1)
	assert.Equal(t, "pairs", rooms[0].(map[string]interface{})["name"])

	_, _, tours := get("/tournaments")
	assert.Len(t, tours, 1)

	resp, one, _ := get("/tournaments/" + tour.ID.String())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cup", one["name"])

	resp, _, _ = get("/tournaments/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _, _ = get("/tournaments/" + uuid.NewString())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExtractCookieToken(t *testing.T) {
	assert.Equal(t, "abc", extractCookieToken("theme=dark; auth_token=abc; lang=en", "auth_token"))
	assert.Equal(t, "abc", extractCookieToken("auth_token=abc", "auth_token"))
	assert.Empty(t, extractCookieToken("my_auth_token=zzz", "auth_token"))
	assert.Empty(t, extractCookieToken("", "auth_token"))

	r := httptest.NewRequest(http.MethodGet, "/ws?token=fromquery", nil)
	assert.Equal(t, "fromquery", requestToken(r))
	r.Header.Set("Cookie", "auth_token=fromcookie")
	assert.Equal(t, "fromcookie", requestToken(r))
}

func TestErrorCodeMapping(t *testing.T) {
	assert.Equal(t, "room_full", errorCode(fmt.Errorf("join 123456: %w", room.ErrRoomFull)))
	assert.Equal(t, "duplicate_guess", errorCode(fmt.Errorf("move: %w", game.ErrDuplicateGuess)))
	assert.Equal(t, "bracket_corrupt", errorCode(fmt.Errorf("match: %w", tournament.ErrBracketCorrupt)))
	assert.Equal(t, "internal_error", errorCode(assert.AnError))
}
