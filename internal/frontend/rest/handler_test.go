package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arcade/internal/game/catalog"
	"github.com/cory-johannsen/arcade/internal/game/queue"
	"github.com/cory-johannsen/arcade/internal/game/registry"
	"github.com/cory-johannsen/arcade/internal/game/session"
	"github.com/cory-johannsen/arcade/internal/gameserver"
	"github.com/cory-johannsen/arcade/internal/storage/postgres"
)

func newTestHandler(t *testing.T, users UserDirectory, history GameHistory) (*httptest.Server, *gameserver.Service) {
	t.Helper()

	svc := gameserver.NewService(
		registry.NewRegistry(),
		session.NewStore(),
		queue.New(),
		catalog.Default(),
		gameserver.StaticRater{Delta: 25},
		nil,
		nil,
		8,
		zap.NewNop(),
	)

	router := chi.NewRouter()
	NewHandler(svc, users, history, zap.NewNop()).Routes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, svc
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestCreateGame(t *testing.T) {
	server, _ := newTestHandler(t, nil, nil)

	resp := postJSON(t, server.URL+"/api/games/create", map[string]any{
		"userId": 1, "gameType": "chess",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]string](t, resp)
	assert.Len(t, body["code"], 4)
	assert.Contains(t, body["gameId"], "chess_")
}

func TestCreateGameUnknownType(t *testing.T) {
	server, _ := newTestHandler(t, nil, nil)

	resp := postJSON(t, server.URL+"/api/games/create", map[string]any{
		"userId": 1, "gameType": "backgammon",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFindGameQueuesAndPairs(t *testing.T) {
	server, _ := newTestHandler(t, nil, nil)

	resp := postJSON(t, server.URL+"/api/games/find", map[string]any{
		"userId": 1, "gameType": "rps",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "queued", decode[map[string]string](t, resp)["status"])

	resp = postJSON(t, server.URL+"/api/games/find", map[string]any{
		"userId": 2, "gameType": "rps",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, decode[map[string]string](t, resp)["gameId"])
}

func TestJoinGameFlow(t *testing.T) {
	server, _ := newTestHandler(t, nil, nil)

	resp := postJSON(t, server.URL+"/api/games/create", map[string]any{
		"userId": 1, "gameType": "checkers",
	})
	created := decode[map[string]string](t, resp)

	resp = postJSON(t, server.URL+"/api/games/join", map[string]any{
		"userId": 2, "code": created["code"],
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var joined struct {
		GameID string           `json:"gameId"`
		Game   session.Snapshot `json:"game"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&joined))
	assert.Equal(t, created["gameId"], joined.GameID)
	assert.Equal(t, session.StatusActive, joined.Game.Status)
	require.NotNil(t, joined.Game.Player2)
	assert.Equal(t, int64(2), joined.Game.Player2.ID)
	assert.Equal(t, int64(1), joined.Game.CurrentPlayer)
}

func TestJoinGameBadCode(t *testing.T) {
	server, _ := newTestHandler(t, nil, nil)

	resp := postJSON(t, server.URL+"/api/games/join", map[string]any{
		"userId": 2, "code": "ZZZZ",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Game not found", decode[map[string]string](t, resp)["error"])
}

func TestJoinOwnGameReadsAsNotFound(t *testing.T) {
	server, _ := newTestHandler(t, nil, nil)

	resp := postJSON(t, server.URL+"/api/games/create", map[string]any{
		"userId": 1, "gameType": "chess",
	})
	created := decode[map[string]string](t, resp)

	resp = postJSON(t, server.URL+"/api/games/join", map[string]any{
		"userId": 1, "code": created["code"],
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Game not found", decode[map[string]string](t, resp)["error"])

	// The code stays joinable for an actual opponent.
	resp = postJSON(t, server.URL+"/api/games/join", map[string]any{
		"userId": 2, "code": created["code"],
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCancelGame(t *testing.T) {
	server, _ := newTestHandler(t, nil, nil)

	resp := postJSON(t, server.URL+"/api/games/create", map[string]any{
		"userId": 1, "gameType": "chess",
	})
	created := decode[map[string]string](t, resp)

	resp = postJSON(t, server.URL+"/api/games/"+created["gameId"]+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", decode[map[string]string](t, resp)["status"])

	resp = getJSON(t, server.URL+"/api/games/"+created["gameId"])
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetGame(t *testing.T) {
	server, svc := newTestHandler(t, nil, nil)

	created, err := svc.CreateGame(context.Background(), 1, "chess")
	require.NoError(t, err)

	resp := getJSON(t, server.URL+"/api/games/"+created.ID())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snap := decode[session.Snapshot](t, resp)
	assert.Equal(t, created.ID(), snap.ID)
	assert.Equal(t, session.StatusWaiting, snap.Status)
	assert.Equal(t, created.Code(), snap.Code)
}

func TestGetUserWithoutDirectory(t *testing.T) {
	server, _ := newTestHandler(t, nil, nil)

	resp := getJSON(t, server.URL+"/api/users/42")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	user := decode[map[string]any](t, resp)
	assert.Equal(t, "Player42", user["username"])
	assert.Equal(t, float64(1000), user["rating"])
}

type fakeDirectory struct {
	users map[int64]postgres.User
}

func (d *fakeDirectory) Get(_ context.Context, id int64) (postgres.User, error) {
	u, ok := d.users[id]
	if !ok {
		return postgres.User{}, postgres.ErrUserNotFound
	}
	return u, nil
}

func (d *fakeDirectory) Leaderboard(_ context.Context, limit int) ([]postgres.User, error) {
	var top []postgres.User
	for _, u := range d.users {
		top = append(top, u)
	}
	if len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}

func TestGetUserFromDirectory(t *testing.T) {
	dir := &fakeDirectory{users: map[int64]postgres.User{
		7: {ID: 7, Username: "carol", Rating: 1150, Wins: 6, Losses: 2, Draws: 1},
	}}
	server, _ := newTestHandler(t, dir, nil)

	resp := getJSON(t, server.URL+"/api/users/7")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	user := decode[map[string]any](t, resp)
	assert.Equal(t, "carol", user["username"])
	assert.Equal(t, float64(1150), user["rating"])
	assert.Equal(t, float64(9), user["totalGames"])

	resp = getJSON(t, server.URL+"/api/users/8")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUserGamesStatuses(t *testing.T) {
	server, svc := newTestHandler(t, nil, nil)
	ctx := context.Background()

	waiting, err := svc.CreateGame(ctx, 1, "chess")
	require.NoError(t, err)
	active, err := svc.CreateGame(ctx, 1, "checkers")
	require.NoError(t, err)
	_, err = svc.JoinGame(ctx, 2, active.Code())
	require.NoError(t, err)

	resp := getJSON(t, server.URL+"/api/users/1/games")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	games := decode[[]activeGameResponse](t, resp)
	require.Len(t, games, 2)

	byID := map[string]activeGameResponse{}
	for _, g := range games {
		byID[g.ID] = g
	}
	assert.Equal(t, "waiting", byID[waiting.ID()].Status)
	assert.Equal(t, "Waiting...", byID[waiting.ID()].OpponentName)
	assert.Equal(t, "your_turn", byID[active.ID()].Status)
	assert.Equal(t, "Player2", byID[active.ID()].OpponentName)

	// The joiner sees the opposite turn status.
	resp = getJSON(t, server.URL+"/api/users/2/games")
	games = decode[[]activeGameResponse](t, resp)
	require.Len(t, games, 1)
	assert.Equal(t, "opponents_turn", games[0].Status)
}

type fakeHistory struct {
	games []postgres.FinishedGame
}

func (h *fakeHistory) History(_ context.Context, userID int64, limit int) ([]postgres.FinishedGame, error) {
	if len(h.games) > limit {
		return h.games[:limit], nil
	}
	return h.games, nil
}

func TestUserHistory(t *testing.T) {
	hist := &fakeHistory{games: []postgres.FinishedGame{
		{GameID: "chess_AB12_1", Kind: "chess", PlayerA: 1, PlayerB: 2, WinnerID: 1, Reason: "resignation", Duration: 90 * time.Second},
		{GameID: "rps_CD34_1", Kind: "rps", PlayerA: 1, PlayerB: 3, WinnerID: 0, Reason: "draw", Duration: 30 * time.Second},
	}}
	server, _ := newTestHandler(t, nil, hist)

	resp := getJSON(t, server.URL+"/api/users/1/history")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	games := decode[[]historyResponse](t, resp)
	require.Len(t, games, 2)
	assert.True(t, games[0].Won)
	assert.Equal(t, int64(90), games[0].Duration)
	assert.True(t, games[1].Draw)
}

func TestLeaderboard(t *testing.T) {
	dir := &fakeDirectory{users: map[int64]postgres.User{
		1: {ID: 1, Username: "alice", Rating: 1200},
	}}
	server, _ := newTestHandler(t, dir, nil)

	resp := getJSON(t, server.URL+"/api/leaderboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	entries := decode[[]leaderboardEntry](t, resp)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Username)
}

func TestLeaderboardWithoutDirectory(t *testing.T) {
	server, _ := newTestHandler(t, nil, nil)

	resp := getJSON(t, server.URL+"/api/leaderboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]leaderboardEntry](t, resp))
}

func TestInvalidUserIDParam(t *testing.T) {
	server, _ := newTestHandler(t, nil, nil)

	for _, path := range []string{"/api/users/abc", "/api/users/abc/games", "/api/users/abc/history"} {
		resp := getJSON(t, server.URL+path)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, fmt.Sprintf("path %s", path))
	}
}
