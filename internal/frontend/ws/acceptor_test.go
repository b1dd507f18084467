package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arcade/internal/config"
	"github.com/cory-johannsen/arcade/internal/game/catalog"
	"github.com/cory-johannsen/arcade/internal/game/queue"
	"github.com/cory-johannsen/arcade/internal/game/registry"
	"github.com/cory-johannsen/arcade/internal/game/session"
	"github.com/cory-johannsen/arcade/internal/gameserver"
)

func testWebsocketConfig() config.WebsocketConfig {
	return config.WebsocketConfig{
		SendBuffer:   16,
		ReadLimit:    65536,
		WriteTimeout: 2 * time.Second,
		PongWait:     10 * time.Second,
		PingPeriod:   5 * time.Second,
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *gameserver.Service) {
	t.Helper()

	svc := gameserver.NewService(
		registry.NewRegistry(),
		session.NewStore(),
		queue.New(),
		catalog.Default(),
		gameserver.StaticRater{Delta: 25},
		nil,
		nil,
		16,
		zap.NewNop(),
	)

	router := chi.NewRouter()
	NewAcceptor(testWebsocketConfig(), svc, zap.NewNop()).Routes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, svc
}

func dial(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) gameserver.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt gameserver.Event
	require.NoError(t, json.Unmarshal(raw, &evt))
	return evt
}

func TestServeWSRejectsBadUserID(t *testing.T) {
	server, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/not-a-number"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestEventsFlowToConnectedClient(t *testing.T) {
	server, svc := newTestServer(t)
	ctx := context.Background()

	connA := dial(t, server, "1")
	connB := dial(t, server, "2")
	waitForConnections(t, svc, 2)

	created, err := svc.CreateGame(ctx, 1, "chess")
	require.NoError(t, err)
	_, err = svc.JoinGame(ctx, 2, created.Code())
	require.NoError(t, err)

	for _, conn := range []*websocket.Conn{connA, connB} {
		evt := readEvent(t, conn)
		assert.Equal(t, gameserver.EventGameStarted, evt.Type)
		require.NotNil(t, evt.Game)
		assert.Equal(t, created.ID(), evt.Game.ID)
	}
}

func TestInboundFramesReachCoordinator(t *testing.T) {
	server, svc := newTestServer(t)
	ctx := context.Background()

	connA := dial(t, server, "1")
	connB := dial(t, server, "2")
	waitForConnections(t, svc, 2)

	created, err := svc.CreateGame(ctx, 1, "chess")
	require.NoError(t, err)
	_, err = svc.JoinGame(ctx, 2, created.Code())
	require.NoError(t, err)
	readEvent(t, connA)
	readEvent(t, connB)

	move := `{"type":"game_action","gameId":"` + created.ID() + `","action":"move","data":{"from":"e2","to":"e4"}}`
	require.NoError(t, connA.WriteMessage(websocket.TextMessage, []byte(move)))

	evt := readEvent(t, connB)
	assert.Equal(t, gameserver.EventOpponentMove, evt.Type)
	assert.JSONEq(t, `{"from":"e2","to":"e4"}`, string(evt.Move))
}

func TestMalformedFrameGetsErrorReply(t *testing.T) {
	server, svc := newTestServer(t)

	conn := dial(t, server, "1")
	waitForConnections(t, svc, 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var reply struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(raw, &reply))
	assert.Equal(t, "error", reply.Type)
	assert.NotEmpty(t, reply.Message)
}

func TestDisconnectTearsDownSession(t *testing.T) {
	server, svc := newTestServer(t)
	ctx := context.Background()

	connA := dial(t, server, "1")
	connB := dial(t, server, "2")
	waitForConnections(t, svc, 2)

	created, err := svc.CreateGame(ctx, 1, "chess")
	require.NoError(t, err)
	_, err = svc.JoinGame(ctx, 2, created.Code())
	require.NoError(t, err)
	readEvent(t, connA)
	readEvent(t, connB)

	require.NoError(t, connB.Close())

	evt := readEvent(t, connA)
	assert.Equal(t, gameserver.EventOpponentLeft, evt.Type)

	evt = readEvent(t, connA)
	assert.Equal(t, gameserver.EventGameEnded, evt.Type)
	require.NotNil(t, evt.Result)
	assert.Equal(t, int64(1), evt.Result.Winner)
	assert.Equal(t, gameserver.ReasonDisconnect, evt.Result.Reason)
}

func TestReconnectReplacesConnection(t *testing.T) {
	server, svc := newTestServer(t)
	ctx := context.Background()

	connOld := dial(t, server, "1")
	waitForConnections(t, svc, 1)

	connNew := dial(t, server, "1")
	waitForClose(t, connOld)

	dial(t, server, "2")
	waitForConnections(t, svc, 2)

	created, err := svc.CreateGame(ctx, 1, "chess")
	require.NoError(t, err)
	_, err = svc.JoinGame(ctx, 2, created.Code())
	require.NoError(t, err)

	evt := readEvent(t, connNew)
	assert.Equal(t, gameserver.EventGameStarted, evt.Type)
}

// waitForConnections polls until the coordinator sees n registered clients.
func waitForConnections(t *testing.T, svc *gameserver.Service, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if svc.Connections() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("never saw %d connections", n)
}

// waitForClose blocks until the server closes the connection.
func waitForClose(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
