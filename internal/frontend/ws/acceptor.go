package ws

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arcade/internal/config"
	"github.com/cory-johannsen/arcade/internal/game/registry"
)

// Coordinator is the connection-facing surface of the game coordinator.
// It owns client registration and inbound message dispatch.
type Coordinator interface {
	Connect(userID int64) *registry.Client
	Disconnect(userID int64, client *registry.Client)
	HandleMessage(ctx context.Context, userID int64, raw []byte) error
}

// Acceptor upgrades HTTP requests to websocket connections and bridges
// each connection to the coordinator. One goroutine reads inbound frames,
// a second drains the client's event channel to the socket.
type Acceptor struct {
	cfg         config.WebsocketConfig
	coordinator Coordinator
	logger      *zap.Logger
	upgrader    websocket.Upgrader
}

// NewAcceptor creates a websocket acceptor.
//
// Precondition: coordinator and logger must be non-nil; cfg must validate.
// Postcondition: Returns an Acceptor ready to be mounted on a router.
func NewAcceptor(cfg config.WebsocketConfig, coordinator Coordinator, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:         cfg,
		coordinator: coordinator,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The portal is served from the Telegram webview, so the
			// Origin header never matches the server host.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Routes mounts the websocket endpoint on a chi router.
func (a *Acceptor) Routes(r chi.Router) {
	r.Get("/ws/{userID}", a.serveWS)
}

func (a *Acceptor) serveWS(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return
	}

	client := a.coordinator.Connect(userID)
	a.logger.Info("websocket connected",
		zap.Int64("user_id", userID),
		zap.String("remote", conn.RemoteAddr().String()),
	)

	go a.writePump(conn, client, userID)
	a.readPump(r.Context(), conn, client, userID)
}

// readPump reads inbound frames until the connection drops, then tears
// the client down. Runs on the HTTP handler goroutine.
func (a *Acceptor) readPump(ctx context.Context, conn *websocket.Conn, client *registry.Client, userID int64) {
	start := time.Now()
	defer func() {
		a.coordinator.Disconnect(userID, client)
		_ = conn.Close()
		a.logger.Info("websocket disconnected",
			zap.Int64("user_id", userID),
			zap.Duration("connected", time.Since(start)),
		)
	}()

	conn.SetReadLimit(a.cfg.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(a.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(a.cfg.PongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.logger.Warn("websocket read failed",
					zap.Int64("user_id", userID),
					zap.Error(err),
				)
			}
			return
		}

		if err := a.coordinator.HandleMessage(ctx, userID, raw); err != nil {
			// Protocol errors are the client's problem, not the server's.
			a.logger.Debug("rejected client message",
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
			// All frames go out through the event channel so writePump
			// stays the only writer on the socket.
			payload := []byte(`{"type":"error","message":` + strconv.Quote(err.Error()) + `}`)
			_ = client.Push(payload)
		}
	}
}

// writePump drains the client's event channel to the socket and keeps the
// connection alive with pings. Exits when the channel closes, which happens
// on disconnect or when a newer connection replaces this one.
func (a *Acceptor) writePump(conn *websocket.Conn, client *registry.Client, userID int64) {
	ticker := time.NewTicker(a.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				a.logger.Debug("websocket write failed",
					zap.Int64("user_id", userID),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

