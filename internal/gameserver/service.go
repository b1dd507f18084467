package gameserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arcade/internal/game/catalog"
	"github.com/cory-johannsen/arcade/internal/game/queue"
	"github.com/cory-johannsen/arcade/internal/game/registry"
	"github.com/cory-johannsen/arcade/internal/game/session"
)

// archiveTimeout bounds the background write of a finished game so a
// slow collaborator store cannot pile up goroutines forever.
const archiveTimeout = 5 * time.Second

// Service coordinates connections, matchmaking, and session relay. One
// instance serves the whole process; all methods are safe for concurrent
// use by independent connection tasks.
type Service struct {
	registry *registry.Registry
	store    *session.Store
	queue    *queue.Queue
	catalog  *catalog.Catalog
	names    NameResolver // may be nil
	archiver GameArchiver // may be nil
	rater    Rater
	logger   *zap.Logger

	sendBuffer int
	now        func() time.Time
}

// NewService creates a Service with the given dependencies.
//
// Precondition: reg, store, q, cat, rater, and logger must be non-nil.
// names and archiver may be nil; the coordinator then falls back to
// generated display names and skips archiving.
func NewService(
	reg *registry.Registry,
	store *session.Store,
	q *queue.Queue,
	cat *catalog.Catalog,
	rater Rater,
	names NameResolver,
	archiver GameArchiver,
	sendBuffer int,
	logger *zap.Logger,
) *Service {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Service{
		registry:   reg,
		store:      store,
		queue:      q,
		catalog:    cat,
		names:      names,
		archiver:   archiver,
		rater:      rater,
		logger:     logger,
		sendBuffer: sendBuffer,
		now:        time.Now,
	}
}

// Connect registers a fresh outbound client for the user, replacing any
// prior connection.
//
// Postcondition: Returns the client whose Events channel the transport
// write pump must drain.
func (s *Service) Connect(userID int64) *registry.Client {
	client := registry.NewClient(userID, s.sendBuffer)
	s.registry.Register(userID, client)
	s.logger.Info("user connected",
		zap.Int64("user_id", userID),
		zap.Int("online", s.registry.Count()),
	)
	return client
}

// Connections reports how many users are currently connected.
func (s *Service) Connections() int {
	return s.registry.Count()
}

// Disconnect tears down the user's presence: the registry entry (only if
// it still belongs to this client), any queue entries, and every session
// the user participates in. The opponent is notified and wins by
// disconnect. None of this requires the leaver's connection.
func (s *Service) Disconnect(userID int64, client *registry.Client) {
	s.registry.UnregisterClient(userID, client)
	if current, ok := s.registry.Get(userID); ok && current != client {
		// A newer connection replaced this one. The user is still
		// present, so their queue entries and sessions stay alive.
		return
	}
	s.queue.CancelAll(userID)

	for _, sess := range s.store.FindByUser(userID) {
		opponent, err := sess.Opponent(userID)
		if err != nil {
			continue
		}
		if opponent != 0 {
			s.push(opponent, Event{Type: EventOpponentLeft})
		}
		s.EndSession(sess.ID(), opponent, ReasonDisconnect)
	}

	s.logger.Info("user disconnected",
		zap.Int64("user_id", userID),
		zap.Int("online", s.registry.Count()),
	)
}

// HandleMessage dispatches one inbound websocket message. Errors are
// recoverable by contract: the caller logs them and keeps the
// connection alive.
func (s *Service) HandleMessage(ctx context.Context, userID int64, raw []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch msg.Type {
	case MessageTypeGameAction:
		return s.handleGameAction(userID, msg)
	case MessageTypeChat:
		return s.handleChat(userID, msg)
	default:
		return fmt.Errorf("%w: unknown message type %q", ErrMalformed, msg.Type)
	}
}

// CreateGame allocates a waiting session with an invite code for the
// creator.
//
// Postcondition: Returns the waiting session, or an error for an
// unknown game kind.
func (s *Service) CreateGame(ctx context.Context, userID int64, kindID string) (*session.Session, error) {
	kind, err := s.catalog.Get(kindID)
	if err != nil {
		return nil, err
	}

	sess := s.store.CreateWaiting(kind, s.player(ctx, userID))
	s.logger.Info("game created",
		zap.String("game_id", sess.ID()),
		zap.String("kind", kind.ID),
		zap.Int64("creator", userID),
	)
	return sess, nil
}

// FindGame enqueues the user for a random match. When the queue pairs
// two users, an active session is created and both receive a
// game_started push.
//
// Postcondition: Returns (session, true) when paired, (nil, false) when
// the user is left waiting; error only for an unknown game kind.
func (s *Service) FindGame(ctx context.Context, userID int64, kindID string) (*session.Session, bool, error) {
	kind, err := s.catalog.Get(kindID)
	if err != nil {
		return nil, false, err
	}

	pair, paired := s.queue.Enqueue(kind.ID, userID)
	if !paired {
		s.logger.Debug("user queued",
			zap.String("kind", kind.ID),
			zap.Int64("user_id", userID),
		)
		return nil, false, nil
	}

	sess := s.store.CreateActive(kind, s.player(ctx, pair.UserA), s.player(ctx, pair.UserB))
	s.logger.Info("queue match",
		zap.String("game_id", sess.ID()),
		zap.String("kind", kind.ID),
		zap.Int64("player_a", pair.UserA),
		zap.Int64("player_b", pair.UserB),
	)

	snap := sess.Snapshot()
	started := Event{Type: EventGameStarted, Game: &snap}
	s.push(pair.UserA, started)
	s.push(pair.UserB, started)
	return sess, true, nil
}

// CancelFind removes the user from the given kind's matchmaking queue.
func (s *Service) CancelFind(kindID string, userID int64) {
	s.queue.Cancel(kindID, userID)
}

// JoinGame resolves an invite code and joins the user into the waiting
// session. Both participants receive a game_started push.
//
// Postcondition: Returns the activated session; session.ErrNotFound or
// session.ErrAlreadyActive on a dead code.
func (s *Service) JoinGame(ctx context.Context, userID int64, code string) (*session.Session, error) {
	sess, err := s.store.JoinByCode(code, s.player(ctx, userID))
	if err != nil {
		return nil, err
	}

	s.logger.Info("game joined",
		zap.String("game_id", sess.ID()),
		zap.Int64("joiner", userID),
	)

	snap := sess.Snapshot()
	started := Event{Type: EventGameStarted, Game: &snap}
	a, b := sess.Participants()
	s.push(a.ID, started)
	s.push(b.ID, started)
	return sess, nil
}

// CancelGame removes a session without declaring a winner, releasing its
// invite code. Used to abandon a waiting session; idempotent.
func (s *Service) CancelGame(gameID string) {
	s.store.Remove(gameID)
	s.logger.Info("game cancelled", zap.String("game_id", gameID))
}

// GetGame returns the session with the given id.
func (s *Service) GetGame(gameID string) (*session.Session, error) {
	return s.store.Get(gameID)
}

// GamesForUser returns snapshots of every in-flight session the user
// participates in.
func (s *Service) GamesForUser(userID int64) []session.Snapshot {
	sessions := s.store.FindByUser(userID)
	snaps := make([]session.Snapshot, 0, len(sessions))
	for _, sess := range sessions {
		snaps = append(snaps, sess.Snapshot())
	}
	return snaps
}

// player builds the participant record for a user, asking the profile
// collaborator for the display name when one is wired.
func (s *Service) player(ctx context.Context, userID int64) session.Player {
	username := fmt.Sprintf("Player%d", userID)
	if s.names != nil {
		if name, err := s.names.Username(ctx, userID); err == nil && name != "" {
			username = name
		}
	}
	return session.Player{ID: userID, Username: username}
}

// push marshals and best-effort delivers an event to one user.
func (s *Service) push(userID int64, evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("marshalling event",
			zap.String("event", evt.Type),
			zap.Error(err),
		)
		return
	}
	if !s.registry.Send(userID, data) {
		s.logger.Debug("event dropped",
			zap.String("event", evt.Type),
			zap.Int64("user_id", userID),
		)
	}
}
