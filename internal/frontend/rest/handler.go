// Package rest exposes the portal's HTTP API for the Telegram webapp.
// Matchmaking endpoints delegate to the game coordinator; user and
// leaderboard endpoints read from the persistence collaborators when
// those are wired.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arcade/internal/game/catalog"
	"github.com/cory-johannsen/arcade/internal/game/session"
	"github.com/cory-johannsen/arcade/internal/gameserver"
	"github.com/cory-johannsen/arcade/internal/storage/postgres"
)

// UserDirectory defines the user lookups required by the user endpoints.
type UserDirectory interface {
	Get(ctx context.Context, id int64) (postgres.User, error)
	Leaderboard(ctx context.Context, limit int) ([]postgres.User, error)
}

// GameHistory defines the finished-game lookups required by the history
// endpoint.
type GameHistory interface {
	History(ctx context.Context, userID int64, limit int) ([]postgres.FinishedGame, error)
}

const (
	defaultLeaderboardLimit = 10
	defaultHistoryLimit     = 20
)

// Handler serves the REST API. users and history may be nil, in which
// case the corresponding endpoints fall back to in-memory defaults.
type Handler struct {
	coordinator *gameserver.Service
	users       UserDirectory
	history     GameHistory
	logger      *zap.Logger
}

// NewHandler creates a REST handler.
//
// Precondition: coordinator and logger must be non-nil.
func NewHandler(coordinator *gameserver.Service, users UserDirectory, history GameHistory, logger *zap.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		users:       users,
		history:     history,
		logger:      logger,
	}
}

// Routes mounts the API endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/games/create", h.handleCreateGame)
		r.Post("/games/find", h.handleFindGame)
		r.Post("/games/join", h.handleJoinGame)
		r.Post("/games/{gameID}/cancel", h.handleCancelGame)
		r.Get("/games/{gameID}", h.handleGetGame)
		r.Get("/users/{userID}", h.handleGetUser)
		r.Get("/users/{userID}/games", h.handleUserGames)
		r.Get("/users/{userID}/history", h.handleUserHistory)
		r.Get("/leaderboard", h.handleLeaderboard)
	})
}

type matchRequest struct {
	UserID   int64  `json:"userId"`
	GameType string `json:"gameType"`
}

func (h *Handler) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.coordinator.CreateGame(r.Context(), req.UserID, req.GameType)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownKind) {
			writeError(w, http.StatusBadRequest, "unknown game type")
			return
		}
		h.serverError(w, "creating game", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"gameId": sess.ID(),
		"code":   sess.Code(),
	})
}

func (h *Handler) handleFindGame(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, paired, err := h.coordinator.FindGame(r.Context(), req.UserID, req.GameType)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownKind) {
			writeError(w, http.StatusBadRequest, "unknown game type")
			return
		}
		h.serverError(w, "finding game", err)
		return
	}

	if !paired {
		writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"gameId": sess.ID()})
}

type joinRequest struct {
	UserID int64  `json:"userId"`
	Code   string `json:"code"`
}

func (h *Handler) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.coordinator.JoinGame(r.Context(), req.UserID, req.Code)
	if err != nil {
		// A code that resolves to nothing joinable reads the same to
		// the webapp whether it is unknown, stale, or the joiner's own.
		if errors.Is(err, session.ErrNotFound) ||
			errors.Is(err, session.ErrAlreadyActive) ||
			errors.Is(err, session.ErrSelfJoin) {
			writeError(w, http.StatusNotFound, "Game not found")
			return
		}
		h.serverError(w, "joining game", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"gameId": sess.ID(),
		"game":   sess.Snapshot(),
	})
}

func (h *Handler) handleCancelGame(w http.ResponseWriter, r *http.Request) {
	h.coordinator.CancelGame(chi.URLParam(r, "gameID"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handler) handleGetGame(w http.ResponseWriter, r *http.Request) {
	sess, err := h.coordinator.GetGame(chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Game not found")
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	Draws    int    `json:"draws"`
	Total    int    `json:"totalGames"`
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	if h.users == nil {
		// Without persistence every user looks freshly registered.
		writeJSON(w, http.StatusOK, userResponse{
			ID:       userID,
			Username: "Player" + strconv.FormatInt(userID, 10),
			Rating:   1000,
		})
		return
	}

	user, err := h.users.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.serverError(w, "fetching user", err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:       user.ID,
		Username: user.Username,
		Rating:   user.Rating,
		Wins:     user.Wins,
		Losses:   user.Losses,
		Draws:    user.Draws,
		Total:    user.TotalGames(),
	})
}

type activeGameResponse struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	OpponentName string `json:"opponentName"`
	Status       string `json:"status"`
}

func (h *Handler) handleUserGames(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	snaps := h.coordinator.GamesForUser(userID)
	games := make([]activeGameResponse, 0, len(snaps))
	for _, snap := range snaps {
		games = append(games, activeGameResponse{
			ID:           snap.ID,
			Type:         snap.Type,
			OpponentName: opponentName(snap, userID),
			Status:       turnStatus(snap, userID),
		})
	}

	writeJSON(w, http.StatusOK, games)
}

func opponentName(snap session.Snapshot, userID int64) string {
	if snap.Player1 != nil && snap.Player1.ID != userID {
		return snap.Player1.Username
	}
	if snap.Player2 != nil && snap.Player2.ID != userID {
		return snap.Player2.Username
	}
	return "Waiting..."
}

func turnStatus(snap session.Snapshot, userID int64) string {
	switch {
	case snap.Status == session.StatusWaiting:
		return "waiting"
	case snap.CurrentPlayer == userID:
		return "your_turn"
	case snap.CurrentPlayer != 0:
		return "opponents_turn"
	default:
		return "active"
	}
}

type historyResponse struct {
	GameID   string `json:"gameId"`
	Type     string `json:"type"`
	Won      bool   `json:"won"`
	Draw     bool   `json:"draw"`
	Reason   string `json:"reason"`
	Duration int64  `json:"duration"`
}

func (h *Handler) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	if h.history == nil {
		writeJSON(w, http.StatusOK, []historyResponse{})
		return
	}

	finished, err := h.history.History(r.Context(), userID, defaultHistoryLimit)
	if err != nil {
		h.serverError(w, "fetching history", err)
		return
	}

	games := make([]historyResponse, 0, len(finished))
	for _, g := range finished {
		games = append(games, historyResponse{
			GameID:   g.GameID,
			Type:     g.Kind,
			Won:      g.WinnerID == userID,
			Draw:     g.WinnerID == 0,
			Reason:   g.Reason,
			Duration: int64(g.Duration.Seconds()),
		})
	}

	writeJSON(w, http.StatusOK, games)
}

type leaderboardEntry struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	Draws    int    `json:"draws"`
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if h.users == nil {
		writeJSON(w, http.StatusOK, []leaderboardEntry{})
		return
	}

	top, err := h.users.Leaderboard(r.Context(), defaultLeaderboardLimit)
	if err != nil {
		h.serverError(w, "fetching leaderboard", err)
		return
	}

	entries := make([]leaderboardEntry, 0, len(top))
	for _, u := range top {
		entries = append(entries, leaderboardEntry{
			UserID:   u.ID,
			Username: u.Username,
			Rating:   u.Rating,
			Wins:     u.Wins,
			Losses:   u.Losses,
			Draws:    u.Draws,
		})
	}

	writeJSON(w, http.StatusOK, entries)
}

func parseUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return userID, true
}

func (h *Handler) serverError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
