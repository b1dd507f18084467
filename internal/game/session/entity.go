// Package session provides the in-memory table of active game sessions
// and the session record itself.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status is the lifecycle state of a session. Transitions only move
// forward: waiting → active → finished.
type Status string

const (
	// StatusWaiting means slot B is empty and the invite code is live.
	StatusWaiting Status = "waiting"
	// StatusActive means both slots are filled and actions are accepted.
	StatusActive Status = "active"
	// StatusFinished means the session has ended and is being removed.
	StatusFinished Status = "finished"
)

// ErrNotFound is returned when a session or invite code cannot be resolved.
var ErrNotFound = errors.New("session not found")

// ErrAlreadyActive is returned when joining a session that is no longer waiting.
var ErrAlreadyActive = errors.New("session already active")

// ErrSelfJoin is returned when the creator tries to join their own session.
// Active sessions always hold two distinct participants.
var ErrSelfJoin = errors.New("cannot join own session")

// ErrNotActive is returned when acting on a session that is not active.
var ErrNotActive = errors.New("session not active")

// ErrNotParticipant is returned when the acting user occupies no slot.
var ErrNotParticipant = errors.New("user is not a session participant")

// Player identifies one participant slot.
type Player struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Session is one matched pair of participants playing one game instance.
// The store owns every Session; other components mutate it only through
// its methods, which serialize access per session.
type Session struct {
	mu sync.Mutex

	id        string
	code      string
	kind      string
	turnBased bool

	playerA Player
	playerB Player // zero while status == waiting

	status    Status
	turn      int64 // acting user id; 0 when no turn marker applies
	state     json.RawMessage
	choices   map[int]map[int64]string // round → user → pending choice
	createdAt time.Time
	finished  time.Time
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Code returns the invite code, empty for queue-created sessions.
func (s *Session) Code() string { return s.code }

// Kind returns the game kind id.
func (s *Session) Kind() string { return s.kind }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Turn returns the user id whose turn it is, or 0 when no turn marker
// applies (waiting sessions and non-turn-based kinds).
func (s *Session) Turn() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

// Participants returns both players. Player B is the zero Player while
// the session is waiting.
func (s *Session) Participants() (Player, Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerA, s.playerB
}

// HasParticipant reports whether the user occupies a slot.
func (s *Session) HasParticipant(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerA.ID == userID || (s.playerB.ID != 0 && s.playerB.ID == userID)
}

// Opponent returns the other participant's id.
//
// Postcondition: Returns ErrNotParticipant if userID occupies no slot.
func (s *Session) Opponent(userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opponentLocked(userID)
}

func (s *Session) opponentLocked(userID int64) (int64, error) {
	switch userID {
	case s.playerA.ID:
		return s.playerB.ID, nil
	case s.playerB.ID:
		return s.playerA.ID, nil
	}
	return 0, fmt.Errorf("%w: user %d in session %s", ErrNotParticipant, userID, s.id)
}

// PlayerName returns the username for a participant slot, or empty when
// the user occupies no slot.
func (s *Session) PlayerName(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch userID {
	case s.playerA.ID:
		return s.playerA.Username
	case s.playerB.ID:
		return s.playerB.Username
	}
	return ""
}

// ApplyMove stores the payload verbatim as the last-known game state and
// flips the turn marker to the opponent. Move legality is the clients'
// problem; the relay forwards opaque payloads.
//
// Precondition: the session must be active and userID a participant.
// Postcondition: Returns the opponent id the payload should be relayed to.
func (s *Session) ApplyMove(userID int64, payload json.RawMessage) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return 0, fmt.Errorf("%w: session %s is %s", ErrNotActive, s.id, s.status)
	}
	opponent, err := s.opponentLocked(userID)
	if err != nil {
		return 0, err
	}

	s.state = payload
	if s.turnBased {
		s.turn = opponent
	}
	return opponent, nil
}

// RecordChoice records the acting user's simultaneous choice for a round.
// A repeat submission for the same round overwrites the earlier one.
// Once both participants have chosen, the round resolves: both choices
// are returned and the round's scratch entry is cleared.
//
// Precondition: the session must be active and userID a participant.
// Postcondition: resolved is true exactly once per completed round;
// choices then maps each participant to their own submission.
func (s *Session) RecordChoice(userID int64, round int, choice string) (choices map[int64]string, resolved bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return nil, false, fmt.Errorf("%w: session %s is %s", ErrNotActive, s.id, s.status)
	}
	if _, err := s.opponentLocked(userID); err != nil {
		return nil, false, err
	}

	pending, ok := s.choices[round]
	if !ok {
		pending = make(map[int64]string, 2)
		s.choices[round] = pending
	}
	pending[userID] = choice // last write wins on repeat submission

	if len(pending) < 2 {
		return nil, false, nil
	}

	delete(s.choices, round)
	return pending, true, nil
}

// PendingChoices returns the number of unresolved choices recorded for a
// round. Exposed for tests and diagnostics.
func (s *Session) PendingChoices(round int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.choices[round])
}

// State returns the last-known opaque game state blob.
func (s *Session) State() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Duration returns the session's lifetime: finish time minus creation
// time for finished sessions, time since creation otherwise.
func (s *Session) Duration(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusFinished && !s.finished.IsZero() {
		return s.finished.Sub(s.createdAt)
	}
	return now.Sub(s.createdAt)
}

// Snapshot is the JSON-serializable view of a session, pushed in
// game_started events and returned by the fetch endpoint.
type Snapshot struct {
	ID            string          `json:"id"`
	Code          string          `json:"code,omitempty"`
	Type          string          `json:"type"`
	Player1       *Player         `json:"player1"`
	Player2       *Player         `json:"player2"`
	Status        Status          `json:"status"`
	CurrentPlayer int64           `json:"currentPlayer,omitempty"`
	State         json.RawMessage `json:"state,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Snapshot returns a consistent copy of the session's observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:            s.id,
		Code:          s.code,
		Type:          s.kind,
		Status:        s.status,
		CurrentPlayer: s.turn,
		State:         s.state,
		CreatedAt:     s.createdAt,
	}
	a := s.playerA
	snap.Player1 = &a
	if s.playerB.ID != 0 {
		b := s.playerB
		snap.Player2 = &b
	}
	return snap
}
