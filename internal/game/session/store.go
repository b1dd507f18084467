package session

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/arcade/internal/game/catalog"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// codeLength is the invite code size. Matches what human players are
// expected to relay to a friend by hand.
const codeLength = 4

// Store owns all in-flight sessions, keyed by session id, with a unique
// index from live invite codes to waiting sessions.
// All methods are safe for concurrent use. No session survives a process
// restart; there is deliberately no persistence here.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	codes    map[string]string // invite code → waiting session id
	now      func() time.Time
	randCode func() string
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		codes:    make(map[string]string),
		now:      time.Now,
		randCode: randomCode,
	}
}

func randomCode() string {
	buf := make([]byte, codeLength)
	for i := range buf {
		buf[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(buf)
}

// CreateWaiting allocates a waiting session with the creator in slot A
// and a freshly generated invite code. The code is unique among all
// currently waiting sessions of any kind; collisions regenerate.
//
// Precondition: creator.ID must be non-zero.
// Postcondition: The session is resolvable by id and by code.
func (st *Store) CreateWaiting(kind catalog.Kind, creator Player) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	code := st.randCode()
	for {
		if _, taken := st.codes[code]; !taken {
			break
		}
		code = st.randCode()
	}

	sess := &Session{
		id:        fmt.Sprintf("%s_%s_%d", kind.ID, code, creator.ID),
		code:      code,
		kind:      kind.ID,
		turnBased: kind.TurnBased,
		playerA:   creator,
		status:    StatusWaiting,
		choices:   make(map[int]map[int64]string),
		createdAt: st.now(),
	}
	st.sessions[sess.id] = sess
	st.codes[code] = sess.id
	return sess
}

// CreateActive allocates an active session with both slots filled, used
// by queue pairing. Turn-based kinds start with slot A to move.
//
// Precondition: a.ID and b.ID must be non-zero and distinct.
// Postcondition: The session is resolvable by id; it has no invite code.
func (st *Store) CreateActive(kind catalog.Kind, a, b Player) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	sess := &Session{
		id:        fmt.Sprintf("%s_%s", kind.ID, uuid.NewString()[:8]),
		kind:      kind.ID,
		turnBased: kind.TurnBased,
		playerA:   a,
		playerB:   b,
		status:    StatusActive,
		choices:   make(map[int]map[int64]string),
		createdAt: st.now(),
	}
	if kind.TurnBased {
		sess.turn = a.ID
	}
	st.sessions[sess.id] = sess
	return sess
}

// JoinByCode resolves the waiting session with the given invite code and
// fills slot B, activating the session. The code is consumed: a second
// join attempt with the same code fails.
//
// Postcondition: Returns the activated session; ErrNotFound when the
// code resolves to nothing; ErrAlreadyActive when the session stopped
// waiting between lookup and join; ErrSelfJoin when the joiner created
// the session. A failed join does not consume the code.
func (st *Store) JoinByCode(code string, joiner Player) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	id, ok := st.codes[code]
	if !ok {
		return nil, fmt.Errorf("%w: code %q", ErrNotFound, code)
	}
	sess, ok := st.sessions[id]
	if !ok {
		delete(st.codes, code)
		return nil, fmt.Errorf("%w: code %q", ErrNotFound, code)
	}

	if err := sess.activate(joiner); err != nil {
		return nil, err
	}
	delete(st.codes, code)
	return sess, nil
}

// activate fills slot B and moves the session to active.
func (s *Session) activate(joiner Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusWaiting {
		return fmt.Errorf("%w: session %s", ErrAlreadyActive, s.id)
	}
	if joiner.ID == s.playerA.ID {
		return fmt.Errorf("%w: user %d in session %s", ErrSelfJoin, joiner.ID, s.id)
	}
	s.playerB = joiner
	s.status = StatusActive
	if s.turnBased {
		s.turn = s.playerA.ID
	}
	return nil
}

// Get returns the session with the given id.
//
// Postcondition: Returns ErrNotFound if absent.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	sess, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return sess, nil
}

// Remove deletes the session and releases its invite code. Removing an
// absent id is a no-op.
func (st *Store) Remove(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.removeLocked(id)
}

func (st *Store) removeLocked(id string) {
	sess, ok := st.sessions[id]
	if !ok {
		return
	}
	if sess.code != "" {
		delete(st.codes, sess.code)
	}
	delete(st.sessions, id)
}

// Finish atomically marks the session finished, stamps the completion
// time, and removes it from the store. Exactly one caller wins: the
// second invocation for the same id returns false and must not notify
// anyone. This is the idempotency anchor for session teardown.
//
// Postcondition: On true, the session is finished and no longer
// resolvable; its Duration is fixed.
func (st *Store) Finish(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, ok := st.sessions[id]
	if !ok {
		return nil, false
	}

	sess.mu.Lock()
	sess.status = StatusFinished
	sess.finished = st.now()
	sess.mu.Unlock()

	st.removeLocked(id)
	return sess, true
}

// FindByUser returns every session in which the user occupies a slot.
// Normally at most one, but that is not enforced; disconnect cleanup
// iterates whatever is found.
func (st *Store) FindByUser(userID int64) []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var found []*Session
	for _, sess := range st.sessions {
		if sess.HasParticipant(userID) {
			found = append(found, sess)
		}
	}
	return found
}

// Count returns the number of in-flight sessions.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
