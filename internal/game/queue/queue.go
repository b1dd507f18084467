// Package queue implements per-kind FIFO matchmaking for users seeking a
// random opponent.
package queue

import (
	"sync"
	"time"
)

// Entry is one user waiting for an opponent.
type Entry struct {
	// UserID is the waiting user.
	UserID int64
	// EnqueuedAt is when the user entered the queue.
	EnqueuedAt time.Time
}

// Pair holds the two users taken off a queue, oldest first.
type Pair struct {
	// UserA waited longest and becomes slot A of the session.
	UserA int64
	// UserB is the second-oldest waiter.
	UserB int64
}

// Queue holds per-game-kind FIFO waiting lists. Pairing is greedy and
// unprioritized; the two oldest entries always match.
// All methods are safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	waiting map[string][]Entry // kind → FIFO entries
	now     func() time.Time
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{
		waiting: make(map[string][]Entry),
		now:     time.Now,
	}
}

// Enqueue appends the user to the kind's waiting list. If two users are
// then waiting, both are dequeued and returned as a Pair. The check and
// the double pop happen under one lock so concurrent enqueues cannot
// observe a queue of two.
//
// A user already waiting for the same kind is not appended again; users
// cannot be paired with themselves.
//
// Postcondition: Returns (pair, true) when a match formed, otherwise
// (Pair{}, false). Len(kind) afterwards is 0 or 1.
func (q *Queue) Enqueue(kind string, userID int64) (Pair, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.waiting[kind]
	for _, e := range entries {
		if e.UserID == userID {
			return Pair{}, false
		}
	}

	entries = append(entries, Entry{UserID: userID, EnqueuedAt: q.now()})
	if len(entries) < 2 {
		q.waiting[kind] = entries
		return Pair{}, false
	}

	pair := Pair{UserA: entries[0].UserID, UserB: entries[1].UserID}
	q.waiting[kind] = entries[2:]
	return pair, true
}

// Cancel removes the user's entry for the given kind if present.
//
// Postcondition: The user is no longer waiting for that kind.
func (q *Queue) Cancel(kind string, userID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.waiting[kind] = removeUser(q.waiting[kind], userID)
}

// CancelAll removes the user from every kind's waiting list. Used on
// disconnect.
func (q *Queue) CancelAll(userID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for kind, entries := range q.waiting {
		q.waiting[kind] = removeUser(entries, userID)
	}
}

// Len returns the number of users waiting for the given kind.
func (q *Queue) Len(kind string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting[kind])
}

func removeUser(entries []Entry, userID int64) []Entry {
	for i, e := range entries {
		if e.UserID == userID {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}
