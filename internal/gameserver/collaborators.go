package gameserver

import (
	"context"
	"time"
)

// NameResolver supplies display names for user ids. Profile storage is a
// collaborator concern; the coordinator only reads names for chat and
// session snapshots.
type NameResolver interface {
	Username(ctx context.Context, userID int64) (string, error)
}

// GameRecord is the archived outcome of a finished session.
type GameRecord struct {
	GameID       string
	Kind         string
	PlayerA      int64
	PlayerB      int64
	WinnerID     int64
	Reason       string
	RatingChange int
	Duration     time.Duration
	FinishedAt   time.Time
}

// GameArchiver persists finished games and the resulting stat updates.
// Archiving is best-effort: failures are logged, never surfaced to
// either participant.
type GameArchiver interface {
	ArchiveResult(ctx context.Context, rec GameRecord) error
}

// Rater supplies the rating delta applied when a session ends. Real
// rating math lives in the rating collaborator; the coordinator only
// forwards the value.
type Rater interface {
	Change(winnerID, loserID int64, kind string) int
}

// StaticRater reports a fixed rating delta regardless of the pairing.
type StaticRater struct {
	Delta int
}

// Change returns the configured delta.
func (r StaticRater) Change(int64, int64, string) int {
	return r.Delta
}
