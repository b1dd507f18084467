package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/arcade/internal/gameserver"
)

// FinishedGame is one row of a user's game history.
type FinishedGame struct {
	GameID     string
	Kind       string
	PlayerA    int64
	PlayerB    int64
	WinnerID   int64
	Reason     string
	Duration   time.Duration
	FinishedAt time.Time
}

// GameRepository records finished games and the rating consequences.
// It implements the coordinator's archiving collaborator.
type GameRepository struct {
	db *pgxpool.Pool
}

var _ gameserver.GameArchiver = (*GameRepository)(nil)

// NewGameRepository creates a GameRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewGameRepository(db *pgxpool.Pool) *GameRepository {
	return &GameRepository{db: db}
}

// ArchiveResult stores a finished game and applies the rating and
// win/loss/draw bookkeeping for both participants in one transaction.
// Participants who never registered get a placeholder user row so the
// game history has something to reference.
//
// Postcondition: On success the game row exists, both user rows exist,
// and the winner's and loser's rating and counters are updated. A zero
// WinnerID records a draw for both sides with no rating change.
func (r *GameRepository) ArchiveResult(ctx context.Context, rec gameserver.GameRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning archive transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, id := range []int64{rec.PlayerA, rec.PlayerB} {
		if _, err := tx.Exec(ctx,
			`INSERT INTO users (user_id, language, username, rating)
			 VALUES ($1, '', $2, $3)
			 ON CONFLICT (user_id) DO NOTHING`,
			id, fmt.Sprintf("Player%d", id), defaultRating,
		); err != nil {
			return fmt.Errorf("ensuring user %d: %w", id, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO games (game_id, game_type, player1_id, player2_id,
		                    winner_id, reason, rating_change, duration, finished_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, 0), $6, $7, $8, $9)
		 ON CONFLICT (game_id) DO NOTHING`,
		rec.GameID, rec.Kind, rec.PlayerA, rec.PlayerB,
		rec.WinnerID, rec.Reason, rec.RatingChange,
		int64(rec.Duration.Seconds()), rec.FinishedAt,
	); err != nil {
		return fmt.Errorf("inserting game %s: %w", rec.GameID, err)
	}

	if rec.WinnerID != 0 {
		loserID := rec.PlayerA
		if loserID == rec.WinnerID {
			loserID = rec.PlayerB
		}
		if err := applyOutcome(ctx, tx, rec.WinnerID, rec.Kind, "wins", rec.RatingChange); err != nil {
			return err
		}
		if err := applyOutcome(ctx, tx, loserID, rec.Kind, "losses", -rec.RatingChange); err != nil {
			return err
		}
	} else {
		for _, id := range []int64{rec.PlayerA, rec.PlayerB} {
			if err := applyOutcome(ctx, tx, id, rec.Kind, "draws", 0); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing archive transaction: %w", err)
	}
	return nil
}

// applyOutcome bumps one user's counter and rating plus the per-kind
// stats row. outcome must be one of the counter column names.
func applyOutcome(ctx context.Context, tx pgx.Tx, userID int64, kind, outcome string, ratingDelta int) error {
	// Ratings never drop below zero.
	query := fmt.Sprintf(
		`UPDATE users
		 SET %s = %s + 1, rating = GREATEST(rating + $1, 0)
		 WHERE user_id = $2`,
		outcome, outcome,
	)
	if _, err := tx.Exec(ctx, query, ratingDelta, userID); err != nil {
		return fmt.Errorf("updating user %d outcome: %w", userID, err)
	}

	statsQuery := fmt.Sprintf(
		`INSERT INTO game_stats (user_id, game_type, %s)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (user_id, game_type) DO UPDATE
		 SET %s = game_stats.%s + 1`,
		outcome, outcome, outcome,
	)
	if _, err := tx.Exec(ctx, statsQuery, userID, kind); err != nil {
		return fmt.Errorf("updating user %d %s stats: %w", userID, kind, err)
	}
	return nil
}

// History returns the user's most recent finished games, newest first.
//
// Precondition: limit must be positive.
func (r *GameRepository) History(ctx context.Context, userID int64, limit int) ([]FinishedGame, error) {
	rows, err := r.db.Query(ctx,
		`SELECT game_id, game_type, player1_id, player2_id,
		        COALESCE(winner_id, 0), reason, duration, finished_at
		 FROM games
		 WHERE player1_id = $1 OR player2_id = $1
		 ORDER BY finished_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying game history for %d: %w", userID, err)
	}
	defer rows.Close()

	var games []FinishedGame
	for rows.Next() {
		var g FinishedGame
		var seconds int64
		if err := rows.Scan(&g.GameID, &g.Kind, &g.PlayerA, &g.PlayerB,
			&g.WinnerID, &g.Reason, &seconds, &g.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning game history row: %w", err)
		}
		g.Duration = time.Duration(seconds) * time.Second
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating game history rows: %w", err)
	}

	return games, nil
}
