package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// defaultRating is the rating assigned to a freshly registered user.
const defaultRating = 1000

// User represents a portal user in the database. Users are identified by
// their Telegram id, so there is no separate account credential.
type User struct {
	ID           int64
	Language     string
	Username     string
	Rating       int
	Wins         int
	Losses       int
	Draws        int
	RegisteredAt time.Time
}

// TotalGames returns the number of finished games the user participated in.
func (u User) TotalGames() int {
	return u.Wins + u.Losses + u.Draws
}

// ErrUserNotFound is returned when a user lookup yields no results.
var ErrUserNotFound = errors.New("user not found")

// UserRepository provides user persistence operations.
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a UserRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert registers a user or refreshes their language and username.
// Rating and win counts are preserved on conflict.
//
// Precondition: id must be a valid Telegram user id.
// Postcondition: Returns the stored user row.
func (r *UserRepository) Upsert(ctx context.Context, id int64, language, username string) (User, error) {
	if username == "" {
		username = fmt.Sprintf("Player%d", id)
	}

	var u User
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (user_id, language, username, rating)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET language = EXCLUDED.language, username = EXCLUDED.username
		 RETURNING user_id, language, username, rating, wins, losses, draws, registered_at`,
		id, language, username, defaultRating,
	).Scan(&u.ID, &u.Language, &u.Username, &u.Rating, &u.Wins, &u.Losses, &u.Draws, &u.RegisteredAt)
	if err != nil {
		return User{}, fmt.Errorf("upserting user %d: %w", id, err)
	}

	return u, nil
}

// Get fetches a user by id.
//
// Postcondition: Returns the User, or ErrUserNotFound if absent.
func (r *UserRepository) Get(ctx context.Context, id int64) (User, error) {
	var u User
	err := r.db.QueryRow(ctx,
		`SELECT user_id, language, username, rating, wins, losses, draws, registered_at
		 FROM users WHERE user_id = $1`,
		id,
	).Scan(&u.ID, &u.Language, &u.Username, &u.Rating, &u.Wins, &u.Losses, &u.Draws, &u.RegisteredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("fetching user %d: %w", id, err)
	}

	return u, nil
}

// Username resolves a display name for the user.
//
// Postcondition: Returns the stored username, or ErrUserNotFound if the
// user never registered.
func (r *UserRepository) Username(ctx context.Context, id int64) (string, error) {
	var name string
	err := r.db.QueryRow(ctx,
		`SELECT username FROM users WHERE user_id = $1`, id,
	).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("resolving username for %d: %w", id, err)
	}
	return name, nil
}

// Leaderboard returns the top users ordered by rating.
//
// Precondition: limit must be positive.
func (r *UserRepository) Leaderboard(ctx context.Context, limit int) ([]User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id, language, username, rating, wins, losses, draws, registered_at
		 FROM users
		 ORDER BY rating DESC, user_id ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Language, &u.Username, &u.Rating, &u.Wins, &u.Losses, &u.Draws, &u.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scanning leaderboard row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating leaderboard rows: %w", err)
	}

	return users, nil
}
