package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/arcade/internal/gameserver"
	"github.com/cory-johannsen/arcade/internal/storage/postgres"
	"github.com/cory-johannsen/arcade/internal/testutil"
)

func setupRepos(t *testing.T) (*postgres.UserRepository, *postgres.GameRepository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	return postgres.NewUserRepository(pc.RawPool), postgres.NewGameRepository(pc.RawPool)
}

func TestUserUpsertAndGet(t *testing.T) {
	users, _ := setupRepos(t)
	ctx := context.Background()

	created, err := users.Upsert(ctx, 100, "en", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), created.ID)
	assert.Equal(t, "alice", created.Username)
	assert.Equal(t, 1000, created.Rating)
	assert.Zero(t, created.TotalGames())

	// A second upsert refreshes profile fields but keeps counters.
	updated, err := users.Upsert(ctx, 100, "ru", "alice2")
	require.NoError(t, err)
	assert.Equal(t, "alice2", updated.Username)
	assert.Equal(t, "ru", updated.Language)
	assert.Equal(t, created.Rating, updated.Rating)

	fetched, err := users.Get(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, updated, fetched)
}

func TestUserUpsertDefaultsUsername(t *testing.T) {
	users, _ := setupRepos(t)

	created, err := users.Upsert(context.Background(), 7, "en", "")
	require.NoError(t, err)
	assert.Equal(t, "Player7", created.Username)
}

func TestUserGetNotFound(t *testing.T) {
	users, _ := setupRepos(t)

	_, err := users.Get(context.Background(), 999)
	assert.ErrorIs(t, err, postgres.ErrUserNotFound)

	_, err = users.Username(context.Background(), 999)
	assert.ErrorIs(t, err, postgres.ErrUserNotFound)
}

func TestArchiveResultUpdatesBothPlayers(t *testing.T) {
	users, games := setupRepos(t)
	ctx := context.Background()

	_, err := users.Upsert(ctx, 1, "en", "winner")
	require.NoError(t, err)
	_, err = users.Upsert(ctx, 2, "en", "loser")
	require.NoError(t, err)

	err = games.ArchiveResult(ctx, gameserver.GameRecord{
		GameID:       "chess_AB12_1",
		Kind:         "chess",
		PlayerA:      1,
		PlayerB:      2,
		WinnerID:     1,
		Reason:       "resignation",
		RatingChange: 25,
		Duration:     90 * time.Second,
		FinishedAt:   time.Now(),
	})
	require.NoError(t, err)

	winner, err := users.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1025, winner.Rating)
	assert.Equal(t, 1, winner.Wins)
	assert.Zero(t, winner.Losses)

	loser, err := users.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 975, loser.Rating)
	assert.Equal(t, 1, loser.Losses)
	assert.Zero(t, loser.Wins)
}

func TestArchiveResultDraw(t *testing.T) {
	users, games := setupRepos(t)
	ctx := context.Background()

	err := games.ArchiveResult(ctx, gameserver.GameRecord{
		GameID:     "rps_XY99_3",
		Kind:       "rps",
		PlayerA:    3,
		PlayerB:    4,
		WinnerID:   0,
		Reason:     "draw",
		Duration:   30 * time.Second,
		FinishedAt: time.Now(),
	})
	require.NoError(t, err)

	// Unregistered participants get placeholder rows.
	a, err := users.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "Player3", a.Username)
	assert.Equal(t, 1, a.Draws)
	assert.Equal(t, 1000, a.Rating)

	b, err := users.Get(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Draws)
}

func TestArchiveResultIdempotentOnGameID(t *testing.T) {
	_, games := setupRepos(t)
	ctx := context.Background()

	rec := gameserver.GameRecord{
		GameID:       "checkers_QQ11_5",
		Kind:         "checkers",
		PlayerA:      5,
		PlayerB:      6,
		WinnerID:     5,
		Reason:       "resignation",
		RatingChange: 25,
		Duration:     time.Minute,
		FinishedAt:   time.Now(),
	}
	require.NoError(t, games.ArchiveResult(ctx, rec))
	require.NoError(t, games.ArchiveResult(ctx, rec), "re-archiving the same game id must not error")

	history, err := games.History(ctx, 5, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1, "one row per game id")
}

func TestHistoryOrderedNewestFirst(t *testing.T) {
	_, games := setupRepos(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"chess_A_7", "chess_B_7", "chess_C_7"} {
		require.NoError(t, games.ArchiveResult(ctx, gameserver.GameRecord{
			GameID:       id,
			Kind:         "chess",
			PlayerA:      7,
			PlayerB:      8,
			WinnerID:     7,
			Reason:       "resignation",
			RatingChange: 25,
			Duration:     time.Minute,
			FinishedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	history, err := games.History(ctx, 7, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "chess_C_7", history[0].GameID)
	assert.Equal(t, "chess_B_7", history[1].GameID)

	// The opponent sees the same games.
	opponent, err := games.History(ctx, 8, 10)
	require.NoError(t, err)
	assert.Len(t, opponent, 3)
}

func TestLeaderboardOrderedByRating(t *testing.T) {
	users, games := setupRepos(t)
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		_, err := users.Upsert(ctx, id, "en", "")
		require.NoError(t, err)
	}

	// 2 beats 1 twice, 3 beats 1 once.
	results := []gameserver.GameRecord{
		{GameID: "g1", Kind: "chess", PlayerA: 2, PlayerB: 1, WinnerID: 2, RatingChange: 25},
		{GameID: "g2", Kind: "chess", PlayerA: 2, PlayerB: 1, WinnerID: 2, RatingChange: 25},
		{GameID: "g3", Kind: "chess", PlayerA: 3, PlayerB: 1, WinnerID: 3, RatingChange: 25},
	}
	for i := range results {
		results[i].FinishedAt = time.Now()
		results[i].Duration = time.Minute
		require.NoError(t, games.ArchiveResult(ctx, results[i]))
	}

	top, err := users.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, int64(2), top[0].ID)
	assert.Equal(t, 1050, top[0].Rating)
	assert.Equal(t, int64(3), top[1].ID)
	assert.Equal(t, int64(1), top[2].ID)
	assert.Equal(t, 925, top[2].Rating)
}
