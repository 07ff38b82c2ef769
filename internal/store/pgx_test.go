//go:build integration

// internal/store/pgx_test.go
package store

import (
	"context"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github-feed/internal/apperrors"
	"github-feed/internal/model"
)

func setupTestStore(ctx context.Context, t *testing.T) *PgxStore {
	t.Helper()

	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migrate.New("file://../../migrations", connStr)
	require.NoError(t, err)
	require.NoError(t, m.Up())

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewPgxStore(pool)
}

func strPtr(s string) *string { return &s }

func sampleRepo(id int64) model.Repository {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return model.Repository{
		ID:              id,
		NodeID:          "node",
		Name:            "repo",
		FullName:        "owner/repo",
		HTMLURL:         "https://github.com/owner/repo",
		Description:     strPtr("initial description"),
		StargazersCount: 10,
		ForksCount:      2,
		WatchersCount:   10,
		OpenIssuesCount: 1,
		Size:            100,
		DefaultBranch:   "main",
		ReleasesURL:     "https://api.github.com/repos/owner/repo/releases{/id}",
		Visibility:      "public",
		CreatedAt:       now.Add(-365 * 24 * time.Hour),
		UpdatedAt:       now,
	}
}

func TestPgxStore_UpsertRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	st := setupTestStore(ctx, t)

	t.Run("upsert is idempotent", func(t *testing.T) {
		repo := sampleRepo(1)
		require.NoError(t, st.UpsertRepository(ctx, repo))
		require.NoError(t, st.UpsertRepository(ctx, repo))

		stored, err := st.GetRepository(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, repo.FullName, stored.FullName)

		all, err := st.GetStarredRepositories(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1, "re-merging the same payload must not create a second row")
	})

	t.Run("merge updates mutable fields and preserves immutable ones", func(t *testing.T) {
		repo := sampleRepo(2)
		require.NoError(t, st.UpsertRepository(ctx, repo))

		fresh := repo
		fresh.HTMLURL = "https://github.com/renamed/elsewhere" // immutable, must not land
		fresh.NodeID = "other-node"                            // immutable, must not land
		fresh.Description = strPtr("updated description")
		fresh.StargazersCount = 99
		fresh.Size = 200
		pushed := time.Now().UTC().Truncate(time.Microsecond)
		fresh.PushedAt = &pushed
		require.NoError(t, st.UpsertRepository(ctx, fresh))

		stored, err := st.GetRepository(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, repo.HTMLURL, stored.HTMLURL)
		assert.Equal(t, repo.NodeID, stored.NodeID)
		require.NotNil(t, stored.Description)
		assert.Equal(t, "updated description", *stored.Description)
		assert.Equal(t, 99, stored.StargazersCount)
		assert.Equal(t, 200, stored.Size)
		require.NotNil(t, stored.PushedAt)
		assert.True(t, stored.PushedAt.Equal(pushed))
	})

	t.Run("missing repository yields not found", func(t *testing.T) {
		_, err := st.GetRepository(ctx, 999)
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestPgxStore_GetRecentlyUpdated(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	st := setupTestStore(ctx, t)

	now := time.Now().UTC().Truncate(time.Microsecond)

	neverPushed := sampleRepo(10)
	neverPushed.PushedAt = nil
	stale := sampleRepo(11)
	stalePushed := now.Add(-10 * 24 * time.Hour)
	stale.PushedAt = &stalePushed
	active := sampleRepo(12)
	activePushed := now.Add(-time.Hour)
	active.PushedAt = &activePushed

	for _, repo := range []model.Repository{neverPushed, stale, active} {
		require.NoError(t, st.UpsertRepository(ctx, repo))
	}

	updated, err := st.GetRecentlyUpdated(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, int64(12), updated[0].ID)
}

func TestPgxStore_Releases(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	st := setupTestStore(ctx, t)

	now := time.Now().UTC().Truncate(time.Microsecond)
	release := model.Release{
		ID:          50,
		HTMLURL:     "https://github.com/owner/repo/releases/tag/v1.0.0",
		TagName:     "v1.0.0",
		Body:        "notes",
		CreatedAt:   now.Add(-2 * time.Hour),
		PublishedAt: now.Add(-time.Hour),
	}

	seen, err := st.ReleaseSeen(ctx, release.ID)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, st.SaveRelease(ctx, release))
	// Saving again is a no-op, never a conflict error.
	require.NoError(t, st.SaveRelease(ctx, release))

	seen, err = st.ReleaseSeen(ctx, release.ID)
	require.NoError(t, err)
	assert.True(t, seen)

	releases, err := st.GetReleasesSince(ctx, now.Add(-90*time.Minute))
	require.NoError(t, err)
	require.Len(t, releases, 1)
	assert.Equal(t, "v1.0.0", releases[0].TagName)

	releases, err = st.GetReleasesSince(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, releases)
}

func TestPgxStore_RunWatermark(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	st := setupTestStore(ctx, t)

	last, err := st.GetLastRun(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero(), "no runs yet")

	t1 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)

	// Insert out of chronological order so an insertion-order or lexical
	// reading would return the wrong run.
	require.NoError(t, st.RecordRun(ctx, t2))
	require.NoError(t, st.RecordRun(ctx, t1))

	last, err = st.GetLastRun(ctx)
	require.NoError(t, err)
	assert.True(t, last.Equal(t2), "must return the chronologically latest run")
}
