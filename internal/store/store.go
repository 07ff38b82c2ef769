// internal/store/store.go
package store

import (
	"context"
	"time"

	"github-feed/internal/model"
)

// Store is the persistence contract the refresh engine depends on. The pgx
// implementation is the production one; tests substitute mocks.
type Store interface {
	// UpsertRepository inserts the repository if its id is new; otherwise it
	// updates only the mutable columns (description, homepage, language,
	// counts, size, pushed_at, updated_at) in place. Identity, URLs and
	// flags are immutable after creation.
	UpsertRepository(ctx context.Context, repo model.Repository) error
	// GetRepository returns the repository with the given id, or a
	// not-found error when absent.
	GetRepository(ctx context.Context, id int64) (model.Repository, error)
	// GetStarredRepositories returns all stored repositories.
	GetStarredRepositories(ctx context.Context) ([]model.Repository, error)
	// GetRecentlyUpdated returns repositories whose pushed_at is non-null
	// and strictly after since.
	GetRecentlyUpdated(ctx context.Context, since time.Time) ([]model.Repository, error)

	// SaveRelease records a release as seen. Saving an already-seen release
	// is a no-op.
	SaveRelease(ctx context.Context, release model.Release) error
	// GetReleasesSince returns stored releases published strictly after
	// since, newest first.
	GetReleasesSince(ctx context.Context, since time.Time) ([]model.Release, error)
	// ReleaseSeen reports whether the release id was recorded by a prior
	// cycle.
	ReleaseSeen(ctx context.Context, id int64) (bool, error)

	// RecordRun appends a completed-run watermark.
	RecordRun(ctx context.Context, executedAt time.Time) error
	// GetLastRun returns the chronologically latest watermark, or the zero
	// time when no cycle has completed yet.
	GetLastRun(ctx context.Context) (time.Time, error)
}
