// internal/store/pgx.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github-feed/internal/apperrors"
	"github-feed/internal/model"
)

// PgxStore is the Postgres-backed Store.
type PgxStore struct {
	pool *pgxpool.Pool
}

// NewPgxStore wraps an existing connection pool. The caller owns the pool's
// lifecycle.
func NewPgxStore(pool *pgxpool.Pool) *PgxStore {
	return &PgxStore{pool: pool}
}

const repositoryColumns = `id, node_id, name, full_name, html_url, description, homepage, language,
	stargazers_count, forks_count, watchers_count, open_issues_count, size,
	default_branch, releases_url, visibility, archived, disabled,
	created_at, updated_at, pushed_at`

// UpsertRepository is a single INSERT ... ON CONFLICT statement, so the
// merge is atomic per repository: a concurrent reader sees either the old
// row or the fully updated one.
func (s *PgxStore) UpsertRepository(ctx context.Context, repo model.Repository) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO repositories (`+repositoryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			homepage = EXCLUDED.homepage,
			language = EXCLUDED.language,
			stargazers_count = EXCLUDED.stargazers_count,
			forks_count = EXCLUDED.forks_count,
			watchers_count = EXCLUDED.watchers_count,
			open_issues_count = EXCLUDED.open_issues_count,
			size = EXCLUDED.size,
			updated_at = EXCLUDED.updated_at,
			pushed_at = EXCLUDED.pushed_at`,
		repo.ID, repo.NodeID, repo.Name, repo.FullName, repo.HTMLURL,
		repo.Description, repo.Homepage, repo.Language,
		repo.StargazersCount, repo.ForksCount, repo.WatchersCount, repo.OpenIssuesCount, repo.Size,
		repo.DefaultBranch, repo.ReleasesURL, repo.Visibility, repo.Archived, repo.Disabled,
		repo.CreatedAt, repo.UpdatedAt, repo.PushedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert repository %d: %w", repo.ID, err)
	}
	return nil
}

func (s *PgxStore) GetRepository(ctx context.Context, id int64) (model.Repository, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+repositoryColumns+`
		FROM repositories
		WHERE id = $1`, id)

	repo, err := scanRepository(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Repository{}, apperrors.New(apperrors.KindNotFound, "get repository", err)
	}
	if err != nil {
		return model.Repository{}, fmt.Errorf("get repository %d: %w", id, err)
	}
	return repo, nil
}

func (s *PgxStore) GetStarredRepositories(ctx context.Context) ([]model.Repository, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+repositoryColumns+`
		FROM repositories
		ORDER BY full_name`)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	return collectRepositories(rows)
}

func (s *PgxStore) GetRecentlyUpdated(ctx context.Context, since time.Time) ([]model.Repository, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+repositoryColumns+`
		FROM repositories
		WHERE pushed_at IS NOT NULL AND pushed_at > $1
		ORDER BY pushed_at DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("list recently updated repositories: %w", err)
	}
	defer rows.Close()

	return collectRepositories(rows)
}

// SaveRelease relies on ON CONFLICT DO NOTHING: a release is created once
// and never mutated.
func (s *PgxStore) SaveRelease(ctx context.Context, release model.Release) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO releases (id, html_url, tag_name, name, body, draft, prerelease, created_at, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		release.ID, release.HTMLURL, release.TagName, release.Name, release.Body,
		release.Draft, release.Prerelease, release.CreatedAt, release.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("save release %d: %w", release.ID, err)
	}
	return nil
}

func (s *PgxStore) GetReleasesSince(ctx context.Context, since time.Time) ([]model.Release, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, html_url, tag_name, name, body, draft, prerelease, created_at, published_at
		FROM releases
		WHERE published_at > $1
		ORDER BY published_at DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	defer rows.Close()

	var releases []model.Release
	for rows.Next() {
		var r model.Release
		if err := rows.Scan(&r.ID, &r.HTMLURL, &r.TagName, &r.Name, &r.Body,
			&r.Draft, &r.Prerelease, &r.CreatedAt, &r.PublishedAt); err != nil {
			return nil, fmt.Errorf("scan release: %w", err)
		}
		releases = append(releases, r)
	}
	return releases, rows.Err()
}

func (s *PgxStore) ReleaseSeen(ctx context.Context, id int64) (bool, error) {
	var seen bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM releases WHERE id = $1)`, id).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("check release %d: %w", id, err)
	}
	return seen, nil
}

func (s *PgxStore) RecordRun(ctx context.Context, executedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO runs (executed_at) VALUES ($1)`, executedAt)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// GetLastRun orders chronologically on the timestamp column, never on its
// rendered string form.
func (s *PgxStore) GetLastRun(ctx context.Context) (time.Time, error) {
	var executedAt time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT executed_at FROM runs ORDER BY executed_at DESC LIMIT 1`).Scan(&executedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get last run: %w", err)
	}
	return executedAt, nil
}

func scanRepository(row pgx.Row) (model.Repository, error) {
	var r model.Repository
	err := row.Scan(
		&r.ID, &r.NodeID, &r.Name, &r.FullName, &r.HTMLURL, &r.Description, &r.Homepage, &r.Language,
		&r.StargazersCount, &r.ForksCount, &r.WatchersCount, &r.OpenIssuesCount, &r.Size,
		&r.DefaultBranch, &r.ReleasesURL, &r.Visibility, &r.Archived, &r.Disabled,
		&r.CreatedAt, &r.UpdatedAt, &r.PushedAt,
	)
	return r, err
}

func collectRepositories(rows pgx.Rows) ([]model.Repository, error) {
	var repos []model.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}
