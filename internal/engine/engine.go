// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github-feed/internal/apperrors"
	gh "github-feed/internal/github"
	"github-feed/internal/model"
	"github-feed/internal/store"
)

// Gateway is the subset of the GitHub client the engine depends on.
type Gateway interface {
	GetStarredRepositories(ctx context.Context) ([]model.Repository, error)
	GetLatestReleases(ctx context.Context, releasesURLs []string) []gh.ReleaseResult
}

// Engine orchestrates a refresh cycle: pull the starred list, merge it into
// the store, select recently pushed repositories, fan out latest-release
// lookups, then filter, deduplicate and sort the results. The engine keeps
// no state between cycles except the store's run watermark.
type Engine struct {
	store    store.Store
	gateway  Gateway
	logger   *slog.Logger
	lookback time.Duration
	interval time.Duration
	now      func() time.Time
}

// New creates an Engine. lookback is the default window when no watermark
// exists yet; interval is the period of the background refresh loop.
func New(st store.Store, gateway Gateway, logger *slog.Logger, lookback, interval time.Duration) *Engine {
	if lookback <= 0 {
		lookback = 48 * time.Hour
	}
	return &Engine{
		store:    st,
		gateway:  gateway,
		logger:   logger,
		lookback: lookback,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs full release cycles every interval until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.logger.Info("Starting refresh loop", "interval", e.interval.String())
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.runScheduled(ctx) // Initial cycle

	for {
		select {
		case <-ticker.C:
			e.runScheduled(ctx)
		case <-ctx.Done():
			e.logger.Info("Refresh loop shutting down", "reason", ctx.Err())
			return
		}
	}
}

func (e *Engine) runScheduled(ctx context.Context) {
	releases, err := e.ListReleases(ctx, true, nil)
	if err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Error("Scheduled refresh failed", "error", err)
		return
	}
	e.logger.Info("Scheduled refresh finished", "new_releases", len(releases))
}

// ListStarred returns the stored starred repositories, optionally refreshing
// them from GitHub first.
func (e *Engine) ListStarred(ctx context.Context, refresh bool) ([]model.Repository, error) {
	if refresh {
		if err := e.RefreshStarred(ctx); err != nil {
			return nil, err
		}
	}
	return e.store.GetStarredRepositories(ctx)
}

// ListReleases returns releases published after since (or after the stored
// watermark, or after the default lookback window, in that order of
// preference). With refresh=false it serves previously stored releases; with
// refresh=true it runs a full refresh cycle and returns the fresh
// discoveries, newest first.
func (e *Engine) ListReleases(ctx context.Context, refresh bool, since *time.Time) ([]model.Release, error) {
	if refresh {
		return e.runCycle(ctx, since)
	}

	start, err := e.resolveSince(ctx, since)
	if err != nil {
		return nil, err
	}
	return e.store.GetReleasesSince(ctx, start)
}

// RefreshStarred fetches the starred list and merges every repository into
// the store. A failure fetching the list aborts; a failure merging one
// repository is logged and skipped so the rest of the list still lands.
func (e *Engine) RefreshStarred(ctx context.Context) error {
	repos, err := e.gateway.GetStarredRepositories(ctx)
	if err != nil {
		return fmt.Errorf("fetch starred repositories: %w", err)
	}
	e.logger.Info("Fetched starred repositories", "count", len(repos))

	merged := 0
	for _, repo := range repos {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.store.UpsertRepository(ctx, repo); err != nil {
			e.logger.Error("Failed to merge repository, skipping", "repo", repo.FullName, "error", err)
			continue
		}
		merged++
	}
	e.logger.Info("Merged starred repositories", "merged", merged, "skipped", len(repos)-merged)
	return nil
}

// runCycle executes the full pipeline. The watermark only advances when
// every stage completed without a fatal error; a cycle aborted at fetch
// leaves it untouched so the next attempt re-covers the same window.
func (e *Engine) runCycle(ctx context.Context, override *time.Time) ([]model.Release, error) {
	if err := e.RefreshStarred(ctx); err != nil {
		return nil, err
	}

	since, err := e.resolveSince(ctx, override)
	if err != nil {
		return nil, err
	}

	updated, err := e.store.GetRecentlyUpdated(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("select recently updated repositories: %w", err)
	}
	e.logger.Info("Checking for new releases", "repos", len(updated), "since", since.Format(time.RFC3339))

	urls := make([]string, len(updated))
	for i, repo := range updated {
		urls[i] = repo.ReleasesURL
	}

	results := e.gateway.GetLatestReleases(ctx, urls)

	var releases []model.Release
	for i, res := range results {
		repo := updated[i]
		if res.Err != nil {
			e.logSkip(repo, res.Err)
			continue
		}
		release := res.Release
		if !release.PublishedOrCreated().After(since) {
			continue
		}
		seen, err := e.store.ReleaseSeen(ctx, release.ID)
		if err != nil {
			// Dedup is best-effort: on a store error, report the release
			// rather than silently dropping it.
			e.logger.Warn("Failed to check seen releases", "repo", repo.FullName, "error", err)
		}
		if seen {
			continue
		}
		releases = append(releases, release)
	}

	sort.Slice(releases, func(i, j int) bool {
		return releases[i].PublishedOrCreated().After(releases[j].PublishedOrCreated())
	})

	for _, release := range releases {
		if err := e.store.SaveRelease(ctx, release); err != nil {
			e.logger.Warn("Failed to record release as seen", "release_id", release.ID, "error", err)
		}
	}

	if err := e.store.RecordRun(ctx, e.now()); err != nil {
		return nil, fmt.Errorf("record run watermark: %w", err)
	}

	e.logger.Info("Refresh cycle finished", "new_releases", len(releases))
	return releases, nil
}

// resolveSince picks the window start: explicit caller timestamp, stored
// watermark, or the default lookback when no cycle has completed yet.
func (e *Engine) resolveSince(ctx context.Context, override *time.Time) (time.Time, error) {
	if override != nil {
		return *override, nil
	}
	lastRun, err := e.store.GetLastRun(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("read run watermark: %w", err)
	}
	if lastRun.IsZero() {
		return e.now().Add(-e.lookback), nil
	}
	return lastRun, nil
}

func (e *Engine) logSkip(repo model.Repository, err error) {
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound:
		e.logger.Debug("Repository has no releases", "repo", repo.FullName)
	case apperrors.KindValidation:
		e.logger.Warn("Unexpected release payload, skipping repository", "repo", repo.FullName, "error", err)
	default:
		e.logger.Warn("Failed to fetch latest release, skipping repository", "repo", repo.FullName, "error", err)
	}
}
