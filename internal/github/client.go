// internal/github/client.go
package github

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github-feed/internal/apperrors"
	"github-feed/internal/model"
)

const (
	starredCacheKey = "user/starred"
	starredCacheTTL = 5 * time.Minute
	releaseCacheTTL = 15 * time.Minute

	// Remaining-quota threshold below which a warning is logged.
	rateLimitLowWater = 100
)

// Client is a wrapper around the go-github client. Responses for the starred
// list and per-repository latest releases are cached in process so repeated
// calls within a short window do not burn rate limit.
type Client struct {
	gh          *github.Client
	logger      *slog.Logger
	cache       *cache.Cache
	fanoutLimit int
}

// NewClient creates and configures a new Client instance. The provided token
// is used to create an authenticated http.Client; fanoutLimit caps the
// number of simultaneous in-flight release lookups.
func NewClient(token string, fanoutLimit int, logger *slog.Logger) *Client {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	if fanoutLimit <= 0 {
		fanoutLimit = 10
	}

	return &Client{
		gh:          github.NewClient(tc),
		logger:      logger,
		cache:       cache.New(releaseCacheTTL, 10*time.Minute),
		fanoutLimit: fanoutLimit,
	}
}

// OverrideBaseURL points the client at a different API root. Intended for
// tests running against a local fake server.
func (c *Client) OverrideBaseURL(rawURL string) error {
	ghc, err := github.NewClient(c.gh.Client()).WithEnterpriseURLs(rawURL, rawURL)
	if err != nil {
		return err
	}
	c.gh = ghc
	return nil
}

// GetUser fetches the authenticated identity. Used at startup to verify the
// configured credential before the first refresh cycle.
func (c *Client) GetUser(ctx context.Context) (model.User, error) {
	user, resp, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return model.User{}, c.translateError("fetch authenticated user", err)
	}
	c.observeRateLimit(resp)
	return toModelUser(user), nil
}

// GetStarredRepositories fetches the full de-paginated list of repositories
// the authenticated user has starred. The pagination loop is driven by the
// Link response header; a failure on any page aborts the whole call and
// discards pages already fetched, so a silently partial list never reaches
// the store.
func (c *Client) GetStarredRepositories(ctx context.Context) ([]model.Repository, error) {
	if v, ok := c.cache.Get(starredCacheKey); ok {
		return v.([]model.Repository), nil
	}

	var starred []model.Repository
	url := "user/starred?per_page=100"

	for {
		req, err := c.gh.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, apperrors.New(apperrors.KindGateway, "fetch starred repositories", err)
		}

		var page []*github.Repository
		resp, err := c.gh.Do(ctx, req, &page)
		if err != nil {
			return nil, c.translateError("fetch starred repositories", err)
		}
		c.observeRateLimit(resp)

		for _, repo := range page {
			starred = append(starred, toModelRepository(repo))
		}

		links := ParseLinkHeader(resp.Header.Get("Link"))
		if links.Next == nil {
			break
		}
		url = *links.Next
	}

	c.cache.Set(starredCacheKey, starred, starredCacheTTL)
	return starred, nil
}

// GetLatestRelease fetches the most recent release for a repository,
// identified by its releases URL template (e.g.
// ".../repos/octocat/Hello-World/releases{/id}"). A repository with no
// releases yields a not-found error, which fan-out callers treat as a skip.
func (c *Client) GetLatestRelease(ctx context.Context, releasesURL string) (model.Release, error) {
	url := strings.Replace(releasesURL, "{/id}", "/latest", 1)
	if v, ok := c.cache.Get(url); ok {
		return v.(model.Release), nil
	}

	req, err := c.gh.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return model.Release{}, apperrors.New(apperrors.KindGateway, "fetch latest release", err)
	}

	var rel github.RepositoryRelease
	resp, err := c.gh.Do(ctx, req, &rel)
	if err != nil {
		return model.Release{}, c.translateError("fetch latest release", err)
	}
	c.observeRateLimit(resp)

	release := toModelRelease(&rel)
	c.cache.Set(url, release, releaseCacheTTL)
	return release, nil
}

// ReleaseResult is the outcome of one latest-release lookup in a batch.
// Exactly one of Release and Err is meaningful.
type ReleaseResult struct {
	ReleasesURL string
	Release     model.Release
	Err         error
}

// GetLatestReleases issues one latest-release lookup per URL, at most
// fanoutLimit in flight at a time, and returns one result per input URL in
// input order. Individual failures are captured in their slot and never
// abort the batch.
func (c *Client) GetLatestReleases(ctx context.Context, releasesURLs []string) []ReleaseResult {
	results := make([]ReleaseResult, len(releasesURLs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.fanoutLimit)

	for i, url := range releasesURLs {
		i, url := i, url
		g.Go(func() error {
			rel, err := c.GetLatestRelease(gctx, url)
			results[i] = ReleaseResult{ReleasesURL: url, Release: rel, Err: err}
			return nil
		})
	}

	// Goroutines never return an error; Wait is purely a join.
	_ = g.Wait()
	return results
}

// translateError maps go-github and transport failures onto the error
// taxonomy. Cancellation passes through untagged.
func (c *Client) translateError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		c.logger.Warn("GitHub rate limit exhausted", "reset", rateErr.Rate.Reset.Time)
		return apperrors.New(apperrors.KindGateway, op, err)
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return apperrors.New(apperrors.KindGateway, op, err)
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperrors.New(apperrors.KindAuthentication, op, err)
		case http.StatusNotFound:
			return apperrors.New(apperrors.KindNotFound, op, err)
		default:
			return apperrors.New(apperrors.KindGateway, op, err)
		}
	}

	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	if errors.As(err, &typeErr) || errors.As(err, &syntaxErr) {
		return apperrors.New(apperrors.KindValidation, op, err)
	}

	return apperrors.New(apperrors.KindGateway, op, err)
}

// observeRateLimit surfaces quota headers to the logs. Observation only; the
// client does not throttle itself beyond the fan-out cap.
func (c *Client) observeRateLimit(resp *github.Response) {
	if resp == nil {
		return
	}
	rate := resp.Rate
	if rate.Limit == 0 {
		return
	}
	c.logger.Debug("GitHub rate limit", "remaining", rate.Remaining, "limit", rate.Limit, "reset", rate.Reset.Time)
	if rate.Remaining < rateLimitLowWater {
		c.logger.Warn("GitHub rate limit running low", "remaining", rate.Remaining, "reset", rate.Reset.Time)
	}
}

// toModelRepository translates a github.Repository object to our internal model.Repository.
func toModelRepository(r *github.Repository) model.Repository {
	return model.Repository{
		ID:              r.GetID(),
		NodeID:          r.GetNodeID(),
		Name:            r.GetName(),
		FullName:        r.GetFullName(),
		HTMLURL:         r.GetHTMLURL(),
		Description:     r.Description,
		Homepage:        r.Homepage,
		Language:        r.Language,
		StargazersCount: r.GetStargazersCount(),
		ForksCount:      r.GetForksCount(),
		WatchersCount:   r.GetWatchersCount(),
		OpenIssuesCount: r.GetOpenIssuesCount(),
		Size:            r.GetSize(),
		DefaultBranch:   r.GetDefaultBranch(),
		ReleasesURL:     r.GetReleasesURL(),
		Visibility:      r.GetVisibility(),
		Archived:        r.GetArchived(),
		Disabled:        r.GetDisabled(),
		CreatedAt:       r.GetCreatedAt().Time,
		UpdatedAt:       r.GetUpdatedAt().Time,
		PushedAt:        timestampPtr(r.PushedAt),
	}
}

// toModelRelease translates a github.RepositoryRelease to our internal model.Release.
func toModelRelease(r *github.RepositoryRelease) model.Release {
	return model.Release{
		ID:          r.GetID(),
		HTMLURL:     r.GetHTMLURL(),
		TagName:     r.GetTagName(),
		Name:        r.Name,
		Body:        r.GetBody(),
		Draft:       r.GetDraft(),
		Prerelease:  r.GetPrerelease(),
		CreatedAt:   r.GetCreatedAt().Time,
		PublishedAt: r.GetPublishedAt().Time,
	}
}

// toModelUser translates a github.User to our internal model.User.
func toModelUser(u *github.User) model.User {
	return model.User{
		ID:        u.GetID(),
		Login:     u.GetLogin(),
		Name:      u.Name,
		HTMLURL:   u.GetHTMLURL(),
		Followers: u.GetFollowers(),
		Following: u.GetFollowing(),
		CreatedAt: u.GetCreatedAt().Time,
	}
}

func timestampPtr(ts *github.Timestamp) *time.Time {
	if ts == nil {
		return nil
	}
	t := ts.Time
	return &t
}
