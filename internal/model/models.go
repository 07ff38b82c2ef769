// internal/model/models.go
package model

import "time"

// Repository is the locally stored view of a starred GitHub repository.
// Pointer fields are nullable on the platform side.
type Repository struct {
	ID              int64      `json:"id"`
	NodeID          string     `json:"node_id"`
	Name            string     `json:"name"`
	FullName        string     `json:"full_name"`
	HTMLURL         string     `json:"html_url"`
	Description     *string    `json:"description,omitempty"`
	Homepage        *string    `json:"homepage,omitempty"`
	Language        *string    `json:"language,omitempty"`
	StargazersCount int        `json:"stargazers_count"`
	ForksCount      int        `json:"forks_count"`
	WatchersCount   int        `json:"watchers_count"`
	OpenIssuesCount int        `json:"open_issues_count"`
	Size            int        `json:"size"`
	DefaultBranch   string     `json:"default_branch"`
	ReleasesURL     string     `json:"releases_url"`
	Visibility      string     `json:"visibility"`
	Archived        bool       `json:"archived"`
	Disabled        bool       `json:"disabled"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	PushedAt        *time.Time `json:"pushed_at,omitempty"`
}

// Release is a published release of a starred repository.
type Release struct {
	ID          int64     `json:"id"`
	HTMLURL     string    `json:"html_url"`
	TagName     string    `json:"tag_name"`
	Name        *string   `json:"name,omitempty"`
	Body        string    `json:"body"`
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
	CreatedAt   time.Time `json:"created_at"`
	PublishedAt time.Time `json:"published_at"`
}

// PublishedOrCreated returns the timestamp used for recency filtering and
// ordering: published_at when the platform reports one, created_at otherwise
// (drafts carry no published_at).
func (r Release) PublishedOrCreated() time.Time {
	if r.PublishedAt.IsZero() {
		return r.CreatedAt
	}
	return r.PublishedAt
}

// User is the authenticated GitHub identity, fetched only to verify the
// configured credential.
type User struct {
	ID        int64     `json:"id"`
	Login     string    `json:"login"`
	Name      *string   `json:"name,omitempty"`
	HTMLURL   string    `json:"html_url"`
	Followers int       `json:"followers"`
	Following int       `json:"following"`
	CreatedAt time.Time `json:"created_at"`
}
