package model

import "time"

// Release is the latest release of a repository as reported by the release source.
type Release struct {
	TagName     string
	Name        string
	URL         string // html_url of the release page; may be empty for tag-only releases.
	Body        string // Markdown release notes.
	PublishedAt time.Time
}

// CachedRelease is the last tag observed for a tracked repository. It is a
// cache, not a history: only one row exists per repository.
type CachedRelease struct {
	RepositoryID string
	TagName      string
	FirstSeenAt  time.Time
}
