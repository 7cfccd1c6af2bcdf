package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/releasebot/internal/domain/model"
)

// Sentinel errors returned by ReleaseSource implementations. Any other error is
// treated as a network failure.
var (
	// ErrNoRelease indicates the repository exists but has neither releases nor tags.
	ErrNoRelease = errors.New("no release available")

	// ErrUpstreamNotFound indicates the repository does not exist upstream or is not visible.
	ErrUpstreamNotFound = errors.New("repository not found upstream")

	// ErrRateLimited indicates the upstream API refused the request due to rate limiting.
	ErrRateLimited = errors.New("upstream rate limit exceeded")
)

// Fetch error kinds, used as metric labels.
const (
	FetchErrorNoRelease   = "no_release"
	FetchErrorNotFound    = "not_found"
	FetchErrorRateLimited = "rate_limited"
	FetchErrorNetwork     = "network"
)

// ReleaseSource defines the driven port for querying the latest release of a repository.
type ReleaseSource interface {
	FetchLatest(ctx context.Context, url model.RepositoryURL) (*model.Release, error)
}

// FetchErrorKind classifies an error returned by a ReleaseSource.
func FetchErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNoRelease):
		return FetchErrorNoRelease
	case errors.Is(err, ErrUpstreamNotFound):
		return FetchErrorNotFound
	case errors.Is(err, ErrRateLimited):
		return FetchErrorRateLimited
	default:
		return FetchErrorNetwork
	}
}
