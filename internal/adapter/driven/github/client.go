// Package github implements the ReleaseSource port using the go-github library.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/releasebot/internal/domain/model"
	"github.com/ericfisherdev/releasebot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ReleaseSource = (*Client)(nil)

// Client implements the driven.ReleaseSource port using the go-github library.
type Client struct {
	gh     *gh.Client
	logger *slog.Logger
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client, PAT auth when token is non-empty)
//
// apiURL overrides the default https://api.github.com/ base when non-empty.
func NewClient(token, apiURL string, logger *slog.Logger) (*Client, error) {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	if apiURL != "" {
		u, err := parseBaseURL(apiURL)
		if err != nil {
			return nil, err
		}
		client.BaseURL = u
	}

	return &Client{gh: client, logger: logger}, nil
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string, logger *slog.Logger) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	client.BaseURL = u

	return &Client{gh: client, logger: logger}, nil
}

// FetchLatest returns the latest published release of the repository. When the
// repository has no releases it falls back to the most recent tag. Errors wrap
// driven.ErrNoRelease, driven.ErrUpstreamNotFound or driven.ErrRateLimited
// where applicable.
func (c *Client) FetchLatest(ctx context.Context, repoURL model.RepositoryURL) (*model.Release, error) {
	fullName := repoURL.FullName()

	release, resp, err := c.gh.Repositories.GetLatestRelease(ctx, repoURL.Owner, repoURL.Repo)
	if err == nil {
		c.logRateLimit(resp, fullName, "releases/latest")

		if strings.TrimSpace(release.GetTagName()) == "" {
			return nil, fmt.Errorf("latest release of %s has no tag: %w", fullName, driven.ErrNoRelease)
		}

		mapped := mapRelease(release)
		c.logger.Debug("latest release fetched", "repo", fullName, "tag", mapped.TagName)
		return &mapped, nil
	}

	if !isNotFound(err) {
		return nil, classifyError(fmt.Sprintf("get latest release of %s", fullName), err)
	}

	c.logger.Debug("no published release, falling back to tags", "repo", fullName)

	return c.fetchLatestTag(ctx, repoURL)
}

// fetchLatestTag returns the first tag GitHub lists for the repository.
func (c *Client) fetchLatestTag(ctx context.Context, repoURL model.RepositoryURL) (*model.Release, error) {
	fullName := repoURL.FullName()

	tags, resp, err := c.gh.Repositories.ListTags(ctx, repoURL.Owner, repoURL.Repo, &gh.ListOptions{PerPage: 1})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("list tags of %s: %w", fullName, driven.ErrUpstreamNotFound)
		}
		return nil, classifyError(fmt.Sprintf("list tags of %s", fullName), err)
	}

	c.logRateLimit(resp, fullName, "tags")

	if len(tags) == 0 || strings.TrimSpace(tags[0].GetName()) == "" {
		return nil, fmt.Errorf("repository %s has no releases or tags: %w", fullName, driven.ErrNoRelease)
	}

	return &model.Release{TagName: tags[0].GetName()}, nil
}

// logRateLimit logs the remaining request budget and warns when it runs low.
func (c *Client) logRateLimit(resp *gh.Response, repoFullName, endpoint string) {
	if resp == nil {
		return
	}

	c.logger.Debug("github api call",
		"repo", repoFullName,
		"endpoint", endpoint,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		c.logger.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// mapRelease converts a go-github RepositoryRelease to a domain model Release.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapRelease(r *gh.RepositoryRelease) model.Release {
	return model.Release{
		TagName:     r.GetTagName(),
		Name:        r.GetName(),
		URL:         r.GetHTMLURL(),
		Body:        r.GetBody(),
		PublishedAt: r.GetPublishedAt().Time,
	}
}

func isNotFound(err error) bool {
	var ghErr *gh.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

func classifyError(op string, err error) error {
	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return fmt.Errorf("%s: %w: %w", op, driven.ErrRateLimited, err)
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w: %w", op, driven.ErrRateLimited, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// parseBaseURL parses a GitHub API base URL, appending the trailing slash
// go-github requires.
func parseBaseURL(raw string) (*url.URL, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	return u, nil
}
