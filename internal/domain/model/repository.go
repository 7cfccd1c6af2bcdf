package model

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	githubHost      = "github.com"
	githubURLPrefix = "https://" + githubHost + "/"
)

// Names GitHub accepts for accounts and repositories.
var (
	ownerPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,38})$`)
	repoPattern  = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)
)

// ErrInvalidRepositoryURL is returned by ParseRepositoryURL for input that does
// not point at a github.com repository.
var ErrInvalidRepositoryURL = errors.New("invalid GitHub repository URL")

// TrackedRepository represents a GitHub repository watched for new releases.
// URL is globally unique across all tracked repositories.
type TrackedRepository struct {
	ID        string
	Name      string
	URL       RepositoryURL
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RepositoryURL is the canonical https://github.com/<owner>/<repo> location of a repository.
type RepositoryURL struct {
	Owner string
	Repo  string
}

// ParseRepositoryURL validates raw and returns its canonical form. A trailing
// ".git", trailing slashes, any path below the repository, the query and the
// fragment are dropped. Owner and repository are lower-cased, since GitHub
// resolves them case-insensitively.
func ParseRepositoryURL(raw string) (RepositoryURL, error) {
	raw = strings.TrimSpace(raw)
	invalid := fmt.Errorf("%w: %s", ErrInvalidRepositoryURL, raw)

	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || !strings.EqualFold(u.Host, githubHost) || u.User != nil {
		return RepositoryURL{}, invalid
	}

	parts := strings.Split(strings.TrimPrefix(u.EscapedPath(), "/"), "/")
	if len(parts) < 2 {
		return RepositoryURL{}, invalid
	}

	owner := parts[0]
	repo := strings.TrimSuffix(parts[1], ".git")
	if !ownerPattern.MatchString(owner) || !repoPattern.MatchString(repo) || repo == "." || repo == ".." {
		return RepositoryURL{}, invalid
	}

	return RepositoryURL{Owner: strings.ToLower(owner), Repo: strings.ToLower(repo)}, nil
}

// String returns the canonical URL.
func (u RepositoryURL) String() string {
	if u.Owner == "" && u.Repo == "" {
		return ""
	}
	return githubURLPrefix + u.Owner + "/" + u.Repo
}

// FullName returns "owner/repo".
func (u RepositoryURL) FullName() string {
	return u.Owner + "/" + u.Repo
}
