package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/releasebot/internal/domain/model"
)

// Sentinel errors returned by RepoStore implementations.
var (
	// ErrRepoNotFound indicates the requested tracked repository does not exist.
	ErrRepoNotFound = errors.New("tracked repository not found")

	// ErrRepoAlreadyExists indicates a tracked repository with the same URL already exists.
	ErrRepoAlreadyExists = errors.New("tracked repository already exists")
)

// RepoStore defines the driven port for tracked repository persistence.
// Add assigns an ID and timestamps when missing and returns the stored
// repository; it returns ErrRepoAlreadyExists if the URL is already tracked.
// Rename returns ErrRepoNotFound if the repository does not exist.
// Remove returns ErrRepoNotFound if the repository does not exist; removing a
// repository also removes its cached release and subscriptions.
// Get methods return nil, nil when nothing matches.
type RepoStore interface {
	Add(ctx context.Context, repo model.TrackedRepository) (model.TrackedRepository, error)
	Rename(ctx context.Context, id string, name string) error
	Remove(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*model.TrackedRepository, error)
	GetByURL(ctx context.Context, url model.RepositoryURL) (*model.TrackedRepository, error)
	ListAll(ctx context.Context) ([]model.TrackedRepository, error)
	ListByChat(ctx context.Context, chatID int64) ([]model.TrackedRepository, error)
}
