package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/releasebot/internal/domain/model"
)

// ReleaseCache defines the driven port for the last-seen release of each
// tracked repository.
type ReleaseCache interface {
	// GetLatest returns nil, nil if the repository has never been polled successfully.
	GetLatest(ctx context.Context, repositoryID string) (*model.CachedRelease, error)
	// RecordLatest atomically upserts the single cache row of the repository.
	// FirstSeenAt is replaced only when the tag changes.
	RecordLatest(ctx context.Context, repositoryID string, tagName string, seenAt time.Time) error
	// ListByTag returns every cache row whose tag equals tagName.
	ListByTag(ctx context.Context, tagName string) ([]model.CachedRelease, error)
}
