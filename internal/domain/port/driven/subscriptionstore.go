package driven

import (
	"context"
)

// SubscriptionStore defines the driven port for chat subscriptions. The poll
// cycle only reads subscribers; the mutating methods serve the tracking service.
type SubscriptionStore interface {
	// Subscribe is idempotent. created reports whether a new row was inserted.
	Subscribe(ctx context.Context, repositoryID string, chatID int64) (created bool, err error)
	// Unsubscribe reports whether a subscription was removed.
	Unsubscribe(ctx context.Context, repositoryID string, chatID int64) (removed bool, err error)
	// ListSubscribers returns the chat ids subscribed to the repository, ordered
	// by chat id. An empty slice is a valid result.
	ListSubscribers(ctx context.Context, repositoryID string) ([]int64, error)
	CountSubscribers(ctx context.Context, repositoryID string) (int, error)
}
