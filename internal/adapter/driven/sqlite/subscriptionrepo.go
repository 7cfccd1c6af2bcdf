package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/releasebot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SubscriptionStore = (*SubscriptionRepo)(nil)

// SubscriptionRepo is the SQLite implementation of the SubscriptionStore port interface.
type SubscriptionRepo struct {
	db *DB
}

// NewSubscriptionRepo creates a new SubscriptionRepo backed by the given DB.
func NewSubscriptionRepo(db *DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

// Subscribe adds the chat to the repository's subscribers. Subscribing twice is a no-op.
// Returns ErrRepoNotFound if the repository does not exist.
func (r *SubscriptionRepo) Subscribe(ctx context.Context, repositoryID string, chatID int64) (bool, error) {
	const query = `
		INSERT INTO subscriptions (tracked_repository_id, chat_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(tracked_repository_id, chat_id) DO NOTHING
	`

	result, err := r.db.Writer.ExecContext(ctx, query, repositoryID, chatID, formatTime(time.Now()))
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint") {
			return false, fmt.Errorf("subscribe chat %d to %s: %w", chatID, repositoryID, driven.ErrRepoNotFound)
		}
		return false, fmt.Errorf("subscribe chat %d to %s: %w", chatID, repositoryID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}

	return rows > 0, nil
}

// Unsubscribe removes the chat from the repository's subscribers.
func (r *SubscriptionRepo) Unsubscribe(ctx context.Context, repositoryID string, chatID int64) (bool, error) {
	const query = `DELETE FROM subscriptions WHERE tracked_repository_id = ? AND chat_id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, repositoryID, chatID)
	if err != nil {
		return false, fmt.Errorf("unsubscribe chat %d from %s: %w", chatID, repositoryID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}

	return rows > 0, nil
}

// ListSubscribers returns the subscribed chat ids ordered ascending.
func (r *SubscriptionRepo) ListSubscribers(ctx context.Context, repositoryID string) ([]int64, error) {
	const query = `SELECT chat_id FROM subscriptions WHERE tracked_repository_id = ? ORDER BY chat_id`

	rows, err := r.db.Reader.QueryContext(ctx, query, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("list subscribers of %s: %w", repositoryID, err)
	}
	defer rows.Close()

	chatIDs := []int64{}
	for rows.Next() {
		var chatID int64
		if err := rows.Scan(&chatID); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		chatIDs = append(chatIDs, chatID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}

	return chatIDs, nil
}

// CountSubscribers returns the number of chats subscribed to the repository.
func (r *SubscriptionRepo) CountSubscribers(ctx context.Context, repositoryID string) (int, error) {
	const query = `SELECT COUNT(*) FROM subscriptions WHERE tracked_repository_id = ?`

	var n int
	if err := r.db.Reader.QueryRowContext(ctx, query, repositoryID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count subscribers of %s: %w", repositoryID, err)
	}

	return n, nil
}
