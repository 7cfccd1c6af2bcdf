package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/releasebot/internal/domain/model"
	"github.com/ericfisherdev/releasebot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RepoStore = (*RepoRepo)(nil)

const repoColumns = `r.id, r.repository_name, r.repository_url, r.created_at, r.updated_at`

// RepoRepo is the SQLite implementation of the RepoStore port interface.
type RepoRepo struct {
	db *DB
}

// NewRepoRepo creates a new RepoRepo backed by the given DB.
func NewRepoRepo(db *DB) *RepoRepo {
	return &RepoRepo{db: db}
}

// Add inserts a new tracked repository. A UUIDv7 is assigned when repo.ID is
// empty. Returns ErrRepoAlreadyExists if the URL is already tracked.
func (r *RepoRepo) Add(ctx context.Context, repo model.TrackedRepository) (model.TrackedRepository, error) {
	const query = `INSERT INTO tracked_repositories (id, repository_name, repository_url, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`

	if repo.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return model.TrackedRepository{}, fmt.Errorf("generate repository id: %w", err)
		}
		repo.ID = id.String()
	}

	now := time.Now().UTC()
	if repo.CreatedAt.IsZero() {
		repo.CreatedAt = now
	}
	if repo.UpdatedAt.IsZero() {
		repo.UpdatedAt = repo.CreatedAt
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		repo.ID, repo.Name, repo.URL.String(), formatTime(repo.CreatedAt), formatTime(repo.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return model.TrackedRepository{}, fmt.Errorf("add repository %s: %w", repo.URL, driven.ErrRepoAlreadyExists)
		}
		return model.TrackedRepository{}, fmt.Errorf("add repository %s: %w", repo.URL, err)
	}

	return repo, nil
}

// Rename updates the display name of a tracked repository and bumps updated_at.
func (r *RepoRepo) Rename(ctx context.Context, id string, name string) error {
	const query = `UPDATE tracked_repositories SET repository_name = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, name, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("rename repository %s: %w", id, err)
	}

	return expectAffected(result, fmt.Sprintf("rename repository %s", id))
}

// Remove deletes a tracked repository by ID. Due to foreign key cascade, its
// cached release and all subscriptions are also deleted.
func (r *RepoRepo) Remove(ctx context.Context, id string) error {
	const query = `DELETE FROM tracked_repositories WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("remove repository %s: %w", id, err)
	}

	return expectAffected(result, fmt.Sprintf("remove repository %s", id))
}

// GetByID retrieves a tracked repository. Returns nil, nil if it does not exist.
func (r *RepoRepo) GetByID(ctx context.Context, id string) (*model.TrackedRepository, error) {
	const query = `SELECT ` + repoColumns + ` FROM tracked_repositories r WHERE r.id = ?`

	repo, err := scanRepository(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %s: %w", id, err)
	}

	return repo, nil
}

// GetByURL retrieves a tracked repository by its canonical URL. Returns nil,
// nil if it does not exist.
func (r *RepoRepo) GetByURL(ctx context.Context, url model.RepositoryURL) (*model.TrackedRepository, error) {
	const query = `SELECT ` + repoColumns + ` FROM tracked_repositories r WHERE r.repository_url = ?`

	repo, err := scanRepository(r.db.Reader.QueryRowContext(ctx, query, url.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %s: %w", url, err)
	}

	return repo, nil
}

// ListAll returns all tracked repositories ordered by name, then URL.
func (r *RepoRepo) ListAll(ctx context.Context) ([]model.TrackedRepository, error) {
	const query = `SELECT ` + repoColumns + ` FROM tracked_repositories r ORDER BY r.repository_name, r.repository_url`

	return r.list(ctx, "list repositories", query)
}

// ListByChat returns the tracked repositories the chat is subscribed to.
func (r *RepoRepo) ListByChat(ctx context.Context, chatID int64) ([]model.TrackedRepository, error) {
	const query = `SELECT ` + repoColumns + `
		FROM tracked_repositories r
		JOIN subscriptions s ON s.tracked_repository_id = r.id
		WHERE s.chat_id = ?
		ORDER BY r.repository_name, r.repository_url`

	return r.list(ctx, fmt.Sprintf("list repositories for chat %d", chatID), query, chatID)
}

func (r *RepoRepo) list(ctx context.Context, op string, query string, args ...any) ([]model.TrackedRepository, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	repos := []model.TrackedRepository{}
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, *repo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}

	return repos, nil
}

func scanRepository(s scanner) (*model.TrackedRepository, error) {
	var repo model.TrackedRepository
	var rawURL, createdAt, updatedAt string

	err := s.Scan(&repo.ID, &repo.Name, &rawURL, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	// Stored URLs were canonicalized on insert.
	repo.URL, err = model.ParseRepositoryURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse repository_url: %w", err)
	}

	repo.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	repo.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &repo, nil
}

func expectAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%s: %w", op, driven.ErrRepoNotFound)
	}

	return nil
}
