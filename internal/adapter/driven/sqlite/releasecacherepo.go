package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/releasebot/internal/domain/model"
	"github.com/ericfisherdev/releasebot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ReleaseCache = (*ReleaseCacheRepo)(nil)

// ReleaseCacheRepo is the SQLite implementation of the ReleaseCache port interface.
type ReleaseCacheRepo struct {
	db *DB
}

// NewReleaseCacheRepo creates a new ReleaseCacheRepo backed by the given DB.
func NewReleaseCacheRepo(db *DB) *ReleaseCacheRepo {
	return &ReleaseCacheRepo{db: db}
}

// GetLatest returns the cached release of a repository, or nil, nil if none was recorded.
func (r *ReleaseCacheRepo) GetLatest(ctx context.Context, repositoryID string) (*model.CachedRelease, error) {
	const query = `
		SELECT tracked_repository_id, tag_name, first_seen_at
		FROM tracked_repository_releases
		WHERE tracked_repository_id = ?
	`

	cached, err := scanCachedRelease(r.db.Reader.QueryRowContext(ctx, query, repositoryID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached release %s: %w", repositoryID, err)
	}

	return cached, nil
}

// RecordLatest upserts the cache row in a single statement keyed by the
// primary key, so concurrent writers for one repository never produce two
// rows or a mix of values. first_seen_at only moves when the tag changes.
func (r *ReleaseCacheRepo) RecordLatest(ctx context.Context, repositoryID string, tagName string, seenAt time.Time) error {
	const query = `
		INSERT INTO tracked_repository_releases (tracked_repository_id, tag_name, first_seen_at)
		VALUES (?, ?, ?)
		ON CONFLICT(tracked_repository_id) DO UPDATE SET
			tag_name = excluded.tag_name,
			first_seen_at = CASE
				WHEN excluded.tag_name != tracked_repository_releases.tag_name THEN excluded.first_seen_at
				ELSE tracked_repository_releases.first_seen_at
			END
	`

	_, err := r.db.Writer.ExecContext(ctx, query, repositoryID, tagName, formatTime(seenAt))
	if err != nil {
		return fmt.Errorf("record latest release %s@%s: %w", repositoryID, tagName, err)
	}

	return nil
}

// ListByTag returns every cached release whose tag equals tagName, ordered by repository ID.
func (r *ReleaseCacheRepo) ListByTag(ctx context.Context, tagName string) ([]model.CachedRelease, error) {
	const query = `
		SELECT tracked_repository_id, tag_name, first_seen_at
		FROM tracked_repository_releases
		WHERE tag_name = ?
		ORDER BY tracked_repository_id
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, tagName)
	if err != nil {
		return nil, fmt.Errorf("list cached releases for tag %s: %w", tagName, err)
	}
	defer rows.Close()

	releases := []model.CachedRelease{}
	for rows.Next() {
		cached, err := scanCachedRelease(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cached release: %w", err)
		}
		releases = append(releases, *cached)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cached releases: %w", err)
	}

	return releases, nil
}

func scanCachedRelease(s scanner) (*model.CachedRelease, error) {
	var cached model.CachedRelease
	var firstSeenAt string

	if err := s.Scan(&cached.RepositoryID, &cached.TagName, &firstSeenAt); err != nil {
		return nil, err
	}

	var err error
	cached.FirstSeenAt, err = parseTime(firstSeenAt)
	if err != nil {
		return nil, fmt.Errorf("parse first_seen_at: %w", err)
	}

	return &cached, nil
}
