package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ericfisherdev/releasebot/internal/domain/model"
	"github.com/ericfisherdev/releasebot/internal/domain/port/driven"
)

// RepoRefresher runs the poll sequence for one repository. PollService implements it.
type RepoRefresher interface {
	RefreshRepo(ctx context.Context, repositoryID string) (model.RepoPollResult, error)
}

// TrackResult reports what Track did.
type TrackResult struct {
	Repository model.TrackedRepository
	Status     model.TrackStatus
}

// TrackedView is a tracked repository together with its cached release state.
// LatestTag is empty when no release has been recorded yet.
type TrackedView struct {
	Repository  model.TrackedRepository
	LatestTag   string
	FirstSeenAt time.Time
	Subscribers int
}

// TrackingService manages which chats follow which repositories.
type TrackingService struct {
	repos     driven.RepoStore
	subs      driven.SubscriptionStore
	cache     driven.ReleaseCache
	refresher RepoRefresher
	logger    *slog.Logger

	// mu serializes subscription changes so the last-subscriber cleanup in
	// Untrack cannot race a concurrent Track of the same repository.
	mu sync.Mutex
}

// NewTrackingService creates a new TrackingService. refresher may be nil, in
// which case no baseline is recorded at track time.
func NewTrackingService(
	repos driven.RepoStore,
	subs driven.SubscriptionStore,
	cache driven.ReleaseCache,
	refresher RepoRefresher,
	logger *slog.Logger,
) *TrackingService {
	return &TrackingService{
		repos:     repos,
		subs:      subs,
		cache:     cache,
		refresher: refresher,
		logger:    logger,
	}
}

// Track subscribes chatID to the repository at rawURL, creating the tracked
// repository when needed. An existing repository is renamed when name differs.
func (s *TrackingService) Track(ctx context.Context, chatID int64, name, rawURL string) (TrackResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return TrackResult{}, fmt.Errorf("%w: repository name must not be empty", ErrInvalidInput)
	}

	repoURL, err := model.ParseRepositoryURL(rawURL)
	if err != nil {
		return TrackResult{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	s.mu.Lock()
	result, created, err := s.trackLocked(ctx, chatID, name, repoURL)
	s.mu.Unlock()
	if err != nil {
		return TrackResult{}, err
	}

	s.logger.Info("repository tracked",
		"repo", repoURL.FullName(),
		"chat_id", chatID,
		"status", string(result.Status),
	)

	if created && s.refresher != nil {
		if _, err := s.refresher.RefreshRepo(ctx, result.Repository.ID); err != nil {
			s.logger.Warn("initial refresh failed", "repo", repoURL.FullName(), "error", err)
		}
	}

	return result, nil
}

func (s *TrackingService) trackLocked(
	ctx context.Context,
	chatID int64,
	name string,
	repoURL model.RepositoryURL,
) (TrackResult, bool, error) {
	status := model.TrackStatusSubscribed

	existing, err := s.repos.GetByURL(ctx, repoURL)
	if err != nil {
		return TrackResult{}, false, &PersistenceError{Op: "get tracked repository", Err: err}
	}

	var repo model.TrackedRepository
	if existing == nil {
		repo, err = s.repos.Add(ctx, model.TrackedRepository{Name: name, URL: repoURL})
		if err != nil {
			return TrackResult{}, false, &PersistenceError{Op: "add tracked repository", Err: err}
		}
		status = model.TrackStatusCreated
	} else {
		repo = *existing
		if repo.Name != name {
			if err := s.repos.Rename(ctx, repo.ID, name); err != nil {
				return TrackResult{}, false, &PersistenceError{Op: "rename tracked repository", Err: err}
			}
			repo.Name = name
		}
	}

	created, err := s.subs.Subscribe(ctx, repo.ID, chatID)
	if err != nil {
		return TrackResult{}, false, &PersistenceError{Op: "subscribe chat", Err: err}
	}
	if !created {
		status = model.TrackStatusAlreadyTracking
	}

	return TrackResult{Repository: repo, Status: status}, created, nil
}

// Untrack removes the subscription of chatID to the repository at rawURL. The
// tracked repository is deleted when its last subscriber leaves. It returns
// ErrNotSubscribed when there is nothing to remove.
func (s *TrackingService) Untrack(ctx context.Context, chatID int64, rawURL string) error {
	repoURL, err := model.ParseRepositoryURL(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := s.repos.GetByURL(ctx, repoURL)
	if err != nil {
		return &PersistenceError{Op: "get tracked repository", Err: err}
	}
	if repo == nil {
		return fmt.Errorf("untrack %s: %w", repoURL.FullName(), ErrNotSubscribed)
	}

	removed, err := s.subs.Unsubscribe(ctx, repo.ID, chatID)
	if err != nil {
		return &PersistenceError{Op: "unsubscribe chat", Err: err}
	}
	if !removed {
		return fmt.Errorf("untrack %s: %w", repoURL.FullName(), ErrNotSubscribed)
	}

	remaining, err := s.subs.CountSubscribers(ctx, repo.ID)
	if err != nil {
		return &PersistenceError{Op: "count subscribers", Err: err}
	}

	if remaining == 0 {
		if err := s.repos.Remove(ctx, repo.ID); err != nil && !errors.Is(err, driven.ErrRepoNotFound) {
			return &PersistenceError{Op: "remove tracked repository", Err: err}
		}
		s.logger.Info("repository no longer tracked", "repo", repoURL.FullName())
	}

	s.logger.Info("repository untracked", "repo", repoURL.FullName(), "chat_id", chatID)

	return nil
}

// List returns the repositories chatID is subscribed to.
func (s *TrackingService) List(ctx context.Context, chatID int64) ([]TrackedView, error) {
	repos, err := s.repos.ListByChat(ctx, chatID)
	if err != nil {
		return nil, &PersistenceError{Op: "list chat repositories", Err: err}
	}

	return s.views(ctx, repos, false)
}

// Overview returns every tracked repository with its subscriber count.
func (s *TrackingService) Overview(ctx context.Context) ([]TrackedView, error) {
	repos, err := s.repos.ListAll(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list tracked repositories", Err: err}
	}

	return s.views(ctx, repos, true)
}

// OnTag returns the tracked repositories whose latest known release is tagName.
func (s *TrackingService) OnTag(ctx context.Context, tagName string) ([]TrackedView, error) {
	cached, err := s.cache.ListByTag(ctx, tagName)
	if err != nil {
		return nil, &PersistenceError{Op: "list releases by tag", Err: err}
	}

	views := make([]TrackedView, 0, len(cached))
	for _, c := range cached {
		repo, err := s.repos.GetByID(ctx, c.RepositoryID)
		if err != nil {
			return nil, &PersistenceError{Op: "get tracked repository", Err: err}
		}
		if repo == nil {
			continue
		}
		views = append(views, TrackedView{
			Repository:  *repo,
			LatestTag:   c.TagName,
			FirstSeenAt: c.FirstSeenAt,
		})
	}

	return views, nil
}

func (s *TrackingService) views(ctx context.Context, repos []model.TrackedRepository, withCounts bool) ([]TrackedView, error) {
	views := make([]TrackedView, 0, len(repos))
	for _, repo := range repos {
		view := TrackedView{Repository: repo}

		cached, err := s.cache.GetLatest(ctx, repo.ID)
		if err != nil {
			return nil, &PersistenceError{Op: "read release cache", Err: err}
		}
		if cached != nil {
			view.LatestTag = cached.TagName
			view.FirstSeenAt = cached.FirstSeenAt
		}

		if withCounts {
			view.Subscribers, err = s.subs.CountSubscribers(ctx, repo.ID)
			if err != nil {
				return nil, &PersistenceError{Op: "count subscribers", Err: err}
			}
		}

		views = append(views, view)
	}

	return views, nil
}
