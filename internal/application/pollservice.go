// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/releasebot/internal/domain/model"
	"github.com/ericfisherdev/releasebot/internal/domain/port/driven"
)

// DefaultPollConcurrency is used when NewPollService is given a non-positive concurrency.
const DefaultPollConcurrency = 4

// PollService runs poll cycles: it fetches the latest release of every tracked
// repository, compares it with the release cache, records changes and notifies
// subscribers.
type PollService struct {
	repoStore   driven.RepoStore
	cache       driven.ReleaseCache
	subs        driven.SubscriptionStore
	source      driven.ReleaseSource
	notifier    driven.Notifier
	formatter   *MessageFormatter
	metrics     driven.PollMetrics
	concurrency int
	logger      *slog.Logger
	now         func() time.Time

	running atomic.Bool
	locks   keyedMutex
}

// NewPollService creates a new PollService with all required dependencies.
// metrics may be nil.
func NewPollService(
	repoStore driven.RepoStore,
	cache driven.ReleaseCache,
	subs driven.SubscriptionStore,
	source driven.ReleaseSource,
	notifier driven.Notifier,
	formatter *MessageFormatter,
	metrics driven.PollMetrics,
	concurrency int,
	logger *slog.Logger,
) *PollService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if concurrency <= 0 {
		concurrency = DefaultPollConcurrency
	}
	if formatter == nil {
		formatter = NewMessageFormatter(nil)
	}

	return &PollService{
		repoStore:   repoStore,
		cache:       cache,
		subs:        subs,
		source:      source,
		notifier:    notifier,
		formatter:   formatter,
		metrics:     metrics,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
		locks:       keyedMutex{locks: make(map[string]*refMutex)},
	}
}

// Running reports whether a cycle is currently in progress.
func (s *PollService) Running() bool {
	return s.running.Load()
}

// RunCycle polls every tracked repository once. Per-repository failures are
// recorded in the report; only a failure to list repositories aborts the cycle.
// It returns ErrCycleInProgress without doing anything if a cycle is already running.
func (s *PollService) RunCycle(ctx context.Context) (model.CycleReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.ObserveCycle(driven.CycleSkipped, 0)
		return model.CycleReport{}, ErrCycleInProgress
	}
	defer s.running.Store(false)

	start := s.now()
	report := model.CycleReport{StartedAt: start}

	repos, err := s.repoStore.ListAll(ctx)
	if err != nil {
		report.Duration = time.Since(start)
		s.metrics.ObserveCycle(driven.CycleAborted, report.Duration)
		return report, &PersistenceError{Op: "list tracked repositories", Err: err}
	}

	type indexed struct {
		i   int
		res model.RepoPollResult
	}
	results := make(chan indexed, len(repos))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, repo := range repos {
		g.Go(func() error {
			results <- indexed{i: i, res: s.pollRepo(ctx, repo)}
			return nil
		})
	}
	_ = g.Wait() // Workers never return an error; failures live in the results.
	close(results)

	report.Results = make([]model.RepoPollResult, len(repos))
	for r := range results {
		report.Results[r.i] = r.res
	}

	report.Duration = time.Since(start)
	s.metrics.ObserveCycle(driven.CycleCompleted, report.Duration)

	s.logger.Info("poll cycle complete",
		"repos", len(repos),
		"unchanged", report.Count(model.PollOutcomeUnchanged),
		"baseline", report.Count(model.PollOutcomeBaselineRecorded),
		"notified", report.Count(model.PollOutcomeNotifiedAndUpdated),
		"fetch_failed", report.Count(model.PollOutcomeFetchFailed),
		"persistence_failed", report.Count(model.PollOutcomePersistenceFailed),
		"failed_deliveries", report.FailedDeliveries(),
		"duration", report.Duration.Round(time.Millisecond),
	)

	return report, nil
}

// RefreshRepo runs the poll sequence for a single repository, bypassing the
// schedule. It returns driven.ErrRepoNotFound when the id is unknown. The
// outcome of the poll itself, including fetch failures, is in the result.
func (s *PollService) RefreshRepo(ctx context.Context, repositoryID string) (model.RepoPollResult, error) {
	repo, err := s.repoStore.GetByID(ctx, repositoryID)
	if err != nil {
		return model.RepoPollResult{}, &PersistenceError{Op: "get tracked repository", Err: err}
	}
	if repo == nil {
		return model.RepoPollResult{}, fmt.Errorf("refresh %s: %w", repositoryID, driven.ErrRepoNotFound)
	}

	return s.pollRepo(ctx, *repo), nil
}

// pollRepo is the release detection logic for a single repository. Sequences
// for the same repository never interleave.
func (s *PollService) pollRepo(ctx context.Context, repo model.TrackedRepository) model.RepoPollResult {
	unlock := s.locks.lock(repo.ID)
	defer unlock()

	logger := s.logger.With("repo", repo.URL.FullName(), "repository_id", repo.ID)
	res := model.RepoPollResult{Repository: repo}

	release, err := s.source.FetchLatest(ctx, repo.URL)
	if err != nil {
		kind := driven.FetchErrorKind(err)
		s.metrics.ObserveFetchError(kind)
		logger.Warn("fetch latest release failed", "kind", kind, "error", err)
		return s.finish(res, model.PollOutcomeFetchFailed, err)
	}
	res.Tag = release.TagName

	cached, err := s.cache.GetLatest(ctx, repo.ID)
	if err != nil {
		return s.persistenceFailed(logger, res, "read release cache", err)
	}

	if cached == nil {
		if err := s.cache.RecordLatest(ctx, repo.ID, release.TagName, s.now()); err != nil {
			return s.persistenceFailed(logger, res, "record baseline release", err)
		}
		logger.Info("baseline release recorded", "tag", release.TagName)
		return s.finish(res, model.PollOutcomeBaselineRecorded, nil)
	}

	res.PreviousTag = cached.TagName
	if cached.TagName == release.TagName {
		logger.Debug("release unchanged", "tag", release.TagName)
		return s.finish(res, model.PollOutcomeUnchanged, nil)
	}

	// Subscribers are read before the cache moves so a failure here leaves the
	// release to be detected again next cycle.
	chats, err := s.subs.ListSubscribers(ctx, repo.ID)
	if err != nil {
		return s.persistenceFailed(logger, res, "list subscribers", err)
	}

	if err := s.cache.RecordLatest(ctx, repo.ID, release.TagName, s.now()); err != nil {
		return s.persistenceFailed(logger, res, "record latest release", err)
	}

	logger.Info("new release detected",
		"previous_tag", cached.TagName,
		"tag", release.TagName,
		"published_at", release.PublishedAt,
		"subscribers", len(chats),
	)

	s.fanOut(ctx, logger, &res, *release, chats)

	return s.finish(res, model.PollOutcomeNotifiedAndUpdated, nil)
}

// fanOut delivers the notification to every chat. Each delivery is
// independent: a failure is recorded and the remaining chats are still tried.
func (s *PollService) fanOut(
	ctx context.Context,
	logger *slog.Logger,
	res *model.RepoPollResult,
	release model.Release,
	chats []int64,
) {
	text := s.formatter.Format(res.Repository, release)

	for _, chatID := range chats {
		if err := s.notifier.Send(ctx, chatID, text); err != nil {
			res.FailedChats = append(res.FailedChats, chatID)
			s.metrics.ObserveDelivery(false)
			logger.Warn("notification failed", "chat_id", chatID, "tag", release.TagName, "error", err)
			continue
		}
		res.Notified++
		s.metrics.ObserveDelivery(true)
	}
}

func (s *PollService) persistenceFailed(
	logger *slog.Logger,
	res model.RepoPollResult,
	op string,
	err error,
) model.RepoPollResult {
	logger.Error("persistence failed", "op", op, "error", err)
	return s.finish(res, model.PollOutcomePersistenceFailed, &PersistenceError{Op: op, Err: err})
}

func (s *PollService) finish(res model.RepoPollResult, outcome model.PollOutcome, err error) model.RepoPollResult {
	res.Outcome = outcome
	res.Err = err
	s.metrics.ObserveRepository(outcome)
	return res
}

// keyedMutex serializes work per key. Entries are dropped once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.mu.Lock()

	return func() {
		m.mu.Unlock()

		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

type nopMetrics struct{}

func (nopMetrics) ObserveCycle(string, time.Duration) {}
func (nopMetrics) ObserveRepository(model.PollOutcome) {}
func (nopMetrics) ObserveFetchError(string) {}
func (nopMetrics) ObserveDelivery(bool) {}
