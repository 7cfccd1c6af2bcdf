package application_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ericfisherdev/releasebot/internal/domain/model"
	"github.com/ericfisherdev/releasebot/internal/domain/port/driven"
)

// --- In-memory fakes for the driven ports ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRepoStore struct {
	mu      sync.Mutex
	repos   []model.TrackedRepository
	subs    *fakeSubs
	nextID  int
	listErr error
}

func (f *fakeRepoStore) Add(_ context.Context, repo model.TrackedRepository) (model.TrackedRepository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.repos {
		if r.URL == repo.URL {
			return model.TrackedRepository{}, driven.ErrRepoAlreadyExists
		}
	}
	if repo.ID == "" {
		f.nextID++
		repo.ID = fmt.Sprintf("repo-%d", f.nextID)
	}
	f.repos = append(f.repos, repo)
	return repo, nil
}

func (f *fakeRepoStore) Rename(_ context.Context, id string, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.repos {
		if f.repos[i].ID == id {
			f.repos[i].Name = name
			return nil
		}
	}
	return driven.ErrRepoNotFound
}

func (f *fakeRepoStore) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.repos {
		if f.repos[i].ID == id {
			f.repos = slices.Delete(f.repos, i, i+1)
			return nil
		}
	}
	return driven.ErrRepoNotFound
}

func (f *fakeRepoStore) GetByID(_ context.Context, id string) (*model.TrackedRepository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.repos {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeRepoStore) GetByURL(_ context.Context, url model.RepositoryURL) (*model.TrackedRepository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.repos {
		if r.URL == url {
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeRepoStore) ListAll(_ context.Context) ([]model.TrackedRepository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return slices.Clone(f.repos), nil
}

func (f *fakeRepoStore) ListByChat(ctx context.Context, chatID int64) ([]model.TrackedRepository, error) {
	all, _ := f.ListAll(ctx)
	var out []model.TrackedRepository
	for _, r := range all {
		chats, _ := f.subs.ListSubscribers(ctx, r.ID)
		if slices.Contains(chats, chatID) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeCache struct {
	mu        sync.Mutex
	rows      map[string]model.CachedRelease
	writes    int
	recordErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{rows: make(map[string]model.CachedRelease)}
}

func (f *fakeCache) GetLatest(_ context.Context, repositoryID string) (*model.CachedRelease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[repositoryID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (f *fakeCache) RecordLatest(_ context.Context, repositoryID string, tagName string, seenAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.writes++
	row, ok := f.rows[repositoryID]
	if ok && row.TagName == tagName {
		return nil
	}
	f.rows[repositoryID] = model.CachedRelease{RepositoryID: repositoryID, TagName: tagName, FirstSeenAt: seenAt}
	return nil
}

func (f *fakeCache) ListByTag(_ context.Context, tagName string) ([]model.CachedRelease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.CachedRelease
	for _, row := range f.rows {
		if row.TagName == tagName {
			out = append(out, row)
		}
	}
	slices.SortFunc(out, func(a, b model.CachedRelease) int {
		if a.RepositoryID < b.RepositoryID {
			return -1
		}
		if a.RepositoryID > b.RepositoryID {
			return 1
		}
		return 0
	})
	return out, nil
}

func (f *fakeCache) tag(repositoryID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[repositoryID].TagName
}

type fakeSubs struct {
	mu      sync.Mutex
	chats   map[string][]int64
	listErr error
}

func newFakeSubs() *fakeSubs {
	return &fakeSubs{chats: make(map[string][]int64)}
}

func (f *fakeSubs) Subscribe(_ context.Context, repositoryID string, chatID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if slices.Contains(f.chats[repositoryID], chatID) {
		return false, nil
	}
	f.chats[repositoryID] = append(f.chats[repositoryID], chatID)
	slices.Sort(f.chats[repositoryID])
	return true, nil
}

func (f *fakeSubs) Unsubscribe(_ context.Context, repositoryID string, chatID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := slices.Index(f.chats[repositoryID], chatID)
	if i < 0 {
		return false, nil
	}
	f.chats[repositoryID] = slices.Delete(f.chats[repositoryID], i, i+1)
	return true, nil
}

func (f *fakeSubs) ListSubscribers(_ context.Context, repositoryID string) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return slices.Clone(f.chats[repositoryID]), nil
}

func (f *fakeSubs) CountSubscribers(_ context.Context, repositoryID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chats[repositoryID]), nil
}

type fakeSource struct {
	mu       sync.Mutex
	releases map[model.RepositoryURL]model.Release
	errs     map[model.RepositoryURL]error
	calls    int
	gate     chan struct{} // when non-nil, FetchLatest blocks until it is closed.
	entered  chan struct{}

	inFlight, peak int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		releases: make(map[model.RepositoryURL]model.Release),
		errs:     make(map[model.RepositoryURL]error),
	}
}

func (f *fakeSource) set(url model.RepositoryURL, tag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases[url] = model.Release{TagName: tag}
	delete(f.errs, url)
}

func (f *fakeSource) fail(url model.RepositoryURL, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

func (f *fakeSource) FetchLatest(ctx context.Context, url model.RepositoryURL) (*model.Release, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	f.peak = max(f.peak, f.inFlight)
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	rel, ok := f.releases[url]
	if !ok {
		return nil, driven.ErrNoRelease
	}
	return &rel, nil
}

// peakInFlight is the largest number of concurrent FetchLatest calls seen.
func (f *fakeSource) peakInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

type sentMessage struct {
	ChatID int64
	Text   string
}

type fakeNotifier struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[int64]error
}

func (f *fakeNotifier) Send(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[chatID]; ok {
		return err
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeNotifier) chats() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.ChatID)
	}
	return out
}

type fakeMetrics struct {
	mu          sync.Mutex
	cycles      map[string]int
	outcomes    map[model.PollOutcome]int
	fetchErrors map[string]int
	delivered   int
	failed      int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		cycles:      make(map[string]int),
		outcomes:    make(map[model.PollOutcome]int),
		fetchErrors: make(map[string]int),
	}
}

func (f *fakeMetrics) ObserveCycle(result string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycles[result]++
}

func (f *fakeMetrics) ObserveRepository(outcome model.PollOutcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[outcome]++
}

func (f *fakeMetrics) ObserveFetchError(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErrors[kind]++
}

func (f *fakeMetrics) ObserveDelivery(ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ok {
		f.delivered++
	} else {
		f.failed++
	}
}
