package application_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/releasebot/internal/application"
	"github.com/ericfisherdev/releasebot/internal/domain/model"
)

type trackingFixture struct {
	*pollFixture
	tracking *application.TrackingService
}

func newTrackingFixture(t *testing.T) *trackingFixture {
	t.Helper()

	pf := newPollFixture(t)
	return &trackingFixture{
		pollFixture: pf,
		tracking:    application.NewTrackingService(pf.repos, pf.subs, pf.cache, pf.svc, discardLogger()),
	}
}

const toolURL = "https://github.com/acme/tool"

var toolRepoURL = model.RepositoryURL{Owner: "acme", Repo: "tool"}

func TestTrack_CreatesRepositoryAndRecordsBaseline(t *testing.T) {
	f := newTrackingFixture(t)
	f.source.set(toolRepoURL, "v1.0.0")

	res, err := f.tracking.Track(context.Background(), 42, "Tool", toolURL+".git")

	require.NoError(t, err)
	assert.Equal(t, model.TrackStatusCreated, res.Status)
	assert.Equal(t, "Tool", res.Repository.Name)
	assert.Equal(t, toolRepoURL, res.Repository.URL)
	assert.Equal(t, "v1.0.0", f.cache.tag(res.Repository.ID))
	assert.Empty(t, f.notifier.chats(), "baseline must not notify")
}

func TestTrack_SecondChatSubscribes(t *testing.T) {
	f := newTrackingFixture(t)
	f.source.set(toolRepoURL, "v1")
	first, err := f.tracking.Track(context.Background(), 1, "Tool", toolURL)
	require.NoError(t, err)

	second, err := f.tracking.Track(context.Background(), 2, "Tool", toolURL+"/releases")

	require.NoError(t, err)
	assert.Equal(t, model.TrackStatusSubscribed, second.Status)
	assert.Equal(t, first.Repository.ID, second.Repository.ID)
	chats, _ := f.subs.ListSubscribers(context.Background(), first.Repository.ID)
	assert.Equal(t, []int64{1, 2}, chats)
}

func TestTrack_AlreadyTrackingRenames(t *testing.T) {
	f := newTrackingFixture(t)
	f.source.set(toolRepoURL, "v1")
	_, err := f.tracking.Track(context.Background(), 1, "Tool", toolURL)
	require.NoError(t, err)
	calls := f.source.calls

	res, err := f.tracking.Track(context.Background(), 1, "Renamed", toolURL)

	require.NoError(t, err)
	assert.Equal(t, model.TrackStatusAlreadyTracking, res.Status)
	assert.Equal(t, "Renamed", res.Repository.Name)
	stored, _ := f.repos.GetByURL(context.Background(), toolRepoURL)
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, calls, f.source.calls, "no refresh for an existing subscription")
}

func TestTrack_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		repo string
		url  string
	}{
		{name: "empty name", repo: "  ", url: toolURL},
		{name: "not github", repo: "Tool", url: "https://gitlab.com/acme/tool"},
		{name: "missing repo", repo: "Tool", url: "https://github.com/acme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTrackingFixture(t)

			_, err := f.tracking.Track(context.Background(), 1, tt.repo, tt.url)

			assert.ErrorIs(t, err, application.ErrInvalidInput)
			all, _ := f.repos.ListAll(context.Background())
			assert.Empty(t, all)
		})
	}
}

func TestTrack_FetchFailureStillTracks(t *testing.T) {
	f := newTrackingFixture(t)

	res, err := f.tracking.Track(context.Background(), 1, "Tool", toolURL)

	require.NoError(t, err)
	assert.Equal(t, model.TrackStatusCreated, res.Status)
	assert.Empty(t, f.cache.tag(res.Repository.ID))
}

func TestUntrack_LastSubscriberRemovesRepository(t *testing.T) {
	f := newTrackingFixture(t)
	f.source.set(toolRepoURL, "v1")
	_, err := f.tracking.Track(context.Background(), 1, "Tool", toolURL)
	require.NoError(t, err)
	_, err = f.tracking.Track(context.Background(), 2, "Tool", toolURL)
	require.NoError(t, err)

	require.NoError(t, f.tracking.Untrack(context.Background(), 1, toolURL))
	stored, _ := f.repos.GetByURL(context.Background(), toolRepoURL)
	require.NotNil(t, stored, "repository stays while chat 2 follows it")

	require.NoError(t, f.tracking.Untrack(context.Background(), 2, toolURL))
	stored, _ = f.repos.GetByURL(context.Background(), toolRepoURL)
	assert.Nil(t, stored)
}

func TestUntrack_NotSubscribed(t *testing.T) {
	f := newTrackingFixture(t)
	f.source.set(toolRepoURL, "v1")

	err := f.tracking.Untrack(context.Background(), 1, toolURL)
	assert.ErrorIs(t, err, application.ErrNotSubscribed)

	_, err = f.tracking.Track(context.Background(), 2, "Tool", toolURL)
	require.NoError(t, err)

	err = f.tracking.Untrack(context.Background(), 1, toolURL)
	assert.ErrorIs(t, err, application.ErrNotSubscribed)

	err = f.tracking.Untrack(context.Background(), 1, "not a url")
	assert.ErrorIs(t, err, application.ErrInvalidInput)
}

func TestList(t *testing.T) {
	f := newTrackingFixture(t)
	f.source.set(toolRepoURL, "v1")
	_, err := f.tracking.Track(context.Background(), 1, "Tool", toolURL)
	require.NoError(t, err)
	_, err = f.tracking.Track(context.Background(), 1, "Other", "https://github.com/acme/other")
	require.NoError(t, err)
	_, err = f.tracking.Track(context.Background(), 2, "Third", "https://github.com/acme/third")
	require.NoError(t, err)

	views, err := f.tracking.List(context.Background(), 1)

	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "Tool", views[0].Repository.Name)
	assert.Equal(t, "v1", views[0].LatestTag)
	assert.Equal(t, "Other", views[1].Repository.Name)
	assert.Empty(t, views[1].LatestTag)
}

func TestOverviewAndOnTag(t *testing.T) {
	f := newTrackingFixture(t)
	f.source.set(toolRepoURL, "v1")
	f.source.set(model.RepositoryURL{Owner: "acme", Repo: "other"}, "v2")
	_, err := f.tracking.Track(context.Background(), 1, "Tool", toolURL)
	require.NoError(t, err)
	_, err = f.tracking.Track(context.Background(), 2, "Tool", toolURL)
	require.NoError(t, err)
	_, err = f.tracking.Track(context.Background(), 1, "Other", "https://github.com/acme/other")
	require.NoError(t, err)

	overview, err := f.tracking.Overview(context.Background())
	require.NoError(t, err)
	require.Len(t, overview, 2)
	assert.Equal(t, 2, overview[0].Subscribers)
	assert.Equal(t, 1, overview[1].Subscribers)

	onTag, err := f.tracking.OnTag(context.Background(), "v2")
	require.NoError(t, err)
	require.Len(t, onTag, 1)
	assert.Equal(t, "Other", onTag[0].Repository.Name)
}
