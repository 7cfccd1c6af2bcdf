package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/releasebot/internal/adapter/driven/metrics"
	"github.com/ericfisherdev/releasebot/internal/domain/model"
	"github.com/ericfisherdev/releasebot/internal/domain/port/driven"
)

func TestPrometheus_Observe(t *testing.T) {
	p := metrics.NewPrometheus()

	p.ObserveCycle(driven.CycleCompleted, 2*time.Second)
	p.ObserveCycle(driven.CycleSkipped, 0)
	p.ObserveRepository(model.PollOutcomeNotifiedAndUpdated)
	p.ObserveRepository(model.PollOutcomeNotifiedAndUpdated)
	p.ObserveFetchError(driven.FetchErrorNotFound)
	p.ObserveDelivery(true)
	p.ObserveDelivery(false)
	p.ObserveDelivery(true)

	reg := p.Registry()
	count, err := testutil.GatherAndCount(reg, "releasebot_poll_cycles_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "one series per cycle result")

	count, err = testutil.GatherAndCount(reg, "releasebot_poll_cycle_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(reg, "releasebot_repository_polls_total")
	require.NoError(t, err)
	assert.Equal(t, len(model.AllPollOutcomes), count)

	count, err = testutil.GatherAndCount(reg, "releasebot_fetch_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrometheus_Handler(t *testing.T) {
	p := metrics.NewPrometheus()
	p.ObserveDelivery(true)
	p.ObserveDelivery(true)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `releasebot_notifications_total{result="sent"} 2`)
	assert.Contains(t, string(body), `releasebot_notifications_total{result="failed"} 0`)
	assert.Contains(t, string(body), "go_goroutines")
}
