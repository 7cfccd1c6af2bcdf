package schedule

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/releasebot/internal/application"
	"github.com/ericfisherdev/releasebot/internal/domain/model"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
	ran   chan struct{}
}

func (r *countingRunner) RunCycle(_ context.Context) (model.CycleReport, error) {
	r.calls.Add(1)
	if r.ran != nil {
		select {
		case r.ran <- struct{}{}:
		default:
		}
	}
	return model.CycleReport{}, r.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSpec(t *testing.T) {
	assert.Equal(t, "*/10 * * * *", Spec("*/10 * * * *", time.Minute))
	assert.Equal(t, "@every 5m0s", Spec("", 5*time.Minute))
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(&countingRunner{}, "every five minutes", discardLogger())
	assert.Error(t, err)
}

func TestNew_AcceptsExpressions(t *testing.T) {
	for _, spec := range []string{"@hourly", "@every 30s", "0 */5 * * * *", "*/5 * * * *"} {
		_, err := New(&countingRunner{}, spec, discardLogger())
		assert.NoError(t, err, spec)
	}
}

func TestRun_PollsImmediatelyAndStopsOnCancel(t *testing.T) {
	runner := &countingRunner{ran: make(chan struct{}, 1)}
	s, err := New(runner, "@hourly", discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-runner.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("initial cycle did not run")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestRunOnce_LogsOutcome(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := &Scheduler{runner: &countingRunner{err: application.ErrCycleInProgress}, logger: logger}
	s.runOnce(context.Background())
	assert.Contains(t, buf.String(), "poll cycle skipped")

	buf.Reset()
	s.runner = &countingRunner{err: errors.New("no such table")}
	s.runOnce(context.Background())
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "poll cycle aborted")
}

func TestCronLogger(t *testing.T) {
	var buf bytes.Buffer
	l := cronLogger{logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	l.Info("start")
	l.Error(errors.New("boom"), "panic", "stack", "trace")

	out := buf.String()
	assert.Contains(t, out, `msg="cron start"`)
	assert.Contains(t, out, `msg="cron panic"`)
	assert.Contains(t, out, "stack=trace")
	assert.Contains(t, out, "error=boom")
}
