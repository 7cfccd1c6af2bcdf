// Package schedule triggers poll cycles on a cron schedule.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ericfisherdev/releasebot/internal/application"
	"github.com/ericfisherdev/releasebot/internal/domain/model"
)

// CycleRunner runs one poll cycle. *application.PollService implements it.
type CycleRunner interface {
	RunCycle(ctx context.Context) (model.CycleReport, error)
}

// parser accepts standard five-field expressions, an optional leading seconds
// field, and descriptors such as @hourly or @every 5m.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Spec returns expr when set, otherwise an @every descriptor for interval.
func Spec(expr string, interval time.Duration) string {
	if expr != "" {
		return expr
	}
	return "@every " + interval.String()
}

// Scheduler runs poll cycles on a cron schedule. A tick that fires while the
// previous cycle is still running is skipped.
type Scheduler struct {
	runner CycleRunner
	spec   string
	cron   *cron.Cron
	logger *slog.Logger
}

// New validates spec and creates a Scheduler.
func New(runner CycleRunner, spec string, logger *slog.Logger) (*Scheduler, error) {
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("parsing poll schedule %q: %w", spec, err)
	}

	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	return &Scheduler{runner: runner, spec: spec, cron: c, logger: logger}, nil
}

// Run performs one cycle immediately, then follows the schedule until ctx is
// canceled. It waits for a running cycle to finish before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("scheduling poll cycle: %w", err)
	}

	s.logger.Info("poll scheduler started", "schedule", s.spec)
	s.runOnce(ctx)

	s.cron.Start()
	<-ctx.Done()

	<-s.cron.Stop().Done()
	s.logger.Info("poll scheduler stopped")

	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if _, err := s.runner.RunCycle(ctx); err != nil {
		if errors.Is(err, application.ErrCycleInProgress) {
			s.logger.Info("poll cycle skipped", "reason", err)
			return
		}
		s.logger.Error("poll cycle aborted", "error", err)
	}
}

// cronLogger adapts slog to cron.Logger. Routine scheduler chatter goes to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron "+msg, append(keysAndValues, "error", err)...)
}
