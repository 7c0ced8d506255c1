package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/challengeboard/challengeboard/pkg/apperror"
	"github.com/challengeboard/challengeboard/worker/internal/leaderboard"
	"github.com/challengeboard/challengeboard/worker/internal/lock"
	"github.com/challengeboard/challengeboard/worker/internal/metrics"
	"github.com/challengeboard/challengeboard/worker/internal/notify"
)

// ErrSkipped is returned by RunCycle when another cycle holds the lock.
var ErrSkipped = errors.New("cycle skipped: another cycle is in progress")

// SchedulerOptions configures a Scheduler. Only Schedule or Interval is
// required; nil collaborators are replaced by no-op or local versions.
type SchedulerOptions struct {
	// Schedule is a standard cron spec or descriptor. When empty the cycle
	// runs every Interval.
	Schedule string
	Interval time.Duration

	Locker   lock.Locker
	Metrics  *metrics.Metrics
	Notifier *notify.Notifier
}

// Scheduler runs the pipeline on a cron schedule. One cycle runs at a time:
// a tick that arrives while a cycle is running is skipped.
type Scheduler struct {
	p        *Pipeline
	cron     *cron.Cron
	job      cron.Job
	locker   lock.Locker
	metrics  *metrics.Metrics
	notifier *notify.Notifier
	now      func() time.Time

	ctx context.Context
	wg  sync.WaitGroup
}

// NewScheduler validates the schedule and prepares, but does not start, the
// cron runner.
func NewScheduler(p *Pipeline, opts SchedulerOptions) (*Scheduler, error) {
	sched, desc, err := parseSchedule(opts.Schedule, opts.Interval)
	if err != nil {
		return nil, err
	}

	locker := opts.Locker
	if locker == nil {
		locker = &lock.Local{}
	}

	logger := cronLogger{}
	s := &Scheduler{
		p:        p,
		locker:   locker,
		metrics:  opts.Metrics,
		notifier: opts.Notifier,
		now:      time.Now,
		ctx:      context.Background(),
	}
	s.cron = cron.New(cron.WithLogger(logger))
	s.job = cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).
		Then(cron.FuncJob(func() { _, _ = s.RunCycle(s.ctx) }))
	s.cron.Schedule(sched, s.job)

	slog.Info("pipeline: scheduler configured", "schedule", desc)
	return s, nil
}

func parseSchedule(spec string, interval time.Duration) (cron.Schedule, string, error) {
	if spec != "" {
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return nil, "", fmt.Errorf("pipeline: parse schedule %q: %w", spec, err)
		}
		return sched, spec, nil
	}
	if interval <= 0 {
		return nil, "", fmt.Errorf("pipeline: schedule or positive interval required")
	}
	return cron.Every(interval), "@every " + interval.String(), nil
}

// Start runs one cycle right away, then hands over to the cron schedule.
// Cycles run detached from ctx's cancellation so shutdown never interrupts
// a cycle half way; use Stop to wait for the one in flight.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.job.Run()
	}()
	s.cron.Start()
}

// Stop halts the schedule and waits for any running cycle to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	if s.notifier != nil {
		s.notifier.Wait()
	}
}

// RunCycle runs one instrumented cycle: it takes the cycle lock, runs the
// pipeline, and records the outcome in logs, metrics and notifications.
// Failures are returned, never panicked.
func (s *Scheduler) RunCycle(ctx context.Context) (*Report, error) {
	start := s.now()

	release, ok, err := s.locker.Acquire(ctx)
	if err != nil {
		slog.Error("pipeline: cycle lock unavailable", "err", err)
		s.finish("", metrics.OutcomeFailure, start, err)
		return nil, err
	}
	if !ok {
		slog.Warn("pipeline: previous cycle still running, skipping")
		s.finish("", metrics.OutcomeSkipped, start, nil)
		return nil, ErrSkipped
	}
	defer release()

	rep, err := s.p.Run(ctx)
	if err != nil {
		slog.Error("pipeline: cycle failed",
			"cycle", rep.Cycle,
			"stage", rep.FailedStage,
			"kind", kindName(err),
			"err", err,
		)
		s.finish(rep.Cycle, metrics.OutcomeFailure, start, err)
		return rep, err
	}

	elapsed := s.now().Sub(start)
	slog.Info("pipeline: leaderboard published",
		"cycle", rep.Cycle,
		"candidates", rep.Candidates,
		"inserted", rep.Inserted,
		"stored", rep.Stored,
		"finished", rep.Finished,
		"pending", rep.Pending,
		"months", len(rep.Rankings),
		"duration", elapsed,
	)
	if s.metrics != nil {
		s.metrics.Published(s.now(), rep.Inserted, rep.Stored, rep.Pending, leaderboard.Participants(rep.Rankings))
	}
	s.finish(rep.Cycle, metrics.OutcomeSuccess, start, nil)
	return rep, nil
}

func (s *Scheduler) finish(cycle, outcome string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.CycleFinished(outcome, s.now().Sub(start))
	}
	if s.notifier == nil {
		return
	}
	switch outcome {
	case metrics.OutcomeFailure:
		s.notifier.CycleFailed(cycle, err)
	case metrics.OutcomeSuccess:
		s.notifier.CycleSucceeded(cycle)
	}
}

func kindName(err error) string {
	switch apperror.KindOf(err) {
	case apperror.ErrUpstream:
		return "upstream"
	case apperror.ErrPersistence:
		return "persistence"
	case apperror.ErrCorruptState:
		return "corrupt_state"
	default:
		return "unknown"
	}
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
