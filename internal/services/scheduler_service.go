package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// scheduledJob is one named periodic task.
type scheduledJob struct {
	name     string
	task     func()
	interval atomic.Int64 // nanoseconds, read by the loop on each tick
	inFlight atomic.Bool  // re-entrancy guard: a tick fired mid-run is skipped
	cancel   context.CancelFunc
}

// SchedulerService runs named background jobs on fixed intervals. Each job
// runs its task once immediately when scheduled and then on every tick. A
// tick that fires while the previous run is still in flight is skipped, not
// queued, so a job never overlaps itself. Task failures never stop the job:
// panics are recovered and logged and the job keeps ticking.
type SchedulerService struct {
	logger zerolog.Logger
	jobs   cmap.ConcurrentMap[string, *scheduledJob]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSchedulerService initializes a new SchedulerService.
func NewSchedulerService(logger zerolog.Logger) *SchedulerService {
	return &SchedulerService{
		logger: logger.With().Str("component", "scheduler").Logger(),
		jobs:   cmap.New[*scheduledJob](),
	}
}

// Start makes the scheduler accept jobs.
func (s *SchedulerService) Start() error {
	if s.ctx != nil {
		s.logger.Warn().Msg("SchedulerService is already running")
		return errors.New("scheduler service is already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.logger.Info().Msg("SchedulerService started successfully")
	return nil
}

// Stop unschedules all jobs and waits for in-flight runs to finish. An
// in-flight run is never aborted; stopping only suppresses future ticks.
func (s *SchedulerService) Stop() error {
	if s.ctx == nil {
		s.logger.Warn().Msg("SchedulerService is not running")
		return errors.New("scheduler service is not running")
	}

	s.cancel()
	s.wg.Wait()
	s.jobs.Clear()

	s.ctx = nil
	s.cancel = nil

	s.logger.Info().Msg("SchedulerService stopped successfully")
	return nil
}

// Schedule registers a named job and launches its loop. Scheduling a name
// that is already scheduled is an idempotent no-op: the existing job keeps
// its tick rate.
func (s *SchedulerService) Schedule(name string, interval time.Duration, task func()) error {
	if s.ctx == nil {
		return errors.New("scheduler service is not running")
	}
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}

	jobCtx, jobCancel := context.WithCancel(s.ctx)
	job := &scheduledJob{
		name:   name,
		task:   task,
		cancel: jobCancel,
	}
	job.interval.Store(int64(interval))

	if !s.jobs.SetIfAbsent(name, job) {
		jobCancel()
		s.logger.Warn().Str("job", name).Msg("Job is already scheduled")
		return nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJobLoop(jobCtx, job)
	}()

	s.logger.Info().Str("job", name).Dur("interval", interval).Msg("Job scheduled")
	return nil
}

// Unschedule cancels the named job's loop. Unscheduling an unknown name is a
// no-op.
func (s *SchedulerService) Unschedule(name string) {
	job, ok := s.jobs.Pop(name)
	if !ok {
		return
	}

	job.cancel()
	s.logger.Info().Str("job", name).Msg("Job unscheduled")
}

// IsScheduled reports whether a job with the given name is active.
func (s *SchedulerService) IsScheduled(name string) bool {
	return s.jobs.Has(name)
}

// SetInterval changes a job's interval. The new value takes effect at the
// next cycle boundary; it never triggers an immediate extra run and never
// drops the cycle already in progress.
func (s *SchedulerService) SetInterval(name string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}

	job, ok := s.jobs.Get(name)
	if !ok {
		return fmt.Errorf("job %s is not scheduled", name)
	}

	job.interval.Store(int64(interval))
	s.logger.Info().Str("job", name).Dur("interval", interval).Msg("Job interval updated")
	return nil
}

// runJobLoop drives one job: an immediate first run, then ticker-paced runs
// until the job's context is cancelled.
func (s *SchedulerService) runJobLoop(ctx context.Context, job *scheduledJob) {
	current := time.Duration(job.interval.Load())
	ticker := time.NewTicker(current)
	defer ticker.Stop()

	s.dispatch(job)

	for {
		select {
		case <-ticker.C:
			if next := time.Duration(job.interval.Load()); next != current {
				current = next
				ticker.Reset(current)
			}
			s.dispatch(job)

		case <-ctx.Done():
			s.logger.Debug().Str("job", job.name).Msg("Job loop stopping")
			return
		}
	}
}

// dispatch runs the job's task on its own goroutine, guarded against
// overlap. The loop keeps draining ticks while a run is in flight, so
// skipped ticks are dropped rather than queued.
func (s *SchedulerService) dispatch(job *scheduledJob) {
	if !job.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug().Str("job", job.name).Msg("Previous run still in flight, skipping tick")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer job.inFlight.Store(false)
		s.runTask(job)
	}()
}

// runTask executes the task with panic containment. The scheduler survives
// repeated task failures indefinitely.
func (s *SchedulerService) runTask(job *scheduledJob) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("job", job.name).Interface("panic", r).Msg("Job task panicked")
		}
	}()

	job.task()
}
