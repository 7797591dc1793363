package services_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benmeehan/devmon/internal/services"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedScheduler(t *testing.T) *services.SchedulerService {
	t.Helper()
	s := services.NewSchedulerService(zerolog.Nop())
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

// TestSchedulerService_StartStopGuards tests the start/stop state machine.
func TestSchedulerService_StartStopGuards(t *testing.T) {
	s := services.NewSchedulerService(zerolog.Nop())

	err := s.Stop()
	assert.Error(t, err)
	assert.Equal(t, "scheduler service is not running", err.Error())

	require.NoError(t, s.Start())

	err = s.Start()
	assert.Error(t, err)
	assert.Equal(t, "scheduler service is already running", err.Error())

	require.NoError(t, s.Stop())
	assert.Error(t, s.Stop())
}

// TestSchedulerService_ScheduleRequiresRunning verifies that jobs cannot be
// scheduled on a stopped scheduler.
func TestSchedulerService_ScheduleRequiresRunning(t *testing.T) {
	s := services.NewSchedulerService(zerolog.Nop())

	err := s.Schedule("job", 100*time.Millisecond, func() {})
	assert.Error(t, err)
}

// TestSchedulerService_PeriodicTicks verifies the immediate first run plus
// ticker-paced runs: with a 100ms interval, 350ms of waiting yields exactly
// 4 runs (t=0, 100, 200, 300), tolerating one fewer or one extra run only
// for scheduling jitter around the sleep boundary.
func TestSchedulerService_PeriodicTicks(t *testing.T) {
	s := startedScheduler(t)

	var runs atomic.Int32
	require.NoError(t, s.Schedule("job", 100*time.Millisecond, func() {
		runs.Add(1)
	}))

	time.Sleep(350 * time.Millisecond)
	require.NoError(t, s.Stop())

	count := runs.Load()
	assert.GreaterOrEqual(t, count, int32(3))
	assert.LessOrEqual(t, count, int32(5))
}

// TestSchedulerService_ScheduleTwiceIsIdempotent verifies that scheduling
// the same name twice does not double the tick rate.
func TestSchedulerService_ScheduleTwiceIsIdempotent(t *testing.T) {
	s := startedScheduler(t)

	var runs atomic.Int32
	task := func() { runs.Add(1) }
	require.NoError(t, s.Schedule("job", 100*time.Millisecond, task))
	require.NoError(t, s.Schedule("job", 100*time.Millisecond, task))

	time.Sleep(350 * time.Millisecond)
	require.NoError(t, s.Stop())

	// A doubled job would hit ~8 runs; the single job caps at 4 plus jitter.
	assert.LessOrEqual(t, runs.Load(), int32(5))
}

// TestSchedulerService_Unschedule verifies that an unscheduled job stops
// ticking, and that unscheduling an unknown name is a no-op.
func TestSchedulerService_Unschedule(t *testing.T) {
	s := startedScheduler(t)

	var runs atomic.Int32
	require.NoError(t, s.Schedule("job", 50*time.Millisecond, func() {
		runs.Add(1)
	}))
	assert.True(t, s.IsScheduled("job"))

	time.Sleep(120 * time.Millisecond)
	s.Unschedule("job")
	assert.False(t, s.IsScheduled("job"))

	time.Sleep(50 * time.Millisecond) // let any in-flight run drain
	after := runs.Load()
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, after, runs.Load())

	assert.NotPanics(t, func() { s.Unschedule("never-scheduled") })
}

// TestSchedulerService_OverlappingTicksAreSkipped verifies the re-entrancy
// guard: a tick firing while the previous run is still in flight is dropped,
// not queued, so a slow task never overlaps itself.
func TestSchedulerService_OverlappingTicksAreSkipped(t *testing.T) {
	s := startedScheduler(t)

	var concurrent atomic.Int32
	var maxConcurrent atomic.Int32
	var runs atomic.Int32

	require.NoError(t, s.Schedule("slow", 50*time.Millisecond, func() {
		n := concurrent.Add(1)
		if n > maxConcurrent.Load() {
			maxConcurrent.Store(n)
		}
		runs.Add(1)
		time.Sleep(120 * time.Millisecond)
		concurrent.Add(-1)
	}))

	time.Sleep(500 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Equal(t, int32(1), maxConcurrent.Load())
	// Ten ticks fire in 500ms; with a 120ms task most must be skipped.
	assert.LessOrEqual(t, runs.Load(), int32(5))
}

// TestSchedulerService_SetInterval verifies reconfiguration and its error
// for unknown jobs.
func TestSchedulerService_SetInterval(t *testing.T) {
	s := startedScheduler(t)

	var runs atomic.Int32
	require.NoError(t, s.Schedule("job", time.Hour, func() {
		runs.Add(1)
	}))

	assert.Error(t, s.SetInterval("unknown", time.Second))
	assert.Error(t, s.SetInterval("job", 0))
	assert.NoError(t, s.SetInterval("job", 10*time.Millisecond))

	// Only the immediate first run can have happened; the hour-long first
	// tick has not fired, so the new interval is not yet in effect.
	assert.LessOrEqual(t, runs.Load(), int32(1))
}

// TestSchedulerService_ConcurrentSetInterval verifies that reconfiguring a
// running job from many goroutines neither crashes nor duplicates runs of an
// in-flight cycle.
func TestSchedulerService_ConcurrentSetInterval(t *testing.T) {
	s := startedScheduler(t)

	var concurrent atomic.Int32
	var maxConcurrent atomic.Int32
	require.NoError(t, s.Schedule("job", 20*time.Millisecond, func() {
		n := concurrent.Add(1)
		if n > maxConcurrent.Load() {
			maxConcurrent.Store(n)
		}
		time.Sleep(10 * time.Millisecond)
		concurrent.Add(-1)
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = s.SetInterval("job", time.Duration(10+i)*time.Millisecond)
			}
		}(i)
	}
	wg.Wait()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Equal(t, int32(1), maxConcurrent.Load())
}

// TestSchedulerService_TaskPanicIsContained verifies that a panicking task
// does not kill the job loop; ticks keep firing.
func TestSchedulerService_TaskPanicIsContained(t *testing.T) {
	s := startedScheduler(t)

	var runs atomic.Int32
	require.NoError(t, s.Schedule("explosive", 50*time.Millisecond, func() {
		runs.Add(1)
		panic("task blew up")
	}))

	time.Sleep(180 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

// TestSchedulerService_StopWaitsForInFlightRun verifies that Stop never
// aborts a running task; it waits for it to finish.
func TestSchedulerService_StopWaitsForInFlightRun(t *testing.T) {
	s := services.NewSchedulerService(zerolog.Nop())
	require.NoError(t, s.Start())

	started := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, s.Schedule("slow", time.Hour, func() {
		close(started)
		time.Sleep(150 * time.Millisecond)
		finished.Store(true)
	}))

	<-started
	require.NoError(t, s.Stop())
	assert.True(t, finished.Load())
}
