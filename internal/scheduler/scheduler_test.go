package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu    sync.Mutex
	runs  map[string]int
	block chan struct{} // when set, StartRun blocks until closed
	err   error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{runs: make(map[string]int)}
}

func (f *fakeRunner) StartRun(_ context.Context, jobID string) error {
	f.mu.Lock()
	f.runs[jobID]++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.err
}

func (f *fakeRunner) count(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[jobID]
}

func TestAddJobValidatesCronExpression(t *testing.T) {
	s := NewScheduler(newFakeRunner())

	require.NoError(t, s.AddJob("nightly", "0 2 * * *"))
	assert.Error(t, s.AddJob("bad", "not a cron expr"))
	assert.Error(t, s.AddJob("nightly", "0 3 * * *"), "duplicate job id")
}

func TestSchedulerRunsDueJob(t *testing.T) {
	runner := newFakeRunner()
	s := NewScheduler(runner, WithTickInterval(10*time.Millisecond))
	require.NoError(t, s.AddJob("nightly", "* * * * *"))

	require.NoError(t, s.Start(context.Background()))
	defer func() { require.NoError(t, s.Stop()) }()

	require.Eventually(t, func() bool {
		return runner.count("nightly") >= 1
	}, 2*time.Second, 5*time.Millisecond)

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "success", jobs[0].LastRunStatus)
	assert.False(t, jobs[0].NextRunAt.IsZero())
	assert.True(t, jobs[0].NextRunAt.After(jobs[0].LastRunAt))
}

func TestSchedulerRecordsFailedRun(t *testing.T) {
	runner := newFakeRunner()
	runner.err = errors.New("target unreachable")
	s := NewScheduler(runner, WithTickInterval(10*time.Millisecond))
	require.NoError(t, s.AddJob("nightly", "* * * * *"))

	require.NoError(t, s.Start(context.Background()))
	defer func() { require.NoError(t, s.Stop()) }()

	require.Eventually(t, func() bool {
		for _, job := range s.Jobs() {
			if job.LastRunStatus == "error" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSchedulerDoubleStart(t *testing.T) {
	s := NewScheduler(newFakeRunner(), WithTickInterval(time.Hour))

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())

	// Restart after stop is allowed.
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
}

func TestRemoveJob(t *testing.T) {
	s := NewScheduler(newFakeRunner())
	require.NoError(t, s.AddJob("nightly", "* * * * *"))

	s.RemoveJob("nightly")
	s.RemoveJob("never-existed")
	assert.Empty(t, s.Jobs())
}

func TestCalculateNextRun(t *testing.T) {
	s := NewScheduler(newFakeRunner())

	from := time.Date(2026, 8, 29, 1, 30, 0, 0, time.UTC)
	next, err := s.CalculateNextRun("0 2 * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 29, 2, 0, 0, 0, time.UTC), next)

	_, err = s.CalculateNextRun("garbage", from)
	assert.Error(t, err)
}
