package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countJob struct {
	name  string
	calls atomic.Int32
	err   error
	block chan struct{}
}

func (j *countJob) Name() string { return j.name }

func (j *countJob) Run(ctx context.Context) error {
	j.calls.Add(1)
	if j.block != nil {
		<-j.block
	}
	return j.err
}

func TestAddJob_RejectsDuplicateName(t *testing.T) {
	s := NewCronScheduler()
	require.NoError(t, s.AddJob(&countJob{name: "a"}, "*/1 * * * *"))
	require.ErrorIs(t, s.AddJob(&countJob{name: "a"}, "*/5 * * * *"), ErrDuplicateJob)
}

func TestAddJob_InvalidSpec(t *testing.T) {
	s := NewCronScheduler()
	require.Error(t, s.AddJob(&countJob{name: "a"}, "not a spec"))
	require.ErrorIs(t, s.Trigger("a"), ErrUnknownJob)
}

func TestTrigger_RunsJob(t *testing.T) {
	s := NewCronScheduler()
	job := &countJob{name: "flush", err: errors.New("ignored")}
	require.NoError(t, s.AddJob(job, "0 0 * * *"))
	require.NoError(t, s.Trigger("flush"))
	require.NoError(t, s.Trigger("flush"))
	assert.Equal(t, int32(2), job.calls.Load())
}

func TestTrigger_SkipsWhileRunning(t *testing.T) {
	s := NewCronScheduler()
	job := &countJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.AddJob(job, "0 0 * * *"))

	done := make(chan struct{})
	go func() {
		_ = s.Trigger("slow")
		close(done)
	}()
	require.Eventually(t, func() bool { return job.calls.Load() == 1 }, timeout, tick)

	require.NoError(t, s.Trigger("slow"))
	assert.Equal(t, int32(1), job.calls.Load())

	close(job.block)
	<-done
}

func TestStartStop(t *testing.T) {
	s := NewCronScheduler()
	s.Start(context.Background())
	s.Stop()
}

const (
	timeout = 2 * time.Second
	tick    = 10 * time.Millisecond
)
