package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"hls_transcode_service/internal/transcode/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context, job *domain.TranscodeJob) error

func (f runnerFunc) Run(ctx context.Context, job *domain.TranscodeJob) error {
	return f(ctx, job)
}

func TestWorkerPool_ProcessesEachJobOnce(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(&fakeClock{now: time.Now()})

	const jobs = 12
	for i := 0; i < jobs; i++ {
		_, err := q.Enqueue(ctx, testRequest)
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		done = make(chan struct{})
	)
	runner := runnerFunc(func(ctx context.Context, job *domain.TranscodeJob) error {
		mu.Lock()
		seen[job.JobID]++
		n := len(seen)
		mu.Unlock()
		if err := q.Complete(ctx, job.JobID, domain.JobResult{}); err != nil {
			return err
		}
		if n == jobs {
			close(done)
		}
		return nil
	})

	pool := NewWorkerPool(q, runner, 4, 10*time.Millisecond)
	pool.Start(ctx)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not drain the queue")
	}
	pool.Stop()

	assert.Len(t, seen, jobs)
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}

func TestWorkerPool_WakesOnEnqueue(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(&fakeClock{now: time.Now()})

	got := make(chan string, 1)
	runner := runnerFunc(func(ctx context.Context, job *domain.TranscodeJob) error {
		got <- job.JobID
		return q.Complete(ctx, job.JobID, domain.JobResult{})
	})

	// poll interval 很長，只能靠 signal 喚醒
	pool := NewWorkerPool(q, runner, 1, time.Hour)
	pool.Start(ctx)
	defer pool.Stop()

	time.Sleep(20 * time.Millisecond)
	jobID, err := q.Enqueue(ctx, testRequest)
	require.NoError(t, err)

	select {
	case id := <-got:
		assert.Equal(t, jobID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("worker was not woken by enqueue")
	}
}

func TestWorkerPool_PanicCountsAsFailedAttempt(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(&fakeClock{now: time.Now()})
	jobID, err := q.Enqueue(ctx, testRequest)
	require.NoError(t, err)

	ran := make(chan struct{}, 1)
	runner := runnerFunc(func(context.Context, *domain.TranscodeJob) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		panic("unexpected")
	})

	pool := NewWorkerPool(q, runner, 1, 10*time.Millisecond)
	pool.Start(ctx)
	<-ran
	pool.Stop()

	st, err := q.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Attempts)
	assert.Equal(t, domain.JobQueued, st.State)
	assert.Contains(t, st.LastError, "panic")
}
