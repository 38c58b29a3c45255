package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDoublesUntilCap(t *testing.T) {
	q := NewQueue("bus", func(context.Context, Job) error { return nil }, QueueConfig{
		RetryDelay: time.Second,
		MaxDelay:   5 * time.Second,
	})

	assert.Equal(t, time.Second, q.Backoff(0))
	assert.Equal(t, time.Second, q.Backoff(1))
	assert.Equal(t, 2*time.Second, q.Backoff(2))
	assert.Equal(t, 4*time.Second, q.Backoff(3))
	assert.Equal(t, 5*time.Second, q.Backoff(4))
	assert.Equal(t, 5*time.Second, q.Backoff(40))
}

func TestQueueRetriesFailedJob(t *testing.T) {
	var calls int32
	done := make(chan struct{})
	handler := func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("sink unavailable")
		}
		close(done)
		return nil
	}
	q := NewQueue("bus", handler, QueueConfig{Workers: 1, MaxRetries: 5, RetryDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "evt-1", Type: "applet.changed"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried to success")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueDropsAfterMaxRetries(t *testing.T) {
	var calls int32
	handler := func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("permanent")
	}
	q := NewQueue("bus", handler, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: time.Millisecond, MaxDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "evt-1"}))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 3 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestEnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue("bus", func(context.Context, Job) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job{ID: "x"}))
}

func TestQueueReportsExhaustedJobs(t *testing.T) {
	exhausted := make(chan Job, 1)
	q := NewQueue("bus", func(context.Context, Job) error { return errors.New("sink down") }, QueueConfig{
		Workers:    1,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		MaxDelay:   time.Millisecond,
		OnExhaust:  func(job Job, err error) { exhausted <- job },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "evt-9", Type: "email.welcome"}))

	select {
	case job := <-exhausted:
		assert.Equal(t, "evt-9", job.ID)
		assert.Equal(t, 2, job.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("exhausted job was not reported")
	}
}

func TestStopWaitsForPendingRetries(t *testing.T) {
	q := NewQueue("bus", func(context.Context, Job) error { return errors.New("fail") }, QueueConfig{
		Workers:    1,
		MaxRetries: 5,
		RetryDelay: time.Hour,
		MaxDelay:   time.Hour,
	})
	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{ID: "evt-1"}))
	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop blocked on retry timer")
	}
	require.Error(t, q.Enqueue(Job{ID: "evt-2"}))
}
