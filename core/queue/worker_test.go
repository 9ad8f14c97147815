package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wunderbyte/evasync/core"
	"github.com/wunderbyte/evasync/core/queue"
	dummydb "github.com/wunderbyte/evasync/storage/database/dummy"
	testutil "github.com/wunderbyte/evasync/tests"
)

func newQueue(t *testing.T) (*queue.Service, *queue.Worker) {
	db, err := dummydb.Open()
	require.NoError(t, err)
	svc := queue.NewService(dummydb.NewJobRepository(db))
	worker := queue.NewWorker(svc, core.WorkerConfig{
		PollInterval: time.Millisecond,
		RetryDelay:   time.Minute,
		MaxAttempts:  3,
	}, testutil.Logger{})
	return svc, worker
}

func Test_Service_Schedule(t *testing.T) {
	svc, _ := newQueue(t)
	ctx := context.Background()

	t.Run("payload is serialized", func(t *testing.T) {
		job, err := svc.Schedule(ctx, queue.KindOpenSurvey, 1, time.Now(), map[string]int{"surveyid": 9})
		require.NoError(t, err)
		assert.NotEmpty(t, job.ID)
		assert.Equal(t, queue.StatusPending, job.Status)

		var p map[string]int
		require.NoError(t, json.Unmarshal(job.Payload, &p))
		assert.Equal(t, 9, p["surveyid"])
	})

	t.Run("same option and kind replaces the pending job", func(t *testing.T) {
		first, err := svc.Schedule(ctx, queue.KindCloseSurvey, 2, time.Now().Add(time.Hour), nil)
		require.NoError(t, err)
		second, err := svc.Schedule(ctx, queue.KindCloseSurvey, 2, time.Now().Add(2*time.Hour), nil)
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)

		jobs, err := svc.Pending(ctx, 2)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, second.ID, jobs[0].ID)
	})

	t.Run("different kinds coexist", func(t *testing.T) {
		_, err := svc.Schedule(ctx, queue.KindOpenSurvey, 3, time.Now(), nil)
		require.NoError(t, err)
		_, err = svc.Schedule(ctx, queue.KindCloseSurvey, 3, time.Now(), nil)
		require.NoError(t, err)

		jobs, err := svc.Pending(ctx, 3)
		require.NoError(t, err)
		assert.Len(t, jobs, 2)
	})
}

func Test_Service_Requeue(t *testing.T) {
	svc, worker := newQueue(t)
	ctx := context.Background()

	_, err := svc.Requeue(ctx, 1, queue.KindReconcile)
	assert.Equal(t, queue.ErrNotFound, err)

	job, err := svc.Schedule(ctx, queue.KindReconcile, 1, time.Now().Add(-time.Second), map[string]int{"bindingid": 5})
	require.NoError(t, err)

	worker.Handle(queue.KindReconcile, func(ctx context.Context, job queue.Job) error {
		return queue.Fatal(errors.New("remote gone"))
	})
	require.NoError(t, worker.RunOnce(ctx))

	// failed permanently, nothing pending anymore
	jobs, err := svc.Pending(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, jobs)

	requeued, err := svc.Requeue(ctx, 1, queue.KindReconcile)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, requeued.ID)
	assert.Equal(t, queue.StatusPending, requeued.Status)
	assert.Equal(t, 0, requeued.Attempts)
	assert.JSONEq(t, string(job.Payload), string(requeued.Payload))

	jobs, err = svc.Pending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, requeued.ID, jobs[0].ID)
}

func Test_Worker_RunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("runs only due jobs", func(t *testing.T) {
		svc, worker := newQueue(t)
		var ran []int
		worker.Handle(queue.KindOpenSurvey, func(ctx context.Context, job queue.Job) error {
			ran = append(ran, job.OptionID)
			return nil
		})

		_, err := svc.Schedule(ctx, queue.KindOpenSurvey, 1, time.Now().Add(-time.Second), nil)
		require.NoError(t, err)
		_, err = svc.Schedule(ctx, queue.KindOpenSurvey, 2, time.Now().Add(time.Hour), nil)
		require.NoError(t, err)

		require.NoError(t, worker.RunOnce(ctx))
		assert.Equal(t, []int{1}, ran)

		jobs, err := svc.Pending(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, jobs, 1)
	})

	t.Run("plain errors retry until max attempts", func(t *testing.T) {
		svc, worker := newQueue(t)
		attempts := 0
		worker.Handle(queue.KindOpenSurvey, func(ctx context.Context, job queue.Job) error {
			attempts++
			return errors.New("boom")
		})

		_, err := svc.Schedule(ctx, queue.KindOpenSurvey, 1, time.Now().Add(-time.Second), nil)
		require.NoError(t, err)

		require.NoError(t, worker.RunOnce(ctx))
		jobs, err := svc.Pending(ctx, 1)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, 1, jobs[0].Attempts)
		assert.Equal(t, "boom", jobs[0].LastError.String)

		// not due again until the retry delay has passed
		require.NoError(t, worker.RunOnce(ctx))
		assert.Equal(t, 1, attempts)
	})

	t.Run("fatal errors never retry", func(t *testing.T) {
		svc, worker := newQueue(t)
		attempts := 0
		worker.Handle(queue.KindOpenSurvey, func(ctx context.Context, job queue.Job) error {
			attempts++
			return queue.Fatal(errors.New("bad payload"))
		})

		_, err := svc.Schedule(ctx, queue.KindOpenSurvey, 1, time.Now().Add(-time.Second), nil)
		require.NoError(t, err)

		require.NoError(t, worker.RunOnce(ctx))
		require.NoError(t, worker.RunOnce(ctx))
		assert.Equal(t, 1, attempts)

		jobs, err := svc.Pending(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})

	t.Run("unknown kind fails the job", func(t *testing.T) {
		svc, worker := newQueue(t)

		_, err := svc.Schedule(ctx, queue.KindReconcile, 1, time.Now().Add(-time.Second), nil)
		require.NoError(t, err)

		require.NoError(t, worker.RunOnce(ctx))
		jobs, err := svc.Pending(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})
}

func Test_Job_Due(t *testing.T) {
	now := time.Now()
	assert.True(t, queue.Job{Status: queue.StatusPending, RunAt: now.Add(-time.Second)}.Due(now))
	assert.False(t, queue.Job{Status: queue.StatusPending, RunAt: now.Add(time.Second)}.Due(now))
	assert.False(t, queue.Job{Status: queue.StatusRunning, RunAt: now.Add(-time.Second)}.Due(now))
}
