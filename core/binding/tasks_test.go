package binding_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wunderbyte/evasync/core"
	"github.com/wunderbyte/evasync/core/binding"
	"github.com/wunderbyte/evasync/core/queue"
	testutil "github.com/wunderbyte/evasync/tests"
)

func newWorkerEnv(t *testing.T) (*engineEnv, *queue.Worker) {
	env := newEngineEnv(t)
	worker := queue.NewWorker(env.queueSvc, core.WorkerConfig{
		RetryDelay:  time.Minute,
		MaxAttempts: 3,
	}, testutil.Logger{})
	binding.RegisterHandlers(worker, env.engine, testutil.Logger{})
	return env, worker
}

func schedule(t *testing.T, env *engineEnv, kind queue.Kind, optionID int, payload interface{}) queue.Job {
	job, err := env.queueSvc.Schedule(context.Background(), kind, optionID, time.Now().Add(-time.Second), payload)
	require.NoError(t, err)
	return job
}

func Test_OpenSurveyHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("opens the survey", func(t *testing.T) {
		env, worker := newWorkerEnv(t)
		schedule(t, env, queue.KindOpenSurvey, 42, binding.SurveyTaskPayload{SurveyID: 9, OptionID: 42})

		require.NoError(t, worker.RunOnce(ctx))
		assert.Equal(t, []int{9}, env.client.OpenedSurveys)

		jobs, err := env.queueSvc.Pending(ctx, 42)
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})

	t.Run("remote failure is retried", func(t *testing.T) {
		env, worker := newWorkerEnv(t)
		env.client.FailOps["OpenSurvey"] = errors.New("unreachable")
		schedule(t, env, queue.KindOpenSurvey, 42, binding.SurveyTaskPayload{SurveyID: 9, OptionID: 42})

		require.NoError(t, worker.RunOnce(ctx))

		jobs, err := env.queueSvc.Pending(ctx, 42)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, 1, jobs[0].Attempts)
		assert.Equal(t, queue.StatusPending, jobs[0].Status)
		assert.True(t, jobs[0].RunAt.After(time.Now()))
		assert.Contains(t, jobs[0].LastError.String, "unreachable")
	})

	t.Run("missing payload fails permanently", func(t *testing.T) {
		env, worker := newWorkerEnv(t)
		schedule(t, env, queue.KindOpenSurvey, 42, nil)

		require.NoError(t, worker.RunOnce(ctx))

		jobs, err := env.queueSvc.Pending(ctx, 42)
		require.NoError(t, err)
		assert.Empty(t, jobs) // failed, not retried
		assert.Empty(t, env.client.OpenedSurveys)
	})
}

func Test_CloseSurveyHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("closes for good and sends the report", func(t *testing.T) {
		env, worker := newWorkerEnv(t)
		schedule(t, env, queue.KindCloseSurvey, 42, binding.SurveyTaskPayload{SurveyID: 9, OptionID: 42})

		require.NoError(t, worker.RunOnce(ctx))
		assert.Equal(t, []int{9}, env.client.ClosedFinal)
	})

	t.Run("remote refusal fails permanently", func(t *testing.T) {
		env, worker := newWorkerEnv(t)
		env.client.FailOps["CloseSurvey"] = errors.New("already archived")
		schedule(t, env, queue.KindCloseSurvey, 42, binding.SurveyTaskPayload{SurveyID: 9, OptionID: 42})

		require.NoError(t, worker.RunOnce(ctx))

		// no retry: the failed close must surface instead of looping
		jobs, err := env.queueSvc.Pending(ctx, 42)
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})
}

func Test_ReconcileHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("valid payload reaches the engine", func(t *testing.T) {
		env, worker := newWorkerEnv(t)
		b := env.createBinding(t, binding.Binding{OptionID: 42, Trainers: []int{1}})
		schedule(t, env, queue.KindReconcile, 42, firstSyncPayload(b.ID, 42, []int{1}))

		require.NoError(t, worker.RunOnce(ctx))
		assert.Contains(t, env.client.Calls, "InsertCourse[urise_42]")
	})

	t.Run("missing payload fails permanently", func(t *testing.T) {
		env, worker := newWorkerEnv(t)
		schedule(t, env, queue.KindReconcile, 42, nil)

		require.NoError(t, worker.RunOnce(ctx))
		require.NoError(t, worker.RunOnce(ctx))

		jobs, err := env.queueSvc.Pending(ctx, 42)
		require.NoError(t, err)
		assert.Empty(t, jobs)
		assert.Empty(t, env.client.Calls)
	})

	t.Run("payload missing a required key is dropped", func(t *testing.T) {
		env, worker := newWorkerEnv(t)
		// structurally valid JSON, but not a reconcile snapshot
		schedule(t, env, queue.KindReconcile, 42, map[string]interface{}{"data": map[string]interface{}{}})

		require.NoError(t, worker.RunOnce(ctx))

		jobs, err := env.queueSvc.Pending(ctx, 42)
		require.NoError(t, err)
		assert.Empty(t, jobs)
		assert.Empty(t, env.client.Calls)
	})

	t.Run("remote failure is retried", func(t *testing.T) {
		env, worker := newWorkerEnv(t)
		b := env.createBinding(t, binding.Binding{OptionID: 42, Trainers: []int{1}})
		env.client.FailOps["InsertCourse"] = errors.New("unreachable")
		schedule(t, env, queue.KindReconcile, 42, firstSyncPayload(b.ID, 42, []int{1}))

		require.NoError(t, worker.RunOnce(ctx))

		jobs, err := env.queueSvc.Pending(ctx, 42)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, 1, jobs[0].Attempts)
	})
}
