package binding_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wunderbyte/evasync/core"
	"github.com/wunderbyte/evasync/core/binding"
	"github.com/wunderbyte/evasync/core/queue"
	"github.com/wunderbyte/evasync/core/refdata"
	dummydb "github.com/wunderbyte/evasync/storage/database/dummy"
	testutil "github.com/wunderbyte/evasync/tests"
)

type svcEnv struct {
	svc      *binding.Service
	repo     binding.Repository
	queueSvc *queue.Service
}

func newSvcEnv(t *testing.T) *svcEnv {
	db, err := dummydb.Open()
	require.NoError(t, err)

	validate, _ := testutil.NewValidator()
	repo := dummydb.NewBindingRepository(db)
	queueSvc := queue.NewService(dummydb.NewJobRepository(db))
	svc := binding.NewService(repo, dummydb.NewInstructorRepository(db), queueSvc, validate, testutil.Logger{})
	return &svcEnv{svc: svc, repo: repo, queueSvc: queueSvc}
}

func validFormData() binding.FormData {
	return binding.FormData{
		FormKey:       refdata.EncodeKey(10, "Standard Course Evaluation"),
		PeriodKey:     refdata.EncodeKey(2, "Summer 2025"),
		Teachers:      []int{1},
		Title:         "Welding 101",
		CourseEndTime: time.Now().AddDate(0, 1, 0).Unix(),
	}
}

func Test_Service_SaveForm(t *testing.T) {
	ctx := context.Background()

	t.Run("create persists and queues a reconcile", func(t *testing.T) {
		env := newSvcEnv(t)
		fd := validFormData()

		b, err := env.svc.SaveForm(ctx, 42, fd, 55)
		require.NoError(t, err)
		assert.NotZero(t, b.ID)
		assert.Equal(t, fd.FormKey, b.FormKey)
		assert.Equal(t, 55, b.ModifiedBy)

		jobs, err := env.queueSvc.Pending(ctx, 42)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, queue.KindReconcile, jobs[0].Kind)

		var p binding.ReconcilePayload
		require.NoError(t, json.Unmarshal(jobs[0].Payload, &p))
		assert.Equal(t, b.ID, p.Data.BindingID)
		assert.Equal(t, []int{1}, p.Data.Teachers)
		assert.Equal(t, "Welding 101", p.NewOption.Title)
		// first save: no remote state yet
		assert.Empty(t, p.Data.CourseIDExternal)
	})

	t.Run("resubmit updates and replaces the pending job", func(t *testing.T) {
		env := newSvcEnv(t)
		fd := validFormData()

		b1, err := env.svc.SaveForm(ctx, 42, fd, 55)
		require.NoError(t, err)

		fd.Teachers = []int{1, 2}
		b2, err := env.svc.SaveForm(ctx, 42, fd, 56)
		require.NoError(t, err)
		assert.Equal(t, b1.ID, b2.ID)

		jobs, err := env.queueSvc.Pending(ctx, 42)
		require.NoError(t, err)
		require.Len(t, jobs, 1)

		var p binding.ReconcilePayload
		require.NoError(t, json.Unmarshal(jobs[0].Payload, &p))
		assert.True(t, p.TeacherChanges)
	})

	t.Run("malformed keys are rejected", func(t *testing.T) {
		env := newSvcEnv(t)
		fd := validFormData()
		fd.FormKey = "not-a-key"

		_, err := env.svc.SaveForm(ctx, 42, fd, 55)
		var vErrs validator.ValidationErrors
		require.ErrorAs(t, err, &vErrs)
	})

	t.Run("nothing configured and no form key is a no-op", func(t *testing.T) {
		env := newSvcEnv(t)

		b, err := env.svc.SaveForm(ctx, 42, binding.FormData{}, 55)
		require.NoError(t, err)
		assert.Zero(t, b.ID)

		jobs, err := env.queueSvc.Pending(ctx, 42)
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})

	t.Run("clearing the form needs confirmation", func(t *testing.T) {
		env := newSvcEnv(t)
		fd := validFormData()
		_, err := env.svc.SaveForm(ctx, 42, fd, 55)
		require.NoError(t, err)

		_, err = env.svc.SaveForm(ctx, 42, binding.FormData{}, 55)
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		require.Len(t, vErr.Fields, 1)
		assert.Equal(t, "confirm_delete", vErr.Fields[0].Field)
	})

	t.Run("confirmed clear queues the delete", func(t *testing.T) {
		env := newSvcEnv(t)
		fd := validFormData()
		b, err := env.svc.SaveForm(ctx, 42, fd, 55)
		require.NoError(t, err)

		_, err = env.svc.SaveForm(ctx, 42, binding.FormData{ConfirmDelete: true}, 55)
		require.NoError(t, err)

		jobs, err := env.queueSvc.Pending(ctx, 42)
		require.NoError(t, err)
		require.Len(t, jobs, 1)

		var p binding.ReconcilePayload
		require.NoError(t, json.Unmarshal(jobs[0].Payload, &p))
		assert.True(t, p.Data.ConfirmDelete)
		assert.Equal(t, b.ID, p.Data.BindingID)
	})

	t.Run("fixed start in the past is rejected", func(t *testing.T) {
		env := newSvcEnv(t)
		fd := validFormData()
		fd.TimeMode = binding.TimeModeFixed
		fd.StartTime = time.Now().Add(-time.Hour).Unix()
		fd.EndTime = time.Now().Add(time.Hour).Unix()

		_, err := env.svc.SaveForm(ctx, 42, fd, 55)
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		require.Len(t, vErr.Fields, 1)
		assert.Equal(t, "start_time", vErr.Fields[0].Field)
	})

	t.Run("unchanged fixed start is not re-validated", func(t *testing.T) {
		env := newSvcEnv(t)
		fd := validFormData()
		fd.TimeMode = binding.TimeModeFixed
		fd.StartTime = time.Now().Add(time.Minute).Unix()
		fd.EndTime = time.Now().Add(time.Hour).Unix()
		_, err := env.svc.SaveForm(ctx, 42, fd, 55)
		require.NoError(t, err)

		// re-submitting the same window later must not fail
		_, err = env.svc.SaveForm(ctx, 42, fd, 55)
		require.NoError(t, err)
	})
}

func Test_Service_GetByOption(t *testing.T) {
	env := newSvcEnv(t)
	ctx := context.Background()

	_, err := env.svc.GetByOption(ctx, 42)
	assert.Equal(t, binding.ErrNotFound, err)

	created, err := env.repo.CreateBinding(ctx, binding.Binding{OptionID: 42})
	require.NoError(t, err)

	got, err := env.svc.GetByOption(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}
