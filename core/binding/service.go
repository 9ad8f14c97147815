package binding

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wunderbyte/evasync/core"
	"github.com/wunderbyte/evasync/core/queue"
)

var (
	// errors
	ErrNotFound           = errors.New("evaluation binding not found")
	ErrInstructorNotFound = errors.New("instructor not found")
	ErrOptionExists       = errors.New("an evaluation binding for this option already exists")

	errConfirmDelete = "clearing the questionnaire deletes the remote survey; confirm the deletion first"
	errPastStart     = "the evaluation start time must be in the future"
)

type (
	Repository interface {
		CreateBinding(ctx context.Context, b Binding) (Binding, error)
		GetBinding(ctx context.Context, id int) (Binding, error)
		GetBindingByOption(ctx context.Context, optionID int) (Binding, error)
		QueryAllBindings(ctx context.Context) ([]Binding, error)
		UpdateBinding(ctx context.Context, b Binding) (Binding, error)
		// partial updates issued by the sync engine as remote ids arrive
		SetCourseIDs(ctx context.Context, id, internalID int, externalID string) error
		SetSurveyID(ctx context.Context, id, surveyID int) error
		SetQRURL(ctx context.Context, id int, url string) error
		SetSurveyURL(ctx context.Context, id int, url string) error
		DeleteBinding(ctx context.Context, id int) error
	}

	// InstructorDirectory resolves host users and keeps their remote
	// identity ref ("<externalid>,<numericid>") once registered.
	InstructorDirectory interface {
		GetInstructor(ctx context.Context, id int) (Instructor, error)
		SetRemoteRef(ctx context.Context, id int, ref string) error
		// QueryRecipients lists users eligible as additional report
		// recipients.
		QueryRecipients(ctx context.Context) ([]Instructor, error)
	}

	Service struct {
		repo     Repository
		dir      InstructorDirectory
		sched    queue.Scheduler
		validate *validator.Validate
		logger   core.Logger
	}
)

func NewService(repo Repository, dir InstructorDirectory, sched queue.Scheduler, validate *validator.Validate, logger core.Logger) *Service {
	return &Service{
		repo:     repo,
		dir:      dir,
		sched:    sched,
		validate: validate,
		logger:   logger,
	}
}

func (svc *Service) GetByOption(ctx context.Context, optionID int) (Binding, error) {
	return svc.repo.GetBindingByOption(ctx, optionID)
}

func (svc *Service) QueryAll(ctx context.Context) ([]Binding, error) {
	return svc.repo.QueryAllBindings(ctx)
}

func (svc *Service) Recipients(ctx context.Context) ([]Instructor, error) {
	return svc.dir.QueryRecipients(ctx)
}

// SaveForm validates and persists submitted evaluation form data for the
// option, then queues a reconcile job carrying the diff against the
// previously stored state. Re-submitting replaces any still-pending
// reconcile job for the option.
func (svc *Service) SaveForm(ctx context.Context, optionID int, fd FormData, modifiedBy int) (Binding, error) {
	if err := svc.validate.StructCtx(ctx, fd); err != nil {
		return Binding{}, err
	}

	existing, err := svc.repo.GetBindingByOption(ctx, optionID)
	if err != nil && err != ErrNotFound {
		return Binding{}, err
	}

	// clearing the questionnaire requires an explicit delete confirmation
	if fd.FormKey == "" {
		if existing.ID == 0 {
			return Binding{}, nil // nothing configured, nothing to do
		}
		if !fd.ConfirmDelete {
			return Binding{}, core.NewValidationError(nil, core.FieldError{Field: "confirm_delete", Error: errConfirmDelete})
		}
		if err = svc.queueReconcile(ctx, optionID, existing, fd, existing.Diff(fd)); err != nil {
			return Binding{}, err
		}
		return existing, nil
	}

	start, end := fd.Window()
	if fd.TimeMode == TimeModeFixed && !start.Equal(existing.StartTime) && start.Before(time.Now()) {
		return Binding{}, core.NewValidationError(nil, core.FieldError{Field: "start_time", Error: errPastStart})
	}

	now := time.Now().UTC()
	b := Binding{
		ID:                  existing.ID,
		OptionID:            optionID,
		FormKey:             fd.FormKey,
		TimeMode:            fd.TimeMode,
		StartTime:           start,
		EndTime:             end,
		DurationBeforeStart: fd.DurationBeforeStart,
		DurationAfterEnd:    fd.DurationAfterEnd,
		Trainers:            fd.Teachers,
		Organizers:          fd.Recipients,
		NotifyParticipants:  fd.NotifyParticipants,
		PeriodKey:           fd.PeriodKey,
		SurveyID:            existing.SurveyID,
		CourseIDInternal:    existing.CourseIDInternal,
		CourseIDExternal:    existing.CourseIDExternal,
		QRURL:               existing.QRURL,
		SurveyURL:           existing.SurveyURL,
		CreatedAt:           existing.CreatedAt,
		UpdatedAt:           now,
		ModifiedBy:          modifiedBy,
	}

	if existing.ID == 0 {
		b.CreatedAt = now
		if b, err = svc.repo.CreateBinding(ctx, b); err != nil {
			return Binding{}, err
		}
	} else if b, err = svc.repo.UpdateBinding(ctx, b); err != nil {
		return Binding{}, err
	}

	changes := existing.Diff(fd)
	if err = svc.queueReconcile(ctx, optionID, b, fd, changes); err != nil {
		return Binding{}, err
	}
	return b, nil
}

func (svc *Service) queueReconcile(ctx context.Context, optionID int, b Binding, fd FormData, changes Changeset) error {
	payload := ReconcilePayload{
		TeacherChanges:     changes.Teachers,
		NameChanges:        changes.Name,
		RelevantChanges:    changes.Fields,
		RelevantKeysSurvey: RelevantKeysSurvey,
		RelevantKeysCourse: RelevantKeysCourse,
		Recipients:         fd.Recipients,
		Data: ReconcileData{
			BindingID:        b.ID,
			FormKey:          fd.FormKey,
			SurveyID:         b.SurveyID.Int,
			CourseIDInternal: b.CourseIDInternal.Int,
			CourseIDExternal: b.CourseIDExternal.String,
			Teachers:         fd.Teachers,
			StartTime:        b.StartTime.Unix(),
			EndTime:          b.EndTime.Unix(),
			ConfirmDelete:    fd.ConfirmDelete,
			PeriodKey:        fd.PeriodKey,
			CategoryName:     fd.CategoryName,
			CustomFields:     fd.CustomFields,
			Notify:           fd.NotifyParticipants,
		},
		NewOption:   OptionData{ID: optionID, Title: fd.Title},
		CategoryID:  fd.CategoryID,
		ChangeTasks: changes.Has(FieldStartTime) || changes.Has(FieldEndTime),
	}
	if _, err := svc.sched.Schedule(ctx, queue.KindReconcile, optionID, time.Now().UTC(), payload); err != nil {
		return err
	}
	return nil
}
