package binding

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/wunderbyte/evasync/core"
	"github.com/wunderbyte/evasync/core/evasys"
	"github.com/wunderbyte/evasync/core/queue"
	"github.com/wunderbyte/evasync/core/refdata"
)

// remote course type for in-service trainings
const courseType = 5

// Engine reconciles local binding state with the remote survey system.
// It decides, from a changeset versus what is already synced, whether to
// create, update or delete the remote course/survey pair, and persists the
// resulting external identifiers.
//
// Every remote failure aborts the remaining steps and surfaces the error to
// the caller (fail closed); nothing is guessed from an absent result.
type Engine struct {
	repo   Repository
	dir    InstructorDirectory
	client evasys.Client
	sched  queue.Scheduler
	conf   core.EvasysConfig
	logger core.Logger
	events EventSink
}

func NewEngine(
	repo Repository,
	dir InstructorDirectory,
	client evasys.Client,
	sched queue.Scheduler,
	conf core.EvasysConfig,
	logger core.Logger,
	events EventSink,
) *Engine {
	if events == nil {
		events = nopSink{}
	}
	return &Engine{
		repo:   repo,
		dir:    dir,
		client: client,
		sched:  sched,
		conf:   conf,
		logger: logger,
		events: events,
	}
}

// Reconcile drives the binding through the required remote transitions for
// the given job payload. A payload without teachers is a deliberate no-op so
// reschedule attempts don't pile up.
func (e *Engine) Reconcile(ctx context.Context, p ReconcilePayload) error {
	if len(p.Data.Teachers) == 0 {
		e.logger.Info(fmt.Sprintf("sync: option %d: skipping reconcile, no teachers assigned", p.NewOption.ID))
		return nil
	}

	// a confirmed delete wins over everything else; deleteBinding skips the
	// remote steps for ids that were never assigned, so this also clears
	// rows whose first sync never completed
	if p.Data.ConfirmDelete {
		return e.deleteBinding(ctx, p)
	}

	// first sync: no remote course yet and a questionnaire was chosen
	if p.Data.CourseIDExternal == "" {
		if p.Data.FormKey == "" {
			return nil
		}
		course, err := e.createCourse(ctx, p)
		if err != nil {
			return errors.Wrap(err, "creating remote course")
		}
		survey, err := e.createSurvey(ctx, course, p)
		if err != nil {
			return errors.Wrap(err, "creating remote survey")
		}
		return e.scheduleWindow(ctx, p.NewOption.ID, survey.SurveyID, p.Data.StartTime, p.Data.EndTime)
	}

	replaceSurvey := p.TeacherChanges || p.NameChanges ||
		Changeset{Fields: p.RelevantChanges}.HasAny(p.RelevantKeysSurvey)
	// only recipient-relevant fields changed: the course record needs the new
	// co-recipients but the survey stays untouched
	courseOnly := !replaceSurvey && Changeset{Fields: p.RelevantChanges}.HasAny(p.RelevantKeysCourse)

	if replaceSurvey {
		survey, err := e.replaceSurvey(ctx, p)
		if err != nil {
			return errors.Wrap(err, "replacing remote survey")
		}
		return e.scheduleWindow(ctx, p.NewOption.ID, survey.SurveyID, p.Data.StartTime, p.Data.EndTime)
	}

	if courseOnly {
		data, err := e.aggregateCourseData(ctx, p, p.Data.CourseIDInternal)
		if err != nil {
			return err
		}
		if _, err = e.client.UpdateCourse(ctx, data); err != nil {
			return errors.Wrap(err, "updating remote course")
		}
	}

	// only the evaluation window moved: re-queue the open/close jobs against
	// the existing survey
	if p.ChangeTasks && p.Data.SurveyID != 0 {
		return e.scheduleWindow(ctx, p.NewOption.ID, p.Data.SurveyID, p.Data.StartTime, p.Data.EndTime)
	}
	return nil
}

// OpenSurvey opens the remote survey for data collection. Opening an
// already-open survey is a remote no-op, so retries are safe.
func (e *Engine) OpenSurvey(ctx context.Context, surveyID int) error {
	return e.client.OpenSurvey(ctx, surveyID)
}

// CloseSurveyFinal closes data collection for good and mails the report to
// the instructor.
func (e *Engine) CloseSurveyFinal(ctx context.Context, surveyID int) error {
	return e.client.CloseSurvey(ctx, surveyID, true)
}

func (e *Engine) createCourse(ctx context.Context, p ReconcilePayload) (evasys.CourseResponse, error) {
	data, err := e.aggregateCourseData(ctx, p, 0)
	if err != nil {
		return evasys.CourseResponse{}, err
	}
	course, err := e.client.InsertCourse(ctx, data)
	if err != nil {
		return evasys.CourseResponse{}, err
	}
	if err = e.repo.SetCourseIDs(ctx, p.Data.BindingID, course.CourseID, course.ExternalID); err != nil {
		return evasys.CourseResponse{}, errors.Wrap(err, "persisting course ids")
	}
	return course, nil
}

// createSurvey inserts the survey for an existing course, closes it
// temporarily (a survey must never be left open right after creation),
// resolves QR code and direct link, and emits the SurveyCreated event.
func (e *Engine) createSurvey(ctx context.Context, course evasys.CourseResponse, p ReconcilePayload) (evasys.SurveyResponse, error) {
	formID, err := refdata.KeyID(p.Data.FormKey)
	if err != nil {
		return evasys.SurveyResponse{}, errors.Wrap(err, "decoding questionnaire key")
	}

	survey, err := e.client.InsertSurvey(ctx, evasys.SurveyData{
		UserID:   course.UserID,
		CourseID: course.CourseID,
		FormID:   formID,
		PeriodID: course.PeriodID,
		Type:     "c",
	})
	if err != nil {
		return evasys.SurveyResponse{}, err
	}
	if err = e.repo.SetSurveyID(ctx, p.Data.BindingID, survey.SurveyID); err != nil {
		return evasys.SurveyResponse{}, errors.Wrap(err, "persisting survey id")
	}

	if err = e.client.CloseSurvey(ctx, survey.SurveyID, false); err != nil {
		e.logger.Warn(fmt.Sprintf("sync: option %d: temporary close of survey %d failed: %v", p.NewOption.ID, survey.SurveyID, err))
	}

	evt := SurveyCreatedEvent{
		OptionID:           p.NewOption.ID,
		BindingID:          p.Data.BindingID,
		SurveyID:           survey.SurveyID,
		OptionTitle:        p.NewOption.Title,
		Organizers:         p.Recipients,
		NotifyParticipants: p.Data.Notify,
	}
	if qr, qErr := e.client.GetQRCode(ctx, survey.SurveyID); qErr != nil {
		e.logger.Warn(fmt.Sprintf("sync: option %d: fetching QR code: %v", p.NewOption.ID, qErr))
	} else if qr != "" {
		if err = e.repo.SetQRURL(ctx, p.Data.BindingID, qr); err != nil {
			return evasys.SurveyResponse{}, errors.Wrap(err, "persisting QR url")
		}
		evt.QRURL = qr
	}
	if link, uErr := e.client.GetSurveyURL(ctx, survey.SurveyID); uErr != nil {
		e.logger.Warn(fmt.Sprintf("sync: option %d: fetching survey url: %v", p.NewOption.ID, uErr))
	} else if link != "" {
		if err = e.repo.SetSurveyURL(ctx, p.Data.BindingID, link); err != nil {
			return evasys.SurveyResponse{}, errors.Wrap(err, "persisting survey url")
		}
		evt.SurveyURL = link
	}

	e.events.SurveyCreated(ctx, evt)
	return survey, nil
}

// replaceSurvey updates the remote course, deletes the old survey and
// inserts a fresh one. If the old survey cannot be deleted the replacement
// is aborted so two live surveys can never coexist.
func (e *Engine) replaceSurvey(ctx context.Context, p ReconcilePayload) (evasys.SurveyResponse, error) {
	data, err := e.aggregateCourseData(ctx, p, p.Data.CourseIDInternal)
	if err != nil {
		return evasys.SurveyResponse{}, err
	}
	course, err := e.client.UpdateCourse(ctx, data)
	if err != nil {
		return evasys.SurveyResponse{}, err
	}
	if p.Data.SurveyID != 0 {
		if err = e.client.DeleteSurvey(ctx, p.Data.SurveyID); err != nil {
			return evasys.SurveyResponse{}, err
		}
	}
	return e.createSurvey(ctx, course, p)
}

// deleteBinding removes the remote survey, then the remote course, then the
// local row, in that strict order. A failure at any remote step leaves the
// binding untouched so the deletion stays retryable.
func (e *Engine) deleteBinding(ctx context.Context, p ReconcilePayload) error {
	if p.Data.SurveyID != 0 {
		if err := e.client.DeleteSurvey(ctx, p.Data.SurveyID); err != nil {
			return errors.Wrap(err, "deleting remote survey")
		}
	}
	if p.Data.CourseIDInternal != 0 {
		if err := e.client.DeleteCourse(ctx, p.Data.CourseIDInternal); err != nil {
			return errors.Wrap(err, "deleting remote course")
		}
	}
	return e.repo.DeleteBinding(ctx, p.Data.BindingID)
}

func (e *Engine) scheduleWindow(ctx context.Context, optionID, surveyID int, start, end int64) error {
	payload := SurveyTaskPayload{SurveyID: surveyID, OptionID: optionID}
	if _, err := e.sched.Schedule(ctx, queue.KindOpenSurvey, optionID, time.Unix(start, 0).UTC(), payload); err != nil {
		return errors.Wrap(err, "scheduling survey open")
	}
	if _, err := e.sched.Schedule(ctx, queue.KindCloseSurvey, optionID, time.Unix(end, 0).UTC(), payload); err != nil {
		return errors.Wrap(err, "scheduling survey close")
	}
	return nil
}

// aggregateCourseData assembles the remote course payload: every teacher and
// recipient gets a remote user identity (created lazily), the
// alphabetically-first teacher by last-then-first name becomes the primary
// instructor, everyone else is attached as secondary instructor, and the
// category plus configured option custom fields are embedded as JSON.
func (e *Engine) aggregateCourseData(ctx context.Context, p ReconcilePayload, courseID int) (evasys.CourseData, error) {
	subunitID, subunitName, err := decodeSubunit(e.conf.Subunit)
	if err != nil {
		return evasys.CourseData{}, err
	}

	teachers, err := e.resolveInstructors(ctx, p.Data.Teachers, subunitID, subunitName)
	if err != nil {
		return evasys.CourseData{}, err
	}
	recipients, err := e.resolveInstructors(ctx, p.Recipients, subunitID, subunitName)
	if err != nil {
		return evasys.CourseData{}, err
	}

	SortInstructors(teachers)
	primary, rest := teachers[0], teachers[1:]

	customJSON, err := e.courseCustomFields(p, rest)
	if err != nil {
		return evasys.CourseData{}, err
	}

	periodKey := p.Data.PeriodKey
	if periodKey == "" {
		periodKey = e.conf.DefaultPeriod
	}
	periodID, err := refdata.KeyID(periodKey)
	if err != nil {
		return evasys.CourseData{}, errors.Wrap(err, "decoding period key")
	}

	secondary := make([]evasys.Instructor, 0, len(rest)+len(recipients))
	for _, instr := range append(append([]Instructor{}, rest...), recipients...) {
		secondary = append(secondary, evasys.Instructor{
			ID:         instr.RemoteID(),
			ExternalID: fmt.Sprintf("evasys_%d", instr.ID),
			FirstName:  instr.FirstName,
			LastName:   instr.LastName,
			Address:    instr.Address,
			Email:      instr.Email,
			SubunitID:  subunitID,
			Phone:      instr.Phone,
		})
	}

	externalID := fmt.Sprintf("urise_%d", p.NewOption.ID)
	return evasys.CourseData{
		CourseID:             courseID,
		ProgramOfStudy:       subunitName,
		Title:                p.NewOption.Title,
		CourseType:           courseType,
		PublicID:             externalID,
		ExternalID:           externalID,
		CustomFieldsJSON:     customJSON,
		InstructorID:         primary.RemoteID(),
		SubunitID:            subunitID,
		PeriodID:             periodID,
		SecondaryInstructors: secondary,
	}, nil
}

// resolveInstructors loads the given users and lazily registers any of them
// that have no remote identity yet.
func (e *Engine) resolveInstructors(ctx context.Context, ids []int, subunitID int, subunitName string) ([]Instructor, error) {
	out := make([]Instructor, 0, len(ids))
	for _, id := range ids {
		instr, err := e.dir.GetInstructor(ctx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "loading instructor %d", id)
		}
		if !instr.Registered() {
			resp, err := e.client.InsertUser(ctx, evasys.UserData{
				ExternalID:  fmt.Sprintf("evasys_%d", instr.ID),
				FirstName:   instr.FirstName,
				LastName:    instr.LastName,
				UnitName:    subunitName,
				Address:     instr.Address,
				Email:       instr.Email,
				SubunitID:   subunitID,
				PhoneNumber: instr.Phone,
			})
			if err != nil {
				return nil, errors.Wrapf(err, "registering instructor %d remotely", id)
			}
			instr.RemoteRef = resp.ExternalID + "," + strconv.Itoa(resp.ID)
			if err = e.dir.SetRemoteRef(ctx, instr.ID, instr.RemoteRef); err != nil {
				return nil, errors.Wrapf(err, "persisting remote ref of instructor %d", id)
			}
		}
		out = append(out, instr)
	}
	return out, nil
}

// courseCustomFields builds the custom-field JSON: slot 1/2 carry the host
// category, 3/4 the two configured option custom fields, 5 optionally the
// secondary teacher names.
func (e *Engine) courseCustomFields(p ReconcilePayload, secondaryTeachers []Instructor) (string, error) {
	cf := func(name string) string {
		if name == "" {
			return ""
		}
		return strings.Join(p.Data.CustomFields[name], ",")
	}

	var names string
	if e.conf.SecondaryNamesField == "fullname" && len(secondaryTeachers) > 0 {
		parts := make([]string, 0, len(secondaryTeachers))
		for _, t := range secondaryTeachers {
			parts = append(parts, t.FirstName+" "+t.LastName)
		}
		names = ", " + strings.Join(parts, ",")
	}

	raw, err := json.Marshal(map[string]interface{}{
		"1": p.CategoryID,
		"2": p.Data.CategoryName,
		"3": cf(e.conf.CustomField1),
		"4": cf(e.conf.CustomField2),
		"5": names,
	})
	if err != nil {
		return "", errors.Wrap(err, "encoding course custom fields")
	}
	return string(raw), nil
}

func decodeSubunit(key string) (int, string, error) {
	id, name, err := refdata.DecodeKey(key)
	if err != nil {
		return 0, "", errors.Wrap(err, "subunit not configured")
	}
	return id, name, nil
}
