package binding

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
)

// TimeMode selects how the evaluation window is computed.
type TimeMode int

const (
	// TimeModeDuration derives the window from the option's course end time
	// plus fixed offsets.
	TimeModeDuration TimeMode = 0
	// TimeModeFixed uses explicit timestamps.
	TimeModeFixed TimeMode = 1
)

// Tracked evaluation fields; these names appear in changesets and job
// payloads.
const (
	FieldForm                = "form"
	FieldStartTime           = "starttime"
	FieldEndTime             = "endtime"
	FieldRecipients          = "recipients"
	FieldPeriod              = "period"
	FieldNotifyParticipants  = "notifyparticipants"
	FieldTimeMode            = "timemode"
	FieldDurationBeforeStart = "durationbeforestart"
	FieldDurationAfterEnd    = "durationafterend"
)

var (
	// RelevantKeysSurvey are the fields whose change forces a survey replace.
	RelevantKeysSurvey = []string{FieldForm, FieldPeriod}
	// RelevantKeysCourse are the fields whose change alone only needs a
	// course update.
	RelevantKeysCourse = []string{FieldRecipients}
)

// Binding is the durable record tracking sync state per booking option.
// Invariant: SurveyID is set only while CourseIDExternal is set; a survey
// cannot exist without its owning course.
type Binding struct {
	ID       int `json:"id"`
	OptionID int `json:"option_id"`

	// FormKey holds the chosen questionnaire as an encoded
	// "<id>-<base64(title)>" reference key.
	FormKey string `json:"form_key"`

	TimeMode            TimeMode  `json:"time_mode"`
	StartTime           time.Time `json:"start_time"` // UTC
	EndTime             time.Time `json:"end_time"`   // UTC
	DurationBeforeStart int       `json:"duration_before_start"` // seconds, negative
	DurationAfterEnd    int       `json:"duration_after_end"`    // seconds, positive

	Trainers           []int  `json:"trainers"`
	Organizers         []int  `json:"organizers"`
	NotifyParticipants bool   `json:"notify_participants"`
	PeriodKey          string `json:"period_key"`

	SurveyID         null.Int    `json:"survey_id"`
	CourseIDInternal null.Int    `json:"course_id_internal"`
	CourseIDExternal null.String `json:"course_id_external"`
	QRURL            null.String `json:"qr_url"`
	SurveyURL        null.String `json:"survey_url"`

	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
	ModifiedBy int       `json:"modified_by"`
}

// HasCourse reports whether a remote course exists for this binding.
func (b Binding) HasCourse() bool { return b.CourseIDExternal.Valid && b.CourseIDExternal.String != "" }

// HasSurvey reports whether a remote survey exists for this binding.
func (b Binding) HasSurvey() bool { return b.SurveyID.Valid && b.SurveyID.Int != 0 }

// Instructor is a host user that can act as a course instructor or report
// recipient. RemoteRef keeps the remote identity as
// "<externalid>,<numericid>" once the user has been registered remotely.
type Instructor struct {
	ID        int    `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	RemoteRef string `json:"remote_ref"`
}

// Registered reports whether the instructor already has a remote identity.
func (i Instructor) Registered() bool { return i.RemoteRef != "" }

// RemoteID extracts the remote numeric user id from RemoteRef (the last
// comma-separated part).
func (i Instructor) RemoteID() int {
	parts := strings.Split(i.RemoteRef, ",")
	id, _ := strconv.Atoi(parts[len(parts)-1])
	return id
}

// SortInstructors orders instructors by last name then first name,
// ascending. The first entry after sorting becomes the primary instructor
// of the remote course.
func SortInstructors(list []Instructor) {
	sort.SliceStable(list, func(i, j int) bool {
		if c := strings.Compare(list[i].LastName, list[j].LastName); c != 0 {
			return c < 0
		}
		return strings.Compare(list[i].FirstName, list[j].FirstName) < 0
	})
}

// FormData is the evaluation section of the option form as submitted by the
// host, plus the option context the engine needs.
type FormData struct {
	FormKey       string `json:"form_key" validate:"omitempty,enckey"`
	ConfirmDelete bool   `json:"confirm_delete"`

	TimeMode            TimeMode `json:"time_mode"`
	DurationBeforeStart int      `json:"duration_before_start"`
	DurationAfterEnd    int      `json:"duration_after_end"`
	StartTime           int64    `json:"start_time"` // unix, fixed mode only
	EndTime             int64    `json:"end_time"`   // unix, fixed mode only

	Recipients         []int  `json:"other_report_recipients"`
	PeriodKey          string `json:"period_key" validate:"omitempty,enckey"`
	NotifyParticipants bool   `json:"notify_participants"`

	// option context (owned by the host booking system)
	Teachers      []int               `json:"teachers"`
	Title         string              `json:"title"`
	TitleChanged  bool                `json:"title_changed"`
	CourseEndTime int64               `json:"course_end_time"` // unix
	CategoryID    int                 `json:"category_id"`
	CategoryName  string              `json:"category_name"`
	CustomFields  map[string][]string `json:"custom_fields"`
}

// Window computes the evaluation start/end per the chosen time mode.
func (fd FormData) Window() (start, end time.Time) {
	if fd.TimeMode == TimeModeDuration {
		courseEnd := time.Unix(fd.CourseEndTime, 0).UTC()
		return courseEnd.Add(time.Duration(fd.DurationBeforeStart) * time.Second),
			courseEnd.Add(time.Duration(fd.DurationAfterEnd) * time.Second)
	}
	return time.Unix(fd.StartTime, 0).UTC(), time.Unix(fd.EndTime, 0).UTC()
}

// Changeset records which tracked fields differ between the stored binding
// and newly submitted form data.
type Changeset struct {
	Teachers bool     `json:"teachers"`
	Name     bool     `json:"name"`
	Fields   []string `json:"fields"`
}

func (cs Changeset) Empty() bool {
	return !cs.Teachers && !cs.Name && len(cs.Fields) == 0
}

func (cs Changeset) Has(field string) bool {
	for _, f := range cs.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// HasAny reports whether any of the given fields changed.
func (cs Changeset) HasAny(fields []string) bool {
	for _, f := range fields {
		if cs.Has(f) {
			return true
		}
	}
	return false
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]int(nil), a...)
	bs := append([]int(nil), b...)
	sort.Ints(as)
	sort.Ints(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// Diff compares submitted form data against the stored binding.
func (b Binding) Diff(fd FormData) Changeset {
	cs := Changeset{
		Teachers: !intsEqual(b.Trainers, fd.Teachers),
		Name:     fd.TitleChanged,
	}
	start, end := fd.Window()
	add := func(field string, changed bool) {
		if changed {
			cs.Fields = append(cs.Fields, field)
		}
	}
	add(FieldForm, b.FormKey != fd.FormKey)
	add(FieldTimeMode, b.TimeMode != fd.TimeMode)
	add(FieldStartTime, !b.StartTime.Equal(start))
	add(FieldEndTime, !b.EndTime.Equal(end))
	add(FieldDurationBeforeStart, b.DurationBeforeStart != fd.DurationBeforeStart)
	add(FieldDurationAfterEnd, b.DurationAfterEnd != fd.DurationAfterEnd)
	add(FieldRecipients, !intsEqual(b.Organizers, fd.Recipients))
	add(FieldPeriod, b.PeriodKey != fd.PeriodKey)
	add(FieldNotifyParticipants, b.NotifyParticipants != fd.NotifyParticipants)
	return cs
}
