package binding

// Async job payloads. Shapes stay close to the persisted record so a job can
// be replayed against the remote system without re-reading form state.

// OptionData is the slice of the host booking option the engine needs.
type OptionData struct {
	ID    int    `json:"id"`
	Title string `json:"text"`
}

// ReconcileData is the evaluation state snapshot a reconcile job operates on.
type ReconcileData struct {
	BindingID        int                 `json:"bookingid"`
	FormKey          string              `json:"form"`
	SurveyID         int                 `json:"surveyid"`
	CourseIDInternal int                 `json:"courseidinternal"`
	CourseIDExternal string              `json:"courseidexternal"`
	Teachers         []int               `json:"teachers"`
	StartTime        int64               `json:"starttime"`
	EndTime          int64               `json:"endtime"`
	ConfirmDelete    bool                `json:"confirmdelete"`
	PeriodKey        string              `json:"periods"`
	CategoryName     string              `json:"categoryname"`
	CustomFields     map[string][]string `json:"customfields"`
	Notify           bool                `json:"notifyparticipants"`
}

// ReconcilePayload is the payload of a reconcile job.
type ReconcilePayload struct {
	TeacherChanges     bool          `json:"teacherchanges"`
	NameChanges        bool          `json:"namechanges"`
	RelevantChanges    []string      `json:"relevantchanges"`
	RelevantKeysSurvey []string      `json:"relevantkeyssurvey"`
	RelevantKeysCourse []string      `json:"relevantkeyscourse"`
	Recipients         []int         `json:"recipients"`
	Data               ReconcileData `json:"data"`
	NewOption          OptionData    `json:"newoption"`
	CategoryID         int           `json:"courseid"`
	ChangeTasks        bool          `json:"changetasks"`
}

// requiredReconcileKeys must all be present in a reconcile job payload;
// a payload missing one is logged and skipped (data problem, not an infra
// bug).
var requiredReconcileKeys = []string{
	"teacherchanges",
	"namechanges",
	"relevantchanges",
	"relevantkeyssurvey",
	"relevantkeyscourse",
	"recipients",
	"data",
	"courseid",
}

// SurveyTaskPayload is the payload of opensurvey/closesurvey jobs.
type SurveyTaskPayload struct {
	SurveyID int `json:"surveyid"`
	OptionID int `json:"optionid"`
}
