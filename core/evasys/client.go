package evasys

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by every call when the client could not be
	// constructed (bad WSDL, unreachable endpoint). Calls fail fast instead
	// of retrying the handshake.
	ErrNotConnected = errors.New("evasys: not connected")
)

// RemoteError wraps any transport failure or fault response from the remote
// system. It is the only error kind a Client implementation may return for
// remote conditions; transport exceptions never cross this boundary.
type RemoteError struct {
	Op    string // remote operation name, e.g. "InsertCourse"
	Cause error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("evasys: %s failed: %v", e.Op, e.Cause)
}

func (e *RemoteError) Unwrap() error { return e.Cause }

func NewRemoteError(op string, cause error) *RemoteError {
	return &RemoteError{Op: op, Cause: cause}
}

// IsRemoteError reports whether err originates from the remote boundary.
func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// Client isolates every call to the external evaluation system behind typed
// operations. Authentication is attached per call; no session state is
// assumed. All calls are single remote round trips and touch no local state.
type Client interface {
	FetchSubunits(ctx context.Context) ([]Subunit, error)
	FetchPeriods(ctx context.Context) ([]Period, error)
	GetPeriod(ctx context.Context, periodID int) (Period, error)
	FetchForms(ctx context.Context, subunitID int) ([]SimpleForm, error)
	GetForm(ctx context.Context, formID int) (Form, error)

	InsertUser(ctx context.Context, user UserData) (UserResponse, error)
	InsertCourse(ctx context.Context, course CourseData) (CourseResponse, error)
	UpdateCourse(ctx context.Context, course CourseData) (CourseResponse, error)
	DeleteCourse(ctx context.Context, internalCourseID int) error

	InsertSurvey(ctx context.Context, survey SurveyData) (SurveyResponse, error)
	DeleteSurvey(ctx context.Context, surveyID int) error
	OpenSurvey(ctx context.Context, surveyID int) error
	// CloseSurvey closes data collection. sendReport=true is the final close
	// that mails the report to the instructor; false is the temporary close
	// applied right after creation.
	CloseSurvey(ctx context.Context, surveyID int, sendReport bool) error

	GetQRCode(ctx context.Context, surveyID int) (string, error)
	GetSurveyURL(ctx context.Context, surveyID int) (string, error)
}
