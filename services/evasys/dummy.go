package evasyssvc

import (
	"context"
	"fmt"
	"sync"

	"github.com/wunderbyte/evasync/core/evasys"
)

// DummyClient is an in-memory stand-in for the remote system. It hands out
// fixture data, assigns incrementing remote ids and records every call so
// tests can assert on order and arguments.
type DummyClient struct {
	mu sync.Mutex

	Subunits []evasys.Subunit
	Periods  []evasys.Period
	Forms    []evasys.SimpleForm
	// form titles keyed by form id, served by GetForm
	FormTitles map[int]string

	// Err, when set, is returned by every call.
	Err error
	// FailOps fails only the named operations.
	FailOps map[string]error

	Calls []string

	nextUserID   int
	nextCourseID int
	nextSurveyID int

	// remote writes, for assertions
	Courses        []evasys.CourseData
	DeletedSurveys []int
	DeletedCourses []int
	OpenedSurveys  []int
	ClosedSurveys  []int
	ClosedFinal    []int
}

var _ evasys.Client = (*DummyClient)(nil)

func NewDummyClient() *DummyClient {
	return &DummyClient{
		FormTitles: make(map[int]string),
		FailOps:    make(map[string]error),
	}
}

func (c *DummyClient) record(op string, args ...interface{}) error {
	c.Calls = append(c.Calls, op+fmt.Sprintf("%v", args))
	if c.Err != nil {
		return c.Err
	}
	if err, ok := c.FailOps[op]; ok {
		return evasys.NewRemoteError(op, err)
	}
	return nil
}

func (c *DummyClient) FetchSubunits(ctx context.Context) ([]evasys.Subunit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("GetSubunits"); err != nil {
		return nil, err
	}
	return c.Subunits, nil
}

func (c *DummyClient) FetchPeriods(ctx context.Context) ([]evasys.Period, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("GetAllPeriods"); err != nil {
		return nil, err
	}
	return c.Periods, nil
}

func (c *DummyClient) GetPeriod(ctx context.Context, periodID int) (evasys.Period, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("GetPeriod", periodID); err != nil {
		return evasys.Period{}, err
	}
	for _, p := range c.Periods {
		if p.ID == periodID {
			return p, nil
		}
	}
	return evasys.Period{}, evasys.NewRemoteError("GetPeriod", fmt.Errorf("period %d not found", periodID))
}

func (c *DummyClient) FetchForms(ctx context.Context, subunitID int) ([]evasys.SimpleForm, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("GetAllForms", subunitID); err != nil {
		return nil, err
	}
	return c.Forms, nil
}

func (c *DummyClient) GetForm(ctx context.Context, formID int) (evasys.Form, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("GetForm", formID); err != nil {
		return evasys.Form{}, err
	}
	for _, f := range c.Forms {
		if f.ID == formID {
			return evasys.Form{ID: f.ID, Name: f.Name, Title: c.FormTitles[f.ID]}, nil
		}
	}
	return evasys.Form{}, evasys.NewRemoteError("GetForm", fmt.Errorf("form %d not found", formID))
}

func (c *DummyClient) InsertUser(ctx context.Context, user evasys.UserData) (evasys.UserResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("InsertUser", user.ExternalID); err != nil {
		return evasys.UserResponse{}, err
	}
	c.nextUserID++
	return evasys.UserResponse{ID: c.nextUserID, ExternalID: user.ExternalID}, nil
}

func (c *DummyClient) InsertCourse(ctx context.Context, course evasys.CourseData) (evasys.CourseResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("InsertCourse", course.ExternalID); err != nil {
		return evasys.CourseResponse{}, err
	}
	c.Courses = append(c.Courses, course)
	c.nextCourseID++
	return evasys.CourseResponse{
		CourseID:   c.nextCourseID,
		ExternalID: course.ExternalID,
		UserID:     course.InstructorID,
		PeriodID:   course.PeriodID,
	}, nil
}

func (c *DummyClient) UpdateCourse(ctx context.Context, course evasys.CourseData) (evasys.CourseResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("UpdateCourse", course.CourseID); err != nil {
		return evasys.CourseResponse{}, err
	}
	c.Courses = append(c.Courses, course)
	return evasys.CourseResponse{
		CourseID:   course.CourseID,
		ExternalID: course.ExternalID,
		UserID:     course.InstructorID,
		PeriodID:   course.PeriodID,
	}, nil
}

func (c *DummyClient) DeleteCourse(ctx context.Context, internalCourseID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("DeleteCourse", internalCourseID); err != nil {
		return err
	}
	c.DeletedCourses = append(c.DeletedCourses, internalCourseID)
	return nil
}

func (c *DummyClient) InsertSurvey(ctx context.Context, survey evasys.SurveyData) (evasys.SurveyResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("InsertCentralSurvey", survey.CourseID, survey.FormID); err != nil {
		return evasys.SurveyResponse{}, err
	}
	c.nextSurveyID++
	return evasys.SurveyResponse{SurveyID: c.nextSurveyID, FormID: survey.FormID}, nil
}

func (c *DummyClient) DeleteSurvey(ctx context.Context, surveyID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("DeleteSurvey", surveyID); err != nil {
		return err
	}
	c.DeletedSurveys = append(c.DeletedSurveys, surveyID)
	return nil
}

func (c *DummyClient) OpenSurvey(ctx context.Context, surveyID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("OpenSurvey", surveyID); err != nil {
		return err
	}
	c.OpenedSurveys = append(c.OpenedSurveys, surveyID)
	return nil
}

func (c *DummyClient) CloseSurvey(ctx context.Context, surveyID int, sendReport bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("CloseSurvey", surveyID, sendReport); err != nil {
		return err
	}
	c.ClosedSurveys = append(c.ClosedSurveys, surveyID)
	if sendReport {
		c.ClosedFinal = append(c.ClosedFinal, surveyID)
	}
	return nil
}

func (c *DummyClient) GetQRCode(ctx context.Context, surveyID int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("GetOnlineQRCode", surveyID); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://evasys.local/qr/%d.png", surveyID), nil
}

func (c *DummyClient) GetSurveyURL(ctx context.Context, surveyID int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("GetPswdsBySurvey", surveyID); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://evasys.local/online/%d", surveyID), nil
}
