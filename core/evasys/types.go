package evasys

// Wire types for the remote operations. Field names follow our domain; the
// transport layer maps them onto the remote element names (m_n.../m_s...).

type Subunit struct {
	ID   int
	Name string
}

type Period struct {
	ID    int
	Title string
}

// SimpleForm is the list entry returned by GetAllForms.
type SimpleForm struct {
	ID   int
	Name string
}

// Form is the detail record returned by GetForm.
type Form struct {
	ID    int
	Name  string
	Title string
}

// UserData is the payload for InsertUser.
type UserData struct {
	ExternalID  string // "evasys_<local user id>"
	FirstName   string
	LastName    string
	UnitName    string
	Address     string
	Email       string
	SubunitID   int
	PhoneNumber string
}

// UserResponse carries the identifiers the remote system assigned.
type UserResponse struct {
	ID         int
	ExternalID string
}

// Instructor identifies an already-registered remote user attached to a
// course as a secondary instructor (report co-recipient).
type Instructor struct {
	ID         int // remote numeric user id
	ExternalID string
	FirstName  string
	LastName   string
	Address    string
	Email      string
	SubunitID  int
	Phone      string
}

// CourseData is the payload for InsertCourse/UpdateCourse.
type CourseData struct {
	// CourseID is the remote internal id; zero on insert, set on update.
	CourseID             int
	ProgramOfStudy       string // subunit display name
	Title                string
	CourseType           int    // always 5 (in-service training)
	PublicID             string // "urise_<optionid>"
	ExternalID           string // same as PublicID
	CustomFieldsJSON     string
	InstructorID         int // remote id of the primary instructor
	SubunitID            int
	PeriodID             int
	SecondaryInstructors []Instructor
}

// CourseResponse carries the identifiers of the created/updated course plus
// the user and period the survey insert must reference.
type CourseResponse struct {
	CourseID   int // remote internal id
	ExternalID string
	UserID     int
	PeriodID   int
}

// SurveyData is the payload for InsertCentralSurvey.
type SurveyData struct {
	UserID   int
	CourseID int // remote internal course id
	FormID   int
	PeriodID int
	Type     string // always "c" (central survey)
}

type SurveyResponse struct {
	SurveyID int
	FormID   int
}
