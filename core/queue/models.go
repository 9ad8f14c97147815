package queue

import (
	"encoding/json"
	"time"

	"github.com/volatiletech/null/v8"
)

// Kind discriminates the asynchronous job types.
type Kind string

const (
	KindReconcile   Kind = "reconcile"
	KindOpenSurvey  Kind = "opensurvey"
	KindCloseSurvey Kind = "closesurvey"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Job is one queued unit of work. (OptionID, Kind) is the logical identity:
// scheduling a job that shares it with a pending one replaces that job
// instead of running both.
type Job struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	OptionID  int             `json:"option_id"`
	RunAt     time.Time       `json:"run_at"` // UTC
	Payload   json.RawMessage `json:"payload"`
	Status    Status          `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError null.String     `json:"last_error"`
	CreatedAt time.Time       `json:"created_at"` // UTC
	UpdatedAt time.Time       `json:"updated_at"` // UTC
}

// Due reports whether the job should run at instant now.
func (j Job) Due(now time.Time) bool {
	return j.Status == StatusPending && !j.RunAt.After(now)
}
