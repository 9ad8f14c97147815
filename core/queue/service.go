package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("job not found")

type (
	Repository interface {
		// ReplaceJob atomically removes any pending job sharing
		// (job.OptionID, job.Kind) and inserts job.
		ReplaceJob(ctx context.Context, job Job) (Job, error)
		// ClaimDue marks up to limit due jobs as running and returns them,
		// ordered by RunAt. A job claimed once is not handed out again.
		ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
		MarkDone(ctx context.Context, id string) error
		// MarkRetry re-queues a failed attempt for retryAt.
		MarkRetry(ctx context.Context, id string, errMsg string, retryAt time.Time) error
		MarkFailed(ctx context.Context, id string, errMsg string) error
		// QueryJobs returns every non-final job for the option, any kind.
		QueryJobs(ctx context.Context, optionID int) ([]Job, error)
		// GetLatestJob returns the most recently updated job of the kind
		// for the option, regardless of status.
		GetLatestJob(ctx context.Context, optionID int, kind Kind) (Job, error)
	}

	// Scheduler queues and (re)schedules asynchronous jobs. Re-scheduling
	// the same logical job must replace any pending instance.
	Scheduler interface {
		Schedule(ctx context.Context, kind Kind, optionID int, runAt time.Time, payload interface{}) (Job, error)
	}

	Service struct {
		repo Repository
	}
)

var _ Scheduler = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Schedule(ctx context.Context, kind Kind, optionID int, runAt time.Time, payload interface{}) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, err
	}
	now := time.Now().UTC()
	job := Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		OptionID:  optionID,
		RunAt:     runAt.UTC(),
		Payload:   raw,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.ReplaceJob(ctx, job)
}

func (svc *Service) Pending(ctx context.Context, optionID int) ([]Job, error) {
	return svc.repo.QueryJobs(ctx, optionID)
}

// Requeue reschedules the latest job of the kind for the option with its
// stored payload, resetting the attempt count. Lets operators rerun a sync
// that failed permanently.
func (svc *Service) Requeue(ctx context.Context, optionID int, kind Kind) (Job, error) {
	last, err := svc.repo.GetLatestJob(ctx, optionID, kind)
	if err != nil {
		return Job{}, err
	}
	return svc.Schedule(ctx, kind, optionID, time.Now().UTC(), last.Payload)
}
