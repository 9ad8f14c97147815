package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/wunderbyte/evasync/core/queue"
)

type jobRepository struct {
	db *jobTable
}

var _ queue.Repository = (*jobRepository)(nil) // interface compliance check

func NewJobRepository(db *DB) queue.Repository {
	return &jobRepository{db: db.job}
}

func (repo *jobRepository) ReplaceJob(ctx context.Context, job queue.Job) (queue.Job, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for id, j := range repo.db.table {
		if j.OptionID == job.OptionID && j.Kind == job.Kind {
			delete(repo.db.table, id)
		}
	}
	repo.db.table[job.ID] = &job
	return job, nil
}

func (repo *jobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]queue.Job, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var due []queue.Job
	for _, j := range repo.db.table {
		if j.Due(now) {
			due = append(due, *j)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	for i, j := range due {
		stored := repo.db.table[j.ID]
		stored.Status = queue.StatusRunning
		stored.UpdatedAt = now
		due[i] = *stored
	}
	return due, nil
}

func (repo *jobRepository) MarkDone(ctx context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	j, ok := repo.db.table[id]
	if !ok {
		return queue.ErrNotFound
	}
	j.Status = queue.StatusDone
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *jobRepository) MarkRetry(ctx context.Context, id string, errMsg string, retryAt time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	j, ok := repo.db.table[id]
	if !ok {
		return queue.ErrNotFound
	}
	j.Status = queue.StatusPending
	j.Attempts++
	j.LastError = null.StringFrom(errMsg)
	j.RunAt = retryAt
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *jobRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	j, ok := repo.db.table[id]
	if !ok {
		return queue.ErrNotFound
	}
	j.Status = queue.StatusFailed
	j.Attempts++
	j.LastError = null.StringFrom(errMsg)
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *jobRepository) GetLatestJob(ctx context.Context, optionID int, kind queue.Kind) (queue.Job, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var latest *queue.Job
	for _, j := range repo.db.table {
		if j.OptionID != optionID || j.Kind != kind {
			continue
		}
		if latest == nil || j.UpdatedAt.After(latest.UpdatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return queue.Job{}, queue.ErrNotFound
	}
	return *latest, nil
}

func (repo *jobRepository) QueryJobs(ctx context.Context, optionID int) ([]queue.Job, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var jobs []queue.Job
	for _, j := range repo.db.table {
		if j.OptionID == optionID && (j.Status == queue.StatusPending || j.Status == queue.StatusRunning) {
			jobs = append(jobs, *j)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].RunAt.Before(jobs[j].RunAt) })
	return jobs, nil
}
