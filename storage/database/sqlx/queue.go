package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/wunderbyte/evasync/core/queue"
)

type jobRow struct {
	ID        string      `db:"id"`
	Kind      string      `db:"kind"`
	OptionID  int         `db:"option_id"`
	RunAt     time.Time   `db:"run_at"`
	Payload   []byte      `db:"payload"`
	Status    string      `db:"status"`
	Attempts  int         `db:"attempts"`
	LastError null.String `db:"last_error"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt null.Time   `db:"updated_at"`
}

func (r jobRow) job() queue.Job {
	return queue.Job{
		ID:        r.ID,
		Kind:      queue.Kind(r.Kind),
		OptionID:  r.OptionID,
		RunAt:     r.RunAt,
		Payload:   r.Payload,
		Status:    queue.Status(r.Status),
		Attempts:  r.Attempts,
		LastError: r.LastError,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt.Time,
	}
}

type jobRepository struct {
	db *sqlx.DB
}

var _ queue.Repository = (*jobRepository)(nil) // interface compliance check

func NewJobRepository(db *sql.DB) queue.Repository {
	return &jobRepository{db: sqlx.NewDb(db, "postgres")}
}

// ReplaceJob upserts on (option_id, kind) so a rescheduled job overwrites
// whatever instance is there instead of queueing a duplicate.
func (repo *jobRepository) ReplaceJob(ctx context.Context, job queue.Job) (queue.Job, error) {
	q := `
		INSERT INTO queue_job (id, kind, option_id, run_at, payload, status, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, NULL, $7, $7)
		ON CONFLICT (option_id, kind) DO UPDATE SET
			id = EXCLUDED.id, run_at = EXCLUDED.run_at, payload = EXCLUDED.payload,
			status = EXCLUDED.status, attempts = 0, last_error = NULL,
			updated_at = EXCLUDED.updated_at`
	_, err := repo.db.ExecContext(ctx, q,
		job.ID, string(job.Kind), job.OptionID, job.RunAt, []byte(job.Payload), string(job.Status), job.CreatedAt)
	if err != nil {
		return queue.Job{}, errors.Wrap(err, "replacing job")
	}
	return job, nil
}

// ClaimDue flips due pending jobs to running in one statement so concurrent
// workers never claim the same job twice.
func (repo *jobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]queue.Job, error) {
	q := `
		UPDATE queue_job SET status = 'running', updated_at = $1
		WHERE id IN (
			SELECT id FROM queue_job
			WHERE status = 'pending' AND run_at <= $1
			ORDER BY run_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`
	var rows []jobRow
	if err := repo.db.SelectContext(ctx, &rows, q, now, limit); err != nil {
		return nil, errors.Wrap(err, "claiming due jobs")
	}
	jobs := make([]queue.Job, len(rows))
	for i, r := range rows {
		jobs[i] = r.job()
	}
	return jobs, nil
}

func (repo *jobRepository) MarkDone(ctx context.Context, id string) error {
	return repo.mark(ctx, id,
		`UPDATE queue_job SET status = 'done', updated_at = $2 WHERE id = $1`)
}

func (repo *jobRepository) MarkRetry(ctx context.Context, id string, errMsg string, retryAt time.Time) error {
	return repo.mark(ctx, id,
		`UPDATE queue_job SET status = 'pending', attempts = attempts + 1, last_error = $3, run_at = $4, updated_at = $2 WHERE id = $1`,
		errMsg, retryAt)
}

func (repo *jobRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return repo.mark(ctx, id,
		`UPDATE queue_job SET status = 'failed', attempts = attempts + 1, last_error = $3, updated_at = $2 WHERE id = $1`,
		errMsg)
}

func (repo *jobRepository) GetLatestJob(ctx context.Context, optionID int, kind queue.Kind) (queue.Job, error) {
	q := `SELECT * FROM queue_job WHERE option_id = $1 AND kind = $2 ORDER BY updated_at DESC NULLS LAST LIMIT 1`
	var row jobRow
	if err := repo.db.GetContext(ctx, &row, q, optionID, string(kind)); err != nil {
		if err == sql.ErrNoRows {
			return queue.Job{}, queue.ErrNotFound
		}
		return queue.Job{}, errors.Wrap(err, "getting latest job")
	}
	return row.job(), nil
}

func (repo *jobRepository) QueryJobs(ctx context.Context, optionID int) ([]queue.Job, error) {
	q := `SELECT * FROM queue_job WHERE option_id = $1 AND status IN ('pending', 'running') ORDER BY run_at`
	var rows []jobRow
	if err := repo.db.SelectContext(ctx, &rows, q, optionID); err != nil {
		return nil, errors.Wrap(err, "querying jobs")
	}
	jobs := make([]queue.Job, len(rows))
	for i, r := range rows {
		jobs[i] = r.job()
	}
	return jobs, nil
}

func (repo *jobRepository) mark(ctx context.Context, id string, q string, args ...interface{}) error {
	args = append([]interface{}{id, time.Now().UTC()}, args...)
	res, err := repo.db.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "updating job")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return queue.ErrNotFound
	}
	return nil
}
