package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/wunderbyte/evasync/core/binding"
)

const uniqueViolation = "23505"

type bindingRow struct {
	ID                  int           `db:"id"`
	OptionID            int           `db:"option_id"`
	FormKey             string        `db:"form_key"`
	TimeMode            int           `db:"time_mode"`
	StartTime           null.Time     `db:"start_time"`
	EndTime             null.Time     `db:"end_time"`
	DurationBeforeStart int           `db:"duration_before_start"`
	DurationAfterEnd    int           `db:"duration_after_end"`
	Trainers            pq.Int64Array `db:"trainers"`
	Organizers          pq.Int64Array `db:"organizers"`
	NotifyParticipants  bool          `db:"notify_participants"`
	PeriodKey           string        `db:"period_key"`
	SurveyID            null.Int      `db:"survey_id"`
	CourseIDInternal    null.Int      `db:"course_id_internal"`
	CourseIDExternal    null.String   `db:"course_id_external"`
	QRURL               null.String   `db:"qr_url"`
	SurveyURL           null.String   `db:"survey_url"`
	CreatedAt           time.Time     `db:"created_at"`
	UpdatedAt           null.Time     `db:"updated_at"`
	ModifiedBy          int           `db:"modified_by"`
}

func newBindingRow(b binding.Binding) bindingRow {
	return bindingRow{
		ID:                  b.ID,
		OptionID:            b.OptionID,
		FormKey:             b.FormKey,
		TimeMode:            int(b.TimeMode),
		StartTime:           null.NewTime(b.StartTime, !b.StartTime.IsZero()),
		EndTime:             null.NewTime(b.EndTime, !b.EndTime.IsZero()),
		DurationBeforeStart: b.DurationBeforeStart,
		DurationAfterEnd:    b.DurationAfterEnd,
		Trainers:            toInt64Array(b.Trainers),
		Organizers:          toInt64Array(b.Organizers),
		NotifyParticipants:  b.NotifyParticipants,
		PeriodKey:           b.PeriodKey,
		SurveyID:            b.SurveyID,
		CourseIDInternal:    b.CourseIDInternal,
		CourseIDExternal:    b.CourseIDExternal,
		QRURL:               b.QRURL,
		SurveyURL:           b.SurveyURL,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           null.NewTime(b.UpdatedAt, !b.UpdatedAt.IsZero()),
		ModifiedBy:          b.ModifiedBy,
	}
}

func (r bindingRow) binding() binding.Binding {
	return binding.Binding{
		ID:                  r.ID,
		OptionID:            r.OptionID,
		FormKey:             r.FormKey,
		TimeMode:            binding.TimeMode(r.TimeMode),
		StartTime:           r.StartTime.Time,
		EndTime:             r.EndTime.Time,
		DurationBeforeStart: r.DurationBeforeStart,
		DurationAfterEnd:    r.DurationAfterEnd,
		Trainers:            toIntSlice(r.Trainers),
		Organizers:          toIntSlice(r.Organizers),
		NotifyParticipants:  r.NotifyParticipants,
		PeriodKey:           r.PeriodKey,
		SurveyID:            r.SurveyID,
		CourseIDInternal:    r.CourseIDInternal,
		CourseIDExternal:    r.CourseIDExternal,
		QRURL:               r.QRURL,
		SurveyURL:           r.SurveyURL,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt.Time,
		ModifiedBy:          r.ModifiedBy,
	}
}

type bindingRepository struct {
	db *sqlx.DB
}

var _ binding.Repository = (*bindingRepository)(nil) // interface compliance check

func NewBindingRepository(db *sql.DB) binding.Repository {
	return &bindingRepository{db: sqlx.NewDb(db, "postgres")}
}

func (repo *bindingRepository) CreateBinding(ctx context.Context, b binding.Binding) (binding.Binding, error) {
	row := newBindingRow(b)
	q := `
		INSERT INTO evasys_binding (
			option_id, form_key, time_mode, start_time, end_time,
			duration_before_start, duration_after_end, trainers, organizers,
			notify_participants, period_key, survey_id, course_id_internal,
			course_id_external, qr_url, survey_url, created_at, updated_at, modified_by
		) VALUES (
			:option_id, :form_key, :time_mode, :start_time, :end_time,
			:duration_before_start, :duration_after_end, :trainers, :organizers,
			:notify_participants, :period_key, :survey_id, :course_id_internal,
			:course_id_external, :qr_url, :survey_url, :created_at, :updated_at, :modified_by
		) RETURNING id`
	rows, err := repo.db.NamedQueryContext(ctx, q, row)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return binding.Binding{}, binding.ErrOptionExists
		}
		return binding.Binding{}, errors.Wrap(err, "inserting binding")
	}
	defer func() { _ = rows.Close() }()
	if rows.Next() {
		if err = rows.Scan(&b.ID); err != nil {
			return binding.Binding{}, errors.Wrap(err, "inserting binding")
		}
	}
	return b, rows.Err()
}

func (repo *bindingRepository) GetBinding(ctx context.Context, id int) (binding.Binding, error) {
	var row bindingRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM evasys_binding WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return binding.Binding{}, binding.ErrNotFound
		}
		return binding.Binding{}, errors.Wrap(err, "getting binding")
	}
	return row.binding(), nil
}

func (repo *bindingRepository) GetBindingByOption(ctx context.Context, optionID int) (binding.Binding, error) {
	var row bindingRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM evasys_binding WHERE option_id = $1`, optionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return binding.Binding{}, binding.ErrNotFound
		}
		return binding.Binding{}, errors.Wrap(err, "getting binding by option")
	}
	return row.binding(), nil
}

func (repo *bindingRepository) QueryAllBindings(ctx context.Context) ([]binding.Binding, error) {
	var rows []bindingRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM evasys_binding ORDER BY id`); err != nil {
		return nil, errors.Wrap(err, "querying bindings")
	}
	out := make([]binding.Binding, len(rows))
	for i, r := range rows {
		out[i] = r.binding()
	}
	return out, nil
}

func (repo *bindingRepository) UpdateBinding(ctx context.Context, b binding.Binding) (binding.Binding, error) {
	row := newBindingRow(b)
	q := `
		UPDATE evasys_binding SET
			form_key = :form_key, time_mode = :time_mode,
			start_time = :start_time, end_time = :end_time,
			duration_before_start = :duration_before_start,
			duration_after_end = :duration_after_end,
			trainers = :trainers, organizers = :organizers,
			notify_participants = :notify_participants, period_key = :period_key,
			updated_at = :updated_at, modified_by = :modified_by
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return binding.Binding{}, errors.Wrap(err, "updating binding")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return binding.Binding{}, binding.ErrNotFound
	}
	return b, nil
}

func (repo *bindingRepository) SetCourseIDs(ctx context.Context, id, internalID int, externalID string) error {
	return repo.setColumns(ctx, id,
		`UPDATE evasys_binding SET course_id_internal = $2, course_id_external = $3, updated_at = $4 WHERE id = $1`,
		internalID, externalID)
}

func (repo *bindingRepository) SetSurveyID(ctx context.Context, id, surveyID int) error {
	return repo.setColumns(ctx, id,
		`UPDATE evasys_binding SET survey_id = $2, updated_at = $3 WHERE id = $1`, surveyID)
}

func (repo *bindingRepository) SetQRURL(ctx context.Context, id int, url string) error {
	return repo.setColumns(ctx, id,
		`UPDATE evasys_binding SET qr_url = $2, updated_at = $3 WHERE id = $1`, url)
}

func (repo *bindingRepository) SetSurveyURL(ctx context.Context, id int, url string) error {
	return repo.setColumns(ctx, id,
		`UPDATE evasys_binding SET survey_url = $2, updated_at = $3 WHERE id = $1`, url)
}

func (repo *bindingRepository) DeleteBinding(ctx context.Context, id int) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM evasys_binding WHERE id = $1`, id)
	return errors.Wrap(err, "deleting binding")
}

func (repo *bindingRepository) setColumns(ctx context.Context, id int, q string, args ...interface{}) error {
	args = append([]interface{}{id}, append(args, time.Now().UTC())...)
	res, err := repo.db.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "updating binding")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return binding.ErrNotFound
	}
	return nil
}

func toInt64Array(ids []int) pq.Int64Array {
	out := make(pq.Int64Array, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func toIntSlice(arr pq.Int64Array) []int {
	out := make([]int, len(arr))
	for i, id := range arr {
		out[i] = int(id)
	}
	return out
}
