package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/wunderbyte/evasync/core/binding"
)

type instructorRow struct {
	ID          int       `db:"id"`
	FirstName   string    `db:"first_name"`
	LastName    string    `db:"last_name"`
	Email       string    `db:"email"`
	Address     string    `db:"address"`
	Phone       string    `db:"phone"`
	RemoteRef   string    `db:"remote_ref"`
	IsOrganizer bool      `db:"is_organizer"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   null.Time `db:"updated_at"`
}

func (r instructorRow) instructor() binding.Instructor {
	return binding.Instructor{
		ID:        r.ID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Address:   r.Address,
		Phone:     r.Phone,
		RemoteRef: r.RemoteRef,
	}
}

// InstructorRepository is the instructor directory plus the upsert the admin
// CLI uses to mirror host platform users in.
type InstructorRepository struct {
	db *sqlx.DB
}

var _ binding.InstructorDirectory = (*InstructorRepository)(nil) // interface compliance check

func NewInstructorRepository(db *sql.DB) *InstructorRepository {
	return &InstructorRepository{db: sqlx.NewDb(db, "postgres")}
}

func (repo *InstructorRepository) GetInstructor(ctx context.Context, id int) (binding.Instructor, error) {
	var row instructorRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM instructor WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return binding.Instructor{}, binding.ErrInstructorNotFound
		}
		return binding.Instructor{}, errors.Wrap(err, "getting instructor")
	}
	return row.instructor(), nil
}

func (repo *InstructorRepository) SetRemoteRef(ctx context.Context, id int, ref string) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE instructor SET remote_ref = $2, updated_at = $3 WHERE id = $1`,
		id, ref, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "setting remote ref")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return binding.ErrInstructorNotFound
	}
	return nil
}

func (repo *InstructorRepository) QueryRecipients(ctx context.Context) ([]binding.Instructor, error) {
	q := `SELECT * FROM instructor WHERE is_organizer ORDER BY last_name, first_name`
	var rows []instructorRow
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying recipients")
	}
	out := make([]binding.Instructor, len(rows))
	for i, r := range rows {
		out[i] = r.instructor()
	}
	return out, nil
}

// UpsertInstructor inserts or refreshes a mirrored host user. The remote ref
// is never overwritten by a mirror refresh.
func (repo *InstructorRepository) UpsertInstructor(ctx context.Context, instr binding.Instructor, isOrganizer bool) error {
	q := `
		INSERT INTO instructor (id, first_name, last_name, email, address, phone, remote_ref, is_organizer, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, '', $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
			email = EXCLUDED.email, address = EXCLUDED.address, phone = EXCLUDED.phone,
			is_organizer = EXCLUDED.is_organizer, updated_at = EXCLUDED.created_at`
	_, err := repo.db.ExecContext(ctx, q,
		instr.ID, instr.FirstName, instr.LastName, instr.Email, instr.Address, instr.Phone,
		isOrganizer, time.Now().UTC())
	return errors.Wrap(err, "upserting instructor")
}
