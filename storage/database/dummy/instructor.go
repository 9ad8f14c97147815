package dummydb

import (
	"context"
	"sort"

	"github.com/wunderbyte/evasync/core/binding"
)

type InstructorRepository struct {
	db *instructorTable
}

var _ binding.InstructorDirectory = (*InstructorRepository)(nil) // interface compliance check

func NewInstructorRepository(db *DB) *InstructorRepository {
	return &InstructorRepository{db: db.instructor}
}

func (repo *InstructorRepository) GetInstructor(ctx context.Context, id int) (binding.Instructor, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if instr, ok := repo.db.table[id]; ok {
		return *instr, nil
	}
	return binding.Instructor{}, binding.ErrInstructorNotFound
}

func (repo *InstructorRepository) SetRemoteRef(ctx context.Context, id int, ref string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	instr, ok := repo.db.table[id]
	if !ok {
		return binding.ErrInstructorNotFound
	}
	instr.RemoteRef = ref
	return nil
}

func (repo *InstructorRepository) QueryRecipients(ctx context.Context) ([]binding.Instructor, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var out []binding.Instructor
	for id, instr := range repo.db.table {
		if repo.db.organizers[id] {
			out = append(out, *instr)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, nil
}

func (repo *InstructorRepository) UpsertInstructor(ctx context.Context, instr binding.Instructor, isOrganizer bool) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if orig, ok := repo.db.table[instr.ID]; ok {
		instr.RemoteRef = orig.RemoteRef
	}
	repo.db.table[instr.ID] = &instr
	repo.db.organizers[instr.ID] = isOrganizer
	return nil
}
