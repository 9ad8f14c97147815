package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/wunderbyte/evasync/core/binding"
)

var pkCount int

type bindingRepository struct {
	db *bindingTable
}

var _ binding.Repository = (*bindingRepository)(nil) // interface compliance check

func NewBindingRepository(db *DB) binding.Repository {
	return &bindingRepository{db: db.binding}
}

func (repo *bindingRepository) query() []binding.Binding {
	bindings := make([]binding.Binding, 0, len(repo.db.table))
	for _, b := range repo.db.table {
		bindings = append(bindings, *b)
	}
	sort.Slice(bindings, func(i, j int) bool { return bindings[i].ID < bindings[j].ID })
	return bindings
}

func (repo *bindingRepository) CreateBinding(ctx context.Context, b binding.Binding) (binding.Binding, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.table {
		if existing.OptionID == b.OptionID {
			return binding.Binding{}, binding.ErrOptionExists
		}
	}

	pkCount++
	b.ID = pkCount
	repo.db.table[b.ID] = &b
	return b, nil
}

func (repo *bindingRepository) GetBinding(ctx context.Context, id int) (binding.Binding, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if b, ok := repo.db.table[id]; ok {
		return *b, nil
	}
	return binding.Binding{}, binding.ErrNotFound
}

func (repo *bindingRepository) GetBindingByOption(ctx context.Context, optionID int) (binding.Binding, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, b := range repo.db.table {
		if b.OptionID == optionID {
			return *b, nil
		}
	}
	return binding.Binding{}, binding.ErrNotFound
}

func (repo *bindingRepository) QueryAllBindings(ctx context.Context) ([]binding.Binding, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(), nil
}

func (repo *bindingRepository) UpdateBinding(ctx context.Context, b binding.Binding) (binding.Binding, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[b.ID]
	if !ok {
		return binding.Binding{}, binding.ErrNotFound
	}
	// remote ids are owned by the Set* methods, keep them
	orig.FormKey = b.FormKey
	orig.TimeMode = b.TimeMode
	orig.StartTime = b.StartTime
	orig.EndTime = b.EndTime
	orig.DurationBeforeStart = b.DurationBeforeStart
	orig.DurationAfterEnd = b.DurationAfterEnd
	orig.Trainers = b.Trainers
	orig.Organizers = b.Organizers
	orig.NotifyParticipants = b.NotifyParticipants
	orig.PeriodKey = b.PeriodKey
	orig.UpdatedAt = b.UpdatedAt
	orig.ModifiedBy = b.ModifiedBy
	return *orig, nil
}

func (repo *bindingRepository) SetCourseIDs(ctx context.Context, id, internalID int, externalID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	b, ok := repo.db.table[id]
	if !ok {
		return binding.ErrNotFound
	}
	b.CourseIDInternal = null.IntFrom(internalID)
	b.CourseIDExternal = null.StringFrom(externalID)
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *bindingRepository) SetSurveyID(ctx context.Context, id, surveyID int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	b, ok := repo.db.table[id]
	if !ok {
		return binding.ErrNotFound
	}
	b.SurveyID = null.IntFrom(surveyID)
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *bindingRepository) SetQRURL(ctx context.Context, id int, url string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	b, ok := repo.db.table[id]
	if !ok {
		return binding.ErrNotFound
	}
	b.QRURL = null.StringFrom(url)
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *bindingRepository) SetSurveyURL(ctx context.Context, id int, url string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	b, ok := repo.db.table[id]
	if !ok {
		return binding.ErrNotFound
	}
	b.SurveyURL = null.StringFrom(url)
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *bindingRepository) DeleteBinding(ctx context.Context, id int) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	delete(repo.db.table, id)
	return nil
}
