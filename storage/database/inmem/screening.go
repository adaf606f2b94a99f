package inmemdb

import (
	"context"

	"github.com/hansini-nalla/pes-sub000/core/screening"
)

type verdictRepository struct {
	db *DB
}

var _ screening.Repository = (*verdictRepository)(nil) // interface compliance check

func NewVerdictRepository(db *DB) *verdictRepository {
	return &verdictRepository{db: db}
}

func (repo *verdictRepository) ReplaceVerdicts(_ context.Context, examID string, verdicts []screening.Verdict) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored := make([]screening.Verdict, 0, len(verdicts))
	for _, v := range verdicts {
		v.RawMarks = copyFloats(v.RawMarks)
		stored = append(stored, v)
	}
	repo.db.verdicts[examID] = stored
	return nil
}

func (repo *verdictRepository) QueryVerdicts(_ context.Context, examID string) ([]screening.Verdict, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	verdicts := make([]screening.Verdict, 0, len(repo.db.verdicts[examID]))
	for _, v := range repo.db.verdicts[examID] {
		v.RawMarks = copyFloats(v.RawMarks)
		verdicts = append(verdicts, v)
	}
	return verdicts, nil
}
