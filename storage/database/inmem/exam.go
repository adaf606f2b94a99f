package inmemdb

import (
	"context"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/exam"
)

type examRepository struct {
	db *DB
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db *DB) *examRepository {
	return &examRepository{db: db}
}

func (repo *examRepository) CreateExam(_ context.Context, e exam.Exam) (exam.Exam, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.exams[e.ID]; ok {
		return exam.Exam{}, core.NewConflictError("exam", e.ID, "exists", "create")
	}
	repo.db.exams[e.ID] = e
	return e, nil
}

func (repo *examRepository) GetExam(_ context.Context, id string) (exam.Exam, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if e, ok := repo.db.exams[id]; ok {
		return e, nil
	}
	return exam.Exam{}, core.NewNotFoundError("exam", id)
}

func (repo *examRepository) AddSubmission(_ context.Context, sub exam.Submission) (exam.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.exams[sub.ExamID]; !ok {
		return exam.Submission{}, core.NewNotFoundError("exam", sub.ExamID)
	}
	for _, s := range repo.db.submissions[sub.ExamID] {
		if s.StudentID == sub.StudentID {
			return s, nil
		}
	}
	repo.db.submissions[sub.ExamID] = append(repo.db.submissions[sub.ExamID], sub)
	return sub, nil
}

func (repo *examRepository) QuerySubmitters(_ context.Context, examID string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	subs := repo.db.submissions[examID]
	ids := make([]string, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.StudentID)
	}
	return ids, nil
}

func (repo *examRepository) CreateEvaluations(_ context.Context, evs []exam.Evaluation) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, ev := range evs {
		if _, ok := repo.db.evalIndex[ev.ID]; ok {
			return core.NewConflictError("evaluation", ev.ID, "exists", "create")
		}
	}
	for _, ev := range evs {
		ev := ev
		ev.Marks = copyFloats(ev.Marks)
		repo.db.evaluations = append(repo.db.evaluations, &ev)
		repo.db.evalIndex[ev.ID] = &ev
	}
	return nil
}

func (repo *examRepository) QueryEvaluations(_ context.Context, filter exam.EvaluationFilter) ([]exam.Evaluation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	evs := make([]exam.Evaluation, 0)
	for _, ev := range repo.db.evaluations {
		if filter.Matches(*ev) {
			evs = append(evs, cloneEvaluation(*ev))
		}
	}
	return evs, nil
}

func (repo *examRepository) GetEvaluation(_ context.Context, id string) (exam.Evaluation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if ev, ok := repo.db.evalIndex[id]; ok {
		return cloneEvaluation(*ev), nil
	}
	return exam.Evaluation{}, core.NewNotFoundError("evaluation", id)
}

func (repo *examRepository) UpdateEvaluation(_ context.Context, ev exam.Evaluation, expected exam.EvaluationState) (exam.Evaluation, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.db.saveEvaluation(exam.EvaluationWrite{Evaluation: ev, Expected: expected}); err != nil {
		return exam.Evaluation{}, err
	}
	return cloneEvaluation(ev), nil
}

// saveEvaluation must be called with the write lock held.
func (db *DB) saveEvaluation(w exam.EvaluationWrite) error {
	stored, ok := db.evalIndex[w.Evaluation.ID]
	if !ok {
		return core.NewNotFoundError("evaluation", w.Evaluation.ID)
	}
	if stored.State() != w.Expected {
		return core.NewConflictError("evaluation", w.Evaluation.ID, stored.State().String(), "update")
	}
	*stored = cloneEvaluation(w.Evaluation)
	return nil
}

func cloneEvaluation(ev exam.Evaluation) exam.Evaluation {
	ev.Marks = copyFloats(ev.Marks)
	return ev
}
