package inmemdb

import (
	"context"
	"sort"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/actor"
)

type actorRepository struct {
	db *DB
}

var _ actor.Repository = (*actorRepository)(nil) // interface compliance check

func NewActorRepository(db *DB) *actorRepository {
	return &actorRepository{db: db}
}

func (repo *actorRepository) CreateActor(_ context.Context, a actor.Actor) (actor.Actor, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.actors[a.ID]; ok {
		return actor.Actor{}, core.NewConflictError("actor", a.ID, "exists", "create")
	}
	a.Roles = copyStrings(a.Roles)
	repo.db.actors[a.ID] = a
	return a, nil
}

func (repo *actorRepository) GetActor(_ context.Context, id string) (actor.Actor, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if a, ok := repo.db.actors[id]; ok {
		return a, nil
	}
	return actor.Actor{}, core.NewNotFoundError("actor", id)
}

func (repo *actorRepository) QueryActors(_ context.Context, ids ...string) ([]actor.Actor, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	actors := make([]actor.Actor, 0, len(ids))
	for _, id := range ids {
		if a, ok := repo.db.actors[id]; ok {
			actors = append(actors, a)
		}
	}
	return actors, nil
}

func (repo *actorRepository) CreateBatch(_ context.Context, b actor.Batch) (actor.Batch, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	b.Reviewers = copyStrings(b.Reviewers)
	b.Members = copyStrings(b.Members)
	repo.db.batches = append(repo.db.batches, b)
	return b, nil
}

func (repo *actorRepository) QueryStudentBatches(_ context.Context, studentID string) ([]actor.Batch, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	batches := make([]actor.Batch, 0)
	for _, b := range repo.db.batches {
		for _, m := range b.Members {
			if m == studentID {
				batches = append(batches, b)
				break
			}
		}
	}
	sort.SliceStable(batches, func(i, j int) bool { return batches[i].CreatedAt.Before(batches[j].CreatedAt) })
	return batches, nil
}

func (repo *actorRepository) AddCourseTeacher(_ context.Context, courseID, teacherID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range repo.db.courseTeachers[courseID] {
		if id == teacherID {
			return nil
		}
	}
	repo.db.courseTeachers[courseID] = append(repo.db.courseTeachers[courseID], teacherID)
	return nil
}

func (repo *actorRepository) QueryCourseTeachers(_ context.Context, courseID string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return append([]string{}, repo.db.courseTeachers[courseID]...), nil
}
