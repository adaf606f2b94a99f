package actor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hansini-nalla/pes-sub000/core"
)

type Repository interface {
	CreateActor(ctx context.Context, a Actor) (Actor, error)
	GetActor(ctx context.Context, id string) (Actor, error)
	// QueryActors returns the known actors among ids, unknown ones are ignored.
	QueryActors(ctx context.Context, ids ...string) ([]Actor, error)
	CreateBatch(ctx context.Context, b Batch) (Batch, error)
	// QueryStudentBatches returns the batches holding the student, oldest first.
	QueryStudentBatches(ctx context.Context, studentID string) ([]Batch, error)
	AddCourseTeacher(ctx context.Context, courseID, teacherID string) error
	QueryCourseTeachers(ctx context.Context, courseID string) ([]string, error)
}

// Roster answers read-only questions about who follows whom.
type Roster struct {
	repo Repository
}

func NewRoster(repo Repository) *Roster {
	return &Roster{repo: repo}
}

// ResponsibleReviewer returns the first reviewer of the oldest batch holding the student.
// ok is false when no batch of the student has a reviewer.
func (r *Roster) ResponsibleReviewer(ctx context.Context, studentID string) (reviewerID string, ok bool, err error) {
	batches, err := r.repo.QueryStudentBatches(ctx, studentID)
	if err != nil {
		return "", false, errors.Wrap(err, "querying student batches")
	}
	for _, b := range batches {
		if len(b.Reviewers) > 0 {
			return b.Reviewers[0], true, nil
		}
	}
	return "", false, nil
}

func (r *Roster) CourseTeachers(ctx context.Context, courseID string) ([]string, error) {
	return r.repo.QueryCourseTeachers(ctx, courseID)
}

func (r *Roster) Actors(ctx context.Context, ids ...string) ([]Actor, error) {
	return r.repo.QueryActors(ctx, ids...)
}

func (r *Roster) Get(ctx context.Context, id string) (Actor, error) {
	return r.repo.GetActor(ctx, id)
}

func (r *Roster) Register(ctx context.Context, a Actor) (Actor, error) {
	a.Name = core.CleanString(a.Name)
	a.Email = core.CleanString(a.Email, true /* lower */)
	if err := core.ValidateStruct(a); err != nil {
		return Actor{}, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	return r.repo.CreateActor(ctx, a)
}

func (r *Roster) CreateBatch(ctx context.Context, b Batch) (Batch, error) {
	if err := core.ValidateStruct(b); err != nil {
		return Batch{}, err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt = time.Now().UTC()
	return r.repo.CreateBatch(ctx, b)
}

func (r *Roster) AddCourseTeacher(ctx context.Context, courseID, teacherID string) error {
	t, err := r.repo.GetActor(ctx, teacherID)
	if err != nil {
		return err
	}
	if !t.IsTeacher() {
		return core.NewValidationError(nil, core.FieldError{Field: "teacher_id", Error: "actor is not a teacher"})
	}
	return r.repo.AddCourseTeacher(ctx, courseID, teacherID)
}
