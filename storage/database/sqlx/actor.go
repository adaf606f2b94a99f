package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/actor"
)

type actorRow struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	Email     null.String    `db:"email"`
	Roles     pq.StringArray `db:"roles"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r actorRow) actor() actor.Actor {
	return actor.Actor{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email.String,
		Roles:     []string(r.Roles),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type batchRow struct {
	ID        string    `db:"id"`
	CourseID  string    `db:"course_id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

type actorRepository struct {
	db *sqlx.DB
}

var _ actor.Repository = (*actorRepository)(nil) // interface compliance check

func NewActorRepository(db *sqlx.DB) *actorRepository {
	return &actorRepository{db: db}
}

func (repo *actorRepository) CreateActor(ctx context.Context, a actor.Actor) (actor.Actor, error) {
	row := actorRow{
		ID:        a.ID,
		Name:      a.Name,
		Email:     null.NewString(a.Email, a.Email != ""),
		Roles:     pq.StringArray(a.Roles),
		CreatedAt: a.CreatedAt.UTC(),
	}
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO actors (id, name, email, roles, created_at) VALUES (:id, :name, :email, :roles, :created_at)`, row)
	if isUniqueViolation(err) {
		return actor.Actor{}, core.NewConflictError("actor", a.ID, "exists", "create")
	}
	if err != nil {
		return actor.Actor{}, errors.Wrap(err, "inserting actor")
	}
	return row.actor(), nil
}

func (repo *actorRepository) GetActor(ctx context.Context, id string) (actor.Actor, error) {
	var row actorRow
	err := repo.db.GetContext(ctx, &row, `SELECT id, name, email, roles, created_at FROM actors WHERE id = $1`, id)
	if err != nil {
		return actor.Actor{}, trapNoRowsErr(err, core.NewNotFoundError("actor", id), "getting actor")
	}
	return row.actor(), nil
}

func (repo *actorRepository) QueryActors(ctx context.Context, ids ...string) ([]actor.Actor, error) {
	actors := make([]actor.Actor, 0, len(ids))
	if len(ids) == 0 {
		return actors, nil
	}
	q, args, err := sqlx.In(`SELECT id, name, email, roles, created_at FROM actors WHERE id IN (?)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "building actors query")
	}
	var rows []actorRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying actors")
	}
	byID := make(map[string]actor.Actor, len(rows))
	for _, r := range rows {
		byID[r.ID] = r.actor()
	}
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			actors = append(actors, a)
		}
	}
	return actors, nil
}

func (repo *actorRepository) CreateBatch(ctx context.Context, b actor.Batch) (actor.Batch, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO batches (id, course_id, name, created_at) VALUES (:id, :course_id, :name, :created_at)`,
			batchRow{ID: b.ID, CourseID: b.CourseID, Name: b.Name, CreatedAt: b.CreatedAt.UTC()}); err != nil {
			return errors.Wrap(err, "inserting batch")
		}
		for i, reviewer := range b.Reviewers {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO batch_reviewers (batch_id, reviewer_id, position) VALUES ($1, $2, $3)`, b.ID, reviewer, i); err != nil {
				return errors.Wrap(err, "inserting batch reviewer")
			}
		}
		for _, member := range b.Members {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO batch_members (batch_id, student_id) VALUES ($1, $2)`, b.ID, member); err != nil {
				return errors.Wrap(err, "inserting batch member")
			}
		}
		return nil
	})
	if err != nil {
		return actor.Batch{}, err
	}
	return b, nil
}

func (repo *actorRepository) QueryStudentBatches(ctx context.Context, studentID string) ([]actor.Batch, error) {
	var rows []batchRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT b.id, b.course_id, b.name, b.created_at
		FROM batches b JOIN batch_members m ON m.batch_id = b.id
		WHERE m.student_id = $1
		ORDER BY b.created_at, b.id`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying student batches")
	}

	batches := make([]actor.Batch, 0, len(rows))
	for _, r := range rows {
		b := actor.Batch{ID: r.ID, CourseID: r.CourseID, Name: r.Name, CreatedAt: r.CreatedAt.UTC()}
		if err := repo.db.SelectContext(ctx, &b.Reviewers,
			`SELECT reviewer_id FROM batch_reviewers WHERE batch_id = $1 ORDER BY position`, r.ID); err != nil {
			return nil, errors.Wrap(err, "querying batch reviewers")
		}
		if err := repo.db.SelectContext(ctx, &b.Members,
			`SELECT student_id FROM batch_members WHERE batch_id = $1 ORDER BY student_id`, r.ID); err != nil {
			return nil, errors.Wrap(err, "querying batch members")
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func (repo *actorRepository) AddCourseTeacher(ctx context.Context, courseID, teacherID string) error {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO course_teachers (course_id, teacher_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, courseID, teacherID)
	return errors.Wrap(err, "inserting course teacher")
}

func (repo *actorRepository) QueryCourseTeachers(ctx context.Context, courseID string) ([]string, error) {
	teachers := make([]string, 0)
	err := repo.db.SelectContext(ctx, &teachers,
		`SELECT teacher_id FROM course_teachers WHERE course_id = $1 ORDER BY teacher_id`, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying course teachers")
	}
	return teachers, nil
}
