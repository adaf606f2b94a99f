package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/exam"
)

type examRow struct {
	ID                  string    `db:"id"`
	CourseID            string    `db:"course_id"`
	Title               string    `db:"title"`
	QuestionCount       int       `db:"question_count"`
	MaxMarksPerQuestion float64   `db:"max_marks_per_question"`
	PeersPerStudent     int       `db:"peers_per_student"`
	CreatedAt           time.Time `db:"created_at"`
}

func (r examRow) exam() exam.Exam {
	return exam.Exam{
		ID:                  r.ID,
		CourseID:            r.CourseID,
		Title:               r.Title,
		QuestionCount:       r.QuestionCount,
		MaxMarksPerQuestion: r.MaxMarksPerQuestion,
		PeersPerStudent:     r.PeersPerStudent,
		CreatedAt:           r.CreatedAt.UTC(),
	}
}

type evaluationRow struct {
	ID        string          `db:"id"`
	ExamID    string          `db:"exam_id"`
	Evaluator string          `db:"evaluator"`
	Evaluatee string          `db:"evaluatee"`
	Marks     pq.Float64Array `db:"marks"`
	Feedback  string          `db:"feedback"`
	Status    string          `db:"status"`
	Flagged   bool            `db:"flagged"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func toEvaluationRow(ev exam.Evaluation) evaluationRow {
	marks := ev.Marks
	if marks == nil {
		marks = []float64{}
	}
	return evaluationRow{
		ID:        ev.ID,
		ExamID:    ev.ExamID,
		Evaluator: ev.Evaluator,
		Evaluatee: ev.Evaluatee,
		Marks:     pq.Float64Array(marks),
		Feedback:  ev.Feedback,
		Status:    string(ev.Status),
		Flagged:   ev.Flagged,
		CreatedAt: ev.CreatedAt.UTC(),
		UpdatedAt: ev.UpdatedAt.UTC(),
	}
}

func (r evaluationRow) evaluation() exam.Evaluation {
	marks := []float64(r.Marks)
	if marks == nil {
		marks = []float64{}
	}
	return exam.Evaluation{
		ID:        r.ID,
		ExamID:    r.ExamID,
		Evaluator: r.Evaluator,
		Evaluatee: r.Evaluatee,
		Marks:     marks,
		Feedback:  r.Feedback,
		Status:    exam.EvaluationStatus(r.Status),
		Flagged:   r.Flagged,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

const evaluationColumns = `id, exam_id, evaluator, evaluatee, marks, feedback, status, flagged, created_at, updated_at`

type examRepository struct {
	db *sqlx.DB
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db *sqlx.DB) *examRepository {
	return &examRepository{db: db}
}

func (repo *examRepository) CreateExam(ctx context.Context, e exam.Exam) (exam.Exam, error) {
	row := examRow{
		ID:                  e.ID,
		CourseID:            e.CourseID,
		Title:               e.Title,
		QuestionCount:       e.QuestionCount,
		MaxMarksPerQuestion: e.MaxMarksPerQuestion,
		PeersPerStudent:     e.PeersPerStudent,
		CreatedAt:           e.CreatedAt.UTC(),
	}
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO exams (id, course_id, title, question_count, max_marks_per_question, peers_per_student, created_at)
		VALUES (:id, :course_id, :title, :question_count, :max_marks_per_question, :peers_per_student, :created_at)`, row)
	if isUniqueViolation(err) {
		return exam.Exam{}, core.NewConflictError("exam", e.ID, "exists", "create")
	}
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "inserting exam")
	}
	return row.exam(), nil
}

func (repo *examRepository) GetExam(ctx context.Context, id string) (exam.Exam, error) {
	var row examRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT id, course_id, title, question_count, max_marks_per_question, peers_per_student, created_at
		FROM exams WHERE id = $1`, id)
	if err != nil {
		return exam.Exam{}, trapNoRowsErr(err, core.NewNotFoundError("exam", id), "getting exam")
	}
	return row.exam(), nil
}

func (repo *examRepository) AddSubmission(ctx context.Context, sub exam.Submission) (exam.Submission, error) {
	if _, err := repo.GetExam(ctx, sub.ExamID); err != nil {
		return exam.Submission{}, err
	}
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO submissions (exam_id, student_id, submitted_at) VALUES ($1, $2, $3)
		ON CONFLICT (exam_id, student_id) DO NOTHING`, sub.ExamID, sub.StudentID, sub.SubmittedAt.UTC())
	if err != nil {
		return exam.Submission{}, errors.Wrap(err, "inserting submission")
	}
	var stored struct {
		SubmittedAt time.Time `db:"submitted_at"`
	}
	if err := repo.db.GetContext(ctx, &stored,
		`SELECT submitted_at FROM submissions WHERE exam_id = $1 AND student_id = $2`, sub.ExamID, sub.StudentID); err != nil {
		return exam.Submission{}, errors.Wrap(err, "getting submission")
	}
	sub.SubmittedAt = stored.SubmittedAt.UTC()
	return sub, nil
}

func (repo *examRepository) QuerySubmitters(ctx context.Context, examID string) ([]string, error) {
	ids := make([]string, 0)
	if err := repo.db.SelectContext(ctx, &ids,
		`SELECT student_id FROM submissions WHERE exam_id = $1 ORDER BY seq`, examID); err != nil {
		return nil, errors.Wrap(err, "querying submitters")
	}
	return ids, nil
}

func (repo *examRepository) CreateEvaluations(ctx context.Context, evs []exam.Evaluation) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, ev := range evs {
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO evaluations (`+evaluationColumns+`)
				VALUES (:id, :exam_id, :evaluator, :evaluatee, :marks, :feedback, :status, :flagged, :created_at, :updated_at)`,
				toEvaluationRow(ev))
			if isUniqueViolation(err) {
				return core.NewConflictError("evaluation", ev.ID, "exists", "create")
			}
			if err != nil {
				return errors.Wrap(err, "inserting evaluation")
			}
		}
		return nil
	})
}

func (repo *examRepository) QueryEvaluations(ctx context.Context, filter exam.EvaluationFilter) ([]exam.Evaluation, error) {
	var w where
	w.addIfSet("exam_id", filter.ExamID)
	w.addIfSet("evaluator", filter.Evaluator)
	w.addIfSet("evaluatee", filter.Evaluatee)
	w.addIfSet("status", string(filter.Status))

	var rows []evaluationRow
	q := repo.db.Rebind(`SELECT ` + evaluationColumns + ` FROM evaluations` + w.String() + ` ORDER BY seq`)
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying evaluations")
	}
	evs := make([]exam.Evaluation, 0, len(rows))
	for _, r := range rows {
		evs = append(evs, r.evaluation())
	}
	return evs, nil
}

func (repo *examRepository) GetEvaluation(ctx context.Context, id string) (exam.Evaluation, error) {
	return getEvaluation(ctx, repo.db, id)
}

func getEvaluation(ctx context.Context, q sqlx.QueryerContext, id string) (exam.Evaluation, error) {
	var row evaluationRow
	if err := sqlx.GetContext(ctx, q, &row, `SELECT `+evaluationColumns+` FROM evaluations WHERE id = $1`, id); err != nil {
		return exam.Evaluation{}, trapNoRowsErr(err, core.NewNotFoundError("evaluation", id), "getting evaluation")
	}
	return row.evaluation(), nil
}

func (repo *examRepository) UpdateEvaluation(ctx context.Context, ev exam.Evaluation, expected exam.EvaluationState) (exam.Evaluation, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		return saveEvaluation(ctx, tx, exam.EvaluationWrite{Evaluation: ev, Expected: expected})
	})
	if err != nil {
		return exam.Evaluation{}, err
	}
	return ev, nil
}

// saveEvaluation overwrites the evaluation if its stored status and flag are still the expected ones.
func saveEvaluation(ctx context.Context, tx *sqlx.Tx, w exam.EvaluationWrite) error {
	row := toEvaluationRow(w.Evaluation)
	res, err := tx.ExecContext(ctx, `
		UPDATE evaluations
		SET evaluator = $2, marks = $3, feedback = $4, status = $5, flagged = $6, updated_at = $7
		WHERE id = $1 AND status = $8 AND flagged = $9`,
		row.ID, row.Evaluator, row.Marks, row.Feedback, row.Status, row.Flagged, row.UpdatedAt,
		string(w.Expected.Status), w.Expected.Flagged)
	if err != nil {
		return errors.Wrap(err, "updating evaluation")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "updating evaluation")
	} else if n == 1 {
		return nil
	}

	// tell a missing evaluation from a stale one
	current, err := getEvaluation(ctx, tx, w.Evaluation.ID)
	if err != nil {
		return err
	}
	return core.NewConflictError("evaluation", w.Evaluation.ID, current.State().String(), "update")
}
