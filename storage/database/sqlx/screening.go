package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/hansini-nalla/pes-sub000/core/screening"
)

type verdictRow struct {
	ExamID                 string          `db:"exam_id"`
	Student                string          `db:"student"`
	Position               int             `db:"position"`
	Policy                 string          `db:"policy"`
	Average                float64         `db:"average"`
	StandardDeviation      float64         `db:"standard_deviation"`
	ClassAverage           null.Float64    `db:"class_average"`
	ClassStandardDeviation null.Float64    `db:"class_standard_deviation"`
	Flagged                bool            `db:"flagged"`
	RawMarks               pq.Float64Array `db:"raw_marks"`
	ComputedAt             time.Time       `db:"computed_at"`
}

func (r verdictRow) verdict() screening.Verdict {
	return screening.Verdict{
		ExamID:                 r.ExamID,
		Student:                r.Student,
		Policy:                 screening.PolicyKind(r.Policy),
		Average:                r.Average,
		StandardDeviation:      r.StandardDeviation,
		ClassAverage:           r.ClassAverage.Ptr(),
		ClassStandardDeviation: r.ClassStandardDeviation.Ptr(),
		Flagged:                r.Flagged,
		RawMarks:               []float64(r.RawMarks),
		ComputedAt:             r.ComputedAt.UTC(),
	}
}

type verdictRepository struct {
	db *sqlx.DB
}

var _ screening.Repository = (*verdictRepository)(nil) // interface compliance check

func NewVerdictRepository(db *sqlx.DB) *verdictRepository {
	return &verdictRepository{db: db}
}

func (repo *verdictRepository) ReplaceVerdicts(ctx context.Context, examID string, verdicts []screening.Verdict) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM verdicts WHERE exam_id = $1`, examID); err != nil {
			return errors.Wrap(err, "deleting verdicts")
		}
		for i, v := range verdicts {
			row := verdictRow{
				ExamID:                 examID,
				Student:                v.Student,
				Position:               i,
				Policy:                 string(v.Policy),
				Average:                v.Average,
				StandardDeviation:      v.StandardDeviation,
				ClassAverage:           null.Float64FromPtr(v.ClassAverage),
				ClassStandardDeviation: null.Float64FromPtr(v.ClassStandardDeviation),
				Flagged:                v.Flagged,
				RawMarks:               pq.Float64Array(v.RawMarks),
				ComputedAt:             v.ComputedAt.UTC(),
			}
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO verdicts (exam_id, student, position, policy, average, standard_deviation,
					class_average, class_standard_deviation, flagged, raw_marks, computed_at)
				VALUES (:exam_id, :student, :position, :policy, :average, :standard_deviation,
					:class_average, :class_standard_deviation, :flagged, :raw_marks, :computed_at)`, row); err != nil {
				return errors.Wrap(err, "inserting verdict")
			}
		}
		return nil
	})
}

func (repo *verdictRepository) QueryVerdicts(ctx context.Context, examID string) ([]screening.Verdict, error) {
	var rows []verdictRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT exam_id, student, position, policy, average, standard_deviation,
			class_average, class_standard_deviation, flagged, raw_marks, computed_at
		FROM verdicts WHERE exam_id = $1 ORDER BY position`, examID)
	if err != nil {
		return nil, errors.Wrap(err, "querying verdicts")
	}
	verdicts := make([]screening.Verdict, 0, len(rows))
	for _, r := range rows {
		verdicts = append(verdicts, r.verdict())
	}
	return verdicts, nil
}
