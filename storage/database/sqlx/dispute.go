package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/dispute"
	"github.com/hansini-nalla/pes-sub000/core/exam"
)

type flagRow struct {
	ID               string      `db:"id"`
	ExamID           string      `db:"exam_id"`
	EvaluationID     string      `db:"evaluation_id"`
	RaisedBy         string      `db:"raised_by"`
	Status           string      `db:"status"`
	ResolvedBy       null.String `db:"resolved_by"`
	EscalationReason null.String `db:"escalation_reason"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
	ResolvedAt       null.Time   `db:"resolved_at"`
}

func toFlagRow(f dispute.Flag) flagRow {
	return flagRow{
		ID:               f.ID,
		ExamID:           f.ExamID,
		EvaluationID:     f.EvaluationID,
		RaisedBy:         f.RaisedBy,
		Status:           string(f.Status),
		ResolvedBy:       null.NewString(f.ResolvedBy, f.ResolvedBy != ""),
		EscalationReason: null.NewString(f.EscalationReason, f.EscalationReason != ""),
		CreatedAt:        f.CreatedAt.UTC(),
		UpdatedAt:        f.UpdatedAt.UTC(),
		ResolvedAt:       null.TimeFromPtr(f.ResolvedAt),
	}
}

func (r flagRow) flag() dispute.Flag {
	f := dispute.Flag{
		ID:               r.ID,
		ExamID:           r.ExamID,
		EvaluationID:     r.EvaluationID,
		RaisedBy:         r.RaisedBy,
		Status:           dispute.FlagStatus(r.Status),
		ResolvedBy:       r.ResolvedBy.String,
		EscalationReason: r.EscalationReason.String,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
	if r.ResolvedAt.Valid {
		t := r.ResolvedAt.Time.UTC()
		f.ResolvedAt = &t
	}
	return f
}

type ticketRow struct {
	ID                 string      `db:"id"`
	ExamID             string      `db:"exam_id"`
	Student            string      `db:"student"`
	Evaluator          null.String `db:"evaluator"`
	Reviewer           string      `db:"reviewer"`
	EvaluationID       null.String `db:"evaluation_id"`
	Message            string      `db:"message"`
	Status             string      `db:"status"`
	EscalatedToTeacher bool        `db:"escalated_to_teacher"`
	CreatedAt          time.Time   `db:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at"`
	ClosedAt           null.Time   `db:"closed_at"`
}

func toTicketRow(t dispute.Ticket) ticketRow {
	return ticketRow{
		ID:                 t.ID,
		ExamID:             t.ExamID,
		Student:            t.Student,
		Evaluator:          null.NewString(t.Evaluator, t.Evaluator != ""),
		Reviewer:           t.Reviewer,
		EvaluationID:       null.NewString(t.EvaluationID, t.EvaluationID != ""),
		Message:            t.Message,
		Status:             string(t.Status),
		EscalatedToTeacher: t.EscalatedToTeacher,
		CreatedAt:          t.CreatedAt.UTC(),
		UpdatedAt:          t.UpdatedAt.UTC(),
		ClosedAt:           null.TimeFromPtr(t.ClosedAt),
	}
}

func (r ticketRow) ticket() dispute.Ticket {
	t := dispute.Ticket{
		ID:                 r.ID,
		ExamID:             r.ExamID,
		Student:            r.Student,
		Evaluator:          r.Evaluator.String,
		Reviewer:           r.Reviewer,
		EvaluationID:       r.EvaluationID.String,
		Message:            r.Message,
		Status:             dispute.TicketStatus(r.Status),
		EscalatedToTeacher: r.EscalatedToTeacher,
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
	if r.ClosedAt.Valid {
		closed := r.ClosedAt.Time.UTC()
		t.ClosedAt = &closed
	}
	return t
}

const (
	flagColumns   = `id, exam_id, evaluation_id, raised_by, status, resolved_by, escalation_reason, created_at, updated_at, resolved_at`
	ticketColumns = `id, exam_id, student, evaluator, reviewer, evaluation_id, message, status, escalated_to_teacher, created_at, updated_at, closed_at`
)

type disputeRepository struct {
	db *sqlx.DB
}

var _ dispute.Repository = (*disputeRepository)(nil) // interface compliance check

func NewDisputeRepository(db *sqlx.DB) *disputeRepository {
	return &disputeRepository{db: db}
}

func (repo *disputeRepository) CreateFlag(ctx context.Context, f dispute.Flag) (dispute.Flag, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO flags (`+flagColumns+`)
		VALUES (:id, :exam_id, :evaluation_id, :raised_by, :status, :resolved_by, :escalation_reason, :created_at, :updated_at, :resolved_at)`,
		toFlagRow(f))
	if isUniqueViolation(err) {
		return dispute.Flag{}, core.NewConflictError("evaluation", f.EvaluationID, "disputed", "flag")
	}
	if err != nil {
		return dispute.Flag{}, errors.Wrap(err, "inserting flag")
	}
	return f, nil
}

func (repo *disputeRepository) GetFlag(ctx context.Context, id string) (dispute.Flag, error) {
	return getFlag(ctx, repo.db, id)
}

func getFlag(ctx context.Context, q sqlx.QueryerContext, id string) (dispute.Flag, error) {
	var row flagRow
	if err := sqlx.GetContext(ctx, q, &row, `SELECT `+flagColumns+` FROM flags WHERE id = $1`, id); err != nil {
		return dispute.Flag{}, trapNoRowsErr(err, core.NewNotFoundError("flag", id), "getting flag")
	}
	return row.flag(), nil
}

func (repo *disputeRepository) QueryFlags(ctx context.Context, filter dispute.FlagFilter) ([]dispute.Flag, error) {
	var w where
	w.addIfSet("exam_id", filter.ExamID)
	w.addIfSet("evaluation_id", filter.EvaluationID)
	w.addIfSet("raised_by", filter.RaisedBy)
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		w.add("status = ANY(?)", pq.StringArray(statuses))
	}

	var rows []flagRow
	q := repo.db.Rebind(`SELECT ` + flagColumns + ` FROM flags` + w.String() + ` ORDER BY seq`)
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying flags")
	}
	flags := make([]dispute.Flag, 0, len(rows))
	for _, r := range rows {
		flags = append(flags, r.flag())
	}
	return flags, nil
}

func (repo *disputeRepository) UpdateFlag(ctx context.Context, f dispute.Flag, ev *exam.EvaluationWrite, from ...dispute.FlagStatus) (dispute.Flag, error) {
	statuses := make([]string, 0, len(from))
	for _, s := range from {
		statuses = append(statuses, string(s))
	}
	row := toFlagRow(f)
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE flags
			SET status = $2, resolved_by = $3, escalation_reason = $4, updated_at = $5, resolved_at = $6
			WHERE id = $1 AND status = ANY($7::text[])`,
			row.ID, row.Status, row.ResolvedBy, row.EscalationReason, row.UpdatedAt, row.ResolvedAt, pq.StringArray(statuses))
		if err != nil {
			return errors.Wrap(err, "updating flag")
		}
		if n, err := res.RowsAffected(); err != nil {
			return errors.Wrap(err, "updating flag")
		} else if n == 0 {
			current, err := getFlag(ctx, tx, f.ID)
			if err != nil {
				return err
			}
			return core.NewConflictError("flag", f.ID, string(current.Status), "update")
		}
		if ev != nil {
			return saveEvaluation(ctx, tx, *ev)
		}
		return nil
	})
	if err != nil {
		return dispute.Flag{}, err
	}
	return f, nil
}

func (repo *disputeRepository) CreateTicket(ctx context.Context, t dispute.Ticket, ev *exam.EvaluationWrite) (dispute.Ticket, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO tickets (`+ticketColumns+`)
			VALUES (:id, :exam_id, :student, :evaluator, :reviewer, :evaluation_id, :message, :status, :escalated_to_teacher, :created_at, :updated_at, :closed_at)`,
			toTicketRow(t))
		if isUniqueViolation(err) {
			return core.NewConflictError("ticket", t.ID, "exists", "duplicate")
		}
		if err != nil {
			return errors.Wrap(err, "inserting ticket")
		}
		if ev != nil {
			return saveEvaluation(ctx, tx, *ev)
		}
		return nil
	})
	if err != nil {
		return dispute.Ticket{}, err
	}
	return t, nil
}

func (repo *disputeRepository) GetTicket(ctx context.Context, id string) (dispute.Ticket, error) {
	return getTicket(ctx, repo.db, id)
}

func getTicket(ctx context.Context, q sqlx.QueryerContext, id string) (dispute.Ticket, error) {
	var row ticketRow
	if err := sqlx.GetContext(ctx, q, &row, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id); err != nil {
		return dispute.Ticket{}, trapNoRowsErr(err, core.NewNotFoundError("ticket", id), "getting ticket")
	}
	return row.ticket(), nil
}

func (repo *disputeRepository) QueryTickets(ctx context.Context, filter dispute.TicketFilter) ([]dispute.Ticket, error) {
	var w where
	w.addIfSet("exam_id", filter.ExamID)
	w.addIfSet("student", filter.Student)
	w.addIfSet("evaluator", filter.Evaluator)
	w.addIfSet("reviewer", filter.Reviewer)
	w.addIfSet("message", filter.Message)
	w.addIfSet("status", string(filter.Status))

	var rows []ticketRow
	q := repo.db.Rebind(`SELECT ` + ticketColumns + ` FROM tickets` + w.String() + ` ORDER BY seq`)
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying tickets")
	}
	tickets := make([]dispute.Ticket, 0, len(rows))
	for _, r := range rows {
		tickets = append(tickets, r.ticket())
	}
	return tickets, nil
}

func (repo *disputeRepository) UpdateTicket(ctx context.Context, t dispute.Ticket, ev *exam.EvaluationWrite, from ...dispute.TicketStatus) (dispute.Ticket, error) {
	statuses := make([]string, 0, len(from))
	for _, s := range from {
		statuses = append(statuses, string(s))
	}
	row := toTicketRow(t)
	var saved dispute.Ticket
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		// escalation is one-way: OR it with the stored value
		res, err := tx.ExecContext(ctx, `
			UPDATE tickets
			SET status = $2, escalated_to_teacher = escalated_to_teacher OR $3, updated_at = $4, closed_at = $5
			WHERE id = $1 AND status = ANY($6::text[])`,
			row.ID, row.Status, row.EscalatedToTeacher, row.UpdatedAt, row.ClosedAt, pq.StringArray(statuses))
		if err != nil {
			return errors.Wrap(err, "updating ticket")
		}
		if n, err := res.RowsAffected(); err != nil {
			return errors.Wrap(err, "updating ticket")
		} else if n == 0 {
			current, err := getTicket(ctx, tx, t.ID)
			if err != nil {
				return err
			}
			return core.NewConflictError("ticket", t.ID, string(current.Status), "update")
		}
		if ev != nil {
			if err := saveEvaluation(ctx, tx, *ev); err != nil {
				return err
			}
		}
		saved, err = getTicket(ctx, tx, t.ID)
		return err
	})
	if err != nil {
		return dispute.Ticket{}, err
	}
	return saved, nil
}
