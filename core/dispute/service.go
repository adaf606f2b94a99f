// Package dispute moves disputed and unmarked evaluations through flags and tickets until a reviewer settles them.
package dispute

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/exam"
	"github.com/hansini-nalla/pes-sub000/core/screening"
)

type (
	// Repository stores flags and tickets. Every update is a compare-and-set on the stored status:
	// it fails with a core.ConflictError when the status is no longer one of `from`.
	// An evaluation write passed along is a compare-and-set too, on the evaluation state, in the same transaction:
	// when either fails nothing is saved.
	Repository interface {
		// CreateFlag fails with a core.ConflictError when the evaluation already has an open flag.
		CreateFlag(ctx context.Context, f Flag) (Flag, error)
		GetFlag(ctx context.Context, id string) (Flag, error)
		QueryFlags(ctx context.Context, filter FlagFilter) ([]Flag, error)
		UpdateFlag(ctx context.Context, f Flag, ev *exam.EvaluationWrite, from ...FlagStatus) (Flag, error)

		// Unchecked tickets are unique per (exam, student, evaluator): a duplicate fails with a core.ConflictError.
		CreateTicket(ctx context.Context, t Ticket, ev *exam.EvaluationWrite) (Ticket, error)
		GetTicket(ctx context.Context, id string) (Ticket, error)
		QueryTickets(ctx context.Context, filter TicketFilter) ([]Ticket, error)
		UpdateTicket(ctx context.Context, t Ticket, ev *exam.EvaluationWrite, from ...TicketStatus) (Ticket, error)
	}

	// ExamStore is the part of the exam storage disputes read from.
	ExamStore interface {
		GetExam(ctx context.Context, id string) (exam.Exam, error)
		GetEvaluation(ctx context.Context, id string) (exam.Evaluation, error)
		QueryEvaluations(ctx context.Context, filter exam.EvaluationFilter) ([]exam.Evaluation, error)
	}

	// Roster resolves who reviews a student and who teaches a course.
	Roster interface {
		ResponsibleReviewer(ctx context.Context, studentID string) (reviewerID string, ok bool, err error)
		CourseTeachers(ctx context.Context, courseID string) ([]string, error)
	}

	Service struct {
		repo     Repository
		exams    ExamStore
		roster   Roster
		notifier core.Notifier
		logger   core.Logger
		nowFunc  func() time.Time
	}
)

func NewService(repo Repository, exams ExamStore, roster Roster, notifier core.Notifier, logger core.Logger) *Service {
	if notifier == nil {
		notifier = core.NopNotifier{}
	}
	return &Service{
		repo:     repo,
		exams:    exams,
		roster:   roster,
		notifier: notifier,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

func (svc *Service) now() time.Time { return svc.nowFunc().UTC() }

// RaiseDispute flags a completed, or forced to zero, evaluation.
// When the evaluation already has an open flag, that flag is returned.
func (svc *Service) RaiseDispute(ctx context.Context, evaluationID, raisedBy string) (Flag, error) {
	raisedBy = core.CleanString(raisedBy)
	if raisedBy == "" {
		return Flag{}, core.NewValidationError(nil, core.FieldError{Field: "raised_by", Error: "raised_by cannot be blank"})
	}
	ev, err := svc.exams.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return Flag{}, err
	}
	if !(ev.Status == exam.StatusCompleted || (ev.Status == exam.StatusPending && ev.Flagged)) {
		return Flag{}, core.NewConflictError("evaluation", ev.ID, string(ev.Status), "dispute")
	}

	if f, ok, err := svc.openFlag(ctx, ev.ID); err != nil || ok {
		return f, err
	}
	now := svc.now()
	f, err := svc.repo.CreateFlag(ctx, Flag{
		ID:           uuid.NewString(),
		ExamID:       ev.ExamID,
		EvaluationID: ev.ID,
		RaisedBy:     raisedBy,
		Status:       FlagPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if core.IsConflict(err) {
		// raced with another raiser
		if f, ok, err := svc.openFlag(ctx, ev.ID); err != nil || ok {
			return f, err
		}
	}
	if err != nil {
		return Flag{}, err
	}
	svc.logger.Info("dispute raised", map[string]interface{}{"flag": f.ID, "evaluation": ev.ID, "raised_by": raisedBy})
	return f, nil
}

func (svc *Service) openFlag(ctx context.Context, evaluationID string) (Flag, bool, error) {
	flags, err := svc.repo.QueryFlags(ctx, FlagFilter{EvaluationID: evaluationID, Statuses: OpenFlagStatuses})
	if err != nil {
		return Flag{}, false, errors.Wrap(err, "querying open flags")
	}
	if len(flags) == 0 {
		return Flag{}, false, nil
	}
	return flags[0], true, nil
}

// ResolveFlag settles a pending or escalated flag, overwriting the evaluation when marks or feedback are given.
// A zeroed evaluation cannot be overwritten while its unchecked ticket is open.
// The raiser is notified.
func (svc *Service) ResolveFlag(ctx context.Context, flagID string, res Resolution) (Flag, error) {
	if err := res.Validate(); err != nil {
		return Flag{}, err
	}
	f, err := svc.repo.GetFlag(ctx, flagID)
	if err != nil {
		return Flag{}, err
	}
	if !f.IsOpen() {
		return Flag{}, core.NewConflictError("flag", f.ID, string(f.Status), "resolve")
	}

	var evWrite *exam.EvaluationWrite
	if res.Marks != nil || res.Feedback != nil {
		ev, err := svc.exams.GetEvaluation(ctx, f.EvaluationID)
		if err != nil {
			return Flag{}, err
		}
		if ev.ForcedToZero() {
			open, err := svc.repo.QueryTickets(ctx, TicketFilter{
				ExamID: ev.ExamID, Student: ev.Evaluatee, Evaluator: ev.Evaluator, Message: UncheckedMessage, Status: TicketOpen,
			})
			if err != nil {
				return Flag{}, errors.Wrap(err, "querying unchecked tickets")
			}
			if len(open) > 0 {
				return Flag{}, core.NewConflictError("evaluation", ev.ID, "awaiting unchecked ticket "+open[0].ID, "resolve flag of")
			}
		}
		expected := ev.State()
		if res.Marks != nil {
			e, err := svc.exams.GetExam(ctx, ev.ExamID)
			if err != nil {
				return Flag{}, err
			}
			if err := exam.ValidateMarks(e, res.Marks); err != nil {
				return Flag{}, err
			}
			ev.Marks = res.Marks
		}
		if res.Feedback != nil {
			ev.Feedback = core.CleanString(*res.Feedback)
		}
		ev.Status = exam.StatusCompleted
		ev.UpdatedAt = svc.now()
		evWrite = &exam.EvaluationWrite{Evaluation: ev, Expected: expected}
	}

	now := svc.now()
	f.Status = FlagResolved
	f.ResolvedBy = res.ResolvedBy
	f.ResolvedAt = &now
	f.UpdatedAt = now
	f, err = svc.repo.UpdateFlag(ctx, f, evWrite, OpenFlagStatuses...)
	if err != nil {
		return Flag{}, err
	}
	svc.logger.Info("flag resolved", map[string]interface{}{"flag": f.ID, "resolved_by": f.ResolvedBy, "marks_changed": res.Marks != nil})
	svc.notifier.Notify(ctx, core.Notification{
		Kind:       core.NotifyFlagResolved,
		ExamID:     f.ExamID,
		SubjectID:  f.ID,
		Recipients: []string{f.RaisedBy},
	})
	return f, nil
}

// EscalateFlag defers a pending flag to the course teachers, who are notified along with the raiser.
func (svc *Service) EscalateFlag(ctx context.Context, flagID string, esc Escalation) (Flag, error) {
	if err := esc.Validate(); err != nil {
		return Flag{}, err
	}
	f, err := svc.repo.GetFlag(ctx, flagID)
	if err != nil {
		return Flag{}, err
	}
	if f.Status != FlagPending {
		return Flag{}, core.NewConflictError("flag", f.ID, string(f.Status), "escalate")
	}
	e, err := svc.exams.GetExam(ctx, f.ExamID)
	if err != nil {
		return Flag{}, err
	}
	teachers, err := svc.roster.CourseTeachers(ctx, e.CourseID)
	if err != nil {
		return Flag{}, errors.Wrap(err, "querying course teachers")
	}

	f.Status = FlagEscalated
	f.EscalationReason = esc.Reason
	f.UpdatedAt = svc.now()
	f, err = svc.repo.UpdateFlag(ctx, f, nil, FlagPending)
	if err != nil {
		return Flag{}, err
	}
	svc.logger.Info("flag escalated", map[string]interface{}{"flag": f.ID, "teachers": len(teachers)})
	svc.notifier.Notify(ctx, core.Notification{
		Kind:       core.NotifyFlagEscalated,
		ExamID:     f.ExamID,
		SubjectID:  f.ID,
		Recipients: append([]string{f.RaisedBy}, teachers...),
		Data:       map[string]string{"reason": f.EscalationReason},
	})
	return f, nil
}

// SweepNonResponders forces to zero every pending evaluation of the exam and opens an unchecked ticket for it,
// addressed to the evaluatee's reviewer. Evaluations already ticketed are skipped, so sweeping twice is harmless.
// Evaluations whose evaluatee has no reviewer are left untouched and reported.
func (svc *Service) SweepNonResponders(ctx context.Context, examID string) (SweepResult, error) {
	e, err := svc.exams.GetExam(ctx, examID)
	if err != nil {
		return SweepResult{}, err
	}
	pending, err := svc.exams.QueryEvaluations(ctx, exam.EvaluationFilter{ExamID: examID, Status: exam.StatusPending})
	if err != nil {
		return SweepResult{}, errors.Wrap(err, "querying pending evaluations")
	}
	existing, err := svc.repo.QueryTickets(ctx, TicketFilter{ExamID: examID, Message: UncheckedMessage})
	if err != nil {
		return SweepResult{}, errors.Wrap(err, "querying unchecked tickets")
	}
	type triple struct{ student, evaluator string }
	ticketed := make(map[triple]bool, len(existing))
	for _, t := range existing {
		ticketed[triple{t.Student, t.Evaluator}] = true
	}

	result := SweepResult{Created: make([]Ticket, 0)}
	for _, ev := range pending {
		if ticketed[triple{ev.Evaluatee, ev.Evaluator}] {
			result.Skipped++
			continue
		}
		reviewer, ok, err := svc.roster.ResponsibleReviewer(ctx, ev.Evaluatee)
		if err != nil {
			return result, errors.Wrapf(err, "resolving reviewer of %s", ev.Evaluatee)
		}
		if !ok {
			svc.logger.Warn("no reviewer for unchecked evaluation", map[string]interface{}{"evaluation": ev.ID, "student": ev.Evaluatee})
			result.Unrouted = append(result.Unrouted, ev.ID)
			continue
		}

		now := svc.now()
		ev.Marks = exam.Zeros(e)
		ev.Flagged = true
		ev.UpdatedAt = now
		t, err := svc.repo.CreateTicket(ctx, Ticket{
			ID:           uuid.NewString(),
			ExamID:       examID,
			Student:      ev.Evaluatee,
			Evaluator:    ev.Evaluator,
			Reviewer:     reviewer,
			EvaluationID: ev.ID,
			Message:      UncheckedMessage,
			Status:       TicketOpen,
			CreatedAt:    now,
			UpdatedAt:    now,
		}, &exam.EvaluationWrite{Evaluation: ev, Expected: exam.EvaluationState{Status: exam.StatusPending}})
		if core.IsConflict(err) {
			// ticketed or submitted since the evaluations were read
			result.Skipped++
			continue
		}
		if err != nil {
			return result, errors.Wrapf(err, "ticketing evaluation %s", ev.ID)
		}
		ticketed[triple{t.Student, t.Evaluator}] = true
		result.Created = append(result.Created, t)
	}
	svc.logger.Info("non responders swept", map[string]interface{}{
		"exam": examID, "created": len(result.Created), "skipped": result.Skipped, "unrouted": len(result.Unrouted),
	})
	return result, nil
}

// CompleteUncheckedTicket lets a reviewer mark an evaluation nobody submitted, then closes its ticket.
// The reviewer becomes the evaluator of the evaluation, which must still be zeroed.
func (svc *Service) CompleteUncheckedTicket(ctx context.Context, ticketID string, uc UncheckedCompletion) (Ticket, error) {
	if err := uc.Validate(); err != nil {
		return Ticket{}, err
	}
	t, err := svc.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	if !t.IsUnchecked() {
		return Ticket{}, core.NewInvalidRequestError("ticket " + t.ID + " is not an unchecked evaluation ticket")
	}
	if t.Status != TicketOpen {
		return Ticket{}, core.NewConflictError("ticket", t.ID, string(t.Status), "complete")
	}
	ev, err := svc.exams.GetEvaluation(ctx, t.EvaluationID)
	if err != nil {
		return Ticket{}, err
	}
	if !ev.ForcedToZero() {
		return Ticket{}, core.NewConflictError("evaluation", ev.ID, ev.State().String(), "complete unchecked")
	}
	e, err := svc.exams.GetExam(ctx, ev.ExamID)
	if err != nil {
		return Ticket{}, err
	}
	if err := exam.ValidateMarks(e, uc.Marks); err != nil {
		return Ticket{}, err
	}

	now := svc.now()
	expected := ev.State()
	previousEvaluator := ev.Evaluator
	ev.Evaluator = uc.Reviewer
	ev.Marks = uc.Marks
	ev.Feedback = uc.Feedback
	ev.Flagged = false
	ev.Status = exam.StatusCompleted
	ev.UpdatedAt = now

	t.Status = TicketClosed
	t.ClosedAt = &now
	t.UpdatedAt = now
	t, err = svc.repo.UpdateTicket(ctx, t, &exam.EvaluationWrite{Evaluation: ev, Expected: expected}, TicketOpen)
	if err != nil {
		return Ticket{}, err
	}
	svc.logger.Info("unchecked evaluation completed", map[string]interface{}{"ticket": t.ID, "evaluation": ev.ID, "reviewer": uc.Reviewer})
	svc.notifier.Notify(ctx, core.Notification{
		Kind:       core.NotifyUncheckedCompleted,
		ExamID:     t.ExamID,
		SubjectID:  t.ID,
		Recipients: []string{t.Student, previousEvaluator},
	})
	return t, nil
}

// EscalateTicket hands an open ticket over to the course teachers, who are notified.
// Escalating twice is a no-op.
func (svc *Service) EscalateTicket(ctx context.Context, ticketID string) (Ticket, error) {
	t, err := svc.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	if t.EscalatedToTeacher {
		return t, nil
	}
	if t.Status != TicketOpen {
		return Ticket{}, core.NewConflictError("ticket", t.ID, string(t.Status), "escalate")
	}
	e, err := svc.exams.GetExam(ctx, t.ExamID)
	if err != nil {
		return Ticket{}, err
	}
	teachers, err := svc.roster.CourseTeachers(ctx, e.CourseID)
	if err != nil {
		return Ticket{}, errors.Wrap(err, "querying course teachers")
	}

	t.EscalatedToTeacher = true
	t.UpdatedAt = svc.now()
	t, err = svc.repo.UpdateTicket(ctx, t, nil, TicketOpen)
	if err != nil {
		return Ticket{}, err
	}
	svc.notifier.Notify(ctx, core.Notification{
		Kind:       core.NotifyTicketEscalated,
		ExamID:     t.ExamID,
		SubjectID:  t.ID,
		Recipients: teachers,
	})
	return t, nil
}

// CloseTicket closes an open ticket without touching its evaluation.
func (svc *Service) CloseTicket(ctx context.Context, ticketID string) (Ticket, error) {
	t, err := svc.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	if t.Status != TicketOpen {
		return Ticket{}, core.NewConflictError("ticket", t.ID, string(t.Status), "close")
	}
	now := svc.now()
	t.Status = TicketClosed
	t.ClosedAt = &now
	t.UpdatedAt = now
	return svc.repo.UpdateTicket(ctx, t, nil, TicketOpen)
}

// RaiseScreeningTicket opens a ticket for a student flagged by screening,
// unless the student already has an open ticket for the exam.
func (svc *Service) RaiseScreeningTicket(ctx context.Context, e exam.Exam, v screening.Verdict) (raised, routed bool, err error) {
	open, err := svc.repo.QueryTickets(ctx, TicketFilter{ExamID: e.ID, Student: v.Student, Status: TicketOpen})
	if err != nil {
		return false, false, errors.Wrap(err, "querying open tickets")
	}
	if len(open) > 0 {
		return false, true, nil
	}
	reviewer, ok, err := svc.roster.ResponsibleReviewer(ctx, v.Student)
	if err != nil {
		return false, false, errors.Wrapf(err, "resolving reviewer of %s", v.Student)
	}
	if !ok {
		svc.logger.Warn("no reviewer for flagged student", map[string]interface{}{"exam": e.ID, "student": v.Student})
		return false, false, nil
	}
	now := svc.now()
	if _, err := svc.repo.CreateTicket(ctx, Ticket{
		ID:        uuid.NewString(),
		ExamID:    e.ID,
		Student:   v.Student,
		Reviewer:  reviewer,
		Message:   ScreeningMessage,
		Status:    TicketOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil); err != nil {
		return false, true, err
	}
	return true, true, nil
}

func (svc *Service) GetFlag(ctx context.Context, id string) (Flag, error) {
	return svc.repo.GetFlag(ctx, id)
}

func (svc *Service) Flags(ctx context.Context, filter FlagFilter) ([]Flag, error) {
	return svc.repo.QueryFlags(ctx, filter)
}

func (svc *Service) GetTicket(ctx context.Context, id string) (Ticket, error) {
	return svc.repo.GetTicket(ctx, id)
}

func (svc *Service) Tickets(ctx context.Context, filter TicketFilter) ([]Ticket, error) {
	return svc.repo.QueryTickets(ctx, filter)
}
