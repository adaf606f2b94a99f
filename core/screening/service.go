package screening

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/exam"
)

type (
	Repository interface {
		// ReplaceVerdicts atomically replaces every verdict of the exam with verdicts.
		ReplaceVerdicts(ctx context.Context, examID string, verdicts []Verdict) error
		QueryVerdicts(ctx context.Context, examID string) ([]Verdict, error)
	}

	// ExamReader is the part of the exam storage screening reads from.
	ExamReader interface {
		GetExam(ctx context.Context, id string) (exam.Exam, error)
		QueryEvaluations(ctx context.Context, filter exam.EvaluationFilter) ([]exam.Evaluation, error)
	}

	// TicketRaiser opens a ticket for a flagged student unless one is already open for the exam.
	// routed is false when nobody is responsible for the student.
	TicketRaiser interface {
		RaiseScreeningTicket(ctx context.Context, e exam.Exam, v Verdict) (raised, routed bool, err error)
	}

	Service struct {
		repo       Repository
		exams      ExamReader
		tickets    TicketRaiser
		thresholds Thresholds
		logger     core.Logger
		nowFunc    func() time.Time
	}

	Report struct {
		ExamID   string     `json:"exam_id"`
		Policy   PolicyKind `json:"policy"`
		Verdicts []Verdict  `json:"verdicts"`
		Flagged  int        `json:"flagged"`
		// filled when tickets were requested
		TicketsRaised []string `json:"tickets_raised,omitempty"` // students
		Unrouted      []string `json:"unrouted,omitempty"`       // flagged students nobody reviews
	}
)

// NewService builds a screening Service. tickets may be nil when tickets are never raised.
func NewService(repo Repository, exams ExamReader, tickets TicketRaiser, thresholds Thresholds, logger core.Logger) *Service {
	return &Service{
		repo:       repo,
		exams:      exams,
		tickets:    tickets,
		thresholds: thresholds,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

// ScreenExam screens the completed evaluations of the exam and replaces its stored verdicts.
// With raiseTickets, every flagged student without an open ticket for the exam gets one.
func (svc *Service) ScreenExam(ctx context.Context, examID string, raiseTickets bool) (Report, error) {
	e, err := svc.exams.GetExam(ctx, examID)
	if err != nil {
		return Report{}, err
	}
	evs, err := svc.exams.QueryEvaluations(ctx, exam.EvaluationFilter{ExamID: examID, Status: exam.StatusCompleted})
	if err != nil {
		return Report{}, errors.Wrap(err, "querying evaluations")
	}

	policy := SelectPolicy(e.PeersPerStudent, svc.thresholds)
	verdicts := policy.Screen(GroupByEvaluatee(evs))
	now := svc.nowFunc().UTC()
	report := Report{ExamID: examID, Policy: policy.Kind(), Verdicts: verdicts}
	for i := range verdicts {
		verdicts[i].ExamID = examID
		verdicts[i].ComputedAt = now
		if verdicts[i].Flagged {
			report.Flagged++
		}
	}
	if err := svc.repo.ReplaceVerdicts(ctx, examID, verdicts); err != nil {
		return Report{}, errors.Wrap(err, "replacing verdicts")
	}
	svc.logger.Info("exam screened", map[string]interface{}{
		"exam": examID, "policy": string(policy.Kind()), "verdicts": len(verdicts), "flagged": report.Flagged,
	})

	if !raiseTickets || svc.tickets == nil {
		return report, nil
	}
	for _, v := range verdicts {
		if !v.Flagged {
			continue
		}
		raised, routed, err := svc.tickets.RaiseScreeningTicket(ctx, e, v)
		if err != nil {
			return report, errors.Wrapf(err, "raising ticket for %s", v.Student)
		}
		switch {
		case !routed:
			report.Unrouted = append(report.Unrouted, v.Student)
		case raised:
			report.TicketsRaised = append(report.TicketsRaised, v.Student)
		}
	}
	return report, nil
}

func (svc *Service) Verdicts(ctx context.Context, examID string) ([]Verdict, error) {
	if _, err := svc.exams.GetExam(ctx, examID); err != nil {
		return nil, err
	}
	return svc.repo.QueryVerdicts(ctx, examID)
}
