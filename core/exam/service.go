package exam

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/assignment"
)

// ErrInfeasible is returned when the submitters of an exam admit no k-regular assignment.
var ErrInfeasible = errors.New("no balanced assignment exists for the exam submitters")

type (
	Repository interface {
		CreateExam(ctx context.Context, e Exam) (Exam, error)
		GetExam(ctx context.Context, id string) (Exam, error)
		// AddSubmission records a submission, a student submitting twice keeps its first rank.
		AddSubmission(ctx context.Context, sub Submission) (Submission, error)
		// QuerySubmitters returns the exam submitters in submission order.
		QuerySubmitters(ctx context.Context, examID string) ([]string, error)
		// CreateEvaluations stores all the evaluations or none.
		CreateEvaluations(ctx context.Context, evs []Evaluation) error
		// QueryEvaluations returns the matching evaluations in creation order.
		QueryEvaluations(ctx context.Context, filter EvaluationFilter) ([]Evaluation, error)
		GetEvaluation(ctx context.Context, id string) (Evaluation, error)
		// UpdateEvaluation saves ev only if the stored evaluation is still in the expected state,
		// it fails with a core.ConflictError otherwise.
		UpdateEvaluation(ctx context.Context, ev Evaluation, expected EvaluationState) (Evaluation, error)
	}

	Service struct {
		repo   Repository
		logger core.Logger
	}

	// Allocation is the outcome of a successful exam allocation.
	Allocation struct {
		Exam        Exam         `json:"exam"`
		Evaluations []Evaluation `json:"evaluations"`
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (svc *Service) Create(ctx context.Context, ne NewExam) (Exam, error) {
	if err := ne.Validate(); err != nil {
		return Exam{}, err
	}
	return svc.repo.CreateExam(ctx, Exam{
		ID:                  uuid.NewString(),
		CourseID:            ne.CourseID,
		Title:               ne.Title,
		QuestionCount:       ne.QuestionCount,
		MaxMarksPerQuestion: ne.MaxMarksPerQuestion,
		PeersPerStudent:     ne.PeersPerStudent,
		CreatedAt:           time.Now().UTC(),
	})
}

func (svc *Service) Get(ctx context.Context, id string) (Exam, error) {
	return svc.repo.GetExam(ctx, id)
}

func (svc *Service) Submit(ctx context.Context, examID, studentID string) (Submission, error) {
	if _, err := svc.repo.GetExam(ctx, examID); err != nil {
		return Submission{}, err
	}
	studentID = core.CleanString(studentID)
	if studentID == "" {
		return Submission{}, core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: "student_id cannot be blank"})
	}
	return svc.repo.AddSubmission(ctx, Submission{ExamID: examID, StudentID: studentID, SubmittedAt: time.Now().UTC()})
}

// Allocate assigns k peers to every submitter of the exam and stores the resulting pending evaluations.
// An exam is allocated once: later calls fail with a core.ConflictError.
func (svc *Service) Allocate(ctx context.Context, examID string) (Allocation, error) {
	e, err := svc.repo.GetExam(ctx, examID)
	if err != nil {
		return Allocation{}, err
	}
	existing, err := svc.repo.QueryEvaluations(ctx, EvaluationFilter{ExamID: examID})
	if err != nil {
		return Allocation{}, errors.Wrap(err, "querying evaluations")
	}
	if len(existing) > 0 {
		return Allocation{}, core.NewConflictError("exam", examID, "allocated", "allocate")
	}
	submitters, err := svc.repo.QuerySubmitters(ctx, examID)
	if err != nil {
		return Allocation{}, errors.Wrap(err, "querying submitters")
	}

	res, err := assignment.Assign(assignment.Request{Submitters: submitters, K: e.PeersPerStudent})
	if err != nil {
		return Allocation{}, err
	}
	if !res.Feasible {
		svc.logger.Warn("exam allocation infeasible", map[string]interface{}{"exam": examID, "n": len(submitters), "k": e.PeersPerStudent})
		return Allocation{}, ErrInfeasible
	}

	now := time.Now().UTC()
	evs := make([]Evaluation, 0, len(res.Pairs))
	for _, p := range res.Pairs {
		evs = append(evs, Evaluation{
			ID:        uuid.NewString(),
			ExamID:    examID,
			Evaluator: p.Evaluator,
			Evaluatee: p.Evaluatee,
			Marks:     []float64{},
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if err := svc.repo.CreateEvaluations(ctx, evs); err != nil {
		return Allocation{}, errors.Wrap(err, "creating evaluations")
	}
	svc.logger.Info("exam allocated", map[string]interface{}{"exam": examID, "n": len(submitters), "k": e.PeersPerStudent, "evaluations": len(evs)})
	return Allocation{Exam: e, Evaluations: evs}, nil
}

// SubmitMarks completes a pending evaluation on behalf of its evaluator.
func (svc *Service) SubmitMarks(ctx context.Context, evaluationID, evaluatorID string, marks []float64, feedback string) (Evaluation, error) {
	ev, err := svc.repo.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return Evaluation{}, err
	}
	if ev.Evaluator != evaluatorID {
		return Evaluation{}, core.NewConflictError("evaluation", evaluationID, "assigned to "+ev.Evaluator, "submit marks of")
	}
	// a zeroed evaluation belongs to the reviewer of its unchecked ticket
	if ev.State() != (EvaluationState{Status: StatusPending}) {
		return Evaluation{}, core.NewConflictError("evaluation", evaluationID, ev.State().String(), "submit marks of")
	}
	e, err := svc.repo.GetExam(ctx, ev.ExamID)
	if err != nil {
		return Evaluation{}, err
	}
	if err := ValidateMarks(e, marks); err != nil {
		return Evaluation{}, err
	}

	ev.Marks = marks
	ev.Feedback = core.CleanString(feedback)
	ev.Status = StatusCompleted
	ev.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateEvaluation(ctx, ev, EvaluationState{Status: StatusPending})
}

func (svc *Service) Evaluations(ctx context.Context, filter EvaluationFilter) ([]Evaluation, error) {
	return svc.repo.QueryEvaluations(ctx, filter)
}

func (svc *Service) Submitters(ctx context.Context, examID string) ([]string, error) {
	if _, err := svc.repo.GetExam(ctx, examID); err != nil {
		return nil, err
	}
	return svc.repo.QuerySubmitters(ctx, examID)
}
