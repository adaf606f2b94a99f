package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/actor"
	"github.com/hansini-nalla/pes-sub000/core/dispute"
	"github.com/hansini-nalla/pes-sub000/core/exam"
	"github.com/hansini-nalla/pes-sub000/core/screening"
)

// Repos is one implementation of every repository, sharing the same storage.
type Repos struct {
	Actors   actor.Repository
	Exams    exam.Repository
	Verdicts screening.Repository
	Disputes dispute.Repository
}

var (
	pendingState = exam.EvaluationState{Status: exam.StatusPending}
	zeroedState  = exam.EvaluationState{Status: exam.StatusPending, Flagged: true}
)

// now is truncated to what postgres stores.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func ids(evs []exam.Evaluation) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.ID)
	}
	return out
}

// TestRepositories checks the behaviour every repository implementation shares.
// newRepos must return repositories on empty storage.
func TestRepositories(t *testing.T, newRepos func(t *testing.T) Repos) {
	t.Run("actors", func(t *testing.T) { testActorRepository(t, newRepos(t)) })
	t.Run("exams", func(t *testing.T) { testExamRepository(t, newRepos(t)) })
	t.Run("flags", func(t *testing.T) { testFlags(t, newRepos(t)) })
	t.Run("tickets", func(t *testing.T) { testTickets(t, newRepos(t)) })
	t.Run("verdicts", func(t *testing.T) { testVerdictRepository(t, newRepos(t)) })
}

func testActorRepository(t *testing.T, r Repos) {
	ctx := context.Background()
	ann := CreateActor(t, r.Actors, "Ann", actor.RoleStudent)
	ta := CreateActor(t, r.Actors, "TA", actor.RoleTA, actor.RoleStudent)

	got, err := r.Actors.GetActor(ctx, ta.ID)
	require.NoError(t, err)
	assert.Equal(t, ta.Name, got.Name)
	assert.Equal(t, ta.Email, got.Email)
	assert.Equal(t, ta.Roles, got.Roles)

	_, err = r.Actors.GetActor(ctx, uuid.NewString())
	assert.True(t, core.IsNotFound(err), "got %v", err)

	actors, err := r.Actors.QueryActors(ctx, ann.ID, uuid.NewString(), ta.ID)
	require.NoError(t, err)
	assert.Len(t, actors, 2)

	t0 := now()
	newer := CreateBatch(t, r.Actors, "c1", []string{ta.ID}, []string{ann.ID}, t0)
	older := CreateBatch(t, r.Actors, "c1", []string{ta.ID, ann.ID}, []string{ann.ID, ta.ID}, t0.Add(-time.Hour))
	batches, err := r.Actors.QueryStudentBatches(ctx, ann.ID)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, older.ID, batches[0].ID)
	assert.Equal(t, []string{ta.ID, ann.ID}, batches[0].Reviewers, "reviewers keep their order")
	assert.Equal(t, newer.ID, batches[1].ID)

	require.NoError(t, r.Actors.AddCourseTeacher(ctx, "c1", ta.ID))
	require.NoError(t, r.Actors.AddCourseTeacher(ctx, "c1", ta.ID))
	teachers, err := r.Actors.QueryCourseTeachers(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{ta.ID}, teachers)
	teachers, err = r.Actors.QueryCourseTeachers(ctx, "c2")
	require.NoError(t, err)
	assert.Empty(t, teachers)
}

// allocated creates an exam with a pending evaluation for each given (evaluator, evaluatee) couple.
func allocated(t *testing.T, r Repos, couples ...[2]string) (exam.Exam, []exam.Evaluation) {
	t.Helper()
	e := CreateExam(t, r.Exams, uuid.NewString(), 2, 5, 1)
	tstamp := now()
	evs := make([]exam.Evaluation, 0, len(couples))
	for _, c := range couples {
		evs = append(evs, exam.Evaluation{
			ID:        uuid.NewString(),
			ExamID:    e.ID,
			Evaluator: c[0],
			Evaluatee: c[1],
			Marks:     []float64{},
			Status:    exam.StatusPending,
			CreatedAt: tstamp,
			UpdatedAt: tstamp,
		})
	}
	require.NoError(t, r.Exams.CreateEvaluations(context.Background(), evs))
	return e, evs
}

func testExamRepository(t *testing.T, r Repos) {
	ctx := context.Background()
	e := CreateExam(t, r.Exams, "c1", 3, 10, 2)

	got, err := r.Exams.GetExam(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Title, got.Title)
	assert.Equal(t, 3, got.QuestionCount)
	assert.Equal(t, 10.0, got.MaxMarksPerQuestion)
	assert.Equal(t, 2, got.PeersPerStudent)
	_, err = r.Exams.GetExam(ctx, uuid.NewString())
	assert.True(t, core.IsNotFound(err), "got %v", err)

	Submit(t, r.Exams, e.ID, "cat", "ann", "cat", "bob")
	submitters, err := r.Exams.QuerySubmitters(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "ann", "bob"}, submitters)
	_, err = r.Exams.AddSubmission(ctx, exam.Submission{ExamID: uuid.NewString(), StudentID: "ann", SubmittedAt: now()})
	assert.True(t, core.IsNotFound(err), "got %v", err)

	_, evs := allocated(t, r, [2]string{"ann", "bob"}, [2]string{"bob", "ann"}, [2]string{"ann", "cat"})
	examID := evs[0].ExamID
	stored, err := r.Exams.QueryEvaluations(ctx, exam.EvaluationFilter{ExamID: examID})
	require.NoError(t, err)
	assert.Equal(t, ids(evs), ids(stored), "evaluations keep their creation order")
	stored, err = r.Exams.QueryEvaluations(ctx, exam.EvaluationFilter{ExamID: examID, Evaluator: "ann"})
	require.NoError(t, err)
	assert.Equal(t, []string{evs[0].ID, evs[2].ID}, ids(stored))

	t.Run("compare and set", func(t *testing.T) {
		ev := evs[0]
		ev.Marks = []float64{1, 2}
		ev.Status = exam.StatusCompleted
		ev.Feedback = "ok"
		saved, err := r.Exams.UpdateEvaluation(ctx, ev, pendingState)
		require.NoError(t, err)
		assert.Equal(t, exam.StatusCompleted, saved.Status)

		ev.Marks = []float64{5, 5}
		_, err = r.Exams.UpdateEvaluation(ctx, ev, pendingState)
		assert.True(t, core.IsConflict(err), "got %v", err)

		got, err := r.Exams.GetEvaluation(ctx, ev.ID)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2}, got.Marks)
		assert.Equal(t, "ok", got.Feedback)

		completed, err := r.Exams.QueryEvaluations(ctx, exam.EvaluationFilter{ExamID: examID, Status: exam.StatusCompleted})
		require.NoError(t, err)
		assert.Equal(t, []string{ev.ID}, ids(completed))
	})
	t.Run("flag is part of the state", func(t *testing.T) {
		zeroed := evs[1]
		zeroed.Marks = []float64{0, 0}
		zeroed.Flagged = true
		_, err := r.Exams.UpdateEvaluation(ctx, zeroed, pendingState)
		require.NoError(t, err)

		submitted := evs[1]
		submitted.Marks = []float64{2, 2}
		submitted.Status = exam.StatusCompleted
		_, err = r.Exams.UpdateEvaluation(ctx, submitted, pendingState)
		assert.True(t, core.IsConflict(err), "got %v", err)

		got, err := r.Exams.GetEvaluation(ctx, zeroed.ID)
		require.NoError(t, err)
		assert.Equal(t, zeroedState, got.State())
		assert.Equal(t, []float64{0, 0}, got.Marks)
	})
	t.Run("unknown evaluation", func(t *testing.T) {
		_, err := r.Exams.GetEvaluation(ctx, uuid.NewString())
		assert.True(t, core.IsNotFound(err), "got %v", err)
		_, err = r.Exams.UpdateEvaluation(ctx, exam.Evaluation{ID: uuid.NewString(), ExamID: examID, Marks: []float64{}}, pendingState)
		assert.True(t, core.IsNotFound(err), "got %v", err)
	})
}

func newFlag(ev exam.Evaluation) dispute.Flag {
	tstamp := now()
	return dispute.Flag{
		ID:           uuid.NewString(),
		ExamID:       ev.ExamID,
		EvaluationID: ev.ID,
		RaisedBy:     ev.Evaluatee,
		Status:       dispute.FlagPending,
		CreatedAt:    tstamp,
		UpdatedAt:    tstamp,
	}
}

func testFlags(t *testing.T, r Repos) {
	ctx := context.Background()
	_, evs := allocated(t, r, [2]string{"ann", "bob"}, [2]string{"bob", "ann"})

	f, err := r.Disputes.CreateFlag(ctx, newFlag(evs[0]))
	require.NoError(t, err)
	_, err = r.Disputes.CreateFlag(ctx, newFlag(evs[0]))
	assert.True(t, core.IsConflict(err), "one open flag per evaluation: got %v", err)
	other, err := r.Disputes.CreateFlag(ctx, newFlag(evs[1]))
	require.NoError(t, err)

	got, err := r.Disputes.GetFlag(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, dispute.FlagPending, got.Status)
	assert.Nil(t, got.ResolvedAt)
	_, err = r.Disputes.GetFlag(ctx, uuid.NewString())
	assert.True(t, core.IsNotFound(err), "got %v", err)

	// resolving saves the evaluation along
	ev := evs[0]
	ev.Marks = []float64{3, 4}
	ev.Status = exam.StatusCompleted
	resolvedAt := now()
	f.Status = dispute.FlagResolved
	f.ResolvedBy = "ta"
	f.ResolvedAt = &resolvedAt
	_, err = r.Disputes.UpdateFlag(ctx, f, &exam.EvaluationWrite{Evaluation: ev, Expected: pendingState}, dispute.OpenFlagStatuses...)
	require.NoError(t, err)

	got, err = r.Disputes.GetFlag(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, dispute.FlagResolved, got.Status)
	assert.Equal(t, "ta", got.ResolvedBy)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, resolvedAt.Equal(*got.ResolvedAt))
	storedEv, err := r.Exams.GetEvaluation(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, storedEv.Marks)

	// a resolved flag cannot move, and the evaluation passed along is not saved
	ev.Marks = []float64{0, 0}
	_, err = r.Disputes.UpdateFlag(ctx, f, &exam.EvaluationWrite{Evaluation: ev, Expected: ev.State()}, dispute.OpenFlagStatuses...)
	assert.True(t, core.IsConflict(err), "got %v", err)
	storedEv, err = r.Exams.GetEvaluation(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, storedEv.Marks)

	// the evaluation can be disputed again once its flag is resolved
	again, err := r.Disputes.CreateFlag(ctx, newFlag(evs[0]))
	require.NoError(t, err)

	// a stale evaluation fails the resolution as a whole
	again.Status = dispute.FlagResolved
	ev.Marks = []float64{9, 9}
	_, err = r.Disputes.UpdateFlag(ctx, again, &exam.EvaluationWrite{Evaluation: ev, Expected: pendingState}, dispute.OpenFlagStatuses...)
	assert.True(t, core.IsConflict(err), "got %v", err)
	got, err = r.Disputes.GetFlag(ctx, again.ID)
	require.NoError(t, err)
	assert.Equal(t, dispute.FlagPending, got.Status)
	storedEv, err = r.Exams.GetEvaluation(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, storedEv.Marks)

	open, err := r.Disputes.QueryFlags(ctx, dispute.FlagFilter{ExamID: ev.ExamID, Statuses: dispute.OpenFlagStatuses})
	require.NoError(t, err)
	assert.Len(t, open, 2)
	byRaiser, err := r.Disputes.QueryFlags(ctx, dispute.FlagFilter{RaisedBy: other.RaisedBy})
	require.NoError(t, err)
	require.Len(t, byRaiser, 1)
	assert.Equal(t, other.ID, byRaiser[0].ID)
}

func newTicket(ev exam.Evaluation, message string) dispute.Ticket {
	tstamp := now()
	t := dispute.Ticket{
		ID:        uuid.NewString(),
		ExamID:    ev.ExamID,
		Student:   ev.Evaluatee,
		Reviewer:  "ta",
		Message:   message,
		Status:    dispute.TicketOpen,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if message == dispute.UncheckedMessage {
		t.Evaluator = ev.Evaluator
		t.EvaluationID = ev.ID
	}
	return t
}

func testTickets(t *testing.T, r Repos) {
	ctx := context.Background()
	_, evs := allocated(t, r, [2]string{"ann", "bob"}, [2]string{"bob", "ann"})

	zeroed := evs[0]
	zeroed.Marks = []float64{0, 0}
	zeroed.Flagged = true
	tk, err := r.Disputes.CreateTicket(ctx, newTicket(zeroed, dispute.UncheckedMessage), &exam.EvaluationWrite{Evaluation: zeroed, Expected: pendingState})
	require.NoError(t, err)
	storedEv, err := r.Exams.GetEvaluation(ctx, zeroed.ID)
	require.NoError(t, err)
	assert.True(t, storedEv.Flagged)
	assert.Equal(t, []float64{0, 0}, storedEv.Marks)

	_, err = r.Disputes.CreateTicket(ctx, newTicket(zeroed, dispute.UncheckedMessage), nil)
	assert.True(t, core.IsConflict(err), "one unchecked ticket per evaluation: got %v", err)

	t.Run("evaluation submitted meanwhile", func(t *testing.T) {
		ev := evs[1]
		ev.Marks = []float64{4, 4}
		ev.Status = exam.StatusCompleted
		_, err := r.Exams.UpdateEvaluation(ctx, ev, pendingState)
		require.NoError(t, err)

		late := evs[1]
		late.Marks = []float64{0, 0}
		late.Flagged = true
		_, err = r.Disputes.CreateTicket(ctx, newTicket(late, dispute.UncheckedMessage), &exam.EvaluationWrite{Evaluation: late, Expected: pendingState})
		assert.True(t, core.IsConflict(err), "got %v", err)
		tickets, err := r.Disputes.QueryTickets(ctx, dispute.TicketFilter{Student: late.Evaluatee, Message: dispute.UncheckedMessage})
		require.NoError(t, err)
		assert.Empty(t, tickets, "nothing is written when the evaluation moved")
	})

	screeningTk, err := r.Disputes.CreateTicket(ctx, newTicket(evs[1], dispute.ScreeningMessage), nil)
	require.NoError(t, err)
	assert.Empty(t, screeningTk.Evaluator)

	t.Run("completion after the evaluation moved", func(t *testing.T) {
		resolved := zeroed
		resolved.Marks = []float64{7, 7}
		resolved.Status = exam.StatusCompleted
		_, err := r.Exams.UpdateEvaluation(ctx, resolved, zeroedState)
		require.NoError(t, err)

		closing := tk
		closing.Status = dispute.TicketClosed
		completed := zeroed
		completed.Evaluator = "ta"
		completed.Marks = []float64{1, 1}
		completed.Status = exam.StatusCompleted
		completed.Flagged = false
		_, err = r.Disputes.UpdateTicket(ctx, closing, &exam.EvaluationWrite{Evaluation: completed, Expected: zeroedState}, dispute.TicketOpen)
		assert.True(t, core.IsConflict(err), "got %v", err)

		got, err := r.Disputes.GetTicket(ctx, tk.ID)
		require.NoError(t, err)
		assert.Equal(t, dispute.TicketOpen, got.Status)
		storedEv, err := r.Exams.GetEvaluation(ctx, zeroed.ID)
		require.NoError(t, err)
		assert.Equal(t, []float64{7, 7}, storedEv.Marks)
		assert.Equal(t, zeroed.Evaluator, storedEv.Evaluator)
	})

	t.Run("escalation is one-way", func(t *testing.T) {
		tk.EscalatedToTeacher = true
		_, err := r.Disputes.UpdateTicket(ctx, tk, nil, dispute.TicketOpen)
		require.NoError(t, err)

		tk.EscalatedToTeacher = false
		tk.Status = dispute.TicketClosed
		closedAt := now()
		tk.ClosedAt = &closedAt
		saved, err := r.Disputes.UpdateTicket(ctx, tk, nil, dispute.TicketOpen)
		require.NoError(t, err)
		assert.True(t, saved.EscalatedToTeacher)

		got, err := r.Disputes.GetTicket(ctx, tk.ID)
		require.NoError(t, err)
		assert.True(t, got.EscalatedToTeacher)
		assert.Equal(t, dispute.TicketClosed, got.Status)
		require.NotNil(t, got.ClosedAt)

		_, err = r.Disputes.UpdateTicket(ctx, tk, nil, dispute.TicketOpen)
		assert.True(t, core.IsConflict(err), "got %v", err)
	})

	open, err := r.Disputes.QueryTickets(ctx, dispute.TicketFilter{ExamID: evs[0].ExamID, Status: dispute.TicketOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, screeningTk.ID, open[0].ID)
	byReviewer, err := r.Disputes.QueryTickets(ctx, dispute.TicketFilter{Reviewer: "ta", ExamID: evs[0].ExamID})
	require.NoError(t, err)
	assert.Len(t, byReviewer, 2)
	_, err = r.Disputes.GetTicket(ctx, uuid.NewString())
	assert.True(t, core.IsNotFound(err), "got %v", err)
}

func testVerdictRepository(t *testing.T, r Repos) {
	ctx := context.Background()
	e := CreateExam(t, r.Exams, "c1", 1, 10, 4)
	classAvg := 7.5
	computedAt := now()
	first := []screening.Verdict{
		{ExamID: e.ID, Student: "bob", Policy: screening.PolicyClassRelative, Average: 9, ClassAverage: &classAvg, ClassStandardDeviation: &classAvg, RawMarks: []float64{9}, ComputedAt: computedAt},
		{ExamID: e.ID, Student: "ann", Policy: screening.PolicyClassRelative, Average: 6, Flagged: true, ClassAverage: &classAvg, ClassStandardDeviation: &classAvg, RawMarks: []float64{6}, ComputedAt: computedAt},
	}
	require.NoError(t, r.Verdicts.ReplaceVerdicts(ctx, e.ID, first))
	got, err := r.Verdicts.QueryVerdicts(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bob", got[0].Student)
	assert.Equal(t, "ann", got[1].Student)
	assert.True(t, got[1].Flagged)
	require.NotNil(t, got[1].ClassAverage)
	assert.Equal(t, classAvg, *got[1].ClassAverage)
	assert.Equal(t, []float64{6}, got[1].RawMarks)

	second := []screening.Verdict{
		{ExamID: e.ID, Student: "cat", Policy: screening.PolicySelfRelative, Average: 5, StandardDeviation: 1, RawMarks: []float64{4, 6, 4, 6}, ComputedAt: now()},
	}
	require.NoError(t, r.Verdicts.ReplaceVerdicts(ctx, e.ID, second))
	got, err = r.Verdicts.QueryVerdicts(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cat", got[0].Student)
	assert.Nil(t, got[0].ClassAverage)
	assert.Equal(t, []float64{4, 6, 4, 6}, got[0].RawMarks)

	got, err = r.Verdicts.QueryVerdicts(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, got)
}
