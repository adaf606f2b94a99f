package screening_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/dispute"
	"github.com/hansini-nalla/pes-sub000/core/screening"
	"github.com/hansini-nalla/pes-sub000/tests"
)

// markAll completes every evaluation of the course, the evaluations of outlier getting low marks.
func markAll(t *testing.T, env *testutil.Env, c testutil.Course, outlier string) {
	for _, ev := range c.Evaluations {
		if ev.Evaluatee == outlier {
			testutil.CompleteEvaluation(t, env.Exams, ev, 1, 1, 1)
		} else {
			testutil.CompleteEvaluation(t, env.Exams, ev, 8, 8, 8)
		}
	}
}

func TestService_ScreenExam(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	c := testutil.AllocatedCourse(t, env, 5, 2)
	outlier := c.Students[4]
	markAll(t, env, c, outlier)

	report, err := env.ScreeningSvc.ScreenExam(ctx, c.Exam.ID, false)
	require.NoError(t, err)
	assert.Equal(t, screening.PolicyClassRelative, report.Policy)
	assert.Equal(t, 1, report.Flagged)
	assert.Len(t, report.Verdicts, 5)
	assert.Empty(t, report.TicketsRaised)

	stored, err := env.ScreeningSvc.Verdicts(ctx, c.Exam.ID)
	require.NoError(t, err)
	require.Len(t, stored, 5)
	for _, v := range stored {
		assert.Equal(t, c.Exam.ID, v.ExamID)
		assert.Equal(t, v.Student == outlier, v.Flagged, v.Student)
		assert.False(t, v.ComputedAt.IsZero())
	}

	tickets, err := env.DisputeSvc.Tickets(ctx, dispute.TicketFilter{ExamID: c.Exam.ID})
	require.NoError(t, err)
	assert.Empty(t, tickets, "no ticket is raised unless asked")
}

func TestService_ScreenExam_tickets(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	c := testutil.AllocatedCourse(t, env, 5, 2)
	outlier := c.Students[4]
	markAll(t, env, c, outlier)

	report, err := env.ScreeningSvc.ScreenExam(ctx, c.Exam.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []string{outlier}, report.TicketsRaised)

	tickets, err := env.DisputeSvc.Tickets(ctx, dispute.TicketFilter{ExamID: c.Exam.ID})
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, outlier, tickets[0].Student)
	assert.Equal(t, c.TA.ID, tickets[0].Reviewer)
	assert.Equal(t, dispute.ScreeningMessage, tickets[0].Message)
	assert.Equal(t, dispute.TicketOpen, tickets[0].Status)
	assert.Empty(t, tickets[0].Evaluator)

	// screening again replaces the verdicts but does not duplicate the open ticket
	report, err = env.ScreeningSvc.ScreenExam(ctx, c.Exam.ID, true)
	require.NoError(t, err)
	assert.Empty(t, report.TicketsRaised)
	stored, err := env.ScreeningSvc.Verdicts(ctx, c.Exam.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 5)
	tickets, err = env.DisputeSvc.Tickets(ctx, dispute.TicketFilter{ExamID: c.Exam.ID})
	require.NoError(t, err)
	assert.Len(t, tickets, 1)
}

func TestService_ScreenExam_unrouted(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	e := testutil.CreateExam(t, env.Exams, "course", 3, 10, 2)
	students := []string{"s0", "s1", "s2", "s3", "s4"} // in no batch
	testutil.Submit(t, env.Exams, e.ID, students...)
	alloc, err := env.ExamSvc.Allocate(ctx, e.ID)
	require.NoError(t, err)
	markAll(t, env, testutil.Course{Exam: e, Evaluations: alloc.Evaluations}, "s2")

	report, err := env.ScreeningSvc.ScreenExam(ctx, e.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, report.Unrouted)
	assert.Empty(t, report.TicketsRaised)
}

func TestService_ScreenExam_pendingEvaluationsIgnored(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	c := testutil.AllocatedCourse(t, env, 4, 1)
	// only the evaluation received by the first student is completed
	testutil.CompleteEvaluation(t, env.Exams, c.Received(c.Students[0])[0], 5, 5, 5)

	report, err := env.ScreeningSvc.ScreenExam(ctx, c.Exam.ID, false)
	require.NoError(t, err)
	require.Len(t, report.Verdicts, 1)
	assert.Equal(t, c.Students[0], report.Verdicts[0].Student)
	assert.False(t, report.Verdicts[0].Flagged)
}

func TestService_notFound(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)

	_, err := env.ScreeningSvc.ScreenExam(ctx, "lol", false)
	assert.True(t, core.IsNotFound(err))
	_, err = env.ScreeningSvc.Verdicts(ctx, "lol")
	assert.True(t, core.IsNotFound(err))
}
