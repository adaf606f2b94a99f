// Package testutil holds the fixtures shared by the tests of every package.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/actor"
	"github.com/hansini-nalla/pes-sub000/core/dispute"
	"github.com/hansini-nalla/pes-sub000/core/exam"
	"github.com/hansini-nalla/pes-sub000/core/screening"
	logsvc "github.com/hansini-nalla/pes-sub000/services/logger"
	"github.com/hansini-nalla/pes-sub000/storage/database"
	inmemdb "github.com/hansini-nalla/pes-sub000/storage/database/inmem"
)

// DatabaseURLEnv names the variable holding the URL of the postgres database integration tests run against.
const DatabaseURLEnv = "PES_TEST_DATABASE_URL"

// Env is a complete in-memory engine.
type Env struct {
	Actors   actor.Repository
	Exams    exam.Repository
	Verdicts screening.Repository
	Disputes dispute.Repository

	Logger   core.Logger
	Notifier *RecordingNotifier

	Roster       *actor.Roster
	ExamSvc      *exam.Service
	DisputeSvc   *dispute.Service
	ScreeningSvc *screening.Service
}

func NewEnv(t *testing.T) *Env {
	t.Helper()
	db := inmemdb.Open()
	env := &Env{
		Actors:   inmemdb.NewActorRepository(db),
		Exams:    inmemdb.NewExamRepository(db),
		Verdicts: inmemdb.NewVerdictRepository(db),
		Disputes: inmemdb.NewDisputeRepository(db),
		Logger:   logsvc.NewNopLogger(),
		Notifier: &RecordingNotifier{},
	}
	env.Roster = actor.NewRoster(env.Actors)
	env.ExamSvc = exam.NewService(env.Exams, env.Logger)
	env.DisputeSvc = dispute.NewService(env.Disputes, env.Exams, env.Roster, env.Notifier, env.Logger)
	env.ScreeningSvc = screening.NewService(env.Verdicts, env.Exams, env.DisputeSvc, screening.DefaultThresholds(), env.Logger)
	return env
}

// RecordingNotifier keeps every notification it is given.
type RecordingNotifier struct {
	mu            sync.Mutex
	notifications []core.Notification
}

func (n *RecordingNotifier) Notify(_ context.Context, notif core.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notif)
}

func (n *RecordingNotifier) Notifications() []core.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]core.Notification{}, n.notifications...)
}

// Kinds returns the kinds of the recorded notifications, in order.
func (n *RecordingNotifier) Kinds() []string {
	kinds := make([]string, 0)
	for _, notif := range n.Notifications() {
		kinds = append(kinds, notif.Kind)
	}
	return kinds
}

func CreateActor(t *testing.T, repo actor.Repository, name string, roles ...string) actor.Actor {
	t.Helper()
	a, err := repo.CreateActor(context.Background(), actor.Actor{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     fmt.Sprintf("%s@test.cd", uuid.NewString()[:8]),
		Roles:     roles,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateActor() failed: %v", err)
	}
	return a
}

// CreateBatch creates a batch of the course, createdAt orders the batches of a student.
func CreateBatch(t *testing.T, repo actor.Repository, courseID string, reviewers, members []string, createdAt ...time.Time) actor.Batch {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	b, err := repo.CreateBatch(context.Background(), actor.Batch{
		ID:        uuid.NewString(),
		CourseID:  courseID,
		Name:      "batch",
		Reviewers: reviewers,
		Members:   members,
		CreatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateBatch() failed: %v", err)
	}
	return b
}

func CreateExam(t *testing.T, repo exam.Repository, courseID string, questions int, maxMarks float64, k int) exam.Exam {
	t.Helper()
	e, err := repo.CreateExam(context.Background(), exam.Exam{
		ID:                  uuid.NewString(),
		CourseID:            courseID,
		Title:               "Midterm",
		QuestionCount:       questions,
		MaxMarksPerQuestion: maxMarks,
		PeersPerStudent:     k,
		CreatedAt:           time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateExam() failed: %v", err)
	}
	return e
}

// Submit records the submissions of students in order.
func Submit(t *testing.T, repo exam.Repository, examID string, students ...string) {
	t.Helper()
	for _, s := range students {
		if _, err := repo.AddSubmission(context.Background(), exam.Submission{ExamID: examID, StudentID: s, SubmittedAt: time.Now().UTC()}); err != nil {
			t.Fatalf("Submit() failed: %v", err)
		}
	}
}

// Course is an allocated exam: every student submitted, then the exam was allocated.
// Every student belongs to a batch reviewed by TA, the course is taught by Teacher.
type Course struct {
	ID          string
	Exam        exam.Exam
	Students    []string
	TA          actor.Actor
	Teacher     actor.Actor
	Evaluations []exam.Evaluation
}

func AllocatedCourse(t *testing.T, env *Env, n, k int) Course {
	t.Helper()
	ctx := context.Background()
	c := Course{ID: uuid.NewString()}
	c.TA = CreateActor(t, env.Actors, "TA", actor.RoleTA)
	c.Teacher = CreateActor(t, env.Actors, "Teacher", actor.RoleTeacher)
	if err := env.Roster.AddCourseTeacher(ctx, c.ID, c.Teacher.ID); err != nil {
		t.Fatalf("AddCourseTeacher() failed: %v", err)
	}
	for i := 0; i < n; i++ {
		c.Students = append(c.Students, CreateActor(t, env.Actors, fmt.Sprintf("Student %d", i), actor.RoleStudent).ID)
	}
	CreateBatch(t, env.Actors, c.ID, []string{c.TA.ID}, c.Students)

	c.Exam = CreateExam(t, env.Exams, c.ID, 3, 10, k)
	Submit(t, env.Exams, c.Exam.ID, c.Students...)
	alloc, err := env.ExamSvc.Allocate(ctx, c.Exam.ID)
	if err != nil {
		t.Fatalf("Allocate() failed: %v", err)
	}
	c.Evaluations = alloc.Evaluations
	return c
}

// Received returns the evaluations of the course evaluating student.
func (c Course) Received(student string) []exam.Evaluation {
	evs := make([]exam.Evaluation, 0)
	for _, ev := range c.Evaluations {
		if ev.Evaluatee == student {
			evs = append(evs, ev)
		}
	}
	return evs
}

// CompleteEvaluation stores marks on ev as its evaluator would.
func CompleteEvaluation(t *testing.T, repo exam.Repository, ev exam.Evaluation, marks ...float64) exam.Evaluation {
	t.Helper()
	ev.Marks = marks
	ev.Status = exam.StatusCompleted
	ev.UpdatedAt = time.Now().UTC()
	ev, err := repo.UpdateEvaluation(context.Background(), ev, exam.EvaluationState{Status: exam.StatusPending})
	if err != nil {
		t.Fatalf("CompleteEvaluation() failed: %v", err)
	}
	return ev
}

// PrepareDB opens the integration test database, migrates it and empties its tables.
// The test is skipped when no database is configured.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv(DatabaseURLEnv)
	if dsn == "" {
		t.Skipf("%s is not set", DatabaseURLEnv)
	}
	db, err := database.OpenURL(dsn)
	if err != nil {
		t.Fatalf("OpenURL() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	_, err = db.Exec(`TRUNCATE verdicts, tickets, flags, evaluations, submissions, exams,
		course_teachers, batch_members, batch_reviewers, batches, actors CASCADE`)
	if err != nil {
		t.Fatalf("truncating tables failed: %v", err)
	}
	return db
}
