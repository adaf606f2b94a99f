package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/hansini-nalla/pes-sub000/apps/api/echo"
	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/assignment"
	"github.com/hansini-nalla/pes-sub000/core/dispute"
	"github.com/hansini-nalla/pes-sub000/core/exam"
	"github.com/hansini-nalla/pes-sub000/core/screening"
	"github.com/hansini-nalla/pes-sub000/services/metrics"
	testutil "github.com/hansini-nalla/pes-sub000/tests"
)

type apiTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	wantCode int
	wantBody string // substring of the response body
}

func setup(t *testing.T) (http.Handler, *testutil.Env) {
	env := testutil.NewEnv(t)
	reg := prometheus.NewRegistry()
	srv := echoapi.NewServer(echoapi.ServerDeps{
		Conf:         &core.Config{AppName: "PES", TestMode: true},
		Logger:       env.Logger,
		Metrics:      metrics.New(reg),
		Gatherer:     reg,
		Roster:       env.Roster,
		ExamSvc:      env.ExamSvc,
		ScreeningSvc: env.ScreeningSvc,
		DisputeSvc:   env.DisputeSvc,
	})
	return srv, env
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func runAPITests(t *testing.T, h http.Handler, tests []apiTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestServer_home(t *testing.T) {
	h, _ := setup(t)
	rec := do(t, h, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to PES API!", rec.Body.String())
}

func TestServer_exams(t *testing.T) {
	h, env := setup(t)

	rec := do(t, h, http.MethodPost, "/v1/exams", exam.NewExam{CourseID: "c1", Title: "Midterm", QuestionCount: 2, MaxMarksPerQuestion: 5, PeersPerStudent: 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var e exam.Exam
	decode(t, rec, &e)
	lonely := testutil.CreateExam(t, env.Exams, "c1", 2, 5, 2)
	testutil.Submit(t, env.Exams, lonely.ID, "ann")

	runAPITests(t, h, []apiTest{
		{name: "create: blank title", method: http.MethodPost, path: "/v1/exams",
			body:     exam.NewExam{CourseID: "c1", Title: " ", QuestionCount: 2, MaxMarksPerQuestion: 5, PeersPerStudent: 2},
			wantCode: http.StatusBadRequest, wantBody: `"title":"title cannot be blank"`},
		{name: "retrieve", method: http.MethodGet, path: "/v1/exams/" + e.ID, wantCode: http.StatusOK, wantBody: `"title":"Midterm"`},
		{name: "retrieve: unknown", method: http.MethodGet, path: "/v1/exams/lol", wantCode: http.StatusNotFound},
		{name: "submit: blank student", method: http.MethodPost, path: "/v1/exams/" + e.ID + "/submissions",
			body: echoapi.SubmissionRequest{}, wantCode: http.StatusBadRequest},
		{name: "submit: unknown exam", method: http.MethodPost, path: "/v1/exams/lol/submissions",
			body: echoapi.SubmissionRequest{StudentID: "ann"}, wantCode: http.StatusNotFound},
		{name: "submit ann", method: http.MethodPost, path: "/v1/exams/" + e.ID + "/submissions",
			body: echoapi.SubmissionRequest{StudentID: "ann"}, wantCode: http.StatusCreated},
		{name: "submit bob", method: http.MethodPost, path: "/v1/exams/" + e.ID + "/submissions",
			body: echoapi.SubmissionRequest{StudentID: "bob"}, wantCode: http.StatusCreated},
		{name: "submit cat", method: http.MethodPost, path: "/v1/exams/" + e.ID + "/submissions",
			body: echoapi.SubmissionRequest{StudentID: "cat"}, wantCode: http.StatusCreated},
		{name: "submitters", method: http.MethodGet, path: "/v1/exams/" + e.ID + "/submitters",
			wantCode: http.StatusOK, wantBody: `["ann","bob","cat"]`},
		{name: "allocate: a single submitter", method: http.MethodPost, path: "/v1/exams/" + lonely.ID + "/allocate", wantCode: http.StatusBadRequest},
		{name: "allocate", method: http.MethodPost, path: "/v1/exams/" + e.ID + "/allocate", wantCode: http.StatusCreated},
		{name: "allocate twice", method: http.MethodPost, path: "/v1/exams/" + e.ID + "/allocate", wantCode: http.StatusConflict},
	})

	rec = do(t, h, http.MethodGet, "/v1/exams/"+e.ID+"/evaluations?evaluator=ann", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var evs []exam.Evaluation
	decode(t, rec, &evs)
	require.Len(t, evs, 2)
	for _, ev := range evs {
		assert.Equal(t, "ann", ev.Evaluator)
		assert.Equal(t, exam.StatusPending, ev.Status)
	}

	marksPath := "/v1/evaluations/" + evs[0].ID + "/marks"
	runAPITests(t, h, []apiTest{
		{name: "marks: wrong evaluator", method: http.MethodPost, path: marksPath,
			body: echoapi.MarksRequest{Evaluator: "bob", Marks: []float64{1, 2}}, wantCode: http.StatusConflict},
		{name: "marks: wrong count", method: http.MethodPost, path: marksPath,
			body: echoapi.MarksRequest{Evaluator: "ann", Marks: []float64{1}}, wantCode: http.StatusBadRequest, wantBody: "expected 2 marks, got 1"},
		{name: "marks: out of range", method: http.MethodPost, path: marksPath,
			body: echoapi.MarksRequest{Evaluator: "ann", Marks: []float64{1, 6}}, wantCode: http.StatusBadRequest, wantBody: "must be between 0 and 5"},
		{name: "marks", method: http.MethodPost, path: marksPath,
			body: echoapi.MarksRequest{Evaluator: "ann", Marks: []float64{1, 2}, Feedback: "meh"}, wantCode: http.StatusOK, wantBody: `"status":"completed"`},
		{name: "marks twice", method: http.MethodPost, path: marksPath,
			body: echoapi.MarksRequest{Evaluator: "ann", Marks: []float64{1, 2}}, wantCode: http.StatusConflict},
		{name: "marks: unknown evaluation", method: http.MethodPost, path: "/v1/evaluations/lol/marks",
			body: echoapi.MarksRequest{Evaluator: "ann", Marks: []float64{1, 2}}, wantCode: http.StatusNotFound},
	})
}

func TestServer_assignmentPreview(t *testing.T) {
	h, _ := setup(t)
	runAPITests(t, h, []apiTest{
		{name: "k too large", method: http.MethodPost, path: "/v1/assignments/preview",
			body: assignment.Request{Submitters: []string{"a", "b"}, K: 2}, wantCode: http.StatusBadRequest, wantBody: "must be less than"},
		{name: "duplicated submitter", method: http.MethodPost, path: "/v1/assignments/preview",
			body: assignment.Request{Submitters: []string{"a", "b", "a"}, K: 1}, wantCode: http.StatusBadRequest, wantBody: "duplicated"},
	})

	rec := do(t, h, http.MethodPost, "/v1/assignments/preview", assignment.Request{Submitters: []string{"a", "b", "c", "d"}, K: 3})
	require.Equal(t, http.StatusOK, rec.Code)
	var res assignment.Result
	decode(t, rec, &res)
	assert.True(t, res.Feasible)
	assert.Len(t, res.Pairs, 12)
}

func TestServer_screening(t *testing.T) {
	h, env := setup(t)
	c := testutil.AllocatedCourse(t, env, 5, 2)
	for _, ev := range c.Evaluations {
		marks := []float64{9, 9, 9}
		if ev.Evaluatee == c.Students[0] {
			marks = []float64{2, 2, 2}
		}
		testutil.CompleteEvaluation(t, env.Exams, ev, marks...)
	}

	runAPITests(t, h, []apiTest{
		{name: "bad tickets param", method: http.MethodPost, path: "/v1/exams/" + c.Exam.ID + "/screen?tickets=lol", wantCode: http.StatusBadRequest},
		{name: "unknown exam", method: http.MethodPost, path: "/v1/exams/lol/screen", wantCode: http.StatusNotFound},
	})

	rec := do(t, h, http.MethodPost, "/v1/exams/"+c.Exam.ID+"/screen?tickets=true", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report screening.Report
	decode(t, rec, &report)
	assert.Equal(t, 1, report.Flagged)
	assert.Equal(t, []string{c.Students[0]}, report.TicketsRaised)

	rec = do(t, h, http.MethodGet, "/v1/exams/"+c.Exam.ID+"/verdicts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var verdicts []screening.Verdict
	decode(t, rec, &verdicts)
	assert.Len(t, verdicts, 5)

	rec = do(t, h, http.MethodGet, "/v1/tickets?message="+strings.ReplaceAll(dispute.ScreeningMessage, " ", "+"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tickets []dispute.Ticket
	decode(t, rec, &tickets)
	require.Len(t, tickets, 1)
	assert.Equal(t, c.Students[0], tickets[0].Student)

	// screening tickets are closed, never completed
	runAPITests(t, h, []apiTest{
		{name: "complete screening ticket", method: http.MethodPost, path: "/v1/tickets/" + tickets[0].ID + "/complete",
			body: dispute.UncheckedCompletion{Reviewer: c.TA.ID, Marks: []float64{1, 1, 1}}, wantCode: http.StatusBadRequest},
		{name: "close", method: http.MethodPost, path: "/v1/tickets/" + tickets[0].ID + "/close", wantCode: http.StatusOK, wantBody: `"status":"closed"`},
		{name: "close twice", method: http.MethodPost, path: "/v1/tickets/" + tickets[0].ID + "/close", wantCode: http.StatusConflict},
	})
}

func TestServer_disputes(t *testing.T) {
	h, env := setup(t)
	c := testutil.AllocatedCourse(t, env, 4, 1)
	done := testutil.CompleteEvaluation(t, env.Exams, c.Evaluations[0], 4, 4, 4)
	pending := c.Evaluations[1]

	runAPITests(t, h, []apiTest{
		{name: "raise: blank raiser", method: http.MethodPost, path: "/v1/evaluations/" + done.ID + "/flags",
			body: echoapi.DisputeRequest{}, wantCode: http.StatusBadRequest},
		{name: "raise: pending evaluation", method: http.MethodPost, path: "/v1/evaluations/" + pending.ID + "/flags",
			body: echoapi.DisputeRequest{RaisedBy: pending.Evaluatee}, wantCode: http.StatusConflict},
		{name: "raise: unknown evaluation", method: http.MethodPost, path: "/v1/evaluations/lol/flags",
			body: echoapi.DisputeRequest{RaisedBy: "ann"}, wantCode: http.StatusNotFound},
	})

	rec := do(t, h, http.MethodPost, "/v1/evaluations/"+done.ID+"/flags", echoapi.DisputeRequest{RaisedBy: done.Evaluatee})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var f dispute.Flag
	decode(t, rec, &f)
	assert.Equal(t, dispute.FlagPending, f.Status)

	flagPath := "/v1/flags/" + f.ID
	runAPITests(t, h, []apiTest{
		{name: "flag", method: http.MethodGet, path: flagPath, wantCode: http.StatusOK, wantBody: `"status":"pending"`},
		{name: "flags of the raiser", method: http.MethodGet, path: "/v1/flags?raised_by=" + done.Evaluatee, wantCode: http.StatusOK, wantBody: f.ID},
		{name: "escalate: blank reason", method: http.MethodPost, path: flagPath + "/escalate", body: dispute.Escalation{}, wantCode: http.StatusBadRequest},
		{name: "escalate", method: http.MethodPost, path: flagPath + "/escalate", body: dispute.Escalation{Reason: "unfair"}, wantCode: http.StatusOK, wantBody: `"status":"escalated"`},
		{name: "resolve: invalid marks", method: http.MethodPost, path: flagPath + "/resolve",
			body: dispute.Resolution{ResolvedBy: c.Teacher.ID, Marks: []float64{11, 0, 0}}, wantCode: http.StatusBadRequest},
		{name: "resolve", method: http.MethodPost, path: flagPath + "/resolve",
			body: dispute.Resolution{ResolvedBy: c.Teacher.ID, Marks: []float64{6, 6, 6}}, wantCode: http.StatusOK, wantBody: `"status":"resolved"`},
		{name: "resolve twice", method: http.MethodPost, path: flagPath + "/resolve",
			body: dispute.Resolution{ResolvedBy: c.Teacher.ID}, wantCode: http.StatusConflict},
		{name: "unknown flag", method: http.MethodGet, path: "/v1/flags/lol", wantCode: http.StatusNotFound},
	})

	rec = do(t, h, http.MethodPost, "/v1/exams/"+c.Exam.ID+"/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res dispute.SweepResult
	decode(t, rec, &res)
	require.Len(t, res.Created, 3)

	ticketPath := "/v1/tickets/" + res.Created[0].ID
	runAPITests(t, h, []apiTest{
		{name: "ticket", method: http.MethodGet, path: ticketPath, wantCode: http.StatusOK, wantBody: `"message":"unchecked"`},
		{name: "escalate ticket", method: http.MethodPost, path: ticketPath + "/escalate", wantCode: http.StatusOK, wantBody: `"escalated_to_teacher":true`},
		{name: "complete: invalid marks", method: http.MethodPost, path: ticketPath + "/complete",
			body: dispute.UncheckedCompletion{Reviewer: c.TA.ID, Marks: []float64{1}}, wantCode: http.StatusBadRequest},
		{name: "complete", method: http.MethodPost, path: ticketPath + "/complete",
			body: dispute.UncheckedCompletion{Reviewer: c.TA.ID, Marks: []float64{5, 5, 5}}, wantCode: http.StatusOK, wantBody: `"status":"closed"`},
		{name: "complete twice", method: http.MethodPost, path: ticketPath + "/complete",
			body: dispute.UncheckedCompletion{Reviewer: c.TA.ID, Marks: []float64{5, 5, 5}}, wantCode: http.StatusConflict},
		{name: "unknown ticket", method: http.MethodPost, path: "/v1/tickets/lol/close", wantCode: http.StatusNotFound},
		{name: "late marks on a zeroed evaluation", method: http.MethodPost, path: "/v1/evaluations/" + res.Created[1].EvaluationID + "/marks",
			body: echoapi.MarksRequest{Evaluator: res.Created[1].Evaluator, Marks: []float64{9, 9, 9}}, wantCode: http.StatusConflict, wantBody: "pending (flagged)"},
	})
}

func TestServer_metrics(t *testing.T) {
	h, env := setup(t)
	e := testutil.CreateExam(t, env.Exams, "c1", 1, 5, 1)
	testutil.Submit(t, env.Exams, e.ID, "ann", "bob")
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/v1/exams/"+e.ID+"/allocate", nil).Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/exams/lol", nil).Code)

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `peereval_allocations_total{outcome="allocated"} 1`)
	assert.Contains(t, body, `peereval_http_requests_total{code="404",method="GET",route="/v1/exams/:id"} 1`)
	assert.Contains(t, body, `peereval_http_requests_total{code="201",method="POST",route="/v1/exams/:id/allocate"} 1`)
}
