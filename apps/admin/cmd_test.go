package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/dispute"
	"github.com/hansini-nalla/pes-sub000/core/exam"
	"github.com/hansini-nalla/pes-sub000/core/screening"
	"github.com/hansini-nalla/pes-sub000/storage/database"
	testutil "github.com/hansini-nalla/pes-sub000/tests"
)

func setup(t *testing.T) (*commandLine, *testutil.Env, *bytes.Buffer) {
	env := testutil.NewEnv(t)
	out := new(bytes.Buffer)
	return &commandLine{
		db:           &sql.DB{}, // only handed to the mocked migrator
		examSvc:      env.ExamSvc,
		screeningSvc: env.ScreeningSvc,
		disputeSvc:   env.DisputeSvc,
		out:          out,
	}, env, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    string
}

func runCLITests(t *testing.T, cli *commandLine, out *bytes.Buffer, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				assert.NoError(t, err)
			}
			if tt.wantOut != "" {
				assert.Contains(t, out.String(), tt.wantOut)
			}
		})
	}
}

type fakeMigrator struct {
	calls   []string
	version uint
	err     error
}

func (m *fakeMigrator) Up() error   { m.calls = append(m.calls, "up"); return m.err }
func (m *fakeMigrator) Down() error { m.calls = append(m.calls, "down"); return m.err }
func (m *fakeMigrator) Steps(n int) error {
	m.calls = append(m.calls, "steps")
	return m.err
}
func (m *fakeMigrator) Force(version int) error {
	m.calls = append(m.calls, "force")
	m.version = uint(version)
	return nil
}
func (m *fakeMigrator) Version() (uint, bool, error) {
	if m.version == 0 {
		return 0, false, migrate.ErrNilVersion
	}
	return m.version, false, nil
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, out := setup(t)
	m := &fakeMigrator{}
	newMigratorFunc = func(*sql.DB) (database.Migrator, error) { return m, nil }
	t.Cleanup(func() { newMigratorFunc = database.NewMigrator })

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "steps: no args", args: []string{"migrate", "steps"}, wantErrStr: "steps must be of form: migrate steps N"},
		{name: "steps: non-int arg", args: []string{"migrate", "steps", "lol"}, wantErrStr: "N must be a number (got 'lol')"},
		{name: "force: no args", args: []string{"migrate", "force"}, wantErrStr: "force must be of form: migrate force N"},
		{name: "force: non-int arg", args: []string{"migrate", "force", "lol"}, wantErrStr: "N must be a number (got 'lol')"},
		{name: "version: none applied", args: []string{"migrate", "version"}, wantOut: "version 0 (dirty: false)"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "steps", args: []string{"migrate", "steps", "-1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "force", args: []string{"migrate", "force", "2"}},
		{name: "version", args: []string{"migrate", "version"}, wantOut: "version 2 (dirty: false)"},
	}
	runCLITests(t, cli, out, tests)
	assert.Equal(t, []string{"up", "steps", "down", "force"}, m.calls)

	t.Run("no change is not an error", func(t *testing.T) {
		m.err = migrate.ErrNoChange
		assert.NoError(t, cli.run([]string{"admin", "migrate", "up"}))
	})
	t.Run("migration failure", func(t *testing.T) {
		m.err = errors.New("dirty database")
		assert.EqualError(t, cli.run([]string{"admin", "migrate", "down"}), "dirty database")
	})
	t.Run("in-memory storage", func(t *testing.T) {
		cli.db = nil
		assert.Equal(t, errNoDatabase, cli.run([]string{"admin", "migrate", "up"}))
	})
}

func Test_commandLine_allocate(t *testing.T) {
	cli, env, out := setup(t)
	e := testutil.CreateExam(t, env.Exams, "c1", 2, 5, 2)
	testutil.Submit(t, env.Exams, e.ID, "ann", "bob", "cat", "dan")
	lonely := testutil.CreateExam(t, env.Exams, "c1", 2, 5, 2)
	testutil.Submit(t, env.Exams, lonely.ID, "ann")

	runCLITests(t, cli, out, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no exam", args: []string{"allocate"}, wantErr: errHelp},
		{name: "help", args: []string{"allocate", "-h"}, wantErr: errHelp},
		{name: "allocate", args: []string{"allocate", "-exam", e.ID}, wantOut: `"evaluator": "ann"`},
	})

	evs, err := env.ExamSvc.Evaluations(context.Background(), exam.EvaluationFilter{ExamID: e.ID})
	require.NoError(t, err)
	assert.Len(t, evs, 8)

	err = cli.run([]string{"admin", "allocate", "-exam", e.ID})
	assert.True(t, core.IsConflict(err), "allocating twice: got %v", err)
	err = cli.run([]string{"admin", "allocate", "-exam", lonely.ID})
	assert.True(t, core.IsInvalidRequest(err), "a single submitter: got %v", err)
}

func Test_commandLine_screen(t *testing.T) {
	cli, env, out := setup(t)
	c := testutil.AllocatedCourse(t, env, 5, 2)
	for _, ev := range c.Evaluations {
		marks := []float64{8, 8, 8}
		if ev.Evaluatee == c.Students[4] {
			marks = []float64{1, 1, 1}
		}
		testutil.CompleteEvaluation(t, env.Exams, ev, marks...)
	}

	err := cli.run([]string{"admin", "screen", "-exam", c.Exam.ID, "-tickets"})
	require.NoError(t, err)
	var report screening.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, screening.PolicyClassRelative, report.Policy)
	assert.Equal(t, 1, report.Flagged)
	assert.Equal(t, []string{c.Students[4]}, report.TicketsRaised)

	err = cli.run([]string{"admin", "screen", "-exam", "lol"})
	assert.True(t, core.IsNotFound(err), "got %v", err)
}

func Test_commandLine_sweep(t *testing.T) {
	cli, env, out := setup(t)
	c := testutil.AllocatedCourse(t, env, 4, 1)
	testutil.CompleteEvaluation(t, env.Exams, c.Evaluations[0], 5, 5, 5)

	require.NoError(t, cli.run([]string{"admin", "sweep", "-exam", c.Exam.ID}))
	var res dispute.SweepResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Len(t, res.Created, 3)
	assert.Zero(t, res.Skipped)

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "sweep", "-exam", c.Exam.ID}))
	res = dispute.SweepResult{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Empty(t, res.Created)
	assert.Equal(t, 3, res.Skipped)
}
