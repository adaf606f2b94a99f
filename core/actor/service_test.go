package actor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/actor"
	"github.com/hansini-nalla/pes-sub000/tests"
)

func TestRoster_Register(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)

	tests := []struct {
		name    string
		data    actor.Actor
		wantErr bool
	}{
		{name: "student", data: actor.Actor{Name: " Ann ", Email: "ANN@test.cd ", Roles: []string{actor.RoleStudent}}},
		{name: "blank name", data: actor.Actor{Name: " ", Roles: []string{actor.RoleStudent}}, wantErr: true},
		{name: "bad email", data: actor.Actor{Name: "Ann", Email: "lol", Roles: []string{actor.RoleStudent}}, wantErr: true},
		{name: "no role", data: actor.Actor{Name: "Ann"}, wantErr: true},
		{name: "unknown role", data: actor.Actor{Name: "Ann", Roles: []string{"janitor:"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := env.Roster.Register(ctx, tt.data)
			if tt.wantErr {
				assert.True(t, core.IsValidation(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, a.ID)
			assert.Equal(t, "Ann", a.Name)
			assert.Equal(t, "ann@test.cd", a.Email)
			assert.True(t, a.IsStudent())

			got, err := env.Roster.Get(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, a, got)
		})
	}
}

func TestRoster_ResponsibleReviewer(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	now := time.Now()

	ta1 := testutil.CreateActor(t, env.Actors, "TA 1", actor.RoleTA)
	ta2 := testutil.CreateActor(t, env.Actors, "TA 2", actor.RoleTA)
	ta3 := testutil.CreateActor(t, env.Actors, "TA 3", actor.RoleTA)

	testutil.CreateBatch(t, env.Actors, "c1", []string{ta2.ID, ta1.ID}, []string{"ann", "bob"}, now.Add(-time.Hour))
	testutil.CreateBatch(t, env.Actors, "c1", []string{ta3.ID}, []string{"ann", "cat"}, now.Add(-2*time.Hour))
	testutil.CreateBatch(t, env.Actors, "c1", nil, []string{"dan"}, now.Add(-3*time.Hour))
	testutil.CreateBatch(t, env.Actors, "c1", []string{ta1.ID}, []string{"dan"}, now)

	tests := []struct {
		student string
		want    string
		wantOK  bool
	}{
		{student: "ann", want: ta3.ID, wantOK: true}, // oldest batch
		{student: "bob", want: ta2.ID, wantOK: true}, // first reviewer
		{student: "cat", want: ta3.ID, wantOK: true},
		{student: "dan", want: ta1.ID, wantOK: true}, // oldest batch has no reviewer
		{student: "eve"},
	}
	for _, tt := range tests {
		t.Run(tt.student, func(t *testing.T) {
			got, ok, err := env.Roster.ResponsibleReviewer(ctx, tt.student)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoster_CourseTeachers(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	teacher := testutil.CreateActor(t, env.Actors, "Teacher", actor.RoleTeacher)
	student := testutil.CreateActor(t, env.Actors, "Student", actor.RoleStudent)

	require.NoError(t, env.Roster.AddCourseTeacher(ctx, "c1", teacher.ID))
	require.NoError(t, env.Roster.AddCourseTeacher(ctx, "c1", teacher.ID))

	err := env.Roster.AddCourseTeacher(ctx, "c1", student.ID)
	assert.True(t, core.IsValidation(err), "got %v", err)
	err = env.Roster.AddCourseTeacher(ctx, "c1", "lol")
	assert.True(t, core.IsNotFound(err), "got %v", err)

	teachers, err := env.Roster.CourseTeachers(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{teacher.ID}, teachers)

	actors, err := env.Roster.Actors(ctx, teacher.ID, "lol", student.ID)
	require.NoError(t, err)
	assert.Len(t, actors, 2)
}
