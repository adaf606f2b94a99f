package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/actor"
)

type rosterApi struct {
	roster *actor.Roster
}

type CourseTeacherRequest struct {
	TeacherID string `json:"teacher_id" validate:"notblank"`
}

func registerRosterAPI(g *echo.Group, roster *actor.Roster) {
	api := rosterApi{roster: roster}

	g.POST("/actors", api.register)
	g.GET("/actors/:id", api.retrieve)
	g.POST("/batches", api.createBatch)
	g.POST("/courses/:id/teachers", api.addCourseTeacher)
}

func (api *rosterApi) register(ctx echo.Context) error {
	var data actor.Actor
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Actor")
	}
	a, err := api.roster.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering actor")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *rosterApi) retrieve(ctx echo.Context) error {
	a, err := api.roster.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting actor")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *rosterApi) createBatch(ctx echo.Context) error {
	var data actor.Batch
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Batch")
	}
	b, err := api.roster.CreateBatch(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating batch")
	}
	return ctx.JSON(http.StatusCreated, b)
}

func (api *rosterApi) addCourseTeacher(ctx echo.Context) error {
	var data CourseTeacherRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CourseTeacherRequest")
	}
	if err := core.ValidateStruct(data); err != nil {
		return err
	}
	if err := api.roster.AddCourseTeacher(ctx.Request().Context(), ctx.Param("id"), data.TeacherID); err != nil {
		return errors.Wrap(err, "adding course teacher")
	}
	return ctx.NoContent(http.StatusNoContent)
}
