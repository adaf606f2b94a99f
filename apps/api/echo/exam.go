package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/exam"
	"github.com/hansini-nalla/pes-sub000/services/metrics"
)

type examApi struct {
	svc     *exam.Service
	metrics *metrics.Metrics
}

type (
	SubmissionRequest struct {
		StudentID string `json:"student_id" validate:"notblank"`
	}

	MarksRequest struct {
		Evaluator string    `json:"evaluator" validate:"notblank"`
		Marks     []float64 `json:"marks" validate:"required"`
		Feedback  string    `json:"feedback"`
	}
)

func registerExamAPI(g *echo.Group, svc *exam.Service, m *metrics.Metrics) {
	api := examApi{svc: svc, metrics: m}

	eg := g.Group("/exams")
	eg.POST("", api.create)
	eg.GET("/:id", api.retrieve)
	eg.POST("/:id/submissions", api.submit)
	eg.GET("/:id/submitters", api.submitters)
	eg.POST("/:id/allocate", api.allocate)
	eg.GET("/:id/evaluations", api.evaluations)

	g.POST("/evaluations/:id/marks", api.submitMarks)
}

func (api *examApi) create(ctx echo.Context) error {
	var data exam.NewExam
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewExam")
	}
	e, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating exam")
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *examApi) retrieve(ctx echo.Context) error {
	e, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting exam")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *examApi) submit(ctx echo.Context) error {
	var data SubmissionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmissionRequest")
	}
	if err := core.ValidateStruct(data); err != nil {
		return err
	}
	sub, err := api.svc.Submit(ctx.Request().Context(), ctx.Param("id"), data.StudentID)
	if err != nil {
		return errors.Wrap(err, "submitting")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *examApi) submitters(ctx echo.Context) error {
	ids, err := api.svc.Submitters(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying submitters")
	}
	return ctx.JSON(http.StatusOK, ids)
}

func (api *examApi) allocate(ctx echo.Context) error {
	start := time.Now()
	alloc, err := api.svc.Allocate(ctx.Request().Context(), ctx.Param("id"))
	if api.metrics != nil {
		outcome := metrics.AllocationDone
		switch {
		case errors.Cause(err) == exam.ErrInfeasible:
			outcome = metrics.AllocationInfeasible
		case err != nil:
			outcome = metrics.AllocationFailed
		}
		api.metrics.ObserveAllocation(outcome, time.Since(start))
	}
	if err != nil {
		return errors.Wrap(err, "allocating exam")
	}
	return ctx.JSON(http.StatusCreated, alloc)
}

func (api *examApi) evaluations(ctx echo.Context) error {
	var filter exam.EvaluationFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to EvaluationFilter")
	}
	filter.ExamID = ctx.Param("id")
	if _, err := api.svc.Get(ctx.Request().Context(), filter.ExamID); err != nil {
		return errors.Wrap(err, "getting exam")
	}
	evs, err := api.svc.Evaluations(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying evaluations")
	}
	return ctx.JSON(http.StatusOK, evs)
}

func (api *examApi) submitMarks(ctx echo.Context) error {
	var data MarksRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarksRequest")
	}
	if err := core.ValidateStruct(data); err != nil {
		return err
	}
	ev, err := api.svc.SubmitMarks(ctx.Request().Context(), ctx.Param("id"), data.Evaluator, data.Marks, data.Feedback)
	if err != nil {
		return errors.Wrap(err, "submitting marks")
	}
	return ctx.JSON(http.StatusOK, ev)
}
