package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/screening"
	"github.com/hansini-nalla/pes-sub000/services/metrics"
)

type screeningApi struct {
	svc     *screening.Service
	metrics *metrics.Metrics
}

func registerScreeningAPI(g *echo.Group, svc *screening.Service, m *metrics.Metrics) {
	api := screeningApi{svc: svc, metrics: m}

	g.POST("/exams/:id/screen", api.screen)
	g.GET("/exams/:id/verdicts", api.verdicts)
}

func (api *screeningApi) screen(ctx echo.Context) error {
	var tickets bool
	if raw := ctx.QueryParam("tickets"); raw != "" {
		var err error
		if tickets, err = strconv.ParseBool(raw); err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "tickets", Error: "tickets must be a boolean"})
		}
	}
	report, err := api.svc.ScreenExam(ctx.Request().Context(), ctx.Param("id"), tickets)
	if err != nil {
		return errors.Wrap(err, "screening exam")
	}
	if api.metrics != nil {
		api.metrics.ObserveVerdicts(string(report.Policy), len(report.Verdicts), report.Flagged)
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *screeningApi) verdicts(ctx echo.Context) error {
	verdicts, err := api.svc.Verdicts(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying verdicts")
	}
	return ctx.JSON(http.StatusOK, verdicts)
}
