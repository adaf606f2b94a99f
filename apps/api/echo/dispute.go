package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/dispute"
	"github.com/hansini-nalla/pes-sub000/services/metrics"
)

type disputeApi struct {
	svc     *dispute.Service
	metrics *metrics.Metrics
}

type DisputeRequest struct {
	RaisedBy string `json:"raised_by" validate:"notblank"`
}

func registerDisputeAPI(g *echo.Group, svc *dispute.Service, m *metrics.Metrics) {
	api := disputeApi{svc: svc, metrics: m}

	g.POST("/exams/:id/sweep", api.sweep)
	g.POST("/evaluations/:id/flags", api.raise)

	fg := g.Group("/flags")
	fg.GET("", api.flags)
	fg.GET("/:id", api.flag)
	fg.POST("/:id/resolve", api.resolve)
	fg.POST("/:id/escalate", api.escalateFlag)

	tg := g.Group("/tickets")
	tg.GET("", api.tickets)
	tg.GET("/:id", api.ticket)
	tg.POST("/:id/complete", api.complete)
	tg.POST("/:id/escalate", api.escalateTicket)
	tg.POST("/:id/close", api.close)
}

func (api *disputeApi) observe(entity, status string) {
	if api.metrics != nil {
		api.metrics.ObserveTransition(entity, status)
	}
}

func (api *disputeApi) sweep(ctx echo.Context) error {
	res, err := api.svc.SweepNonResponders(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "sweeping non responders")
	}
	if api.metrics != nil {
		api.metrics.ObserveSweep(len(res.Created), res.Skipped, len(res.Unrouted))
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *disputeApi) raise(ctx echo.Context) error {
	var data DisputeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DisputeRequest")
	}
	if err := core.ValidateStruct(data); err != nil {
		return err
	}
	f, err := api.svc.RaiseDispute(ctx.Request().Context(), ctx.Param("id"), data.RaisedBy)
	if err != nil {
		return errors.Wrap(err, "raising dispute")
	}
	api.observe("flag", string(f.Status))
	return ctx.JSON(http.StatusCreated, f)
}

func (api *disputeApi) flags(ctx echo.Context) error {
	var filter dispute.FlagFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to FlagFilter")
	}
	flags, err := api.svc.Flags(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying flags")
	}
	return ctx.JSON(http.StatusOK, flags)
}

func (api *disputeApi) flag(ctx echo.Context) error {
	f, err := api.svc.GetFlag(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting flag")
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *disputeApi) resolve(ctx echo.Context) error {
	var data dispute.Resolution
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Resolution")
	}
	f, err := api.svc.ResolveFlag(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "resolving flag")
	}
	api.observe("flag", string(f.Status))
	return ctx.JSON(http.StatusOK, f)
}

func (api *disputeApi) escalateFlag(ctx echo.Context) error {
	var data dispute.Escalation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Escalation")
	}
	f, err := api.svc.EscalateFlag(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "escalating flag")
	}
	api.observe("flag", string(f.Status))
	return ctx.JSON(http.StatusOK, f)
}

func (api *disputeApi) tickets(ctx echo.Context) error {
	var filter dispute.TicketFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to TicketFilter")
	}
	tickets, err := api.svc.Tickets(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying tickets")
	}
	return ctx.JSON(http.StatusOK, tickets)
}

func (api *disputeApi) ticket(ctx echo.Context) error {
	t, err := api.svc.GetTicket(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting ticket")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *disputeApi) complete(ctx echo.Context) error {
	var data dispute.UncheckedCompletion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UncheckedCompletion")
	}
	t, err := api.svc.CompleteUncheckedTicket(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "completing ticket")
	}
	api.observe("ticket", string(t.Status))
	return ctx.JSON(http.StatusOK, t)
}

func (api *disputeApi) escalateTicket(ctx echo.Context) error {
	t, err := api.svc.EscalateTicket(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "escalating ticket")
	}
	api.observe("ticket", "escalated")
	return ctx.JSON(http.StatusOK, t)
}

func (api *disputeApi) close(ctx echo.Context) error {
	t, err := api.svc.CloseTicket(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "closing ticket")
	}
	api.observe("ticket", string(t.Status))
	return ctx.JSON(http.StatusOK, t)
}
