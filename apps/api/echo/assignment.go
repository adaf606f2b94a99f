package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hansini-nalla/pes-sub000/core/assignment"
)

func registerAssignmentAPI(g *echo.Group) {
	g.POST("/assignments/preview", previewAssignment)
}

// previewAssignment runs the assignment engine on an ad hoc list of submitters, nothing is stored.
// An infeasible request is still a 200: Feasible tells.
func previewAssignment(ctx echo.Context) error {
	var data assignment.Request
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Request")
	}
	res, err := assignment.Assign(data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}
