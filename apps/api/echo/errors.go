package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/exam"
)

// errorResponse maps an error returned by a handler to its status code and response body.
// ok is false for errors the client cannot act upon.
func errorResponse(err error) (code int, message interface{}, ok bool) {
	switch cause := errors.Cause(err).(type) {
	case *echo.HTTPError:
		if inner, isHTTP := cause.Internal.(*echo.HTTPError); isHTTP {
			cause = inner
		}
		return cause.Code, cause.Message, true
	case validator.ValidationErrors:
		fields := make(map[string]string, len(cause))
		for _, fe := range cause {
			fields[fe.Field()] = fe.Translate(core.Translator)
		}
		return http.StatusBadRequest, fields, true
	case *core.ValidationError:
		if len(cause.Fields) == 0 {
			return http.StatusBadRequest, cause.Error(), true
		}
		fields := make(map[string]string, len(cause.Fields))
		for _, fe := range cause.Fields {
			fields[fe.Field] = fe.Error
		}
		return http.StatusBadRequest, fields, true
	case *core.InvalidRequestError:
		return http.StatusBadRequest, cause.Error(), true
	case *core.NotFoundError:
		return http.StatusNotFound, cause.Error(), true
	case *core.ConflictError:
		return http.StatusConflict, cause.Error(), true
	}
	if errors.Cause(err) == exam.ErrInfeasible {
		return http.StatusUnprocessableEntity, exam.ErrInfeasible.Error(), true
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), false
}

// newAppHTTPErrorHandler returns an echo.HTTPErrorHandler rendering our errors as JSON.
// signalShutdown is called whenever a core shutdown error reaches it.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code, message, ok := errorResponse(err)
		if !ok {
			msg := http.StatusText(code)
			logger.Error(msg, errors.Wrap(err, msg), map[string]interface{}{
				"method": ctx.Request().Method, "path": ctx.Request().URL.Path,
			})
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, isString := message.(string); isString {
			message = echo.Map{"error": m}
		}
		if ctx.Response().Committed {
			return
		}

		if ctx.Request().Method == http.MethodHead {
			err = ctx.NoContent(code)
		} else {
			err = ctx.JSON(code, message)
		}
		if err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}
