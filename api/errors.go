package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/course"
	"github.com/trezcool/kazi/core/registration"
	"github.com/trezcool/kazi/core/submission"
	"github.com/trezcool/kazi/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// notFoundErrs map domain lookups to 404s.
var notFoundErrs = map[error]struct{}{
	user.ErrNotFound:              {},
	course.ErrNotFound:            {},
	course.ErrAssignmentNotFound:  {},
	course.ErrStudentNotFound:     {},
	registration.ErrNotFound:      {},
	registration.ErrTeamNotFound:  {},
	submission.ErrNotFound:        {},
	submission.ErrNothingToCancel: {},
}

// conflictErrs map business-state collisions to 409s.
var conflictErrs = map[error]struct{}{
	course.ErrCourseExists:          {},
	course.ErrStudentExists:         {},
	registration.ErrTeamNameTaken:   {},
	registration.ErrHasSubmission:   {},
	submission.ErrGradingInProgress: {},
	submission.ErrNoOpSubmission:    {},
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *registration.ConflictError:
			code = http.StatusConflict
			message = echo.Map{
				"error":     origErr.Error(),
				"conflicts": origErr.Conflicts,
			}
		case *registration.InvalidPartySizeError:
			code = http.StatusBadRequest
			message = origErr.Error()
		case *course.UnknownStudentError:
			code = http.StatusBadRequest
			message = echo.Map{
				"error":   origErr.Error(),
				"unknown": origErr.Usernames,
			}
		case *submission.InsufficientExtensionsError:
			code = http.StatusBadRequest
			message = echo.Map{
				"error":     origErr.Error(),
				"needed":    origErr.Needed,
				"available": origErr.Available,
			}
		case *submission.WrongExtensionCountError:
			code = http.StatusBadRequest
			message = echo.Map{
				"error":     origErr.Error(),
				"requested": origErr.Requested,
				"needed":    origErr.Needed,
			}
		default:
			cause := errors.Cause(err)
			if cause == core.ErrPermissionDenied {
				code = http.StatusForbidden
				message = errHttpForbidden.Message
				break
			}
			if _, ok := notFoundErrs[cause]; ok {
				code = http.StatusNotFound
				message = cause.Error()
				break
			}
			if _, ok := conflictErrs[cause]; ok {
				code = http.StatusConflict
				message = cause.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Username = claims.Username
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsIntegrityError(err) || core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
