package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core/submission"
	"github.com/trezcool/kazi/core/user"
)

type submissionApi struct {
	svc    submission.Service
	usrSvc user.Service
}

func registerSubmissionAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc submission.Service, usrSvc user.Service) {
	api := submissionApi{svc: svc, usrSvc: usrSvc}

	rg := g.Group("/registrations", jwt)
	rg.POST("/:id/submissions", api.submit)
	rg.DELETE("/:id/submission", api.cancel)

	sg := g.Group("/submissions", jwt)
	sg.GET("/:id", api.retrieve, staffMiddleware())

	stg := g.Group("/students", jwt)
	stg.GET("/:id/balance", api.studentBalance)
}

// Handlers

func (api *submissionApi) submit(ctx echo.Context) error {
	var data submission.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	actor, err := getContextActor(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	res, err := api.svc.Submit(ctx.Request().Context(), actor, ctx.Param("id"), data, time.Now().UTC())
	if err != nil {
		return err
	}

	code := http.StatusCreated
	if res.DryRun {
		code = http.StatusOK
	}
	return ctx.JSON(code, res)
}

func (api *submissionApi) cancel(ctx echo.Context) error {
	actor, err := getContextActor(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	if err := api.svc.CancelSubmission(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *submissionApi) retrieve(ctx echo.Context) error {
	sub, err := api.svc.GetSubmission(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *submissionApi) studentBalance(ctx echo.Context) error {
	balance, err := api.svc.StudentBalance(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, balance)
}
