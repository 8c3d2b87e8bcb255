package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/registration"
	"github.com/trezcool/kazi/core/submission"
	"github.com/trezcool/kazi/core/user"
)

type registrationApi struct {
	svc    registration.Service
	subSvc submission.Service
	usrSvc user.Service
}

func registerRegistrationAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc registration.Service,
	subSvc submission.Service,
	usrSvc user.Service,
) {
	api := registrationApi{svc: svc, subSvc: subSvc, usrSvc: usrSvc}

	ag := g.Group("/assignments", jwt)
	ag.POST("/:id/registrations", api.register)
	ag.GET("/:id/registrations", api.queryRegistrations, staffMiddleware())

	rg := g.Group("/registrations", jwt)
	rg.GET("/:id", api.retrieve)
	rg.DELETE("/:id", api.cancel)
	rg.PUT("/:id/grader", api.assignGrader, staffMiddleware())

	tg := g.Group("/teams", jwt)
	tg.GET("/:id", api.retrieveTeam)
	tg.GET("/:id/balance", api.teamBalance)
}

// Handlers

func (api *registrationApi) register(ctx echo.Context) error {
	var data registration.NewRegistration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRegistration")
	}
	data.AssignmentID = ctx.Param("id")
	if err := data.Validate(); err != nil {
		return err
	}

	actor, err := getContextActor(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	res, err := api.svc.Register(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}

	code := http.StatusCreated
	if res.AlreadyRegistered {
		code = http.StatusOK
	}
	return ctx.JSON(code, res)
}

func (api *registrationApi) queryRegistrations(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	regs, err := api.svc.QueryRegistrations(ctx.Request().Context(), ctx.Param("id"), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying registrations")
	}
	if regs == nil {
		regs = []registration.Registration{}
	}
	return ctx.JSON(http.StatusOK, regs)
}

func (api *registrationApi) retrieve(ctx echo.Context) error {
	reg, err := api.svc.GetRegistration(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, reg)
}

func (api *registrationApi) cancel(ctx echo.Context) error {
	actor, err := getContextActor(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	if err := api.svc.CancelRegistration(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *registrationApi) assignGrader(ctx echo.Context) error {
	var data AssignGraderRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignGraderRequest")
	}
	if err := core.Validate.Struct(&data); err != nil {
		return err
	}

	actor, err := getContextActor(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	reg, err := api.svc.AssignGrader(ctx.Request().Context(), actor, ctx.Param("id"), data.GraderID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, reg)
}

func (api *registrationApi) retrieveTeam(ctx echo.Context) error {
	team, err := api.svc.GetTeam(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, team)
}

func (api *registrationApi) teamBalance(ctx echo.Context) error {
	balance, err := api.subSvc.TeamBalance(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, balance)
}

type AssignGraderRequest struct {
	GraderID string `json:"grader_id" validate:"required"`
}
