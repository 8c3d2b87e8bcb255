package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/course"
	"github.com/trezcool/kazi/core/user"
)

type courseApi struct {
	svc    course.Service
	usrSvc user.Service
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc course.Service, usrSvc user.Service) {
	api := courseApi{svc: svc, usrSvc: usrSvc}

	cg := g.Group("/courses", jwt)
	cg.POST("", api.createCourse, adminMiddleware())
	cg.GET("", api.queryCourses)
	cg.GET("/:id", api.retrieveCourse)
	cg.POST("/:id/assignments", api.createAssignment, staffMiddleware())
	cg.GET("/:id/assignments", api.queryAssignments)
	cg.POST("/:id/students", api.enrollStudent, staffMiddleware())
	cg.GET("/:id/students", api.queryStudents, staffMiddleware())

	ag := g.Group("/assignments", jwt)
	ag.GET("/:id", api.retrieveAssignment)

	sg := g.Group("/students", jwt)
	sg.GET("/:id", api.retrieveStudent, staffMiddleware())
	sg.DELETE("/:id", api.dropStudent, staffMiddleware())
	sg.POST("/:id/extensions", api.grantExtensions, staffMiddleware())
}

// Handlers

func (api *courseApi) createCourse(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	crs, err := api.svc.CreateCourse(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) queryCourses(ctx echo.Context) error {
	courses, err := api.svc.QueryCourses(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieveCourse(ctx echo.Context) error {
	crs, err := api.svc.GetCourse(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) createAssignment(ctx echo.Context) error {
	var data course.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	data.CourseID = ctx.Param("id")
	if err := data.Validate(); err != nil {
		return err
	}

	assignment, err := api.svc.CreateAssignment(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, assignment)
}

func (api *courseApi) queryAssignments(ctx echo.Context) error {
	assignments, err := api.svc.QueryAssignments(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	if assignments == nil {
		assignments = []course.Assignment{}
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *courseApi) retrieveAssignment(ctx echo.Context) error {
	assignment, err := api.svc.GetAssignment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, assignment)
}

func (api *courseApi) enrollStudent(ctx echo.Context) error {
	var data course.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	data.CourseID = ctx.Param("id")
	if err := data.Validate(); err != nil {
		return err
	}

	student, err := api.svc.Enroll(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return ctx.JSON(http.StatusCreated, student)
}

func (api *courseApi) queryStudents(ctx echo.Context) error {
	students, err := api.svc.QueryStudents(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []course.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *courseApi) retrieveStudent(ctx echo.Context) error {
	student, err := api.svc.GetStudent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, student)
}

func (api *courseApi) dropStudent(ctx echo.Context) error {
	student, err := api.svc.Drop(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, student)
}

func (api *courseApi) grantExtensions(ctx echo.Context) error {
	var data GrantExtensionsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GrantExtensionsRequest")
	}
	if err := core.Validate.Struct(&data); err != nil {
		return err
	}

	student, err := api.svc.GrantExtensions(ctx.Request().Context(), ctx.Param("id"), data.Count)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, student)
}

type GrantExtensionsRequest struct {
	Count int `json:"count" validate:"required,min=1"`
}
