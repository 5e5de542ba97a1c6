package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/enrollment"
	"github.com/trezcool/soko/core/user"
)

type courseApi struct {
	svc         *course.Service
	enrollments *enrollment.Service
	auth        *Auth
	validate    *validator.Validate
}

func registerCourseAPI(
	g *echo.Group,
	auth *Auth,
	svc *course.Service,
	enrollments *enrollment.Service,
	validate *validator.Validate,
) {
	api := courseApi{
		svc:         svc,
		enrollments: enrollments,
		auth:        auth,
		validate:    validate,
	}

	cg := g.Group("/courses")

	// un-authed endpoints
	cg.GET("", api.query)
	cg.GET("/:ref", api.retrieve)

	// authed endpoints
	cg.POST("", api.create, auth.required(teacherMiddleware())...)
	cg.PUT("/:ref", api.update, auth.required(teacherMiddleware())...)
	cg.DELETE("/:ref", api.archive, auth.required(teacherMiddleware())...)
	cg.GET("/:ref/enrollments", api.queryEnrollments, auth.required(teacherMiddleware())...)
	cg.PUT("/:ref/teachers/:teacherId", api.assignTeacher, auth.required(adminMiddleware())...)
	cg.DELETE("/:ref/teachers/:teacherId", api.unassignTeacher, auth.required(adminMiddleware())...)
}

// Handlers

func (api *courseApi) query(ctx echo.Context) error {
	filter := course.QueryFilter{Search: ctx.QueryParam("search")}
	filter.Clean()
	if tid := ctx.QueryParam("teacher_id"); tid != "" {
		id, err := primitive.ObjectIDFromHex(tid)
		if err != nil {
			return respond(ctx, http.StatusOK, "Courses", "courses", []course.Course{})
		}
		filter.TeacherID = id
	}
	filter.IncludeArchived, _ = strconv.ParseBool(ctx.QueryParam("include_archived"))

	courses, err := api.svc.Query(ctx.Request().Context(), &filter)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return respond(ctx, http.StatusOK, "Courses", "courses", courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	c, err := api.svc.LookupRaw(ctx.Request().Context(), ctx.Param("ref"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Course", "course", c)
}

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	c, err := api.svc.Create(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, "Course created", "course", c)
}

func (api *courseApi) update(ctx echo.Context) error {
	ref, err := courseRefParam(ctx, "ref", api.svc.Resolver())
	if err != nil {
		return err
	}
	var data course.UpdateCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	c, err := api.svc.Update(ctx.Request().Context(), ctxUsr, ref, data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Course updated", "course", c)
}

func (api *courseApi) archive(ctx echo.Context) error {
	ref, err := courseRefParam(ctx, "ref", api.svc.Resolver())
	if err != nil {
		return err
	}
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	c, err := api.svc.Archive(ctx.Request().Context(), ctxUsr, ref)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Course archived", "course", c)
}

func (api *courseApi) queryEnrollments(ctx echo.Context) error {
	ref, err := courseRefParam(ctx, "ref", api.svc.Resolver())
	if err != nil {
		return err
	}
	var statuses []enrollment.Status
	for _, s := range ctx.QueryParams()["status"] {
		if st := enrollment.Status(s); st.IsValid() {
			statuses = append(statuses, st)
		}
	}

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	enrollments, err := api.enrollments.ListForCourse(ctx.Request().Context(), ctxUsr, ref, statuses...)
	if err != nil {
		return err
	}
	if enrollments == nil {
		enrollments = []enrollment.Enrollment{}
	}
	return respond(ctx, http.StatusOK, "Enrollments", "enrollments", enrollments)
}

func (api *courseApi) assignTeacher(ctx echo.Context) error {
	ref, err := courseRefParam(ctx, "ref", api.svc.Resolver())
	if err != nil {
		return err
	}
	teacherID, err := objectIDParam(ctx, "teacherId", user.ErrNotFound)
	if err != nil {
		return err
	}
	teacher, err := api.svc.AssignTeacher(ctx.Request().Context(), ref, teacherID)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Teacher assigned", "teacher", teacher)
}

func (api *courseApi) unassignTeacher(ctx echo.Context) error {
	ref, err := courseRefParam(ctx, "ref", api.svc.Resolver())
	if err != nil {
		return err
	}
	teacherID, err := objectIDParam(ctx, "teacherId", user.ErrNotFound)
	if err != nil {
		return err
	}
	teacher, err := api.svc.UnassignTeacher(ctx.Request().Context(), ref, teacherID)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Teacher unassigned", "teacher", teacher)
}
