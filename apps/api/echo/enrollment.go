package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/soko/core/enrollment"
	"github.com/trezcool/soko/core/identity"
	"github.com/trezcool/soko/core/user"
)

type enrollmentApi struct {
	svc      *enrollment.Service
	resolver identity.Resolver
	auth     *Auth
	validate *validator.Validate
}

func registerEnrollmentAPI(
	g *echo.Group,
	auth *Auth,
	svc *enrollment.Service,
	resolver identity.Resolver,
	validate *validator.Validate,
) {
	api := enrollmentApi{
		svc:      svc,
		resolver: resolver,
		auth:     auth,
		validate: validate,
	}

	g.POST("/enroll", api.enroll, auth.required(studentMiddleware())...)

	eg := g.Group("/enrollments", auth.required()...)
	eg.GET("", api.query)
	eg.GET("/:id", api.retrieve)
	eg.PUT("/:id/progress", api.updateProgress)
	eg.PUT("/:id/verify-payment", api.verifyPayment, adminMiddleware())
	eg.PUT("/:id/reject-payment", api.rejectPayment, adminMiddleware())
	eg.PUT("/:id/certificate-sent", api.markCertificateSent, adminMiddleware(user.RoleAdminGeneral))
}

// Handlers

func (api *enrollmentApi) enroll(ctx echo.Context) error {
	var data enrollment.EnrollRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnrollRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	e, created, err := api.svc.Enroll(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return err
	}
	if created {
		return respond(ctx, http.StatusCreated, "Enrollment created", "enrollment", e)
	}
	return respond(ctx, http.StatusOK, "Enrollment updated", "enrollment", e)
}

// query lists the student's own enrollments; admins may filter every enrollment
// by status, course_id and student_id.
func (api *enrollmentApi) query(ctx echo.Context) error {
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	rctx := ctx.Request().Context()

	var enrollments []enrollment.Enrollment
	if ctxUsr.IsAdmin() {
		data := enrollment.FilterRequest{
			Statuses:  ctx.QueryParams()["status"],
			StudentID: ctx.QueryParam("student_id"),
			CourseID:  ctx.QueryParam("course_id"),
		}
		var filter enrollment.QueryFilter
		if filter, err = data.QueryFilter(api.validate, api.resolver); err != nil {
			return err
		}
		enrollments, err = api.svc.Query(rctx, ctxUsr, filter)
	} else {
		enrollments, err = api.svc.ListForStudent(rctx, ctxUsr)
	}
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	if enrollments == nil {
		enrollments = []enrollment.Enrollment{}
	}
	return respond(ctx, http.StatusOK, "Enrollments", "enrollments", enrollments)
}

func (api *enrollmentApi) retrieve(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id", enrollment.ErrNotFound)
	if err != nil {
		return err
	}
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	e, err := api.svc.Get(ctx.Request().Context(), ctxUsr, id)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Enrollment", "enrollment", e)
}

func (api *enrollmentApi) updateProgress(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id", enrollment.ErrNotFound)
	if err != nil {
		return err
	}
	var data enrollment.ProgressRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProgressRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	e, err := api.svc.UpdateProgress(ctx.Request().Context(), ctxUsr, id, data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Progress updated", "enrollment", e)
}

func (api *enrollmentApi) verifyPayment(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id", enrollment.ErrNotFound)
	if err != nil {
		return err
	}
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	e, err := api.svc.Verify(ctx.Request().Context(), ctxUsr, id)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Payment verified", "enrollment", e)
}

func (api *enrollmentApi) rejectPayment(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id", enrollment.ErrNotFound)
	if err != nil {
		return err
	}
	var data enrollment.RejectRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RejectRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	e, err := api.svc.Reject(ctx.Request().Context(), ctxUsr, id, data.Reason)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Payment rejected", "enrollment", e)
}

func (api *enrollmentApi) markCertificateSent(ctx echo.Context) error {
	id, err := objectIDParam(ctx, "id", enrollment.ErrNotFound)
	if err != nil {
		return err
	}
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	e, err := api.svc.MarkCertificateSent(ctx.Request().Context(), ctxUsr, id)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Certificate marked as sent", "enrollment", e)
}
