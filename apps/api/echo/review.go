package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/soko/core/identity"
	"github.com/trezcool/soko/core/review"
	"github.com/trezcool/soko/core/user"
)

type reviewApi struct {
	svc      *review.Service
	resolver identity.Resolver
	auth     *Auth
	validate *validator.Validate
}

func registerReviewAPI(
	g *echo.Group,
	auth *Auth,
	svc *review.Service,
	resolver identity.Resolver,
	validate *validator.Validate,
) {
	api := reviewApi{
		svc:      svc,
		resolver: resolver,
		auth:     auth,
		validate: validate,
	}

	rg := g.Group("/reviews")

	// un-authed endpoints
	rg.GET("/teachers/:teacherId", api.queryForTeacher)

	// authed endpoints
	rg.POST("", api.create, auth.required(studentMiddleware())...)
	rg.GET("/can-review/:teacherId/:courseId", api.canReview, auth.required(studentMiddleware())...)
}

// Handlers

func (api *reviewApi) create(ctx echo.Context) error {
	var data review.NewReview
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReview")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	r, err := api.svc.Create(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, "Review created", "review", r)
}

// canReview always answers 200; an unknown teacher or course is the not_found reason.
func (api *reviewApi) canReview(ctx echo.Context) error {
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	teacherID, idErr := objectIDParam(ctx, "teacherId", user.ErrNotFound)
	ref, refErr := courseRefParam(ctx, "courseId", api.resolver)
	if idErr != nil || refErr != nil {
		return respond(ctx, http.StatusOK, "Review eligibility", "eligibility", review.Eligibility{
			Reason:  review.ReasonNotFound,
			Message: review.ReasonNotFound.Message(),
		})
	}

	elig, err := api.svc.CanReview(ctx.Request().Context(), ctxUsr, teacherID, ref)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, "Review eligibility", "eligibility", elig)
}

func (api *reviewApi) queryForTeacher(ctx echo.Context) error {
	teacherID, err := objectIDParam(ctx, "teacherId", user.ErrNotFound)
	if err != nil {
		return err
	}
	reviews, summary, err := api.svc.ListForTeacher(ctx.Request().Context(), teacherID)
	if err != nil {
		return err
	}
	if reviews == nil {
		reviews = []review.Review{}
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"message": "Reviews",
		"reviews": reviews,
		"summary": summary,
	})
}
