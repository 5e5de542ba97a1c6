package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/identity"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// objectIDParam reads an id path param; a malformed id is reported as notFound.
func objectIDParam(ctx echo.Context, name string, notFound error) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(ctx.Param(name))
	if err != nil {
		return primitive.NilObjectID, notFound
	}
	return id, nil
}

// courseRefParam classifies a course reference path param.
func courseRefParam(ctx echo.Context, name string, resolver identity.Resolver) (identity.CourseRef, error) {
	ref, ok := resolver.Parse(ctx.Param(name))
	if !ok {
		return identity.CourseRef{}, course.ErrNotFound
	}
	return ref, nil
}

func respond(ctx echo.Context, code int, message, key string, payload interface{}) error {
	return ctx.JSON(code, echo.Map{"message": message, key: payload})
}
