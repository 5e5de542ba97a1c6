package sqlxrepos

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core/identity"
)

// Table names
const (
	userTable         = `"user"`
	courseTable       = "course"
	enrollmentTable   = "enrollment"
	notificationTable = "notification"
	reviewTable       = "review"
	messageTable      = "message"
)

// psql builds postgres flavored queries.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == uniqueViolation
}

func isConstraint(err error, constraint string) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == uniqueViolation && pqErr.Constraint == constraint
}

// parseID turns a stored id back into an ObjectID; malformed ids become the zero id.
func parseID(s string) primitive.ObjectID {
	id, _ := primitive.ObjectIDFromHex(s)
	return id
}

func nullID(id primitive.ObjectID) null.String {
	return null.NewString(id.Hex(), !id.IsZero())
}

func nullIDPtr(id *primitive.ObjectID) null.String {
	if id == nil {
		return null.String{}
	}
	return nullID(*id)
}

func idPtr(s null.String) *primitive.ObjectID {
	if !s.Valid {
		return nil
	}
	id := parseID(s.String)
	return &id
}

// courseEq matches the stored kind and id columns of ref.
func courseEq(ref identity.CourseRef) sq.Eq {
	return sq.Eq{"course_kind": ref.Kind().String(), "course_id": ref.String()}
}

func refFromColumns(kind, id string) identity.CourseRef {
	ref := identity.FromStored(id)
	if ref.Kind().String() != kind {
		return identity.CourseRef{}
	}
	return ref
}

func refStrings(refs []identity.CourseRef) pq.StringArray {
	values := make(pq.StringArray, 0, len(refs))
	for _, ref := range refs {
		if !ref.IsZero() {
			values = append(values, ref.String())
		}
	}
	return values
}

func refsFromStrings(values []string) []identity.CourseRef {
	refs := make([]identity.CourseRef, 0, len(values))
	for _, v := range values {
		if ref := identity.FromStored(v); !ref.IsZero() {
			refs = append(refs, ref)
		}
	}
	return refs
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}
