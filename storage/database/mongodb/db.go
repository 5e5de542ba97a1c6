package mongorepos

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/soko/core/identity"
)

// Collection names
const (
	usersCollection         = "users"
	coursesCollection       = "courses"
	enrollmentsCollection   = "enrollments"
	notificationsCollection = "notifications"
	reviewsCollection       = "reviews"
	messagesCollection      = "messages"
)

// EnsureIndexes creates the indexes the repositories rely on, uniqueness rules included.
// It is safe to call on every startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{
				Keys:    bson.D{{Key: "username", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"username": bson.M{"$gt": ""}}),
			},
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"email": bson.M{"$gt": ""}}),
			},
			{Keys: bson.D{{Key: "assigned_courses", Value: 1}}},
		},
		coursesCollection: {
			{
				Keys:    bson.D{{Key: "catalog_number", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"catalog_number": bson.M{"$gt": 0}}),
			},
			{Keys: bson.D{{Key: "teacher_id", Value: 1}}},
		},
		enrollmentsCollection: {
			// one open (non-cancelled) enrollment per student and course
			{
				Keys:    bson.D{{Key: "student_id", Value: 1}, {Key: "course_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"is_open": true}),
			},
			{Keys: bson.D{{Key: "course_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		notificationsCollection: {
			{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		reviewsCollection: {
			{
				Keys:    bson.D{{Key: "teacher_id", Value: 1}, {Key: "student_id", Value: 1}, {Key: "course_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		messagesCollection: {
			{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "creating %s indexes", coll)
		}
	}
	return nil
}

// courseFilter matches a course reference stored either natively or as a string.
func courseFilter(ref identity.CourseRef) bson.M {
	return bson.M{"$in": ref.Candidates()}
}

func toDecimal128(d decimal.Decimal) primitive.Decimal128 {
	d128, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.NewDecimal128(0, 0)
	}
	return d128
}

func fromDecimal128(d128 primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(d128.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func refsToNative(refs []identity.CourseRef) []interface{} {
	natives := make([]interface{}, 0, len(refs))
	for _, ref := range refs {
		if !ref.IsZero() {
			natives = append(natives, ref.Native())
		}
	}
	return natives
}

func refsFromStored(values []interface{}) []identity.CourseRef {
	refs := make([]identity.CourseRef, 0, len(values))
	for _, v := range values {
		if ref := identity.FromStored(v); !ref.IsZero() {
			refs = append(refs, ref)
		}
	}
	return refs
}

// trapNoDocumentsErr maps mongo's "no documents" error to notFound.
func trapNoDocumentsErr(err error, notFound error, msg string) error {
	if err == mongo.ErrNoDocuments {
		return notFound
	}
	return errors.Wrap(err, msg)
}
