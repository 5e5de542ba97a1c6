package mongorepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/soko/core/identity"
	"github.com/trezcool/soko/core/review"
)

type reviewDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	TeacherID primitive.ObjectID `bson:"teacher_id"`
	StudentID primitive.ObjectID `bson:"student_id"`
	CourseID  interface{}        `bson:"course_id"`
	Rating    int                `bson:"rating"`
	Comment   string             `bson:"comment"`
	CreatedAt time.Time          `bson:"created_at"`
}

type reviewRepository struct {
	coll *mongo.Collection
}

var _ review.Repository = (*reviewRepository)(nil) // interface compliance check

func NewReviewRepository(db *mongo.Database) *reviewRepository {
	return &reviewRepository{coll: db.Collection(reviewsCollection)}
}

func (repo reviewRepository) CreateReview(ctx context.Context, r review.Review) (review.Review, error) {
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	doc := reviewDoc{
		ID:        r.ID,
		TeacherID: r.TeacherID,
		StudentID: r.StudentID,
		CourseID:  r.CourseRef.Native(),
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt.UTC(),
	}
	if _, err := repo.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return review.Review{}, review.ErrAlreadyReviewed
		}
		return review.Review{}, errors.Wrap(err, "inserting review")
	}
	return r, nil
}

func (repo reviewRepository) ExistsReview(ctx context.Context, teacherID, studentID primitive.ObjectID, ref identity.CourseRef) (bool, error) {
	n, err := repo.coll.CountDocuments(
		ctx,
		bson.M{"teacher_id": teacherID, "student_id": studentID, "course_id": courseFilter(ref)},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, errors.Wrap(err, "checking review")
	}
	return n > 0, nil
}

func (repo reviewRepository) QueryReviews(ctx context.Context, teacherID primitive.ObjectID) ([]review.Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := repo.coll.Find(ctx, bson.M{"teacher_id": teacherID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying reviews")
	}
	var docs []reviewDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding reviews")
	}
	reviews := make([]review.Review, 0, len(docs))
	for _, doc := range docs {
		reviews = append(reviews, review.Review{
			ID:        doc.ID,
			TeacherID: doc.TeacherID,
			StudentID: doc.StudentID,
			CourseRef: identity.FromStored(doc.CourseID),
			Rating:    doc.Rating,
			Comment:   doc.Comment,
			CreatedAt: doc.CreatedAt.UTC(),
		})
	}
	return reviews, nil
}
