package mongorepos

import (
	"context"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/identity"
)

type courseDoc struct {
	ID            primitive.ObjectID   `bson:"_id"`
	CatalogNumber int                  `bson:"catalog_number,omitempty"`
	Title         string               `bson:"title"`
	Description   string               `bson:"description"`
	TeacherID     primitive.ObjectID   `bson:"teacher_id,omitempty"`
	Price         primitive.Decimal128 `bson:"price"`
	IsArchived    bool                 `bson:"is_archived"`
	CreatedAt     time.Time            `bson:"created_at"`
	UpdatedAt     time.Time            `bson:"updated_at"`
}

type courseRepository struct {
	coll *mongo.Collection
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *mongo.Database) *courseRepository {
	return &courseRepository{coll: db.Collection(coursesCollection)}
}

func (repo courseRepository) toDoc(c course.Course) courseDoc {
	return courseDoc{
		ID:            c.ID,
		CatalogNumber: c.CatalogNumber,
		Title:         c.Title,
		Description:   c.Description,
		TeacherID:     c.TeacherID,
		Price:         toDecimal128(c.Price),
		IsArchived:    c.IsArchived,
		CreatedAt:     c.CreatedAt.UTC(),
		UpdatedAt:     c.UpdatedAt.UTC(),
	}
}

func (repo courseRepository) fromDoc(doc courseDoc) course.Course {
	return course.Course{
		ID:            doc.ID,
		CatalogNumber: doc.CatalogNumber,
		Title:         doc.Title,
		Description:   doc.Description,
		TeacherID:     doc.TeacherID,
		Price:         fromDecimal128(doc.Price),
		IsArchived:    doc.IsArchived,
		CreatedAt:     doc.CreatedAt.UTC(),
		UpdatedAt:     doc.UpdatedAt.UTC(),
	}
}

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if _, err := repo.coll.InsertOne(ctx, repo.toDoc(c)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return course.Course{}, course.ErrCatalogNumberTaken
		}
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, ref identity.CourseRef) (course.Course, error) {
	var filter bson.M
	if id, ok := ref.ObjectID(); ok {
		filter = bson.M{"_id": id}
	} else if n, ok := ref.Number(); ok {
		filter = bson.M{"catalog_number": n}
	} else {
		return course.Course{}, course.ErrNotFound
	}

	var doc courseDoc
	if err := repo.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return course.Course{}, trapNoDocumentsErr(err, course.ErrNotFound, "finding course")
	}
	return repo.fromDoc(doc), nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter) ([]course.Course, error) {
	f := bson.M{}
	if filter != nil {
		if !filter.IncludeArchived {
			f["is_archived"] = false
		}
		if !filter.TeacherID.IsZero() {
			f["teacher_id"] = filter.TeacherID
		}
		if filter.Search != "" {
			f["title"] = primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := repo.coll.Find(ctx, f, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	var docs []courseDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding courses")
	}
	courses := make([]course.Course, 0, len(docs))
	for _, doc := range docs {
		courses = append(courses, repo.fromDoc(doc))
	}
	return courses, nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	res, err := repo.coll.ReplaceOne(ctx, bson.M{"_id": c.ID}, repo.toDoc(c))
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if res.MatchedCount == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return c, nil
}
