package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core/identity"
	"github.com/trezcool/soko/core/review"
)

var reviewColumns = []string{"id", "teacher_id", "student_id", "course_kind", "course_id", "rating", "comment", "created_at"}

type reviewRow struct {
	ID         string    `db:"id"`
	TeacherID  string    `db:"teacher_id"`
	StudentID  string    `db:"student_id"`
	CourseKind string    `db:"course_kind"`
	CourseID   string    `db:"course_id"`
	Rating     int       `db:"rating"`
	Comment    string    `db:"comment"`
	CreatedAt  time.Time `db:"created_at"`
}

type reviewRepository struct {
	db *sqlx.DB
}

var _ review.Repository = (*reviewRepository)(nil) // interface compliance check

func NewReviewRepository(db *sqlx.DB) *reviewRepository {
	return &reviewRepository{db: db}
}

func (repo reviewRepository) CreateReview(ctx context.Context, r review.Review) (review.Review, error) {
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	q, args, err := psql.Insert(reviewTable).Columns(reviewColumns...).Values(
		r.ID.Hex(), r.TeacherID.Hex(), r.StudentID.Hex(), r.CourseRef.Kind().String(), r.CourseRef.String(),
		r.Rating, r.Comment, r.CreatedAt.UTC(),
	).ToSql()
	if err != nil {
		return review.Review{}, errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return review.Review{}, review.ErrAlreadyReviewed
		}
		return review.Review{}, errors.Wrap(err, "inserting review")
	}
	return r, nil
}

func (repo reviewRepository) ExistsReview(ctx context.Context, teacherID, studentID primitive.ObjectID, ref identity.CourseRef) (bool, error) {
	q, args, err := psql.Select("1").From(reviewTable).
		Where(sq.Eq{"teacher_id": teacherID.Hex(), "student_id": studentID.Hex()}).
		Where(courseEq(ref)).
		Limit(1).ToSql()
	if err != nil {
		return false, errors.Wrap(err, "building query")
	}
	var one int
	if err = repo.db.GetContext(ctx, &one, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, errors.Wrap(err, "checking review")
	}
	return true, nil
}

func (repo reviewRepository) QueryReviews(ctx context.Context, teacherID primitive.ObjectID) ([]review.Review, error) {
	q, args, err := psql.Select(reviewColumns...).From(reviewTable).
		Where(sq.Eq{"teacher_id": teacherID.Hex()}).
		OrderBy("created_at DESC", "id DESC").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []reviewRow
	if err = repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying reviews")
	}
	reviews := make([]review.Review, 0, len(rows))
	for _, row := range rows {
		reviews = append(reviews, review.Review{
			ID:        parseID(row.ID),
			TeacherID: parseID(row.TeacherID),
			StudentID: parseID(row.StudentID),
			CourseRef: refFromColumns(row.CourseKind, row.CourseID),
			Rating:    row.Rating,
			Comment:   row.Comment,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return reviews, nil
}
