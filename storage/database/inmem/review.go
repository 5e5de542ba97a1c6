package inmemdb

import (
	"context"
	"sort"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core/identity"
	"github.com/trezcool/soko/core/review"
)

type reviewRepository struct {
	db *reviewTable
}

var _ review.Repository = (*reviewRepository)(nil) // interface compliance check

func NewReviewRepository(db *DB) *reviewRepository {
	return &reviewRepository{db: db.review}
}

func (repo *reviewRepository) exists(teacherID, studentID primitive.ObjectID, ref identity.CourseRef) bool {
	for _, r := range repo.db.table {
		if r.TeacherID == teacherID && r.StudentID == studentID && r.CourseRef.Equal(ref) {
			return true
		}
	}
	return false
}

func (repo *reviewRepository) CreateReview(_ context.Context, r review.Review) (review.Review, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.exists(r.TeacherID, r.StudentID, r.CourseRef) {
		return review.Review{}, review.ErrAlreadyReviewed
	}
	r.ID = newID(r.ID)
	repo.db.table[r.ID] = &r
	return r, nil
}

func (repo *reviewRepository) ExistsReview(_ context.Context, teacherID, studentID primitive.ObjectID, ref identity.CourseRef) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.exists(teacherID, studentID, ref), nil
}

func (repo *reviewRepository) QueryReviews(_ context.Context, teacherID primitive.ObjectID) ([]review.Review, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	reviews := make([]review.Review, 0)
	for _, r := range repo.db.table {
		if r.TeacherID == teacherID {
			reviews = append(reviews, *r)
		}
	}
	sort.SliceStable(reviews, func(i, j int) bool {
		return reviews[i].CreatedAt.After(reviews[j].CreatedAt)
	})
	return reviews, nil
}
