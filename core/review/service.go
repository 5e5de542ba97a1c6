package review

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/enrollment"
	"github.com/trezcool/soko/core/identity"
	"github.com/trezcool/soko/core/notification"
	"github.com/trezcool/soko/core/user"
)

var (
	// errors
	ErrAlreadyReviewed = errors.New("you already reviewed this course")
	ErrStudentsOnly    = core.NewPermissionError("only students can review courses")
	errInvalidTeacher  = errors.New("invalid teacher")
	errInvalidCourse   = errors.New("invalid course reference")
)

type (
	Repository interface {
		// CreateReview fails with ErrAlreadyReviewed when the (teacher, student, course) triple is taken.
		CreateReview(ctx context.Context, r Review) (Review, error)
		ExistsReview(ctx context.Context, teacherID, studentID primitive.ObjectID, ref identity.CourseRef) (bool, error)
		// QueryReviews lists a teacher's reviews, newest first.
		QueryReviews(ctx context.Context, teacherID primitive.ObjectID) ([]Review, error)
	}

	Courses interface {
		Lookup(ctx context.Context, ref identity.CourseRef) (course.Course, error)
		Instructor(ctx context.Context, c course.Course) (user.User, error)
	}

	Enrollments interface {
		QueryEnrollments(ctx context.Context, filter enrollment.QueryFilter) ([]enrollment.Enrollment, error)
	}

	Service struct {
		repo        Repository
		users       user.Repository
		courses     Courses
		enrollments Enrollments
		outbox      notification.Outbox
	}
)

func NewService(
	repo Repository,
	users user.Repository,
	courses Courses,
	enrollments Enrollments,
	outbox notification.Outbox,
) *Service {
	return &Service{
		repo:        repo,
		users:       users,
		courses:     courses,
		enrollments: enrollments,
		outbox:      outbox,
	}
}

// CanReview tells whether student may review teacher for the course.
// Only the course's instructor can be reviewed, once per course, after completing it.
func (svc *Service) CanReview(ctx context.Context, student user.User, teacherID primitive.ObjectID, ref identity.CourseRef) (Eligibility, error) {
	if !student.IsStudent() {
		return Eligibility{}, ErrStudentsOnly
	}
	c, err := svc.courses.Lookup(ctx, ref)
	if err != nil {
		if core.IsNotFound(err) {
			return ineligible(ReasonNotFound), nil
		}
		return Eligibility{}, err
	}
	instructor, err := svc.courses.Instructor(ctx, c)
	if err != nil {
		if core.IsNotFound(err) {
			return ineligible(ReasonNotFound), nil
		}
		return Eligibility{}, errors.Wrap(err, "resolving instructor")
	}
	if instructor.ID != teacherID {
		return ineligible(ReasonNotFound), nil
	}

	exists, err := svc.repo.ExistsReview(ctx, teacherID, student.ID, c.Ref())
	if err != nil {
		return Eligibility{}, errors.Wrap(err, "checking existing review")
	}
	if exists {
		return ineligible(ReasonAlreadyReviewed), nil
	}

	completed, err := svc.enrollments.QueryEnrollments(ctx, enrollment.QueryFilter{
		StudentID: student.ID,
		CourseRef: c.Ref(),
		Statuses:  []enrollment.Status{enrollment.StatusCompleted},
	})
	if err != nil {
		return Eligibility{}, errors.Wrap(err, "querying completed enrollments")
	}
	if len(completed) == 0 {
		return ineligible(ReasonNotCompleted), nil
	}
	return eligible(), nil
}

func (svc *Service) Create(ctx context.Context, student user.User, nr NewReview) (Review, error) {
	elig, err := svc.CanReview(ctx, student, nr.TeacherID, nr.Course)
	if err != nil {
		return Review{}, err
	}
	switch elig.Reason {
	case ReasonNotFound:
		return Review{}, core.NewNotFoundError(elig.Message)
	case ReasonAlreadyReviewed, ReasonNotCompleted:
		return Review{}, core.NewValidationError(errors.New(elig.Message))
	}

	c, err := svc.courses.Lookup(ctx, nr.Course)
	if err != nil {
		return Review{}, err
	}
	r, err := svc.repo.CreateReview(ctx, Review{
		TeacherID: nr.TeacherID,
		StudentID: student.ID,
		CourseRef: c.Ref(),
		Rating:    nr.Rating,
		Comment:   nr.Comment,
		CreatedAt: core.Now(),
	})
	if err != nil {
		if errors.Cause(err) == ErrAlreadyReviewed {
			return Review{}, core.NewValidationError(ErrAlreadyReviewed)
		}
		return Review{}, errors.Wrap(err, "creating review")
	}

	svc.outbox.Publish(ctx, notification.Event{
		Type:      notification.TypeNewReview,
		SenderID:  student.ID,
		Message:   fmt.Sprintf("%s rated %q %d/5.", student.Name, c.Title, r.Rating),
		RelatedID: r.ID.Hex(),
		CourseRef: r.CourseRef,
		To:        []notification.Recipient{notification.ToUser(r.TeacherID)},
	})
	return r, nil
}

// ListForTeacher returns the teacher's reviews along with their rating summary.
func (svc *Service) ListForTeacher(ctx context.Context, teacherID primitive.ObjectID) ([]Review, Summary, error) {
	teacher, err := svc.users.GetUser(ctx, user.GetFilter{ID: teacherID})
	if err != nil {
		return nil, Summary{}, err
	}
	if !teacher.IsTeacher() {
		return nil, Summary{}, user.ErrNotFound
	}

	reviews, err := svc.repo.QueryReviews(ctx, teacherID)
	if err != nil {
		return nil, Summary{}, errors.Wrap(err, "querying reviews")
	}
	return reviews, summarize(reviews), nil
}
