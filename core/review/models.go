package review

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/identity"
)

type Review struct {
	ID        primitive.ObjectID `json:"id"`
	TeacherID primitive.ObjectID `json:"teacher_id"`
	StudentID primitive.ObjectID `json:"student_id"`
	CourseRef identity.CourseRef `json:"course_id"`
	Rating    int                `json:"rating"`
	Comment   string             `json:"comment"`
	CreatedAt time.Time          `json:"created_at"` // UTC
}

// Reason explains why a student may not review a course.
type Reason string

const (
	ReasonAlreadyReviewed Reason = "already_reviewed"
	ReasonNotCompleted    Reason = "not_completed"
	ReasonNotFound        Reason = "not_found"
)

var reasonMessages = map[Reason]string{
	ReasonAlreadyReviewed: "Already reviewed",
	ReasonNotCompleted:    "You need to complete the course before reviewing it",
	ReasonNotFound:        "Teacher or course not found",
}

func (r Reason) Message() string {
	return reasonMessages[r]
}

type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   Reason `json:"reason,omitempty"`
	Message  string `json:"message,omitempty"`
}

func eligible() Eligibility {
	return Eligibility{Eligible: true}
}

func ineligible(reason Reason) Eligibility {
	return Eligibility{Reason: reason, Message: reason.Message()}
}

// NewReview contains information needed to review a course's teacher.
type NewReview struct {
	TeacherID primitive.ObjectID `json:"teacher_id"`
	Course    identity.CourseRef `json:"course_id"`
	Rating    int                `json:"rating" validate:"required,min=1,max=5"`
	Comment   string             `json:"comment" validate:"max=2000"`
}

func (nr *NewReview) Validate(validate *validator.Validate) error {
	nr.Comment = core.CleanString(nr.Comment)
	if nr.TeacherID.IsZero() {
		return core.NewValidationError(errInvalidTeacher, core.FieldError{Field: "teacher_id", Error: errInvalidTeacher.Error()})
	}
	if nr.Course.IsZero() {
		return core.NewValidationError(errInvalidCourse, core.FieldError{Field: "course_id", Error: errInvalidCourse.Error()})
	}
	return validate.Struct(nr)
}

type Summary struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

func summarize(reviews []Review) Summary {
	if len(reviews) == 0 {
		return Summary{}
	}
	total := 0
	for _, r := range reviews {
		total += r.Rating
	}
	avg := float64(total) / float64(len(reviews))
	return Summary{Count: len(reviews), Average: math.Round(avg*100) / 100}
}
