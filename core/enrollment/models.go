package enrollment

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/identity"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var AllStatuses = []Status{StatusPending, StatusActive, StatusCompleted, StatusCancelled}

func (s Status) IsValid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Payment is what the student claims to have paid. Verification is a manual admin approval.
type Payment struct {
	Method         string          `json:"method"`
	TransactionRef string          `json:"transaction_ref"`
	Amount         decimal.Decimal `json:"amount"`
	ScreenshotRef  string          `json:"screenshot_ref"`
}

// IsSupplied reports whether the payment carries any proof an admin could verify.
func (p Payment) IsSupplied() bool {
	return p.TransactionRef != "" || p.ScreenshotRef != ""
}

func (p Payment) Equal(other Payment) bool {
	return p.Method == other.Method &&
		p.TransactionRef == other.TransactionRef &&
		p.ScreenshotRef == other.ScreenshotRef &&
		p.Amount.Equal(other.Amount)
}

type Enrollment struct {
	ID                   primitive.ObjectID `json:"id"`
	StudentID            primitive.ObjectID `json:"student_id"`
	CourseRef            identity.CourseRef `json:"course_id"`
	CourseTitle          string             `json:"course_title"`
	Status               Status             `json:"status"`
	Progress             int                `json:"progress"`
	CurrentSection       string             `json:"current_section,omitempty"`
	IsCompleted          bool               `json:"is_completed"`
	Payment              Payment            `json:"payment"`
	VerificationRequired bool               `json:"verification_required"`

	// audit
	VerifiedAt        *time.Time          `json:"verified_at"`
	VerifiedBy        *primitive.ObjectID `json:"verified_by"`
	RejectedAt        *time.Time          `json:"rejected_at"`
	RejectedBy        *primitive.ObjectID `json:"rejected_by"`
	RejectionReason   string              `json:"rejection_reason,omitempty"`
	CompletedAt       *time.Time          `json:"completed_at"`
	CertificateSentAt *time.Time          `json:"certificate_sent_at"`
	CertificateSentBy *primitive.ObjectID `json:"certificate_sent_by"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC

	// Version is bumped by every write; an update only lands on the version it was read at.
	Version int `json:"-"`
}

// EnrollRequest is sent by a student to enroll in a course, or to update the payment of a pending enrollment.
type EnrollRequest struct {
	Course               identity.CourseRef `json:"course_id"`
	VerificationRequired bool               `json:"verification_required"`
	PaymentMethod        string             `json:"payment_method" validate:"max=50"`
	TransactionRef       string             `json:"transaction_ref" validate:"max=200"`
	Amount               decimal.Decimal    `json:"amount"`
	ScreenshotRef        string             `json:"screenshot_ref" validate:"max=500"`
}

func (er *EnrollRequest) Validate(validate *validator.Validate) error {
	er.PaymentMethod = core.CleanString(er.PaymentMethod)
	er.TransactionRef = core.CleanString(er.TransactionRef)
	er.ScreenshotRef = core.CleanString(er.ScreenshotRef)
	if er.Course.IsZero() {
		return core.NewValidationError(errInvalidCourse, core.FieldError{Field: "course_id", Error: errInvalidCourse.Error()})
	}
	if er.Amount.IsNegative() {
		return core.NewValidationError(errInvalidAmount, core.FieldError{Field: "amount", Error: errInvalidAmount.Error()})
	}
	return validate.Struct(er)
}

func (er EnrollRequest) payment() Payment {
	return Payment{
		Method:         er.PaymentMethod,
		TransactionRef: er.TransactionRef,
		Amount:         er.Amount,
		ScreenshotRef:  er.ScreenshotRef,
	}
}

type ProgressRequest struct {
	Progress *int   `json:"progress" validate:"required"`
	Section  string `json:"section" validate:"max=200"`
}

func (pr *ProgressRequest) Validate(validate *validator.Validate) error {
	pr.Section = core.CleanString(pr.Section)
	return validate.Struct(pr)
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

func (rr *RejectRequest) Validate(validate *validator.Validate) error {
	rr.Reason = core.CleanString(rr.Reason)
	return validate.Struct(rr)
}

type QueryFilter struct {
	StudentID primitive.ObjectID
	CourseRef identity.CourseRef
	Statuses  []Status
}

// FilterRequest holds the raw enrollment filters an admin sends as query params.
type FilterRequest struct {
	Statuses  []string `json:"status"`
	StudentID string   `json:"student_id" validate:"omitempty,objectid"`
	CourseID  string   `json:"course_id"`
}

// QueryFilter validates the raw filters and classifies the course reference with resolver.
func (fr *FilterRequest) QueryFilter(validate *validator.Validate, resolver identity.Resolver) (QueryFilter, error) {
	fr.StudentID = core.CleanString(fr.StudentID)
	fr.CourseID = core.CleanString(fr.CourseID)
	if err := validate.Struct(fr); err != nil {
		return QueryFilter{}, err
	}

	var filter QueryFilter
	for _, s := range fr.Statuses {
		st := Status(core.CleanString(s))
		if !st.IsValid() {
			return QueryFilter{}, core.NewValidationError(errInvalidStatus, core.FieldError{Field: "status", Error: errInvalidStatus.Error()})
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	if fr.StudentID != "" {
		filter.StudentID, _ = primitive.ObjectIDFromHex(fr.StudentID)
	}
	if fr.CourseID != "" {
		ref, ok := resolver.Parse(fr.CourseID)
		if !ok {
			return QueryFilter{}, core.NewValidationError(errInvalidCourse, core.FieldError{Field: "course_id", Error: errInvalidCourse.Error()})
		}
		filter.CourseRef = ref
	}
	return filter, nil
}

// clampProgress keeps progress within [0, 100].
func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
