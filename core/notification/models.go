package notification

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/identity"
)

type Type string

// Notification types
const (
	TypePaymentSubmitted    Type = "payment_submitted"
	TypePaymentApproved     Type = "payment_approved"
	TypePaymentRejected     Type = "payment_rejected"
	TypeNewStudent          Type = "new_student"
	TypeCourseCompleted     Type = "course_completed"
	TypeCertificateRequired Type = "certificate_required"
	TypeCertificateSent     Type = "certificate_sent"
	TypeNewMessage          Type = "new_message"
	TypeNewReview           Type = "new_review"
)

// Notification is one record per receiver. Only IsRead changes after creation.
type Notification struct {
	ID         primitive.ObjectID `json:"id"`
	EventID    string             `json:"event_id"`
	ReceiverID primitive.ObjectID `json:"receiver_id"`
	SenderID   primitive.ObjectID `json:"sender_id"` // zero for system events
	Type       Type               `json:"type"`
	Message    string             `json:"message"`
	RelatedID  string             `json:"related_id,omitempty"`
	CourseRef  identity.CourseRef `json:"course_id"`
	IsRead     bool               `json:"is_read"`
	CreatedAt  time.Time          `json:"created_at"` // UTC
}

type QueryFilter struct {
	UnreadOnly bool `query:"unread"`
	Limit      int  `query:"limit"`
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

func (qf *QueryFilter) Clean() {
	if qf.Limit <= 0 {
		qf.Limit = defaultLimit
	} else if qf.Limit > maxLimit {
		qf.Limit = maxLimit
	}
}

type audience uint8

const (
	audienceUser audience = iota + 1
	audienceInstructor
	audienceAdmins
)

// Recipient is a candidate receiver set, resolved to concrete users at publish time.
type Recipient struct {
	audience  audience
	userID    primitive.ObjectID
	course    course.Course
	adminType string
}

func ToUser(id primitive.ObjectID) Recipient {
	return Recipient{audience: audienceUser, userID: id}
}

// ToInstructor targets whoever teaches the course.
func ToInstructor(c course.Course) Recipient {
	return Recipient{audience: audienceInstructor, course: c}
}

// ToAdmins targets every active admin of the given subtype.
func ToAdmins(adminType string) Recipient {
	return Recipient{audience: audienceAdmins, adminType: adminType}
}

// Event is one logical occurrence fanned out to every resolved receiver.
type Event struct {
	Type      Type
	SenderID  primitive.ObjectID
	Message   string
	RelatedID string
	CourseRef identity.CourseRef
	To        []Recipient
}
