package enrollment

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/identity"
	"github.com/trezcool/soko/core/notification"
	"github.com/trezcool/soko/core/user"
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("enrollment not found")
	ErrForbidden         = core.NewPermissionError("you are not allowed to manage this enrollment")
	ErrStudentsOnly      = core.NewPermissionError("only students can enroll in courses")
	ErrAlreadyEnrolled   = errors.New("you are already enrolled in this course")
	ErrStale             = errors.New("enrollment was modified concurrently")
	errInvalidCourse     = errors.New("invalid course reference")
	errInvalidAmount     = errors.New("amount cannot be negative")
	errInvalidStatus     = errors.New("invalid status")
	errNoLongerPending   = errors.New("enrollment is no longer pending")
	errCertificateIsSent = errors.New("certificate was already sent")
)

type (
	Repository interface {
		// CreateEnrollment fails with ErrAlreadyEnrolled when the student holds a non-cancelled
		// enrollment for the same course.
		CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
		GetEnrollment(ctx context.Context, id primitive.ObjectID) (Enrollment, error)
		// QueryEnrollments applies AND operation on the set filter fields; newest first.
		QueryEnrollments(ctx context.Context, filter QueryFilter) ([]Enrollment, error)
		// UpdateEnrollment writes e only if the stored version is still e.Version, else fails with ErrStale.
		// The returned enrollment carries the bumped version.
		UpdateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
	}

	Courses interface {
		Lookup(ctx context.Context, ref identity.CourseRef) (course.Course, error)
		Teaches(usr user.User, c course.Course) bool
	}

	Service struct {
		repo    Repository
		courses Courses
		outbox  notification.Outbox
		logger  core.Logger
	}
)

func NewService(repo Repository, courses Courses, outbox notification.Outbox, logger core.Logger) *Service {
	return &Service{
		repo:    repo,
		courses: courses,
		outbox:  outbox,
		logger:  logger,
	}
}

const maxProgressAttempts = 3

func transitionError(err error) error {
	return core.NewValidationError(err)
}

// Enroll creates an enrollment, or updates the payment of the student's pending one.
// The returned bool is true when a new enrollment was created.
func (svc *Service) Enroll(ctx context.Context, student user.User, req EnrollRequest) (Enrollment, bool, error) {
	if !student.IsStudent() {
		return Enrollment{}, false, ErrStudentsOnly
	}

	c, err := svc.courses.Lookup(ctx, req.Course)
	if err != nil {
		return Enrollment{}, false, err
	}
	if c.IsArchived {
		return Enrollment{}, false, course.ErrNotFound
	}

	current, err := svc.repo.QueryEnrollments(ctx, QueryFilter{
		StudentID: student.ID,
		CourseRef: c.Ref(),
		Statuses:  []Status{StatusPending, StatusActive, StatusCompleted},
	})
	if err != nil {
		return Enrollment{}, false, errors.Wrap(err, "querying current enrollments")
	}
	for _, e := range current {
		if e.Status == StatusActive || e.Status == StatusCompleted {
			return Enrollment{}, false, core.NewValidationError(ErrAlreadyEnrolled)
		}
	}
	if len(current) > 0 {
		e, err := svc.resubmit(ctx, current[0], req, c)
		return e, false, err
	}

	now := core.Now()
	e := Enrollment{
		StudentID:            student.ID,
		CourseRef:            c.Ref(),
		CourseTitle:          c.Title,
		Status:               initialStatus(req.VerificationRequired || c.IsPaid()),
		Payment:              req.payment(),
		VerificationRequired: req.VerificationRequired || c.IsPaid(),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	e, err = svc.repo.CreateEnrollment(ctx, e)
	if err != nil {
		if errors.Cause(err) == ErrAlreadyEnrolled {
			return Enrollment{}, false, core.NewValidationError(ErrAlreadyEnrolled)
		}
		return Enrollment{}, false, errors.Wrap(err, "creating enrollment")
	}

	switch {
	case e.Status == StatusPending && e.Payment.IsSupplied():
		svc.outbox.Publish(ctx, paymentSubmittedEvent(e, c))
	case e.Status == StatusActive:
		svc.outbox.Publish(ctx, newStudentEvent(e, c, student))
	}
	return e, true, nil
}

// resubmit updates a pending enrollment's payment in place.
// Admins are notified again only when new payment proof comes in.
func (svc *Service) resubmit(ctx context.Context, e Enrollment, req EnrollRequest, c course.Course) (Enrollment, error) {
	to, err := next(e.Status, eventResubmit)
	if err != nil {
		return Enrollment{}, transitionError(err)
	}

	prev := e.Payment
	incoming := req.payment()
	if incoming.Method != "" {
		e.Payment.Method = incoming.Method
	}
	if incoming.TransactionRef != "" {
		e.Payment.TransactionRef = incoming.TransactionRef
	}
	if incoming.ScreenshotRef != "" {
		e.Payment.ScreenshotRef = incoming.ScreenshotRef
	}
	if !incoming.Amount.IsZero() {
		e.Payment.Amount = incoming.Amount
	}
	if e.Payment.Equal(prev) {
		return e, nil
	}
	e.Status = to
	e.UpdatedAt = core.Now()

	e, err = svc.repo.UpdateEnrollment(ctx, e)
	if err != nil {
		if errors.Cause(err) == ErrStale {
			return Enrollment{}, core.NewValidationError(errNoLongerPending)
		}
		return Enrollment{}, errors.Wrap(err, "updating payment")
	}

	if incoming.IsSupplied() && e.Payment.IsSupplied() {
		svc.outbox.Publish(ctx, paymentSubmittedEvent(e, c))
	}
	return e, nil
}

func (svc *Service) get(ctx context.Context, id primitive.ObjectID) (Enrollment, error) {
	e, err := svc.repo.GetEnrollment(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Enrollment{}, ErrNotFound
		}
		return Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	return e, nil
}

// courseOf looks up the enrollment's course; the course only feeds notifications and permissions,
// so a failed lookup degrades to a bare course carrying the reference.
func (svc *Service) courseOf(ctx context.Context, e Enrollment) course.Course {
	c, err := svc.courses.Lookup(ctx, e.CourseRef)
	if err != nil {
		if !core.IsNotFound(err) {
			svc.logger.Warn(fmt.Sprintf("enrollment %s: looking up course %s: %v", e.ID.Hex(), e.CourseRef, err), err)
		}
		c = course.Course{Title: e.CourseTitle}
		if id, ok := e.CourseRef.ObjectID(); ok {
			c.ID = id
		} else if n, ok := e.CourseRef.Number(); ok {
			c.CatalogNumber = n
		}
	}
	return c
}

func (svc *Service) canView(actor user.User, e Enrollment, c course.Course) bool {
	return actor.IsAdmin() || e.StudentID == actor.ID || svc.courses.Teaches(actor, c)
}

// Get returns an enrollment visible to the actor: its student, the course instructor or an admin.
func (svc *Service) Get(ctx context.Context, actor user.User, id primitive.ObjectID) (Enrollment, error) {
	e, err := svc.get(ctx, id)
	if err != nil {
		return Enrollment{}, err
	}
	if !svc.canView(actor, e, svc.courseOf(ctx, e)) {
		return Enrollment{}, ErrNotFound
	}
	return e, nil
}

func (svc *Service) ListForStudent(ctx context.Context, student user.User) ([]Enrollment, error) {
	return svc.repo.QueryEnrollments(ctx, QueryFilter{StudentID: student.ID})
}

// Query lists enrollments across students. Admins only.
func (svc *Service) Query(ctx context.Context, actor user.User, filter QueryFilter) ([]Enrollment, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return svc.repo.QueryEnrollments(ctx, filter)
}

// ListForCourse lists a course's enrollments for its instructor or an admin.
func (svc *Service) ListForCourse(ctx context.Context, actor user.User, ref identity.CourseRef, statuses ...Status) ([]Enrollment, error) {
	c, err := svc.courses.Lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !(actor.IsAdmin() || svc.courses.Teaches(actor, c)) {
		return nil, ErrForbidden
	}
	return svc.repo.QueryEnrollments(ctx, QueryFilter{CourseRef: c.Ref(), Statuses: statuses})
}

// Verify approves a pending enrollment's payment. Of two concurrent verifications only one succeeds.
func (svc *Service) Verify(ctx context.Context, admin user.User, id primitive.ObjectID) (Enrollment, error) {
	if !admin.IsAdmin() {
		return Enrollment{}, ErrForbidden
	}
	e, err := svc.get(ctx, id)
	if err != nil {
		return Enrollment{}, err
	}
	to, err := next(e.Status, eventVerify)
	if err != nil {
		return Enrollment{}, transitionError(err)
	}

	now := core.Now()
	e.Status = to
	e.VerifiedAt = &now
	e.VerifiedBy = &admin.ID
	e.UpdatedAt = now
	e, err = svc.repo.UpdateEnrollment(ctx, e)
	if err != nil {
		if errors.Cause(err) == ErrStale {
			return Enrollment{}, core.NewValidationError(errNoLongerPending)
		}
		return Enrollment{}, errors.Wrap(err, "verifying enrollment")
	}

	c := svc.courseOf(ctx, e)
	svc.outbox.Publish(ctx,
		notification.Event{
			Type:      notification.TypePaymentApproved,
			SenderID:  admin.ID,
			Message:   fmt.Sprintf("Your payment for %q has been approved. You can start learning now.", e.CourseTitle),
			RelatedID: e.ID.Hex(),
			CourseRef: e.CourseRef,
			To:        []notification.Recipient{notification.ToUser(e.StudentID)},
		},
		newStudentEvent(e, c, user.User{ID: e.StudentID}),
	)
	return e, nil
}

// Reject cancels a pending enrollment. The rejection is kept as history; the student may enroll again.
func (svc *Service) Reject(ctx context.Context, admin user.User, id primitive.ObjectID, reason string) (Enrollment, error) {
	if !admin.IsAdmin() {
		return Enrollment{}, ErrForbidden
	}
	e, err := svc.get(ctx, id)
	if err != nil {
		return Enrollment{}, err
	}
	to, err := next(e.Status, eventReject)
	if err != nil {
		return Enrollment{}, transitionError(err)
	}

	now := core.Now()
	e.Status = to
	e.RejectedAt = &now
	e.RejectedBy = &admin.ID
	e.RejectionReason = reason
	e.UpdatedAt = now
	e, err = svc.repo.UpdateEnrollment(ctx, e)
	if err != nil {
		if errors.Cause(err) == ErrStale {
			return Enrollment{}, core.NewValidationError(errNoLongerPending)
		}
		return Enrollment{}, errors.Wrap(err, "rejecting enrollment")
	}

	svc.outbox.Publish(ctx, notification.Event{
		Type:      notification.TypePaymentRejected,
		SenderID:  admin.ID,
		Message:   fmt.Sprintf("Your payment for %q was rejected: %s", e.CourseTitle, reason),
		RelatedID: e.ID.Hex(),
		CourseRef: e.CourseRef,
		To:        []notification.Recipient{notification.ToUser(e.StudentID)},
	})
	return e, nil
}

// UpdateProgress records the student's progress, clamped to [0, 100].
// Reaching 100 completes the enrollment; completion happens once and is never undone.
func (svc *Service) UpdateProgress(ctx context.Context, actor user.User, id primitive.ObjectID, req ProgressRequest) (Enrollment, error) {
	e, err := svc.get(ctx, id)
	if err != nil {
		return Enrollment{}, err
	}
	c := svc.courseOf(ctx, e)
	if !svc.canView(actor, e, c) {
		if actor.IsStudent() {
			return Enrollment{}, ErrNotFound
		}
		return Enrollment{}, ErrForbidden
	}

	progress := clampProgress(*req.Progress)
	e, completed, err := svc.applyProgress(ctx, e, progress, req.Section)
	for attempt := 1; attempt < maxProgressAttempts && errors.Cause(err) == ErrStale; attempt++ {
		// someone moved the enrollment on; replay on the fresh record
		if e, err = svc.get(ctx, id); err != nil {
			return Enrollment{}, err
		}
		e, completed, err = svc.applyProgress(ctx, e, progress, req.Section)
	}
	if err != nil {
		if errors.Cause(err) == ErrStale {
			return Enrollment{}, core.NewValidationError(ErrStale)
		}
		return Enrollment{}, err
	}

	if completed {
		svc.outbox.Publish(ctx,
			notification.Event{
				Type:      notification.TypeCourseCompleted,
				SenderID:  actor.ID,
				Message:   fmt.Sprintf("Congratulations! You completed %q. Your certificate is on its way.", e.CourseTitle),
				RelatedID: e.ID.Hex(),
				CourseRef: e.CourseRef,
				To:        []notification.Recipient{notification.ToUser(e.StudentID)},
			},
			notification.Event{
				Type:      notification.TypeCertificateRequired,
				SenderID:  e.StudentID,
				Message:   fmt.Sprintf("A student completed %q and needs a certificate.", e.CourseTitle),
				RelatedID: e.ID.Hex(),
				CourseRef: e.CourseRef,
				To:        []notification.Recipient{notification.ToAdmins(user.AdminGeneral)},
			},
		)
	}
	return e, nil
}

// applyProgress writes the progress; completed is true only for the write that completed the enrollment.
func (svc *Service) applyProgress(ctx context.Context, e Enrollment, progress int, section string) (Enrollment, bool, error) {
	ev := eventProgress
	if e.Status == StatusActive && progress >= 100 {
		ev = eventComplete
	}
	to, err := next(e.Status, ev)
	if err != nil {
		return Enrollment{}, false, transitionError(err)
	}

	now := core.Now()
	e.Status = to
	e.Progress = progress
	if section != "" {
		e.CurrentSection = section
	}
	if ev == eventComplete {
		e.IsCompleted = true
		e.CompletedAt = &now
	}
	e.UpdatedAt = now

	e, err = svc.repo.UpdateEnrollment(ctx, e)
	if err != nil {
		return Enrollment{}, false, errors.Wrap(err, "updating progress")
	}
	return e, ev == eventComplete, nil
}

// MarkCertificateSent records that a completed enrollment's certificate went out. General admins only.
func (svc *Service) MarkCertificateSent(ctx context.Context, admin user.User, id primitive.ObjectID) (Enrollment, error) {
	if !admin.IsGeneralAdmin() {
		return Enrollment{}, ErrForbidden
	}
	e, err := svc.get(ctx, id)
	if err != nil {
		return Enrollment{}, err
	}
	to, err := next(e.Status, eventCertificateSent)
	if err != nil {
		return Enrollment{}, transitionError(err)
	}
	if e.CertificateSentAt != nil {
		return Enrollment{}, core.NewValidationError(errCertificateIsSent)
	}

	now := core.Now()
	e.Status = to
	e.CertificateSentAt = &now
	e.CertificateSentBy = &admin.ID
	e.UpdatedAt = now
	e, err = svc.repo.UpdateEnrollment(ctx, e)
	if err != nil {
		if errors.Cause(err) == ErrStale {
			return Enrollment{}, core.NewValidationError(ErrStale)
		}
		return Enrollment{}, errors.Wrap(err, "marking certificate sent")
	}

	svc.outbox.Publish(ctx, notification.Event{
		Type:      notification.TypeCertificateSent,
		SenderID:  admin.ID,
		Message:   fmt.Sprintf("Your certificate for %q has been sent.", e.CourseTitle),
		RelatedID: e.ID.Hex(),
		CourseRef: e.CourseRef,
		To:        []notification.Recipient{notification.ToUser(e.StudentID)},
	})
	return e, nil
}

func paymentSubmittedEvent(e Enrollment, c course.Course) notification.Event {
	return notification.Event{
		Type:      notification.TypePaymentSubmitted,
		SenderID:  e.StudentID,
		Message:   fmt.Sprintf("A payment of %s for %q is waiting for verification.", e.Payment.Amount.String(), c.Title),
		RelatedID: e.ID.Hex(),
		CourseRef: e.CourseRef,
		To:        []notification.Recipient{notification.ToAdmins(user.AdminPayment)},
	}
}

func newStudentEvent(e Enrollment, c course.Course, student user.User) notification.Event {
	return notification.Event{
		Type:      notification.TypeNewStudent,
		SenderID:  student.ID,
		Message:   fmt.Sprintf("A new student joined %q.", c.Title),
		RelatedID: e.ID.Hex(),
		CourseRef: e.CourseRef,
		To:        []notification.Recipient{notification.ToInstructor(c)},
	}
}
