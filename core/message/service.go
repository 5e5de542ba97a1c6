package message

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
	ErrReceiverNotFound = core.NewNotFoundError("receiver not found")
	ErrNotAllowed       = core.NewPermissionError("students can only message their teachers and admins")
	errInvalidReceiver  = errors.New("invalid receiver")
	errSelfMessage      = errors.New("you cannot message yourself")
)

type (
	Repository interface {
		CreateMessage(ctx context.Context, msg Message) (Message, error)
		// Conversation lists messages exchanged between a and b in both directions, newest first.
		Conversation(ctx context.Context, a, b primitive.ObjectID, limit int) ([]Message, error)
		// MarkConversationRead marks every message from sender to receiver read.
		MarkConversationRead(ctx context.Context, receiverID, senderID primitive.ObjectID) (int64, error)
	}

	Courses interface {
		Lookup(ctx context.Context, ref identity.CourseRef) (course.Course, error)
		Teaches(usr user.User, c course.Course) bool
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

// Send delivers a direct message. Teachers and admins may message anyone;
// students may message admins and the teachers of courses they are enrolled in.
func (svc *Service) Send(ctx context.Context, sender user.User, nm NewMessage) (Message, error) {
	if nm.ReceiverID == sender.ID {
		return Message{}, core.NewValidationError(errSelfMessage)
	}
	receiver, err := svc.users.GetUser(ctx, user.GetFilter{ID: nm.ReceiverID})
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Message{}, ErrReceiverNotFound
		}
		return Message{}, errors.Wrap(err, "getting receiver")
	}
	if !receiver.IsActive {
		return Message{}, ErrReceiverNotFound
	}

	if !(sender.IsTeacher() || sender.IsAdmin()) {
		ok, err := svc.studentMayMessage(ctx, sender, receiver)
		if err != nil {
			return Message{}, err
		}
		if !ok {
			return Message{}, ErrNotAllowed
		}
	}

	msg, err := svc.repo.CreateMessage(ctx, Message{
		SenderID:   sender.ID,
		ReceiverID: receiver.ID,
		Body:       nm.Body,
		CreatedAt:  core.Now(),
	})
	if err != nil {
		return Message{}, errors.Wrap(err, "creating message")
	}

	svc.outbox.Publish(ctx, notification.Event{
		Type:      notification.TypeNewMessage,
		SenderID:  sender.ID,
		Message:   fmt.Sprintf("New message from %s.", sender.Name),
		RelatedID: msg.ID.Hex(),
		To:        []notification.Recipient{notification.ToUser(receiver.ID)},
	})
	return msg, nil
}

func (svc *Service) studentMayMessage(ctx context.Context, student, receiver user.User) (bool, error) {
	if receiver.IsAdmin() {
		return true, nil
	}
	if !receiver.IsTeacher() {
		return false, nil
	}

	enrollments, err := svc.enrollments.QueryEnrollments(ctx, enrollment.QueryFilter{
		StudentID: student.ID,
		Statuses:  []enrollment.Status{enrollment.StatusPending, enrollment.StatusActive, enrollment.StatusCompleted},
	})
	if err != nil {
		return false, errors.Wrap(err, "querying enrollments")
	}
	for _, e := range enrollments {
		c, err := svc.courses.Lookup(ctx, e.CourseRef)
		if err != nil {
			if core.IsNotFound(err) {
				continue
			}
			return false, err
		}
		if svc.courses.Teaches(receiver, c) {
			return true, nil
		}
	}
	return false, nil
}

// Conversation returns the latest messages between actor and other, and marks those actor received as read.
func (svc *Service) Conversation(ctx context.Context, actor user.User, otherID primitive.ObjectID, limit int) ([]Message, error) {
	if _, err := svc.users.GetUser(ctx, user.GetFilter{ID: otherID}); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return nil, ErrReceiverNotFound
		}
		return nil, errors.Wrap(err, "getting user")
	}

	msgs, err := svc.repo.Conversation(ctx, actor.ID, otherID, cleanLimit(limit))
	if err != nil {
		return nil, errors.Wrap(err, "querying conversation")
	}
	if _, err = svc.repo.MarkConversationRead(ctx, actor.ID, otherID); err != nil {
		return nil, errors.Wrap(err, "marking conversation read")
	}
	return msgs, nil
}
