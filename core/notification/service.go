package notification

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/user"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("notification not found")
)

type (
	Repository interface {
		// InsertNotifications stores all records in one batch.
		InsertNotifications(ctx context.Context, notes ...Notification) error
		// QueryNotifications lists the receiver's notifications, newest first.
		QueryNotifications(ctx context.Context, receiverID primitive.ObjectID, filter QueryFilter) ([]Notification, error)
		CountUnread(ctx context.Context, receiverID primitive.ObjectID) (int64, error)
		// MarkRead fails with ErrNotFound when the notification belongs to someone else.
		MarkRead(ctx context.Context, receiverID, id primitive.ObjectID) (Notification, error)
		MarkAllRead(ctx context.Context, receiverID primitive.ObjectID) (int64, error)
	}

	// Outbox accepts events for best-effort delivery.
	// Delivery is at most once; failures are the outbox's concern and are never reported to the publisher.
	Outbox interface {
		Publish(ctx context.Context, events ...Event)
	}

	InstructorResolver interface {
		Instructor(ctx context.Context, c course.Course) (user.User, error)
	}

	// Service fans events out to their receivers and serves the read side.
	Service struct {
		repo        Repository
		users       user.Repository
		instructors InstructorResolver
		mailSvc     core.EmailService
		emailMirror bool
		logger      core.Logger
	}
)

var _ Outbox = (*Service)(nil)

func NewService(
	repo Repository,
	users user.Repository,
	instructors InstructorResolver,
	mailSvc core.EmailService,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		repo:        repo,
		users:       users,
		instructors: instructors,
		mailSvc:     mailSvc,
		emailMirror: conf.Notifications.EmailMirror,
		logger:      logger,
	}
}

// Publish resolves each event's receivers and stores one record per receiver.
// Nothing here can fail the caller: every error is logged and the event (or the branch) dropped.
func (svc *Service) Publish(ctx context.Context, events ...Event) {
	for _, ev := range events {
		svc.publish(ctx, ev)
	}
}

func (svc *Service) publish(ctx context.Context, ev Event) {
	receivers := svc.resolve(ctx, ev)
	if len(receivers) == 0 {
		svc.logger.Warn(fmt.Sprintf("notification %s: no receiver resolved", ev.Type))
		return
	}

	eventID := uuid.New().String()
	now := core.Now()
	notes := make([]Notification, 0, len(receivers))
	for _, rcv := range receivers {
		notes = append(notes, Notification{
			ID:         primitive.NewObjectID(),
			EventID:    eventID,
			ReceiverID: rcv.ID,
			SenderID:   ev.SenderID,
			Type:       ev.Type,
			Message:    ev.Message,
			RelatedID:  ev.RelatedID,
			CourseRef:  ev.CourseRef,
			CreatedAt:  now,
		})
	}

	if err := svc.repo.InsertNotifications(ctx, notes...); err != nil {
		svc.logger.Error(fmt.Sprintf("notification %s: inserting %d records: %v", ev.Type, len(notes), err), err)
		return
	}
	if svc.emailMirror {
		svc.mirror(ev, receivers)
	}
}

// resolve turns the event's recipients into distinct active users, in recipient order.
// A failing branch is logged and skipped; the other branches still resolve.
func (svc *Service) resolve(ctx context.Context, ev Event) []user.User {
	var (
		seen      = make(map[primitive.ObjectID]bool)
		receivers []user.User
		userIDs   []primitive.ObjectID
	)
	add := func(usr user.User) {
		if usr.ID.IsZero() || seen[usr.ID] || !usr.IsActive {
			return
		}
		seen[usr.ID] = true
		receivers = append(receivers, usr)
	}

	// direct users are resolved in one batch read
	for _, rcp := range ev.To {
		if rcp.audience == audienceUser && !rcp.userID.IsZero() {
			userIDs = append(userIDs, rcp.userID)
		}
	}
	direct := make(map[primitive.ObjectID]user.User, len(userIDs))
	if len(userIDs) > 0 {
		users, err := svc.users.GetUsersByID(ctx, userIDs...)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("notification %s: resolving users: %v", ev.Type, err), err)
		}
		for _, usr := range users {
			direct[usr.ID] = usr
		}
	}

	for _, rcp := range ev.To {
		switch rcp.audience {
		case audienceUser:
			if usr, ok := direct[rcp.userID]; ok {
				add(usr)
			}
		case audienceInstructor:
			teacher, err := svc.instructors.Instructor(ctx, rcp.course)
			if err != nil {
				svc.logger.Warn(fmt.Sprintf("notification %s: resolving instructor of course %s: %v", ev.Type, rcp.course.Ref(), err), err)
				continue
			}
			add(teacher)
		case audienceAdmins:
			active := true
			admins, err := svc.users.QueryUsers(ctx, &user.QueryFilter{
				Roles:    []string{user.AdminRole(rcp.adminType)},
				IsActive: &active,
			}, nil)
			if err != nil {
				svc.logger.Error(fmt.Sprintf("notification %s: resolving %s admins: %v", ev.Type, rcp.adminType, err), err)
				continue
			}
			for _, admin := range admins {
				add(admin)
			}
		}
	}
	return receivers
}

func (svc *Service) mirror(ev Event, receivers []user.User) {
	msgs := make([]*core.EmailMessage, 0, len(receivers))
	for _, rcv := range receivers {
		if rcv.Email == "" {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: rcv.Name, Address: rcv.Email}},
			Subject:      subjects[ev.Type],
			TemplateName: "notification",
			TemplateData: map[string]interface{}{"Name": rcv.Name, "Message": ev.Message},
		})
	}
	if len(msgs) > 0 {
		svc.mailSvc.SendMessages(msgs...)
	}
}

var subjects = map[Type]string{
	TypePaymentSubmitted:    "New payment to verify",
	TypePaymentApproved:     "Payment approved",
	TypePaymentRejected:     "Payment rejected",
	TypeNewStudent:          "New student",
	TypeCourseCompleted:     "Course completed",
	TypeCertificateRequired: "Certificate required",
	TypeCertificateSent:     "Certificate sent",
	TypeNewMessage:          "New message",
	TypeNewReview:           "New review",
}

func (svc *Service) List(ctx context.Context, receiver user.User, filter QueryFilter) ([]Notification, error) {
	filter.Clean()
	notes, err := svc.repo.QueryNotifications(ctx, receiver.ID, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	return notes, nil
}

func (svc *Service) UnreadCount(ctx context.Context, receiver user.User) (int64, error) {
	return svc.repo.CountUnread(ctx, receiver.ID)
}

func (svc *Service) MarkRead(ctx context.Context, receiver user.User, id primitive.ObjectID) (Notification, error) {
	return svc.repo.MarkRead(ctx, receiver.ID, id)
}

func (svc *Service) MarkAllRead(ctx context.Context, receiver user.User) (int64, error) {
	return svc.repo.MarkAllRead(ctx, receiver.ID)
}
