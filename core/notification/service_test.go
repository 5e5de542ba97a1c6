package notification_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/notification"
	"github.com/trezcool/soko/core/user"
	"github.com/trezcool/soko/tests"
)

func TestService_Publish(t *testing.T) {
	svcs := testutil.NewServices()
	ctx := context.Background()
	usrRepo := svcs.Repos.Users
	student := testutil.CreateUser(t, usrRepo, "Student", "student", "student@test.cd", "", []string{user.RoleStudent}, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher, user.RoleAdminGeneral}, true)
	general := testutil.CreateUser(t, usrRepo, "General", "general", "general@test.cd", "", []string{user.RoleAdminGeneral}, true)
	payment := testutil.CreateUser(t, usrRepo, "Payment", "payment", "payment@test.cd", "", []string{user.RoleAdminPayment}, true)
	inactive := testutil.CreateUser(t, usrRepo, "Gone", "gone", "gone@test.cd", "", []string{user.RoleAdminGeneral}, false)
	c := testutil.CreateCourse(t, svcs.Repos.Courses, "Go", teacher.ID, "0", 0)

	svcs.Notifications.Publish(ctx, notification.Event{
		Type:      notification.TypeCertificateRequired,
		SenderID:  student.ID,
		Message:   "needs a certificate",
		CourseRef: c.Ref(),
		To: []notification.Recipient{
			notification.ToInstructor(c),
			notification.ToAdmins(user.AdminGeneral),
			notification.ToUser(general.ID),
			notification.ToUser(primitive.NewObjectID()), // unknown
		},
	})

	t.Run("one record per distinct active receiver", func(t *testing.T) {
		for _, usr := range []user.User{teacher, general} {
			notes := testutil.Notifications(t, svcs.Repos.Notifications, usr.ID)
			require.Len(t, notes, 1, usr.Username)
			assert.Equal(t, notification.TypeCertificateRequired, notes[0].Type)
			assert.Equal(t, student.ID, notes[0].SenderID)
			assert.Equal(t, c.Ref(), notes[0].CourseRef)
		}
		for _, usr := range []user.User{student, payment, inactive} {
			assert.Empty(t, testutil.Notifications(t, svcs.Repos.Notifications, usr.ID), usr.Username)
		}
	})

	t.Run("records of one event share its id", func(t *testing.T) {
		a := testutil.Notifications(t, svcs.Repos.Notifications, teacher.ID)[0]
		b := testutil.Notifications(t, svcs.Repos.Notifications, general.ID)[0]
		assert.NotEmpty(t, a.EventID)
		assert.Equal(t, a.EventID, b.EventID)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("a failing branch does not drop the others", func(t *testing.T) {
		// an ownerless course with no teacher left to fall back on
		teacher.IsActive = false
		_, err := usrRepo.UpdateUser(ctx, teacher)
		require.NoError(t, err)

		svcs.Notifications.Publish(ctx, notification.Event{
			Type: notification.TypeNewStudent,
			To: []notification.Recipient{
				notification.ToInstructor(course.Course{CatalogNumber: 40}),
				notification.ToUser(payment.ID),
			},
		})
		assert.Equal(t, []notification.Type{notification.TypeNewStudent}, testutil.NotificationTypes(t, svcs.Repos.Notifications, payment.ID))
	})

	t.Run("no receiver", func(t *testing.T) {
		svcs.Notifications.Publish(ctx, notification.Event{Type: notification.TypeNewMessage})
		svcs.Notifications.Publish(ctx, notification.Event{
			Type: notification.TypeNewMessage,
			To:   []notification.Recipient{notification.ToUser(inactive.ID)},
		})
		assert.Empty(t, testutil.Notifications(t, svcs.Repos.Notifications, inactive.ID))
	})
}

func TestService_Publish_emailMirror(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Notifications.EmailMirror = true
	svcs := testutil.NewServices(conf)
	student := testutil.CreateUser(t, svcs.Repos.Users, "Student", "student", "student@test.cd", "", []string{user.RoleStudent}, true)

	svcs.Notifications.Publish(context.Background(), notification.Event{
		Type:    notification.TypePaymentApproved,
		Message: "Your payment was approved.",
		To:      []notification.Recipient{notification.ToUser(student.ID)},
	})

	sent := svcs.Mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Payment approved", sent[0].Subject)
	assert.Equal(t, "student@test.cd", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Your payment was approved.")
}

func TestService_readSide(t *testing.T) {
	svcs := testutil.NewServices()
	ctx := context.Background()
	student := testutil.CreateUser(t, svcs.Repos.Users, "Student", "student", "student@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, svcs.Repos.Users, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true)

	for i := 0; i < 60; i++ {
		svcs.Notifications.Publish(ctx, notification.Event{
			Type: notification.TypeNewMessage,
			To:   []notification.Recipient{notification.ToUser(student.ID)},
		})
	}

	notes, err := svcs.Notifications.List(ctx, student, notification.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, notes, 50, "default limit")

	notes, err = svcs.Notifications.List(ctx, student, notification.QueryFilter{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, notes, 60)

	_, err = svcs.Notifications.MarkRead(ctx, other, notes[0].ID)
	assert.Equal(t, notification.ErrNotFound, err)

	read, err := svcs.Notifications.MarkRead(ctx, student, notes[0].ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)

	count, err := svcs.Notifications.UnreadCount(ctx, student)
	require.NoError(t, err)
	assert.Equal(t, int64(59), count)

	marked, err := svcs.Notifications.MarkAllRead(ctx, student)
	require.NoError(t, err)
	assert.Equal(t, int64(59), marked)
}
