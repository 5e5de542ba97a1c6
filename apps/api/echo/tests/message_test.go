package tests

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/soko/core/enrollment"
	"github.com/trezcool/soko/core/message"
	"github.com/trezcool/soko/core/notification"
	"github.com/trezcool/soko/core/user"
	"github.com/trezcool/soko/tests"
)

func Test_messageApi(t *testing.T) {
	app, svcs := setup(t)
	usrRepo := svcs.Repos.Users
	student := testutil.CreateUser(t, usrRepo, "Student", "student", "student@test.cd", "", []string{user.RoleStudent}, true)
	classmate := testutil.CreateUser(t, usrRepo, "Classmate", "classmate", "classmate@test.cd", "", []string{user.RoleStudent}, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	unrelated := testutil.CreateUser(t, usrRepo, "Unrelated", "unrelated", "unrelated@test.cd", "", []string{user.RoleTeacher}, true)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdminPayment}, true)
	inactive := testutil.CreateUser(t, usrRepo, "Gone", "gone", "gone@test.cd", "", []string{user.RoleTeacher}, false)

	c := testutil.CreateCourse(t, svcs.Repos.Courses, "Go", teacher.ID, "0", 0)
	testutil.CreateEnrollment(t, svcs.Repos.Enrollments, student, c, enrollment.StatusActive, 0)

	studentToken := getToken(t, app, student)
	teacherToken := getToken(t, app, teacher)
	body := func(receiver user.User, text string) []byte {
		return []byte(fmt.Sprintf(`{"receiver_id": %q, "body": %q}`, receiver.ID.Hex(), text))
	}
	send := func(t *testing.T, token string, receiver user.User, text string) message.Message {
		rec := serve(app, httpTest{method: http.MethodPost, path: "/api/messages", token: token, body: body(receiver, text)})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var msg message.Message
		decode(t, rec, "direct_message", &msg)
		return msg
	}

	runHTTPTests(t, app, []httpTest{
		{
			name: "unrelated teacher", method: http.MethodPost, path: "/api/messages", token: studentToken, body: body(unrelated, "hi"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Message: message.ErrNotAllowed.Error()}),
		},
		{
			name: "another student", method: http.MethodPost, path: "/api/messages", token: studentToken, body: body(classmate, "hi"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Message: message.ErrNotAllowed.Error()}),
		},
		{
			name: "self message", method: http.MethodPost, path: "/api/messages", token: studentToken, body: body(student, "hi"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Message: "you cannot message yourself"}),
		},
		{
			name: "inactive receiver", method: http.MethodPost, path: "/api/messages", token: teacherToken, body: body(inactive, "hi"),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Message: message.ErrReceiverNotFound.Error()}),
		},
		{
			name: "empty body", method: http.MethodPost, path: "/api/messages", token: studentToken, body: body(teacher, "   "),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Message: "invalid data", Errors: map[string]string{"body": "this field is required"}}),
		},
		{
			name: "missing receiver", method: http.MethodPost, path: "/api/messages", token: studentToken, body: []byte(`{"body": "hi"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Message: "invalid receiver", Errors: map[string]string{"receiver_id": "invalid receiver"}}),
		},
		{
			name: "unknown conversation partner", path: "/api/messages/507f1f77bcf86cd799439011", token: studentToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Message: message.ErrReceiverNotFound.Error()}),
		},
	})

	t.Run("conversation", func(t *testing.T) {
		first := send(t, studentToken, teacher, "hello teacher")
		assert.False(t, first.IsRead)
		send(t, teacherToken, student, "hello student")
		send(t, studentToken, admin, "payment question")
		send(t, teacherToken, unrelated, "colleague")

		assert.Equal(t, []notification.Type{notification.TypeNewMessage}, testutil.NotificationTypes(t, svcs.Repos.Notifications, teacher.ID))
		assert.Len(t, testutil.NotificationTypes(t, svcs.Repos.Notifications, admin.ID), 1)

		rec := serve(app, httpTest{path: "/api/messages/" + student.ID.Hex(), token: teacherToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var msgs []message.Message
		decode(t, rec, "messages", &msgs)
		require.Len(t, msgs, 2)
		assert.Equal(t, "hello student", msgs[0].Body)
		assert.Equal(t, "hello teacher", msgs[1].Body)

		// the teacher's read marked the student's message
		rec = serve(app, httpTest{path: "/api/messages/" + teacher.ID.Hex(), token: studentToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, "messages", &msgs)
		require.Len(t, msgs, 2)
		assert.True(t, msgs[1].IsRead)
	})
}
