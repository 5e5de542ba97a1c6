package tests

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/soko/core/enrollment"
	"github.com/trezcool/soko/core/notification"
	"github.com/trezcool/soko/core/review"
	"github.com/trezcool/soko/core/user"
	"github.com/trezcool/soko/tests"
)

func Test_reviewApi(t *testing.T) {
	app, svcs := setup(t)
	usrRepo := svcs.Repos.Users
	student := testutil.CreateUser(t, usrRepo, "Student", "student", "student@test.cd", "", []string{user.RoleStudent}, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	stranger := testutil.CreateUser(t, usrRepo, "Stranger", "stranger", "stranger@test.cd", "", []string{user.RoleTeacher}, true)
	token := getToken(t, app, student)

	done := testutil.CreateCourse(t, svcs.Repos.Courses, "Done", teacher.ID, "0", 0)
	ongoing := testutil.CreateCourse(t, svcs.Repos.Courses, "Ongoing", teacher.ID, "0", 0)
	testutil.CreateEnrollment(t, svcs.Repos.Enrollments, student, done, enrollment.StatusCompleted, 100)
	testutil.CreateEnrollment(t, svcs.Repos.Enrollments, student, ongoing, enrollment.StatusActive, 40)

	canReviewPath := func(teacherID, courseRef string) string {
		return fmt.Sprintf("/api/reviews/can-review/%s/%s", teacherID, courseRef)
	}
	elig := func(e review.Eligibility) []byte {
		return payload(t, "Review eligibility", "eligibility", e)
	}
	notFound := review.Eligibility{Reason: review.ReasonNotFound, Message: review.ReasonNotFound.Message()}

	runHTTPTests(t, app, []httpTest{
		{name: "completed course", path: canReviewPath(teacher.ID.Hex(), done.ID.Hex()), token: token, wantData: elig(review.Eligibility{Eligible: true})},
		{
			name: "not completed", path: canReviewPath(teacher.ID.Hex(), ongoing.ID.Hex()), token: token,
			wantData: elig(review.Eligibility{Reason: review.ReasonNotCompleted, Message: review.ReasonNotCompleted.Message()}),
		},
		{name: "not the instructor", path: canReviewPath(stranger.ID.Hex(), done.ID.Hex()), token: token, wantData: elig(notFound)},
		{name: "malformed teacher", path: canReviewPath("lol", done.ID.Hex()), token: token, wantData: elig(notFound)},
		{name: "unknown course", path: canReviewPath(teacher.ID.Hex(), "507f1f77bcf86cd799439011"), token: token, wantData: elig(notFound)},
		{
			name: "students only", path: canReviewPath(teacher.ID.Hex(), done.ID.Hex()), token: getToken(t, app, teacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
	})

	t.Run("create", func(t *testing.T) {
		body := func(ref string, rating int) []byte {
			return []byte(fmt.Sprintf(`{"teacher_id": %q, "course_id": %q, "rating": %d, "comment": "  great  "}`, teacher.ID.Hex(), ref, rating))
		}
		runHTTPTests(t, app, []httpTest{
			{
				name: "rating out of range", method: http.MethodPost, path: "/api/reviews", token: token, body: body(done.ID.Hex(), 6),
				wantCode: http.StatusBadRequest,
			},
			{
				name: "not completed", method: http.MethodPost, path: "/api/reviews", token: token, body: body(ongoing.ID.Hex(), 4),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Message: review.ReasonNotCompleted.Message()}),
			},
			{
				name: "missing teacher", method: http.MethodPost, path: "/api/reviews", token: token, body: []byte(`{"course_id": 1, "rating": 4}`),
				wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, httpErr{Message: "invalid teacher", Errors: map[string]string{"teacher_id": "invalid teacher"}}),
			},
		})

		rec := serve(app, httpTest{method: http.MethodPost, path: "/api/reviews", token: token, body: body(done.ID.Hex(), 4)})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var r review.Review
		decode(t, rec, "review", &r)
		assert.Equal(t, 4, r.Rating)
		assert.Equal(t, "great", r.Comment)
		assert.Equal(t, student.ID, r.StudentID)
		assert.Equal(t, []notification.Type{notification.TypeNewReview}, testutil.NotificationTypes(t, svcs.Repos.Notifications, teacher.ID))

		rec = serve(app, httpTest{method: http.MethodPost, path: "/api/reviews", token: token, body: body(done.ID.Hex(), 5)})
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Message: review.ReasonAlreadyReviewed.Message()}),
		}, rec)

		rec = serve(app, httpTest{path: canReviewPath(teacher.ID.Hex(), done.ID.Hex()), token: token})
		checkCodeAndData(t, httpTest{
			wantData: elig(review.Eligibility{Reason: review.ReasonAlreadyReviewed, Message: review.ReasonAlreadyReviewed.Message()}),
		}, rec)
	})

	t.Run("teacher reviews", func(t *testing.T) {
		other := testutil.CreateUser(t, usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true)
		testutil.CreateEnrollment(t, svcs.Repos.Enrollments, other, done, enrollment.StatusCompleted, 100)
		rec := serve(app, httpTest{
			method: http.MethodPost, path: "/api/reviews", token: getToken(t, app, other),
			body: []byte(fmt.Sprintf(`{"teacher_id": %q, "course_id": %q, "rating": 5}`, teacher.ID.Hex(), done.ID.Hex())),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = serve(app, httpTest{path: "/api/reviews/teachers/" + teacher.ID.Hex()})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var reviews []review.Review
		var summary review.Summary
		decode(t, rec, "reviews", &reviews)
		decode(t, rec, "summary", &summary)
		require.Len(t, reviews, 2)
		assert.Equal(t, review.Summary{Count: 2, Average: 4.5}, summary)

		runHTTPTests(t, app, []httpTest{
			{
				name: "no reviews", path: "/api/reviews/teachers/" + stranger.ID.Hex(),
				wantData: marchallObj(t, map[string]interface{}{"message": "Reviews", "reviews": []interface{}{}, "summary": review.Summary{}}),
			},
			{
				name: "not a teacher", path: "/api/reviews/teachers/" + student.ID.Hex(),
				wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Message: user.ErrNotFound.Error()}),
			},
			{
				name: "malformed id", path: "/api/reviews/teachers/lol",
				wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Message: user.ErrNotFound.Error()}),
			},
		})
	})
}
