package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/identity"
	"github.com/trezcool/soko/core/user"
	"github.com/trezcool/soko/tests"
)

func Test_courseApi_retrieve(t *testing.T) {
	app, svcs := setup(t)
	teacher := testutil.CreateUser(t, svcs.Repos.Users, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	owned := testutil.CreateCourse(t, svcs.Repos.Courses, "Go basics", teacher.ID, "10", 0)
	seeded := testutil.CreateCourse(t, svcs.Repos.Courses, "Algebra", primitive.NilObjectID, "0", 7)
	notFound := marchallObj(t, httpErr{Message: course.ErrNotFound.Error()})

	runHTTPTests(t, app, []httpTest{
		{name: "persisted", path: "/api/courses/" + owned.ID.Hex(), wantData: payload(t, "Course", "course", owned)},
		{name: "seeded catalog number", path: "/api/courses/7", wantData: payload(t, "Course", "course", seeded)},
		{name: "unknown id", path: "/api/courses/507f1f77bcf86cd799439011", wantCode: http.StatusNotFound, wantData: notFound},
		{name: "out of range", path: "/api/courses/1001", wantCode: http.StatusNotFound, wantData: notFound},
		{name: "garbage", path: "/api/courses/lol", wantCode: http.StatusNotFound, wantData: notFound},
	})

	t.Run("catalog placeholder", func(t *testing.T) {
		rec := serve(app, httpTest{path: "/api/courses/12"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var c course.Course
		decode(t, rec, "course", &c)
		assert.Equal(t, 12, c.CatalogNumber)
		assert.Equal(t, "Course #12", c.Title)
		assert.True(t, c.IsPlaceholder)
		assert.True(t, c.ID.IsZero())
	})
}

func Test_courseApi_createUpdateArchive(t *testing.T) {
	app, svcs := setup(t)
	usrRepo := svcs.Repos.Users

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdminGeneral}, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	other := testutil.CreateUser(t, usrRepo, "Other", "other_teacher", "other@test.cd", "", []string{user.RoleTeacher}, true)
	student := testutil.CreateUser(t, usrRepo, "Student", "student", "student@test.cd", "", []string{user.RoleStudent}, true)
	teacherToken := getToken(t, app, teacher)

	runHTTPTests(t, app, []httpTest{
		{
			name: "auth required", method: http.MethodPost, path: "/api/courses", body: []byte(`{"title": "Go"}`),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken),
		},
		{
			name: "students cannot create", method: http.MethodPost, path: "/api/courses", token: getToken(t, app, student),
			body: []byte(`{"title": "Go"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "title required", method: http.MethodPost, path: "/api/courses", token: teacherToken, body: []byte(`{"title": "  "}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Message: "invalid data", Errors: map[string]string{"title": "this field is required"}}),
		},
		{
			name: "negative price", method: http.MethodPost, path: "/api/courses", token: teacherToken, body: []byte(`{"title": "Go", "price": "-1"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Message: "price cannot be negative", Errors: map[string]string{"price": "price cannot be negative"}}),
		},
		{
			name: "teachers cannot seed catalog courses", method: http.MethodPost, path: "/api/courses", token: teacherToken,
			body: []byte(`{"title": "Go", "catalog_number": 3}`), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Message: "only admins can seed catalog courses"}),
		},
	})

	var c course.Course
	t.Run("teacher creates", func(t *testing.T) {
		rec := serve(app, httpTest{
			method: http.MethodPost, path: "/api/courses", token: teacherToken,
			body: []byte(`{"title": " Go ", "description": "Learn Go", "price": "25.50"}`),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decode(t, rec, "course", &c)
		assert.Equal(t, "Go", c.Title)
		assert.Equal(t, teacher.ID, c.TeacherID)
		assert.Equal(t, "25.5", c.Price.String())
		assert.True(t, c.IsPaid())
	})

	t.Run("admin seeds catalog course", func(t *testing.T) {
		body := []byte(`{"title": "Algebra", "catalog_number": 3}`)
		rec := serve(app, httpTest{method: http.MethodPost, path: "/api/courses", token: getToken(t, app, admin), body: body})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var seeded course.Course
		decode(t, rec, "course", &seeded)
		assert.Equal(t, 3, seeded.CatalogNumber)
		assert.False(t, seeded.HasOwner())

		rec = serve(app, httpTest{method: http.MethodPost, path: "/api/courses", token: getToken(t, app, admin), body: body})
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{
				Message: course.ErrCatalogNumberTaken.Error(),
				Errors:  map[string]string{"catalog_number": course.ErrCatalogNumberTaken.Error()},
			}),
		}, rec)
	})

	path := "/api/courses/" + c.ID.Hex()
	runHTTPTests(t, app, []httpTest{
		{
			name: "not the owner", method: http.MethodPut, path: path, token: getToken(t, app, other),
			body: []byte(`{"title": "Mine"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Message: course.ErrNotOwner.Error()}),
		},
		{
			name: "placeholders cannot be updated", method: http.MethodPut, path: "/api/courses/12", token: getToken(t, app, admin),
			body: []byte(`{"title": "Mine"}`), wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Message: course.ErrNotFound.Error()}),
		},
	})

	t.Run("owner updates then archives", func(t *testing.T) {
		rec := serve(app, httpTest{method: http.MethodPut, path: path, token: teacherToken, body: []byte(`{"price": "0"}`)})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated course.Course
		decode(t, rec, "course", &updated)
		assert.Equal(t, "Go", updated.Title)
		assert.False(t, updated.IsPaid())

		rec = serve(app, httpTest{method: http.MethodDelete, path: path, token: teacherToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var archived course.Course
		decode(t, rec, "course", &archived)
		assert.True(t, archived.IsArchived)

		rec = serve(app, httpTest{path: "/api/courses?teacher_id=" + teacher.ID.Hex()})
		checkCodeAndData(t, httpTest{wantData: payload(t, "Courses", "courses", []course.Course{})}, rec)

		rec = serve(app, httpTest{path: "/api/courses?include_archived=true&teacher_id=" + teacher.ID.Hex()})
		checkCodeAndData(t, httpTest{wantData: payload(t, "Courses", "courses", []course.Course{archived})}, rec)
	})
}

func Test_courseApi_teachers(t *testing.T) {
	app, svcs := setup(t)
	usrRepo := svcs.Repos.Users

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdminGeneral}, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	other := testutil.CreateUser(t, usrRepo, "Other", "other_teacher", "other@test.cd", "", []string{user.RoleTeacher}, true)
	adminToken := getToken(t, app, admin)
	assignPath := "/api/courses/12/teachers/"

	runHTTPTests(t, app, []httpTest{
		{
			name: "admin required", method: http.MethodPut, path: assignPath + teacher.ID.Hex(), token: getToken(t, app, teacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "unknown teacher", method: http.MethodPut, path: assignPath + "lol", token: adminToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Message: user.ErrNotFound.Error()}),
		},
		{name: "assign", method: http.MethodPut, path: assignPath + teacher.ID.Hex(), token: adminToken},
		{
			name: "already taught", method: http.MethodPut, path: assignPath + other.ID.Hex(), token: adminToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Message: course.ErrAlreadyTaught.Error()}),
		},
		{
			name: "assignee lists enrollments", path: "/api/courses/12/enrollments", token: getToken(t, app, teacher),
			wantData: payload(t, "Enrollments", "enrollments", []interface{}{}),
		},
		{
			name: "other teacher cannot list enrollments", path: "/api/courses/12/enrollments", token: getToken(t, app, other),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Message: "you are not allowed to manage this enrollment"}),
		},
		{name: "unassign", method: http.MethodDelete, path: assignPath + teacher.ID.Hex(), token: adminToken},
		{name: "reassign", method: http.MethodPut, path: assignPath + other.ID.Hex(), token: adminToken},
	})

	usr, err := svcs.Users.GetByID(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Equal(t, []identity.CourseRef{identity.Catalog(12)}, usr.AssignedCourses)
}
