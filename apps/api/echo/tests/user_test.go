package tests

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/soko/apps/api/echo"
	"github.com/trezcool/soko/core/user"
	"github.com/trezcool/soko/tests"
)

const strongPwd = "Kw9#vLp2qZ"

func Test_userApi_login(t *testing.T) {
	app, svcs := setup(t)
	usrRepo := svcs.Repos.Users

	usr := testutil.CreateUser(t, usrRepo, "User", "awesome", "awe@test.cd", strongPwd, []string{user.RoleStudent}, true)
	testutil.CreateUser(t, usrRepo, "N Dog", "naughty", "ndog@test.cd", strongPwd, []string{user.RoleStudent}, false)

	login := func(uname, pwd string) []byte {
		return marchallObj(t, LoginRequest{Username: uname, Password: pwd})
	}

	runHTTPTests(t, app, []httpTest{
		{
			name: "invalid data", method: http.MethodPost, path: "/api/users/login", body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Message: "invalid data", Errors: map[string]string{
				"username": "this field is required",
				"password": "this field is required",
			}}),
		},
		{
			name: "unknown user", method: http.MethodPost, path: "/api/users/login", body: login("lol", strongPwd),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Message: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/api/users/login", body: login("awesome", "lol"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Message: "authentication failed"}),
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/api/users/login", body: login("naughty", strongPwd),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Message: "account deactivated"}),
		},
	})

	t.Run("success with email", func(t *testing.T) {
		rec := serve(app, httpTest{method: http.MethodPost, path: "/api/users/login", body: login(" AWE@test.cd ", strongPwd)})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var token string
		decode(t, rec, "token", &token)
		require.NotEmpty(t, token)

		refreshed, err := svcs.Users.GetByID(context.Background(), usr.ID)
		require.NoError(t, err)
		assert.False(t, refreshed.LastLogin.IsZero())

		rec = serve(app, httpTest{path: "/api/users/me", token: token})
		checkCodeAndData(t, httpTest{wantData: payload(t, "User", "user", refreshed)}, rec)
	})
}

func Test_userApi_me(t *testing.T) {
	app, svcs := setup(t)
	usrRepo := svcs.Repos.Users

	usr := testutil.CreateUser(t, usrRepo, "User", "awesome", "awe@test.cd", "", []string{user.RoleTeacher}, true)
	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "naughty", "ndog@test.cd", "", []string{user.RoleStudent}, false)
	ghost := user.User{Name: "Ghost", Roles: []string{user.RoleStudent}}

	runHTTPTests(t, app, []httpTest{
		{name: "auth required", path: "/api/users/me", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "invalid token", path: "/api/users/me", token: "lol", wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Message: "invalid or expired jwt"}),
		},
		{
			name: "unknown user", path: "/api/users/me", token: getToken(t, app, ghost), wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Message: "user not authenticated"}),
		},
		{
			name: "deactivated", path: "/api/users/me", token: getToken(t, app, naughty), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Message: "account deactivated"}),
		},
		{name: "me", path: "/api/users/me", token: getToken(t, app, usr), wantData: payload(t, "User", "user", usr)},
	})
}

func Test_userApi_query(t *testing.T) {
	app, svcs := setup(t)
	usrRepo := svcs.Repos.Users

	path := func(search, ordering string, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/api/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	now := time.Now()
	student := testutil.CreateUser(t, usrRepo, "Hero", "hero_user", "hero@test.cd", "", []string{user.RoleStudent}, true, now)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdminGeneral}, true, now.Add(1*time.Hour))
	payer := testutil.CreateUser(t, usrRepo, "Payer", "payer", "payer@test.cd", "", []string{user.RoleAdminPayment}, true, now.Add(2*time.Hour))
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true, now.Add(3*time.Hour))
	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog", "ndog_user@test.cd", "", []string{user.RoleStudent}, false, now.Add(4*time.Hour))

	adminToken := getToken(t, app, admin)
	users := func(usrs ...user.User) []byte {
		if usrs == nil {
			usrs = []user.User{}
		}
		return payload(t, "Users", "users", usrs)
	}

	runHTTPTests(t, app, []httpTest{
		{name: "auth required", path: "/api/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/api/users", token: getToken(t, app, teacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{name: "get all", path: "/api/users", token: adminToken, wantData: users(naughty, teacher, payer, admin, student)},
		{name: "search (unknown)", path: path("lol", "", nil), token: adminToken, wantData: users()},
		{name: "search=USER", path: path("USER", "", nil), token: adminToken, wantData: users(naughty, student)},
		{name: "role=admin:", path: path("", "", nil, "admin:"), token: adminToken, wantData: users(payer, admin)},
		{
			name: "role=teacher:,student:", path: path("", "", nil, user.RoleTeacher, user.RoleStudent),
			token: adminToken, wantData: users(naughty, teacher, student),
		},
		{name: "is_active=false", path: path("", "", bPtr(false)), token: adminToken, wantData: users(naughty)},
		{name: "ordering=name", path: path("", "name", nil), token: adminToken, wantData: users(admin, student, naughty, payer, teacher)},
		{name: "ordering=-email (unknown field ignored)", path: path("", "-email,lol", nil), token: adminToken, wantData: users(teacher, payer, naughty, student, admin)},
	})
}

func Test_userApi_create(t *testing.T) {
	app, svcs := setup(t)
	usrRepo := svcs.Repos.Users

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdminGeneral}, true)
	payer := testutil.CreateUser(t, usrRepo, "Payer", "payer", "payer@test.cd", "", []string{user.RoleAdminPayment}, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)

	newUser := func(uname, email, pwd string, roles ...string) []byte {
		return marchallObj(t, user.NewUser{
			Name:            "New User",
			Username:        uname,
			Email:           email,
			Password:        pwd,
			PasswordConfirm: pwd,
			Roles:           roles,
		})
	}

	runHTTPTests(t, app, []httpTest{
		{
			name: "admin required", method: http.MethodPost, path: "/api/users/register", token: getToken(t, app, teacher),
			body: newUser("new_user", "", strongPwd), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "no username nor email", method: http.MethodPost, path: "/api/users/register", token: getToken(t, app, admin),
			body: newUser("", "", strongPwd), wantCode: http.StatusBadRequest,
		},
		{
			name: "weak password", method: http.MethodPost, path: "/api/users/register", token: getToken(t, app, admin),
			body: newUser("new_user", "", "password"), wantCode: http.StatusBadRequest,
		},
		{
			name: "email taken", method: http.MethodPost, path: "/api/users/register", token: getToken(t, app, admin),
			body: newUser("", "teacher@test.cd", strongPwd), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{
				Message: user.ErrEmailExists.Error(),
				Errors:  map[string]string{"email": user.ErrEmailExists.Error()},
			}),
		},
		{
			name: "role above own", method: http.MethodPost, path: "/api/users/register", token: getToken(t, app, payer),
			body: newUser("new_user", "", strongPwd, user.RoleAdminGeneral), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Message: "invalid data", Errors: map[string]string{"roles": "not enough rights to set these roles"}}),
		},
	})

	t.Run("bare admin role becomes general admin", func(t *testing.T) {
		rec := serve(app, httpTest{
			method: http.MethodPost, path: "/api/users/register", token: getToken(t, app, admin),
			body: newUser("new_admin", "new@test.cd", strongPwd, user.RoleAdmin),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var usr user.User
		decode(t, rec, "user", &usr)
		assert.Equal(t, []string{user.RoleAdminGeneral}, usr.Roles)
		assert.True(t, usr.IsActive)
	})
}

func Test_userApi_retrieveAndUpdate(t *testing.T) {
	app, svcs := setup(t)
	usrRepo := svcs.Repos.Users

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdminGeneral}, true)
	student := testutil.CreateUser(t, usrRepo, "Student", "student", "student@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, usrRepo, "Other", "other_student", "other@test.cd", "", []string{user.RoleStudent}, true)
	studentToken := getToken(t, app, student)

	runHTTPTests(t, app, []httpTest{
		{name: "self", path: "/api/users/" + student.ID.Hex(), token: studentToken, wantData: payload(t, "User", "user", student)},
		{
			name: "someone else", path: "/api/users/" + other.ID.Hex(), token: studentToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Message: "not found"}),
		},
		{
			name: "malformed id", path: "/api/users/lol", token: studentToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Message: "not found"}),
		},
		{name: "admin", path: "/api/users/" + other.ID.Hex(), token: getToken(t, app, admin), wantData: payload(t, "User", "user", other)},
		{
			name: "student cannot change roles", method: http.MethodPut, path: "/api/users/" + student.ID.Hex(), token: studentToken,
			body: []byte(`{"roles": ["teacher:"]}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{name: "roles", path: "/api/users/roles", token: getToken(t, app, admin), wantData: payload(t, "Roles", "roles", user.Roles)},
	})

	t.Run("rename self", func(t *testing.T) {
		rec := serve(app, httpTest{
			method: http.MethodPut, path: "/api/users/" + student.ID.Hex(), token: studentToken,
			body: []byte(`{"name": "  Renamed  "}`),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var usr user.User
		decode(t, rec, "user", &usr)
		assert.Equal(t, "Renamed", usr.Name)
		assert.Equal(t, student.Username, usr.Username)
	})

	t.Run("admin deactivates", func(t *testing.T) {
		rec := serve(app, httpTest{
			method: http.MethodPut, path: "/api/users/" + other.ID.Hex(), token: getToken(t, app, admin),
			body: []byte(`{"is_active": false}`),
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = serve(app, httpTest{path: "/api/users/me", token: getToken(t, app, other)})
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Message: "account deactivated"})}, rec)
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	app, svcs := setup(t)
	usr := testutil.CreateUser(t, svcs.Repos.Users, "User", "awesome", "awe@test.cd", "", []string{user.RoleStudent}, true)

	expired := app.Auth().UserClaims(usr, time.Now().Add(-svcs.Conf.Server.JWTRefreshExpirationDelta-time.Minute).Unix())
	expiredToken, err := app.Auth().GenerateToken(expired)
	require.NoError(t, err)

	runHTTPTests(t, app, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/api/users/token-refresh", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "refresh expired", method: http.MethodPost, path: "/api/users/token-refresh", token: expiredToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Message: "refresh has expired"}),
		},
	})

	t.Run("refresh", func(t *testing.T) {
		rec := serve(app, httpTest{method: http.MethodPost, path: "/api/users/token-refresh", token: getToken(t, app, usr)})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var message string
		decode(t, rec, "message", &message)
		assert.Equal(t, "Token refreshed", message)
	})
}
