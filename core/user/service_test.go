package user_test

import (
	"context"
	"os"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/user"
	appfs "github.com/trezcool/soko/fs"
	"github.com/trezcool/soko/tests"
)

func TestMain(m *testing.M) {
	user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswords, testutil.NewLogger(core.NewTestConfig()))
	os.Exit(m.Run())
}

// fieldErrors translates the validation errors of err, keyed by field.
func fieldErrors(t *testing.T, translator ut.Translator, err error) map[string]string {
	var vErrs validator.ValidationErrors
	require.True(t, errors.As(err, &vErrs), "%v", err)
	errs := make(map[string]string, len(vErrs))
	for _, e := range vErrs {
		errs[e.Field()] = e.Translate(translator)
	}
	return errs
}

func TestNewUser_Validate(t *testing.T) {
	svcs := testutil.NewServices()
	ctx := context.Background()
	testutil.CreateUser(t, svcs.Repos.Users, "Taken", "taken_user", "taken@test.cd", "", []string{user.RoleStudent}, true)

	newUser := func(uname, email, pwd string, roles ...string) user.NewUser {
		return user.NewUser{Name: "Jane Doe", Username: uname, Email: email, Password: pwd, PasswordConfirm: pwd, Roles: roles}
	}

	tests := []struct {
		name       string
		nu         user.NewUser
		wantFields map[string]string
	}{
		{name: "too short", nu: newUser("jane_doe", "", "Kw9#v"), wantFields: map[string]string{"password": "password must contain at least 8 characters"}},
		{name: "whitespace", nu: newUser("jane_doe", "", "Kw9# vLp2qZ"), wantFields: map[string]string{"password": "password must not contain whitespace"}},
		{name: "numeric", nu: newUser("jane_doe", "", "1234567890"), wantFields: map[string]string{"password": "password cannot be entirely numeric"}},
		{
			name: "too simple", nu: newUser("jane_doe", "", "kw9vlp2qzz"),
			wantFields: map[string]string{"password": "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"},
		},
		{name: "similar to username", nu: newUser("jane_doe1", "", "Jane_doe1!"), wantFields: map[string]string{"password": "password cannot be similar to user attributes"}},
		{name: "common", nu: newUser("jane_doe", "", "P@ssw0rd"), wantFields: map[string]string{"password": "password is too common"}},
		{
			name: "no username nor email", nu: newUser("", "", "Kw9#vLp2qZ"),
			wantFields: map[string]string{"username": "one of username or email is required", "email": "one of username or email is required"},
		},
		{name: "unknown role", nu: newUser("jane_doe", "", "Kw9#vLp2qZ", "janitor:"), wantFields: map[string]string{"roles": "invalid roles"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nu.Validate(ctx, svcs.Validate, svcs.Users)
			assert.Equal(t, tt.wantFields, fieldErrors(t, svcs.Translator, err))
		})
	}

	t.Run("taken username", func(t *testing.T) {
		nu := newUser(" TAKEN_User ", "", "Kw9#vLp2qZ")
		err := nu.Validate(ctx, svcs.Validate, svcs.Users)
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, user.ErrUsernameExists, vErr.Err)
		assert.Equal(t, "taken_user", nu.Username)
	})

	t.Run("valid", func(t *testing.T) {
		nu := newUser("jane_doe", "JANE@test.cd", "Kw9#vLp2qZ", user.RoleAdmin)
		require.NoError(t, nu.Validate(ctx, svcs.Validate, svcs.Users))
		assert.Equal(t, "jane@test.cd", nu.Email)

		usr, err := svcs.Users.Create(ctx, nu)
		require.NoError(t, err)
		assert.True(t, usr.IsActive)
		assert.Equal(t, []string{user.RoleAdminGeneral}, usr.Roles)
		assert.NoError(t, usr.CheckPassword("Kw9#vLp2qZ"))
	})
}

func TestService_Update(t *testing.T) {
	svcs := testutil.NewServices()
	ctx := context.Background()
	usr := testutil.CreateUser(t, svcs.Repos.Users, "Jane", "jane_doe", "jane@test.cd", "Kw9#vLp2qZ", []string{user.RoleStudent}, true)

	uu := user.UpdateUser{Name: "  ", Email: "NEW@test.cd"}
	require.NoError(t, uu.Validate(ctx, usr, svcs.Validate, svcs.Users))
	assert.Equal(t, "Jane", uu.Name)
	assert.Equal(t, "jane_doe", uu.Username)

	inactive := false
	uu.IsActive = &inactive
	got, err := svcs.Users.Update(ctx, usr, uu)
	require.NoError(t, err)
	assert.Equal(t, "new@test.cd", got.Email)
	assert.False(t, got.IsActive)
	assert.Equal(t, []string{user.RoleStudent}, got.Roles, "roles are kept when not provided")
	assert.NoError(t, got.CheckPassword("Kw9#vLp2qZ"))

	t.Run("password confirmation", func(t *testing.T) {
		uu := user.UpdateUser{Password: "Xq7$mNb4Lt", PasswordConfirm: "nope"}
		err := uu.Validate(ctx, got, svcs.Validate, svcs.Users)
		assert.Contains(t, fieldErrors(t, svcs.Translator, err), "password_confirm")
	})

	t.Run("reset password", func(t *testing.T) {
		require.NoError(t, svcs.Users.ResetPassword(ctx, " NEW@test.cd ", "Xq7$mNb4Lt"))
		got, err := svcs.Users.GetByID(ctx, usr.ID)
		require.NoError(t, err)
		assert.NoError(t, got.CheckPassword("Xq7$mNb4Lt"))

		assert.Equal(t, user.ErrNotFound, svcs.Users.ResetPassword(ctx, "nobody", "Xq7$mNb4Lt"))
	})
}
