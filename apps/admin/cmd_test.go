package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/identity"
	"github.com/trezcool/soko/core/user"
	"github.com/trezcool/soko/tests"
)

var usrRepo user.Repository

func setup(t *testing.T) (*commandLine, *testutil.Services) {
	svcs := testutil.NewServices()
	usrRepo = svcs.Repos.Users

	return &commandLine{
		conf:      svcs.Conf,
		validate:  svcs.Validate,
		usrSvc:    svcs.Users,
		courseSvc: svcs.Courses,
		out:       new(bytes.Buffer),
	}, svcs
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func checkRunErr(t *testing.T, tt cliTest, err error) {
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	t.Run("memory engine", func(t *testing.T) {
		checkRunErr(t, cliTest{wantErr: errNoMigrations}, cli.run([]string{"admin", "migrate", "up"}))
	})

	cli.conf.Database.Engine = core.EnginePostgres
	origRun := gooseRunFunc
	defer func() { gooseRunFunc = origRun }()
	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "reviews_index", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkRunErr(t, tt, cli.run(args))
		})
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: "lol", wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: "lol"},
		{name: "reset with email", args: []string{"resetpassword", "-username", "AWE@test.cd"}, extra: "lmao"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd, _ := tt.extra.(string)
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			checkRunErr(t, tt, err)
			if err == nil {
				refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				require.NoError(t, err)
				assert.NoError(t, refreshed.CheckPassword(pwd))
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, _ := setup(t)
	ctx := context.Background()
	mockPassword("Str0ng-Passw0rd")

	t.Run("missing flags", func(t *testing.T) {
		checkRunErr(t, cliTest{wantErr: errHelp}, cli.run([]string{"admin", "adduser", "-email", "new@test.cd"}))
	})
	t.Run("invalid email", func(t *testing.T) {
		err := cli.run([]string{"admin", "adduser", "-email", "lol", "-name", "Lol", "-role", "student"})
		checkRunErr(t, cliTest{wantErrStr: `invalid email "lol"`}, err)
	})
	t.Run("unknown role", func(t *testing.T) {
		err := cli.run([]string{"admin", "adduser", "-email", "new@test.cd", "-name", "New", "-role", "janitor"})
		checkRunErr(t, cliTest{wantErr: errUnknownRole}, err)
	})
	t.Run("unknown admin type", func(t *testing.T) {
		err := cli.run([]string{"admin", "adduser", "-email", "new@test.cd", "-name", "New", "-role", "admin", "-admin-type", "boss"})
		checkRunErr(t, cliTest{wantErrStr: `unknown admin type "boss"`}, err)
	})

	t.Run("create payment admin", func(t *testing.T) {
		err := cli.run([]string{"admin", "adduser", "-email", " Pay@Test.cd ", "-name", "Pay", "-role", "admin", "-admin-type", "payment"})
		require.NoError(t, err)

		usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, "pay@test.cd")
		require.NoError(t, err)
		assert.Equal(t, []string{user.RoleAdminPayment}, usr.Roles)
		assert.True(t, usr.IsActive)
		assert.NoError(t, usr.CheckPassword("Str0ng-Passw0rd"))
	})

	t.Run("update existing user", func(t *testing.T) {
		orig := testutil.CreateUser(t, usrRepo, "Old", "old_user", "old@test.cd", "old", []string{user.RoleStudent}, false)
		mockPassword("N3w-Passw0rd")

		err := cli.run([]string{"admin", "adduser", "-email", "old@test.cd", "-name", "New Name", "-role", "teacher"})
		require.NoError(t, err)

		usr, err := cli.usrSvc.GetByID(ctx, orig.ID)
		require.NoError(t, err)
		assert.Equal(t, "New Name", usr.Name)
		assert.Equal(t, "old_user", usr.Username)
		assert.Equal(t, []string{user.RoleTeacher}, usr.Roles)
		assert.True(t, usr.IsActive)
		assert.NoError(t, usr.CheckPassword("N3w-Passw0rd"))
	})
}

func Test_commandLine_assign(t *testing.T) {
	cli, svcs := setup(t)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	other := testutil.CreateUser(t, usrRepo, "Other", "other_teacher", "other@test.cd", "", []string{user.RoleTeacher}, true)
	student := testutil.CreateUser(t, usrRepo, "Student", "student", "student@test.cd", "", []string{user.RoleStudent}, true)
	owned := testutil.CreateCourse(t, svcs.Repos.Courses, "Owned", other.ID, "0", 0)

	tests := []cliTest{
		{name: "no args", args: []string{"assign"}, wantErr: errHelp},
		{name: "invalid course", args: []string{"assign", "-course", "lol", "-teacher", teacher.ID.Hex()}, wantErr: course.ErrNotFound},
		{name: "out of range catalog number", args: []string{"assign", "-course", "5000", "-teacher", teacher.ID.Hex()}, wantErr: course.ErrNotFound},
		{name: "invalid teacher", args: []string{"assign", "-course", "12", "-teacher", "lol"}, wantErr: user.ErrNotFound},
		{name: "not a teacher", args: []string{"assign", "-course", "12", "-teacher", student.ID.Hex()}, wantErrStr: course.ErrNotATeacher.Error()},
		{name: "owned by another teacher", args: []string{"assign", "-course", owned.ID.Hex(), "-teacher", teacher.ID.Hex()}, wantErrStr: course.ErrAlreadyTaught.Error()},
		{name: "catalog course", args: []string{"assign", "-course", "12", "-teacher", teacher.ID.Hex()}},
		{name: "assigned twice", args: []string{"assign", "-course", "12", "-teacher", teacher.ID.Hex()}},
		{name: "taken by assignee", args: []string{"assign", "-course", "12", "-teacher", other.ID.Hex()}, wantErrStr: course.ErrAlreadyTaught.Error()},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkRunErr(t, tt, cli.run(args))
		})
	}

	usr, err := cli.usrSvc.GetByID(context.Background(), teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, []identity.CourseRef{identity.Catalog(12)}, usr.AssignedCourses)
}

func Test_commandLine_seedCourse(t *testing.T) {
	cli, _ := setup(t)

	tests := []cliTest{
		{name: "no args", args: []string{"seedcourse"}, wantErr: errHelp},
		{name: "no title", args: []string{"seedcourse", "-number", "3"}, wantErr: errHelp},
		{name: "invalid price", args: []string{"seedcourse", "-number", "3", "-title", "Go", "-price", "lol"}, wantErrStr: `invalid price "lol"`},
		{name: "negative price", args: []string{"seedcourse", "-number", "3", "-title", "Go", "-price", "-1"}, wantErrStr: "price cannot be negative"},
		{name: "out of range", args: []string{"seedcourse", "-number", "1001", "-title", "Go"}, wantErrStr: "catalog number must be between 1 and 1000"},
		{name: "seed", args: []string{"seedcourse", "-number", "3", "-title", "Go", "-price", "25.50"}},
		{name: "number taken", args: []string{"seedcourse", "-number", "3", "-title", "Go again"}, wantErrStr: course.ErrCatalogNumberTaken.Error()},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkRunErr(t, tt, cli.run(args))
		})
	}

	c, err := cli.courseSvc.Lookup(context.Background(), identity.Catalog(3))
	require.NoError(t, err)
	assert.Equal(t, "Go", c.Title)
	assert.Equal(t, "25.5", c.Price.String())
	assert.False(t, c.IsPlaceholder)
	assert.False(t, c.HasOwner())
}
