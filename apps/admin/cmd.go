package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf      *core.Config
	validate  *validator.Validate
	usrSvc    *user.Service
	courseSvc *course.Service
	db        *sql.DB // postgres engine only, for migrate
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL -name NAME -role student|teacher|admin [-admin-type general|payment] [-username USERNAME] - create or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  assign -course REF -teacher ID - assign a teacher to a course")
	fmt.Fprintln(cli.out, "  seedcourse -number N -title TITLE [-price P] - store a catalog course")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run database migrations (postgres only)")
}

func (cli *commandLine) promptPassword(fs *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username (optional).")
	addUserRole := addUserCmd.String("role", "", "One of student, teacher or admin.")
	addUserAdminType := addUserCmd.String("admin-type", user.AdminGeneral, "Admins only: general or payment.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	assignCmd := flag.NewFlagSet("assign", flag.ExitOnError)
	assignCourse := assignCmd.String("course", "", "The course id or catalog number.")
	assignTeacher := assignCmd.String("teacher", "", "The teacher's id.")

	seedCourseCmd := flag.NewFlagSet("seedcourse", flag.ExitOnError)
	seedCourseNumber := seedCourseCmd.Int("number", 0, "The catalog number.")
	seedCourseTitle := seedCourseCmd.String("title", "", "The course title.")
	seedCoursePrice := seedCourseCmd.String("price", "0", "The course price.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" || *addUserName == "" || *addUserRole == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addUserCmd)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, *addUserRole, *addUserAdminType)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "assign":
		if err := assignCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *assignCourse == "" || *assignTeacher == "" {
			assignCmd.Usage()
			return errHelp
		}
		return cli.assign(*assignCourse, *assignTeacher)

	case "seedcourse":
		if err := seedCourseCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *seedCourseNumber <= 0 || *seedCourseTitle == "" {
			seedCourseCmd.Usage()
			return errHelp
		}
		return cli.seedCourse(*seedCourseNumber, *seedCourseTitle, *seedCoursePrice)

	case "migrate":
		if len(args) < 3 {
			fmt.Fprintln(cli.out, "Usage: migrate up|up-by-one|up-to VERSION|down|down-to VERSION|redo|reset|status|version|create NAME [go|sql]|fix")
			return errHelp
		}
		return cli.migrate(args[2:])

	default:
		cli.printUsage()
		return errHelp
	}
}
