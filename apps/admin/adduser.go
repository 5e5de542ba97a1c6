package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/user"
)

var errUnknownRole = errors.New("role must be one of student, teacher or admin")

func roleFromFlags(role, adminType string) (string, error) {
	switch role {
	case "student":
		return user.RoleStudent, nil
	case "teacher":
		return user.RoleTeacher, nil
	case "admin":
		if !(adminType == user.AdminGeneral || adminType == user.AdminPayment) {
			return "", errors.Errorf("unknown admin type %q", adminType)
		}
		return user.AdminRole(adminType), nil
	}
	return "", errUnknownRole
}

// addUser updates or creates an active user with the given role.
func (cli *commandLine) addUser(name, uname, email, pwd, role, adminType string) error {
	ctx := context.Background()
	name = core.CleanString(name)
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	if err := cli.validate.Var(email, "required,email"); err != nil {
		return errors.Errorf("invalid email %q", email)
	}
	r, err := roleFromFlags(role, adminType)
	if err != nil {
		return err
	}

	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, email)
	switch {
	case errors.Cause(err) == user.ErrNotFound:
		usr, err = cli.usrSvc.Create(ctx, user.NewUser{
			Name:     name,
			Username: uname,
			Email:    email,
			Password: pwd,
			Roles:    []string{r},
		})
		if err != nil {
			return errors.Wrap(err, "creating user")
		}
		fmt.Fprintf(cli.out, "created user %s (%s)\n", usr.ID.Hex(), r)
		return nil
	case err != nil:
		return errors.Wrap(err, "finding user")
	}

	active := true
	usr, err = cli.usrSvc.Update(ctx, usr, user.UpdateUser{
		Name:     name,
		Username: usr.Username,
		Email:    usr.Email,
		IsActive: &active,
		Roles:    []string{r},
		Password: pwd,
	})
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	fmt.Fprintf(cli.out, "updated user %s (%s)\n", usr.ID.Hex(), r)
	return nil
}
