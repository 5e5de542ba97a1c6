package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/user"
)

// cliAdmin is the actor of CLI operations that need one.
var cliAdmin = user.User{Name: "admin cli", Roles: []string{user.RoleAdminGeneral}, IsActive: true}

func (cli *commandLine) seedCourse(number int, title, rawPrice string) error {
	price, err := decimal.NewFromString(rawPrice)
	if err != nil {
		return errors.Errorf("invalid price %q", rawPrice)
	}

	nc := course.NewCourse{
		Title:         title,
		Price:         price,
		CatalogNumber: number,
	}
	if err = nc.Validate(cli.validate); err != nil {
		return err
	}
	c, err := cli.courseSvc.Create(context.Background(), cliAdmin, nc)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "catalog course %d stored as %s\n", c.CatalogNumber, c.ID.Hex())
	return nil
}
