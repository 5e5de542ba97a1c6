package main

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/user"
)

func (cli *commandLine) assign(rawRef, rawTeacherID string) error {
	ref, ok := cli.courseSvc.Resolver().Parse(rawRef)
	if !ok {
		return course.ErrNotFound
	}
	teacherID, err := primitive.ObjectIDFromHex(rawTeacherID)
	if err != nil {
		return user.ErrNotFound
	}

	teacher, err := cli.courseSvc.AssignTeacher(context.Background(), ref, teacherID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "course %s assigned to %s\n", ref, teacher.Name)
	return nil
}
