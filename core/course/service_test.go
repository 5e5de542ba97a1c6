package course_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/identity"
	"github.com/trezcool/soko/core/user"
	"github.com/trezcool/soko/tests"
)

func TestService_Lookup(t *testing.T) {
	svcs := testutil.NewServices()
	ctx := context.Background()
	teacher := testutil.CreateUser(t, svcs.Repos.Users, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	seeded := testutil.CreateCourse(t, svcs.Repos.Courses, "Seeded", teacher.ID, "10", 7)
	stored := testutil.CreateCourse(t, svcs.Repos.Courses, "Stored", teacher.ID, "0", 0)

	t.Run("stored catalog course wins over placeholder", func(t *testing.T) {
		c, err := svcs.Courses.Lookup(ctx, identity.Catalog(7))
		require.NoError(t, err)
		assert.Equal(t, seeded.ID, c.ID)
		assert.False(t, c.IsPlaceholder)
	})

	t.Run("placeholder", func(t *testing.T) {
		c, err := svcs.Courses.Lookup(ctx, identity.Catalog(12))
		require.NoError(t, err)
		assert.True(t, c.IsPlaceholder)
		assert.Equal(t, "Course #12", c.Title)
		assert.True(t, c.ID.IsZero())
		assert.False(t, c.IsPaid())
		assert.Equal(t, identity.Catalog(12), c.Ref())
	})

	t.Run("persisted", func(t *testing.T) {
		c, err := svcs.Courses.LookupRaw(ctx, stored.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, "Stored", c.Title)
		assert.Equal(t, identity.Persisted(stored.ID), c.Ref())
	})

	for name, raw := range map[string]interface{}{
		"unknown id":   "507f1f77bcf86cd799439011",
		"out of range": 1001,
		"garbage":      "lol",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svcs.Courses.LookupRaw(ctx, raw)
			assert.Equal(t, course.ErrNotFound, errors.Cause(err))
		})
	}
}

func TestService_Instructor(t *testing.T) {
	svcs := testutil.NewServices()
	ctx := context.Background()
	usrRepo := svcs.Repos.Users
	long := time.Now().Add(-48 * time.Hour)

	_, err := svcs.Courses.Instructor(ctx, course.Course{CatalogNumber: 3})
	assert.Equal(t, course.ErrNoInstructor, err, "no teacher at all")

	first := testutil.CreateUser(t, usrRepo, "First", "first", "first@test.cd", "", []string{user.RoleTeacher}, true, long)
	owner := testutil.CreateUser(t, usrRepo, "Owner", "owner", "owner@test.cd", "", []string{user.RoleTeacher}, true)
	assignee := testutil.CreateUser(t, usrRepo, "Assignee", "assignee", "assignee@test.cd", "", []string{user.RoleTeacher}, true)
	testutil.CreateUser(t, usrRepo, "Older", "older", "older@test.cd", "", []string{user.RoleTeacher}, false, long.Add(-time.Hour))

	owned := testutil.CreateCourse(t, svcs.Repos.Courses, "Owned", owner.ID, "0", 0)
	testutil.CreateCourse(t, svcs.Repos.Courses, "Seeded", primitive.NilObjectID, "0", 5)
	_, err = svcs.Courses.AssignTeacher(ctx, identity.Catalog(5), assignee.ID)
	require.NoError(t, err)

	tests := []struct {
		name string
		c    course.Course
		want string
	}{
		{name: "owner", c: owned, want: "owner"},
		{name: "assignee", c: course.Course{CatalogNumber: 5}, want: "assignee"},
		{name: "first active teacher", c: course.Course{CatalogNumber: 9}, want: "first"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svcs.Courses.Instructor(ctx, tt.c)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Username)
		})
	}

	t.Run("inactive owner falls through", func(t *testing.T) {
		owner.IsActive = false
		_, err := usrRepo.UpdateUser(ctx, owner)
		require.NoError(t, err)

		got, err := svcs.Courses.Instructor(ctx, owned)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
		assert.False(t, svcs.Courses.Teaches(got, owned), "the fallback does not make a teacher")
	})
}

func TestService_AssignTeacher(t *testing.T) {
	svcs := testutil.NewServices()
	ctx := context.Background()
	usrRepo := svcs.Repos.Users
	t1 := testutil.CreateUser(t, usrRepo, "Teacher 1", "teacher_1", "t1@test.cd", "", []string{user.RoleTeacher}, true)
	t2 := testutil.CreateUser(t, usrRepo, "Teacher 2", "teacher_2", "t2@test.cd", "", []string{user.RoleTeacher}, true)
	student := testutil.CreateUser(t, usrRepo, "Student", "student", "student@test.cd", "", []string{user.RoleStudent}, true)
	owned := testutil.CreateCourse(t, svcs.Repos.Courses, "Owned", t1.ID, "0", 0)

	got, err := svcs.Courses.AssignTeacher(ctx, identity.Catalog(12), t1.ID)
	require.NoError(t, err)
	assert.Equal(t, []identity.CourseRef{identity.Catalog(12)}, got.AssignedCourses)
	assert.True(t, svcs.Courses.Teaches(got, course.Course{CatalogNumber: 12}))

	got, err = svcs.Courses.AssignTeacher(ctx, identity.Catalog(12), t1.ID)
	require.NoError(t, err)
	assert.Len(t, got.AssignedCourses, 1, "assigning twice is a no-op")

	tests := []struct {
		name    string
		ref     identity.CourseRef
		teacher user.User
		wantErr error
	}{
		{name: "taken by an assignee", ref: identity.Catalog(12), teacher: t2, wantErr: course.ErrAlreadyTaught},
		{name: "taken by the owner", ref: owned.Ref(), teacher: t2, wantErr: course.ErrAlreadyTaught},
		{name: "not a teacher", ref: identity.Catalog(13), teacher: student, wantErr: course.ErrNotATeacher},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svcs.Courses.AssignTeacher(ctx, tt.ref, tt.teacher.ID)
			require.Error(t, err)
			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.wantErr, vErr.Err)
		})
	}

	t.Run("unassign", func(t *testing.T) {
		got, err := svcs.Courses.UnassignTeacher(ctx, identity.Catalog(12), t1.ID)
		require.NoError(t, err)
		assert.Empty(t, got.AssignedCourses)

		_, err = svcs.Courses.AssignTeacher(ctx, identity.Catalog(12), t2.ID)
		assert.NoError(t, err)
	})
}
