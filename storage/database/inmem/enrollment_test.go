package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core/enrollment"
	"github.com/trezcool/soko/core/identity"
)

func TestEnrollmentRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewEnrollmentRepository(Open())
	student := primitive.NewObjectID()
	now := time.Now().UTC()

	first, err := repo.CreateEnrollment(ctx, enrollment.Enrollment{
		StudentID: student, CourseRef: identity.Catalog(3), Status: enrollment.StatusPending, CreatedAt: now,
	})
	require.NoError(t, err)
	assert.False(t, first.ID.IsZero())

	_, err = repo.CreateEnrollment(ctx, enrollment.Enrollment{StudentID: student, CourseRef: identity.Catalog(3), Status: enrollment.StatusActive})
	assert.Equal(t, enrollment.ErrAlreadyEnrolled, err)

	t.Run("conditional update", func(t *testing.T) {
		progressed := first
		progressed.Progress = 40
		updated, err := repo.UpdateEnrollment(ctx, progressed)
		require.NoError(t, err)
		assert.Equal(t, first.Version+1, updated.Version)

		// written from the version read before the progress update
		first.Status = enrollment.StatusCancelled
		_, err = repo.UpdateEnrollment(ctx, first)
		assert.Equal(t, enrollment.ErrStale, err)

		stored, err := repo.GetEnrollment(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, 40, stored.Progress)
		assert.Equal(t, enrollment.StatusPending, stored.Status)

		stored.Status = enrollment.StatusCancelled
		_, err = repo.UpdateEnrollment(ctx, stored)
		require.NoError(t, err)

		_, err = repo.UpdateEnrollment(ctx, enrollment.Enrollment{ID: primitive.NewObjectID()})
		assert.Equal(t, enrollment.ErrNotFound, err)
	})

	t.Run("cancelled enrollments do not block", func(t *testing.T) {
		second, err := repo.CreateEnrollment(ctx, enrollment.Enrollment{
			StudentID: student, CourseRef: identity.Catalog(3), Status: enrollment.StatusActive, CreatedAt: now,
		})
		require.NoError(t, err)

		all, err := repo.QueryEnrollments(ctx, enrollment.QueryFilter{StudentID: student})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, second.ID, all[0].ID, "ties break on the newest id")

		active, err := repo.QueryEnrollments(ctx, enrollment.QueryFilter{
			CourseRef: identity.Catalog(3),
			Statuses:  []enrollment.Status{enrollment.StatusActive},
		})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, second.ID, active[0].ID)

		none, err := repo.QueryEnrollments(ctx, enrollment.QueryFilter{CourseRef: identity.Catalog(4)})
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
