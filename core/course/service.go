package course

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/identity"
	"github.com/trezcool/soko/core/user"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("course not found")
	ErrNoInstructor       = core.NewNotFoundError("no instructor found for this course")
	ErrNotOwner           = core.NewPermissionError("only the course owner or an admin can do this")
	ErrCatalogNumberTaken = errors.New("a course with this catalog number already exists")
	ErrAlreadyTaught      = errors.New("another teacher already holds this course")
	ErrNotATeacher        = errors.New("user is not an active teacher")
	errInvalidPrice       = errors.New("price cannot be negative")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course) (Course, error)
		// GetCourse finds a course by stored id (persisted refs) or by catalog number (catalog refs).
		GetCourse(ctx context.Context, ref identity.CourseRef) (Course, error)
		QueryCourses(ctx context.Context, filter *QueryFilter) ([]Course, error)
		UpdateCourse(ctx context.Context, c Course) (Course, error)
	}

	Service struct {
		repo     Repository
		users    user.Repository
		resolver identity.Resolver
		logger   core.Logger
	}
)

func NewService(repo Repository, users user.Repository, resolver identity.Resolver, logger core.Logger) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		resolver: resolver,
		logger:   logger,
	}
}

func (svc *Service) Resolver() identity.Resolver {
	return svc.resolver
}

// Lookup finds the course a reference points to.
// A stored record always wins; a catalog number with nothing stored under it
// resolves to a placeholder course.
func (svc *Service) Lookup(ctx context.Context, ref identity.CourseRef) (Course, error) {
	ref, ok := svc.resolver.Normalize(ref)
	if !ok {
		return Course{}, ErrNotFound
	}
	c, err := svc.repo.GetCourse(ctx, ref)
	if err == nil {
		return c, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return Course{}, errors.Wrap(err, "getting course")
	}
	if n, isCatalog := ref.Number(); isCatalog {
		return placeholder(n), nil
	}
	return Course{}, ErrNotFound
}

// LookupRaw classifies a raw reference (path param, query value) before looking it up.
func (svc *Service) LookupRaw(ctx context.Context, raw interface{}) (Course, error) {
	ref, ok := svc.resolver.Parse(raw)
	if !ok {
		return Course{}, ErrNotFound
	}
	return svc.Lookup(ctx, ref)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, filter)
}

// Create stores a course owned by teacher. Only admins may seed catalog numbers; admin-seeded courses have no owner.
func (svc *Service) Create(ctx context.Context, actor user.User, nc NewCourse) (Course, error) {
	if !(actor.IsTeacher() || actor.IsAdmin()) {
		return Course{}, core.NewPermissionError("only teachers and admins can create courses")
	}

	now := core.Now()
	c := Course{
		Title:       nc.Title,
		Description: nc.Description,
		Price:       nc.Price,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if nc.CatalogNumber > 0 {
		if !actor.IsAdmin() {
			return Course{}, core.NewPermissionError("only admins can seed catalog courses")
		}
		ref, ok := svc.resolver.Normalize(identity.Catalog(nc.CatalogNumber))
		if !ok {
			msg := fmt.Sprintf("catalog number must be between %d and %d", svc.resolver.Min, svc.resolver.Max)
			return Course{}, core.NewValidationError(errors.New(msg), core.FieldError{Field: "catalog_number", Error: msg})
		}
		if _, err := svc.repo.GetCourse(ctx, ref); err == nil {
			return Course{}, core.NewValidationError(
				ErrCatalogNumberTaken,
				core.FieldError{Field: "catalog_number", Error: ErrCatalogNumberTaken.Error()},
			)
		} else if errors.Cause(err) != ErrNotFound {
			return Course{}, errors.Wrap(err, "checking catalog number")
		}
		c.CatalogNumber = nc.CatalogNumber
	} else if actor.IsTeacher() {
		c.TeacherID = actor.ID
	}

	c, err := svc.repo.CreateCourse(ctx, c)
	if err != nil {
		if errors.Cause(err) == ErrCatalogNumberTaken {
			return Course{}, core.NewValidationError(
				ErrCatalogNumberTaken,
				core.FieldError{Field: "catalog_number", Error: ErrCatalogNumberTaken.Error()},
			)
		}
		return Course{}, errors.Wrap(err, "creating course")
	}
	return c, nil
}

func (svc *Service) checkOwnership(actor user.User, c Course) error {
	if actor.IsAdmin() || (c.HasOwner() && c.TeacherID == actor.ID) {
		return nil
	}
	return ErrNotOwner
}

func (svc *Service) getStored(ctx context.Context, ref identity.CourseRef) (Course, error) {
	ref, ok := svc.resolver.Normalize(ref)
	if !ok {
		return Course{}, ErrNotFound
	}
	return svc.repo.GetCourse(ctx, ref)
}

func (svc *Service) Update(ctx context.Context, actor user.User, ref identity.CourseRef, uc UpdateCourse) (Course, error) {
	c, err := svc.getStored(ctx, ref)
	if err != nil {
		return Course{}, err
	}
	if err = svc.checkOwnership(actor, c); err != nil {
		return Course{}, err
	}

	if uc.Title != "" {
		c.Title = uc.Title
	}
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	if uc.Price != nil {
		c.Price = *uc.Price
	}
	c.UpdatedAt = core.Now()
	return svc.repo.UpdateCourse(ctx, c)
}

// Archive hides a course from the catalog and closes it to new enrollments. Enrollment history is kept.
func (svc *Service) Archive(ctx context.Context, actor user.User, ref identity.CourseRef) (Course, error) {
	c, err := svc.getStored(ctx, ref)
	if err != nil {
		return Course{}, err
	}
	if err = svc.checkOwnership(actor, c); err != nil {
		return Course{}, err
	}
	if c.IsArchived {
		return c, nil
	}
	c.IsArchived = true
	c.UpdatedAt = core.Now()
	return svc.repo.UpdateCourse(ctx, c)
}

func (svc *Service) getTeacher(ctx context.Context, teacherID primitive.ObjectID) (user.User, error) {
	teacher, err := svc.users.GetUser(ctx, user.GetFilter{ID: teacherID})
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting teacher")
	}
	if !teacher.IsTeacher() || !teacher.IsActive {
		return user.User{}, core.NewValidationError(ErrNotATeacher)
	}
	return teacher, nil
}

// AssignTeacher grants a teacher instructor status on a course without ownership.
// It is rejected when another teacher owns the course or is already assigned to it.
func (svc *Service) AssignTeacher(ctx context.Context, ref identity.CourseRef, teacherID primitive.ObjectID) (user.User, error) {
	c, err := svc.Lookup(ctx, ref)
	if err != nil {
		return user.User{}, err
	}
	teacher, err := svc.getTeacher(ctx, teacherID)
	if err != nil {
		return user.User{}, err
	}

	if c.HasOwner() && c.TeacherID != teacher.ID {
		return user.User{}, core.NewValidationError(ErrAlreadyTaught)
	}
	assignee, err := svc.users.FindCourseAssignee(ctx, c.Ref())
	switch {
	case err == nil:
		if assignee.ID != teacher.ID {
			return user.User{}, core.NewValidationError(ErrAlreadyTaught)
		}
		return teacher, nil // already assigned
	case errors.Cause(err) != user.ErrNotFound:
		return user.User{}, errors.Wrap(err, "finding course assignee")
	}

	if c.HasOwner() {
		return teacher, nil // the owner already teaches it
	}
	teacher.AssignedCourses = append(teacher.AssignedCourses, c.Ref())
	teacher.UpdatedAt = core.Now()
	return svc.users.UpdateUser(ctx, teacher)
}

func (svc *Service) UnassignTeacher(ctx context.Context, ref identity.CourseRef, teacherID primitive.ObjectID) (user.User, error) {
	ref, ok := svc.resolver.Normalize(ref)
	if !ok {
		return user.User{}, ErrNotFound
	}
	teacher, err := svc.users.GetUser(ctx, user.GetFilter{ID: teacherID})
	if err != nil {
		return user.User{}, err
	}
	if !teacher.IsAssigned(ref) {
		return teacher, nil
	}

	kept := make([]identity.CourseRef, 0, len(teacher.AssignedCourses))
	for _, r := range teacher.AssignedCourses {
		if !r.Equal(ref) {
			kept = append(kept, r)
		}
	}
	teacher.AssignedCourses = kept
	teacher.UpdatedAt = core.Now()
	return svc.users.UpdateUser(ctx, teacher)
}

// Instructor resolves who teaches a course: its owner, then its assignee,
// then the first teacher in the system. Every strategy is tried before giving up.
func (svc *Service) Instructor(ctx context.Context, c Course) (user.User, error) {
	if c.HasOwner() {
		owner, err := svc.users.GetUser(ctx, user.GetFilter{ID: c.TeacherID})
		if err == nil && owner.IsTeacher() && owner.IsActive {
			return owner, nil
		}
		if err != nil && errors.Cause(err) != user.ErrNotFound {
			svc.logger.Warn(fmt.Sprintf("course %s: resolving owner: %v", c.Ref(), err), err)
		}
	}

	assignee, err := svc.users.FindCourseAssignee(ctx, c.Ref())
	if err == nil && assignee.IsActive {
		return assignee, nil
	}
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		svc.logger.Warn(fmt.Sprintf("course %s: resolving assignee: %v", c.Ref(), err), err)
	}

	first, err := svc.users.FirstTeacher(ctx)
	if err == nil {
		svc.logger.Info(fmt.Sprintf("course %s: no owner or assignee, falling back to first teacher %s", c.Ref(), first.ID.Hex()))
		return first, nil
	}
	if errors.Cause(err) != user.ErrNotFound {
		return user.User{}, errors.Wrap(err, "finding first teacher")
	}
	return user.User{}, ErrNoInstructor
}

// Teaches reports whether usr owns or is assigned the course. The first-teacher fallback does not count.
func (svc *Service) Teaches(usr user.User, c Course) bool {
	if !usr.IsTeacher() {
		return false
	}
	return (c.HasOwner() && c.TeacherID == usr.ID) || usr.IsAssigned(c.Ref())
}
