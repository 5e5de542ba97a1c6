package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/identity"
)

type courseRepository struct {
	db *courseTable
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db.course}
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if c.CatalogNumber > 0 {
		for _, stored := range repo.db.table {
			if stored.CatalogNumber == c.CatalogNumber {
				return course.Course{}, course.ErrCatalogNumberTaken
			}
		}
	}
	c.ID = newID(c.ID)
	repo.db.table[c.ID] = &c
	return c, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, ref identity.CourseRef) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if id, ok := ref.ObjectID(); ok {
		if c, found := repo.db.table[id]; found {
			return *c, nil
		}
	}
	if n, ok := ref.Number(); ok {
		for _, c := range repo.db.table {
			if c.CatalogNumber == n {
				return *c, nil
			}
		}
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter *course.QueryFilter) ([]course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	courses := make([]course.Course, 0)
	for _, c := range repo.db.table {
		if filter != nil {
			if !filter.IncludeArchived && c.IsArchived {
				continue
			}
			if !filter.TeacherID.IsZero() && c.TeacherID != filter.TeacherID {
				continue
			}
			if filter.Search != "" && !strings.Contains(strings.ToLower(c.Title), strings.ToLower(filter.Search)) {
				continue
			}
		}
		courses = append(courses, *c)
	}
	sort.SliceStable(courses, func(i, j int) bool {
		return courses[i].CreatedAt.After(courses[j].CreatedAt)
	})
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[c.ID]; !ok {
		return course.Course{}, course.ErrNotFound
	}
	repo.db.table[c.ID] = &c
	return c, nil
}
