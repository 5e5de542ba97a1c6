package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/identity"
)

var courseColumns = []string{
	"id", "catalog_number", "title", "description", "teacher_id", "price", "is_archived", "created_at", "updated_at",
}

type courseRow struct {
	ID            string          `db:"id"`
	CatalogNumber null.Int        `db:"catalog_number"`
	Title         string          `db:"title"`
	Description   string          `db:"description"`
	TeacherID     null.String     `db:"teacher_id"`
	Price         decimal.Decimal `db:"price"`
	IsArchived    bool            `db:"is_archived"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo courseRepository) toRow(c course.Course) courseRow {
	return courseRow{
		ID:            c.ID.Hex(),
		CatalogNumber: null.NewInt(c.CatalogNumber, c.CatalogNumber > 0),
		Title:         c.Title,
		Description:   c.Description,
		TeacherID:     nullID(c.TeacherID),
		Price:         c.Price,
		IsArchived:    c.IsArchived,
		CreatedAt:     c.CreatedAt.UTC(),
		UpdatedAt:     c.UpdatedAt.UTC(),
	}
}

func (repo courseRepository) fromRow(row courseRow) course.Course {
	return course.Course{
		ID:            parseID(row.ID),
		CatalogNumber: row.CatalogNumber.Int,
		Title:         row.Title,
		Description:   row.Description,
		TeacherID:     parseID(row.TeacherID.String),
		Price:         row.Price,
		IsArchived:    row.IsArchived,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	row := repo.toRow(c)
	q, args, err := psql.Insert(courseTable).Columns(courseColumns...).Values(
		row.ID, row.CatalogNumber, row.Title, row.Description, row.TeacherID, row.Price, row.IsArchived,
		row.CreatedAt, row.UpdatedAt,
	).ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return course.Course{}, course.ErrCatalogNumberTaken
		}
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, ref identity.CourseRef) (course.Course, error) {
	query := psql.Select(courseColumns...).From(courseTable)
	if id, ok := ref.ObjectID(); ok {
		query = query.Where(sq.Eq{"id": id.Hex()})
	} else if n, ok := ref.Number(); ok {
		query = query.Where(sq.Eq{"catalog_number": n})
	} else {
		return course.Course{}, course.ErrNotFound
	}

	q, args, err := query.Limit(1).ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building query")
	}
	var row courseRow
	if err = repo.db.GetContext(ctx, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "finding course")
	}
	return repo.fromRow(row), nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter) ([]course.Course, error) {
	query := psql.Select(courseColumns...).From(courseTable)
	if filter != nil {
		if !filter.IncludeArchived {
			query = query.Where(sq.Eq{"is_archived": false})
		}
		if !filter.TeacherID.IsZero() {
			query = query.Where(sq.Eq{"teacher_id": filter.TeacherID.Hex()})
		}
		if filter.Search != "" {
			query = query.Where(sq.ILike{"title": "%" + filter.Search + "%"})
		}
	}

	q, args, err := query.OrderBy("created_at DESC", "id DESC").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []courseRow
	if err = repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, repo.fromRow(row))
	}
	return courses, nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	row := repo.toRow(c)
	q, args, err := psql.Update(courseTable).SetMap(map[string]interface{}{
		"catalog_number": row.CatalogNumber,
		"title":          row.Title,
		"description":    row.Description,
		"teacher_id":     row.TeacherID,
		"price":          row.Price,
		"is_archived":    row.IsArchived,
		"updated_at":     row.UpdatedAt,
	}).Where(sq.Eq{"id": row.ID}).ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building query")
	}

	res, err := repo.db.ExecContext(ctx, q, args...)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return c, nil
}
