package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/identity"
	"github.com/trezcool/soko/core/user"
)

var userColumns = []string{
	"id", "name", "username", "email", "is_active", "roles", "assigned_courses",
	"password_hash", "created_at", "updated_at", "last_login",
}

type userRow struct {
	ID              string         `db:"id"`
	Name            string         `db:"name"`
	Username        null.String    `db:"username"`
	Email           null.String    `db:"email"`
	IsActive        bool           `db:"is_active"`
	Roles           pq.StringArray `db:"roles"`
	AssignedCourses pq.StringArray `db:"assigned_courses"`
	PasswordHash    null.Bytes     `db:"password_hash"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
	LastLogin       null.Time      `db:"last_login"`
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) toRow(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:              usr.ID.Hex(),
		Name:            usr.Name,
		Username:        null.NewString(usr.Username, usr.Username != ""),
		Email:           null.NewString(usr.Email, usr.Email != ""),
		IsActive:        usr.IsActive,
		Roles:           roles,
		AssignedCourses: refStrings(usr.AssignedCourses),
		PasswordHash:    null.BytesFrom(usr.PasswordHash),
		CreatedAt:       usr.CreatedAt.UTC(),
		UpdatedAt:       usr.UpdatedAt.UTC(),
		LastLogin:       null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) fromRow(row userRow) user.User {
	return user.User{
		ID:              parseID(row.ID),
		Name:            row.Name,
		Username:        row.Username.String,
		Email:           row.Email.String,
		IsActive:        row.IsActive,
		Roles:           row.Roles,
		AssignedCourses: refsFromStrings(row.AssignedCourses),
		PasswordHash:    row.PasswordHash.Bytes,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
		LastLogin:       row.LastLogin.Time.UTC(),
	}
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) selectMany(ctx context.Context, query sq.SelectBuilder) ([]user.User, error) {
	q, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []userRow
	if err = repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.fromRow(row))
	}
	return users, nil
}

func (repo userRepository) selectOne(ctx context.Context, query sq.SelectBuilder) (user.User, error) {
	q, args, err := query.Limit(1).ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building query")
	}
	var row userRow
	if err = repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	or := sq.Or{}
	if username != "" {
		or = append(or, sq.Eq{"username": username})
	}
	if email != "" {
		or = append(or, sq.Eq{"email": email})
	}
	if len(or) == 0 {
		return nil
	}
	query := psql.Select(userColumns...).From(userTable).Where(or)
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID.Hex())
		}
		query = query.Where(sq.NotEq{"id": ids})
	}

	usr, err := repo.selectOne(ctx, query)
	if err != nil {
		if err == user.ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "checking user uniqueness")
	}
	if username != "" && usr.Username == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo userRepository) uniquenessErr(err error, msg string) error {
	switch {
	case isConstraint(err, "user_email_key"):
		return user.ErrEmailExists
	case isUniqueViolation(err):
		return user.ErrUsernameExists
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID.IsZero() {
		usr.ID = primitive.NewObjectID()
	}
	row := repo.toRow(usr)
	q, args, err := psql.Insert(userTable).Columns(userColumns...).Values(
		row.ID, row.Name, row.Username, row.Email, row.IsActive, row.Roles, row.AssignedCourses,
		row.PasswordHash, row.CreatedAt, row.UpdatedAt, row.LastLogin,
	).ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, q, args...); err != nil {
		return user.User{}, repo.uniquenessErr(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	query := psql.Select(userColumns...).From(userTable)
	switch {
	case !filter.ID.IsZero():
		query = query.Where(sq.Eq{"id": filter.ID.Hex()})
	case filter.Username != "":
		query = query.Where(sq.Eq{"username": filter.Username})
	case filter.Email != "":
		query = query.Where(sq.Eq{"email": filter.Email})
	case filter.UsernameOrEmail != "":
		query = query.Where(sq.Or{sq.Eq{"username": filter.UsernameOrEmail}, sq.Eq{"email": filter.UsernameOrEmail}})
	default:
		return user.User{}, user.ErrNotFound
	}
	return repo.selectOne(ctx, query)
}

func (repo userRepository) GetUsersByID(ctx context.Context, ids ...primitive.ObjectID) ([]user.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	hexIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		hexIDs = append(hexIDs, id.Hex())
	}
	users, err := repo.selectMany(ctx, psql.Select(userColumns...).From(userTable).Where(sq.Eq{"id": hexIDs}))
	if err != nil {
		return nil, errors.Wrap(err, "getting users by id")
	}
	return users, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	query := psql.Select(userColumns...).From(userTable)

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			query = query.Where(sq.Or{
				sq.ILike{"name": val},
				sq.ILike{"username": val},
				sq.ILike{"email": val},
			})
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			or := make(sq.Or, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				or = append(or, sq.Expr("EXISTS (SELECT 1 FROM UNNEST(roles) user_role WHERE user_role LIKE ?)", role+"%"))
			}
			query = query.Where(or)
		}
		if filter.IsActive != nil {
			query = query.Where(sq.Eq{"is_active": *filter.IsActive})
		}
		if !filter.CreatedFrom.IsZero() {
			query = query.Where(sq.GtOrEq{"created_at": filter.CreatedFrom.UTC()})
		}
		if !filter.CreatedTo.IsZero() {
			query = query.Where(sq.LtOrEq{"created_at": filter.CreatedTo.UTC()})
		}
	}

	if len(ordering) > 0 {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, ord.String())
		}
		query = query.OrderBy(strings.Join(orderList, ", "))
	} else {
		query = query.OrderBy("created_at DESC", "id DESC")
	}

	users, err := repo.selectMany(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := repo.toRow(usr)
	q, args, err := psql.Update(userTable).SetMap(map[string]interface{}{
		"name":             row.Name,
		"username":         row.Username,
		"email":            row.Email,
		"is_active":        row.IsActive,
		"roles":            row.Roles,
		"assigned_courses": row.AssignedCourses,
		"password_hash":    row.PasswordHash,
		"updated_at":       row.UpdatedAt,
		"last_login":       row.LastLogin,
	}).Where(sq.Eq{"id": row.ID}).ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building query")
	}

	res, err := repo.db.ExecContext(ctx, q, args...)
	if err != nil {
		return user.User{}, repo.uniquenessErr(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) FindCourseAssignee(ctx context.Context, ref identity.CourseRef) (user.User, error) {
	if ref.IsZero() {
		return user.User{}, user.ErrNotFound
	}
	return repo.selectOne(ctx, psql.Select(userColumns...).From(userTable).
		Where(sq.Expr("? = ANY(assigned_courses)", ref.String())))
}

func (repo userRepository) FirstTeacher(ctx context.Context) (user.User, error) {
	return repo.selectOne(ctx, psql.Select(userColumns...).From(userTable).
		Where(sq.Eq{"is_active": true}).
		Where(sq.Expr("EXISTS (SELECT 1 FROM UNNEST(roles) user_role WHERE user_role LIKE ?)", user.RoleTeacher+"%")).
		OrderBy("created_at ASC", "id ASC"))
}
