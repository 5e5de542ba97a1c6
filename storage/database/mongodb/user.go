package mongorepos

import (
	"context"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/identity"
	"github.com/trezcool/soko/core/user"
)

type userDoc struct {
	ID              primitive.ObjectID `bson:"_id"`
	Name            string             `bson:"name"`
	Username        string             `bson:"username,omitempty"`
	Email           string             `bson:"email,omitempty"`
	IsActive        bool               `bson:"is_active"`
	Roles           []string           `bson:"roles"`
	AssignedCourses []interface{}      `bson:"assigned_courses"`
	PasswordHash    []byte             `bson:"password_hash"`
	CreatedAt       time.Time          `bson:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at"`
	LastLogin       time.Time          `bson:"last_login"`
}

type userRepository struct {
	coll *mongo.Collection
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *mongo.Database) *userRepository {
	return &userRepository{coll: db.Collection(usersCollection)}
}

func (repo userRepository) toDoc(usr user.User) userDoc {
	return userDoc{
		ID:              usr.ID,
		Name:            usr.Name,
		Username:        usr.Username,
		Email:           usr.Email,
		IsActive:        usr.IsActive,
		Roles:           usr.Roles,
		AssignedCourses: refsToNative(usr.AssignedCourses),
		PasswordHash:    usr.PasswordHash,
		CreatedAt:       usr.CreatedAt.UTC(),
		UpdatedAt:       usr.UpdatedAt.UTC(),
		LastLogin:       usr.LastLogin.UTC(),
	}
}

func (repo userRepository) fromDoc(doc userDoc) user.User {
	return user.User{
		ID:              doc.ID,
		Name:            doc.Name,
		Username:        doc.Username,
		Email:           doc.Email,
		IsActive:        doc.IsActive,
		Roles:           doc.Roles,
		AssignedCourses: refsFromStored(doc.AssignedCourses),
		PasswordHash:    doc.PasswordHash,
		CreatedAt:       doc.CreatedAt.UTC(),
		UpdatedAt:       doc.UpdatedAt.UTC(),
		LastLogin:       doc.LastLogin.UTC(),
	}
}

func (repo userRepository) find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]user.User, error) {
	cursor, err := repo.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	users := make([]user.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, repo.fromDoc(doc))
	}
	return users, nil
}

func (repo userRepository) findOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (user.User, error) {
	var doc userDoc
	if err := repo.coll.FindOne(ctx, filter, opts...).Decode(&doc); err != nil {
		return user.User{}, trapNoDocumentsErr(err, user.ErrNotFound, "finding user")
	}
	return repo.fromDoc(doc), nil
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	or := bson.A{}
	if username != "" {
		or = append(or, bson.M{"username": username})
	}
	if email != "" {
		or = append(or, bson.M{"email": email})
	}
	if len(or) == 0 {
		return nil
	}
	filter := bson.M{"$or": or}
	if len(excludedUsers) > 0 {
		ids := make([]primitive.ObjectID, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		filter["_id"] = bson.M{"$nin": ids}
	}

	usr, err := repo.findOne(ctx, filter)
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

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID.IsZero() {
		usr.ID = primitive.NewObjectID()
	}
	if _, err := repo.coll.InsertOne(ctx, repo.toDoc(usr)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var f bson.M
	switch {
	case !filter.ID.IsZero():
		f = bson.M{"_id": filter.ID}
	case filter.Username != "":
		f = bson.M{"username": filter.Username}
	case filter.Email != "":
		f = bson.M{"email": filter.Email}
	case filter.UsernameOrEmail != "":
		f = bson.M{"$or": bson.A{
			bson.M{"username": filter.UsernameOrEmail},
			bson.M{"email": filter.UsernameOrEmail},
		}}
	default:
		return user.User{}, user.ErrNotFound
	}
	return repo.findOne(ctx, f)
}

func (repo userRepository) GetUsersByID(ctx context.Context, ids ...primitive.ObjectID) ([]user.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	users, err := repo.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, errors.Wrap(err, "getting users by id")
	}
	return users, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	f := bson.M{}
	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			pattern := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
			f["$or"] = bson.A{
				bson.M{"name": pattern},
				bson.M{"username": pattern},
				bson.M{"email": pattern},
			}
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			patterns := make(bson.A, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				patterns = append(patterns, primitive.Regex{Pattern: "^" + regexp.QuoteMeta(role)})
			}
			f["roles"] = bson.M{"$in": patterns}
		}
		if filter.IsActive != nil {
			f["is_active"] = *filter.IsActive
		}
		created := bson.M{}
		if !filter.CreatedFrom.IsZero() {
			created["$gte"] = filter.CreatedFrom.UTC()
		}
		if !filter.CreatedTo.IsZero() {
			created["$lte"] = filter.CreatedTo.UTC()
		}
		if len(created) > 0 {
			f["created_at"] = created
		}
	}

	users, err := repo.find(ctx, f, options.Find().SetSort(sortFrom(ordering)))
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users, nil
}

// sortFrom turns orderings into a sort document, newest first by default.
func sortFrom(ordering []core.DBOrdering) bson.D {
	if len(ordering) == 0 {
		return bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
	}
	sort := make(bson.D, 0, len(ordering))
	for _, ord := range ordering {
		direction := -1
		if ord.Ascending {
			direction = 1
		}
		sort = append(sort, bson.E{Key: ord.Field, Value: direction})
	}
	return sort
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	res, err := repo.coll.ReplaceOne(ctx, bson.M{"_id": usr.ID}, repo.toDoc(usr))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if res.MatchedCount == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) FindCourseAssignee(ctx context.Context, ref identity.CourseRef) (user.User, error) {
	if ref.IsZero() {
		return user.User{}, user.ErrNotFound
	}
	return repo.findOne(ctx, bson.M{"assigned_courses": courseFilter(ref)})
}

func (repo userRepository) FirstTeacher(ctx context.Context) (user.User, error) {
	return repo.findOne(
		ctx,
		bson.M{"is_active": true, "roles": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(user.RoleTeacher)}},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}),
	)
}
