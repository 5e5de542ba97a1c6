package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/enrollment"
	"github.com/trezcool/soko/core/message"
	"github.com/trezcool/soko/core/notification"
	"github.com/trezcool/soko/core/review"
	"github.com/trezcool/soko/core/user"
	appfs "github.com/trezcool/soko/fs"
	inmemdb "github.com/trezcool/soko/storage/database/inmem"
	mongorepos "github.com/trezcool/soko/storage/database/mongodb"
	sqlxrepos "github.com/trezcool/soko/storage/database/sqlx"
)

// Repositories bundles one storage engine's repositories.
type Repositories struct {
	Users         user.Repository
	Courses       course.Repository
	Enrollments   enrollment.Repository
	Notifications notification.Repository
	Reviews       review.Repository
	Messages      message.Repository
}

// Open connects to the configured engine and returns its repositories along with a close func.
// The postgres engine is migrated up; the mongodb engine gets its indexes.
func Open(ctx context.Context, conf *core.Config) (Repositories, func() error, error) {
	switch conf.Database.Engine {
	case core.EngineMongo:
		client, db, err := OpenMongo(ctx, conf)
		if err != nil {
			return Repositories{}, nil, err
		}
		closeFn := func() error { return client.Disconnect(context.Background()) }
		if err = mongorepos.EnsureIndexes(ctx, db); err != nil {
			_ = closeFn()
			return Repositories{}, nil, errors.Wrap(err, "ensuring indexes")
		}
		return Repositories{
			Users:         mongorepos.NewUserRepository(db),
			Courses:       mongorepos.NewCourseRepository(db),
			Enrollments:   mongorepos.NewEnrollmentRepository(db),
			Notifications: mongorepos.NewNotificationRepository(db),
			Reviews:       mongorepos.NewReviewRepository(db),
			Messages:      mongorepos.NewMessageRepository(db),
		}, closeFn, nil

	case core.EnginePostgres:
		if err := CreateIfNotExist(conf); err != nil {
			return Repositories{}, nil, errors.Wrap(err, "creating database")
		}
		db, err := OpenPostgres(conf)
		if err != nil {
			return Repositories{}, nil, err
		}
		if err = Migrate(db.DB); err != nil {
			_ = db.Close()
			return Repositories{}, nil, err
		}
		return Repositories{
			Users:         sqlxrepos.NewUserRepository(db),
			Courses:       sqlxrepos.NewCourseRepository(db),
			Enrollments:   sqlxrepos.NewEnrollmentRepository(db),
			Notifications: sqlxrepos.NewNotificationRepository(db),
			Reviews:       sqlxrepos.NewReviewRepository(db),
			Messages:      sqlxrepos.NewMessageRepository(db),
		}, db.Close, nil

	case core.EngineMemory:
		return OpenMemory(), func() error { return nil }, nil
	}
	return Repositories{}, nil, fmt.Errorf("unknown database engine %q", conf.Database.Engine)
}

// OpenMemory returns repositories over a fresh in-memory database.
func OpenMemory() Repositories {
	db := inmemdb.Open()
	return Repositories{
		Users:         inmemdb.NewUserRepository(db),
		Courses:       inmemdb.NewCourseRepository(db),
		Enrollments:   inmemdb.NewEnrollmentRepository(db),
		Notifications: inmemdb.NewNotificationRepository(db),
		Reviews:       inmemdb.NewReviewRepository(db),
		Messages:      inmemdb.NewMessageRepository(db),
	}
}

// OpenMongo connects to the configured MongoDB deployment and waits until it answers.
func OpenMongo(ctx context.Context, conf *core.Config) (*mongo.Client, *mongo.Database, error) {
	opts := options.Client().
		ApplyURI(conf.Database.URI).
		SetConnectTimeout(conf.Database.Timeout).
		SetServerSelectionTimeout(conf.Database.Timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connecting to mongodb")
	}

	pingCtx, cancel := context.WithTimeout(ctx, conf.Database.Timeout)
	defer cancel()
	if err = client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, errors.Wrap(err, "pinging mongodb")
	}
	return client, client.Database(conf.Database.Name), nil
}

func open(dbName string, admin bool, conf *core.Config) (*sql.DB, error) {
	userInfo := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		userInfo = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   "postgres",
		User:     userInfo,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return sql.Open("postgres", u.String())
}

// OpenPostgres opens the application database.
func OpenPostgres(conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sqlx.NewDb(db, "postgres"), nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

// exists runs a `SELECT true ... WHERE x = $1` style query.
func exists(db *sql.DB, query string, arg string) (bool, error) {
	var found bool
	err := db.QueryRow(query, arg).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return found, err
}

func createAppUser(db *sql.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	found, err := exists(db, "SELECT true FROM pg_roles WHERE rolname = $1", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !found {
		// identifiers and passwords cannot be bound as parameters here
		q := fmt.Sprintf("CREATE USER %q CREATEDB ENCRYPTED PASSWORD '%s'", conf.Database.User, conf.Database.Password)
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sql.DB, conf *core.Config) error {
	found, err := exists(db, "SELECT true FROM pg_database WHERE datname = $1", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !found {
		if _, err = db.Exec(fmt.Sprintf("CREATE DATABASE %q", conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the app user (as admin) then the app database (as the app user).
func CreateIfNotExist(conf *core.Config) error {
	// connect as admin
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return errors.Wrap(err, "creating app user")
	}

	// create DB as app user
	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()

	if err = createDB(appDB, conf); err != nil {
		return errors.Wrap(err, "creating database")
	}
	return nil
}

func init() {
	goose.SetBaseFS(appfs.FS)
}

// Migrate applies every pending migration.
func Migrate(db *sql.DB) error {
	return RunMigrations(db, "up")
}

// RunMigrations runs a goose command (up, down, status, redo, version...) against the embedded migrations.
func RunMigrations(db *sql.DB, command string, args ...string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "setting dialect")
	}
	if err := goose.Run(command, db, appfs.MigrationsDir, args...); err != nil {
		return errors.Wrapf(err, "running migrations (%s)", command)
	}
	return nil
}
