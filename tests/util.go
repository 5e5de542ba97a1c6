package testutil

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/enrollment"
	"github.com/trezcool/soko/core/identity"
	"github.com/trezcool/soko/core/message"
	"github.com/trezcool/soko/core/notification"
	"github.com/trezcool/soko/core/review"
	"github.com/trezcool/soko/core/user"
	appfs "github.com/trezcool/soko/fs"
	emailsvc "github.com/trezcool/soko/services/email"
	logsvc "github.com/trezcool/soko/services/logger"
	"github.com/trezcool/soko/storage/database"
)

// Services wires every service over a fresh in-memory database.
type Services struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Repos      database.Repositories
	Mail       *emailsvc.ConsoleServiceMock

	Users         *user.Service
	Courses       *course.Service
	Notifications *notification.Service
	Enrollments   *enrollment.Service
	Reviews       *review.Service
	Messages      *message.Service
}

func NewLogger(conf *core.Config) *logsvc.RollbarLogger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
}

func NewValidator() (*validator.Validate, ut.Translator) {
	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func NewServices(conf ...*core.Config) *Services {
	cfg := core.NewTestConfig()
	if len(conf) > 0 {
		cfg = conf[0]
	}
	logger := NewLogger(cfg)
	validate, translator := NewValidator()
	repos := database.OpenMemory()
	mailSvc := emailsvc.NewConsoleServiceMock(cfg, logger)
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, cfg, logger)

	resolver := identity.NewResolver(cfg.Catalog.MinNumber, cfg.Catalog.MaxNumber)
	usrSvc := user.NewService(repos.Users)
	courseSvc := course.NewService(repos.Courses, repos.Users, resolver, logger)
	notifSvc := notification.NewService(repos.Notifications, repos.Users, courseSvc, mailSvc, cfg, logger)

	return &Services{
		Conf:          cfg,
		Logger:        logger,
		Validate:      validate,
		Translator:    translator,
		Repos:         repos,
		Mail:          mailSvc,
		Users:         usrSvc,
		Courses:       courseSvc,
		Notifications: notifSvc,
		Enrollments:   enrollment.NewService(repos.Enrollments, courseSvc, notifSvc, logger),
		Reviews:       review.NewService(repos.Reviews, repos.Users, courseSvc, repos.Enrollments, notifSvc),
		Messages:      message.NewService(repos.Messages, repos.Users, courseSvc, repos.Enrollments, notifSvc),
	}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := core.Now()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC().Truncate(time.Millisecond)
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateCourse stores a course. A positive catalog number seeds a catalog course.
func CreateCourse(
	t *testing.T,
	repo course.Repository,
	title string,
	teacherID primitive.ObjectID,
	price string,
	catalogNumber int,
) course.Course {
	now := core.Now()
	c := course.Course{
		Title:         title,
		TeacherID:     teacherID,
		Price:         decimal.RequireFromString(price),
		CatalogNumber: catalogNumber,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	c, err := repo.CreateCourse(context.Background(), c)
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

// CreateEnrollment stores an enrollment as is, bypassing the lifecycle rules.
func CreateEnrollment(
	t *testing.T,
	repo enrollment.Repository,
	student user.User,
	c course.Course,
	status enrollment.Status,
	progress int,
) enrollment.Enrollment {
	now := core.Now()
	e := enrollment.Enrollment{
		StudentID:            student.ID,
		CourseRef:            c.Ref(),
		CourseTitle:          c.Title,
		Status:               status,
		Progress:             progress,
		IsCompleted:          status == enrollment.StatusCompleted,
		VerificationRequired: c.IsPaid(),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if status == enrollment.StatusCompleted {
		e.CompletedAt = &now
	}
	e, err := repo.CreateEnrollment(context.Background(), e)
	if err != nil {
		t.Fatalf("CreateEnrollment() failed: %v", err)
	}
	return e
}

// Notifications lists every notification of the receiver, newest first.
func Notifications(t *testing.T, repo notification.Repository, receiverID primitive.ObjectID) []notification.Notification {
	notes, err := repo.QueryNotifications(context.Background(), receiverID, notification.QueryFilter{Limit: 1000})
	if err != nil {
		t.Fatalf("Notifications() failed: %v", err)
	}
	return notes
}

// NotificationTypes lists the types of the receiver's notifications, newest first.
func NotificationTypes(t *testing.T, repo notification.Repository, receiverID primitive.ObjectID) []notification.Type {
	notes := Notifications(t, repo, receiverID)
	types := make([]notification.Type, 0, len(notes))
	for _, n := range notes {
		types = append(types, n.Type)
	}
	return types
}
