package inmemdb

import (
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core/course"
	"github.com/trezcool/soko/core/enrollment"
	"github.com/trezcool/soko/core/message"
	"github.com/trezcool/soko/core/notification"
	"github.com/trezcool/soko/core/review"
	"github.com/trezcool/soko/core/user"
)

type (
	// DB keeps every record in process memory. Used by tests and the `memory` engine.
	DB struct {
		user         *userTable
		course       *courseTable
		enrollment   *enrollmentTable
		notification *notificationTable
		review       *reviewTable
		message      *messageTable
	}

	userTable struct {
		sync.RWMutex
		table map[primitive.ObjectID]*user.User
	}

	courseTable struct {
		sync.RWMutex
		table map[primitive.ObjectID]*course.Course
	}

	enrollmentTable struct {
		sync.RWMutex
		table map[primitive.ObjectID]*enrollment.Enrollment
	}

	notificationTable struct {
		sync.RWMutex
		table map[primitive.ObjectID]*notification.Notification
	}

	reviewTable struct {
		sync.RWMutex
		table map[primitive.ObjectID]*review.Review
	}

	messageTable struct {
		sync.RWMutex
		table map[primitive.ObjectID]*message.Message
	}
)

func Open() *DB {
	return &DB{
		user:         &userTable{table: make(map[primitive.ObjectID]*user.User)},
		course:       &courseTable{table: make(map[primitive.ObjectID]*course.Course)},
		enrollment:   &enrollmentTable{table: make(map[primitive.ObjectID]*enrollment.Enrollment)},
		notification: &notificationTable{table: make(map[primitive.ObjectID]*notification.Notification)},
		review:       &reviewTable{table: make(map[primitive.ObjectID]*review.Review)},
		message:      &messageTable{table: make(map[primitive.ObjectID]*message.Message)},
	}
}

// newID returns id, or a fresh one when id is zero.
func newID(id primitive.ObjectID) primitive.ObjectID {
	if id.IsZero() {
		return primitive.NewObjectID()
	}
	return id
}
