package message

import (
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core"
)

type Message struct {
	ID         primitive.ObjectID `json:"id"`
	SenderID   primitive.ObjectID `json:"sender_id"`
	ReceiverID primitive.ObjectID `json:"receiver_id"`
	Body       string             `json:"body"`
	IsRead     bool               `json:"is_read"`
	CreatedAt  time.Time          `json:"created_at"` // UTC
}

type NewMessage struct {
	ReceiverID primitive.ObjectID `json:"receiver_id"`
	Body       string             `json:"body" validate:"required,max=5000"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.Body = core.CleanString(nm.Body)
	if nm.ReceiverID.IsZero() {
		return core.NewValidationError(errInvalidReceiver, core.FieldError{Field: "receiver_id", Error: errInvalidReceiver.Error()})
	}
	return validate.Struct(nm)
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

func cleanLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
