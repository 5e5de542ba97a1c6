package course

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/identity"
)

type Course struct {
	ID            primitive.ObjectID `json:"id"`
	CatalogNumber int                `json:"catalog_number,omitempty"`
	Title         string             `json:"title"`
	Description   string             `json:"description"`
	TeacherID     primitive.ObjectID `json:"teacher_id"`
	Price         decimal.Decimal    `json:"price"`
	IsArchived    bool               `json:"is_archived"`
	// IsPlaceholder marks a catalog course synthesized because nothing is stored under its number.
	IsPlaceholder bool      `json:"is_placeholder,omitempty"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

// Ref is the course identity: its catalog number when it has one, else its stored id.
func (c Course) Ref() identity.CourseRef {
	if c.CatalogNumber > 0 {
		return identity.Catalog(c.CatalogNumber)
	}
	return identity.Persisted(c.ID)
}

func (c Course) HasOwner() bool {
	return !c.TeacherID.IsZero()
}

func (c Course) IsPaid() bool {
	return c.Price.IsPositive()
}

func placeholder(n int) Course {
	return Course{
		CatalogNumber: n,
		Title:         fmt.Sprintf("Course #%d", n),
		Price:         decimal.Zero,
		IsPlaceholder: true,
	}
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title         string          `json:"title" validate:"required,max=200"`
	Description   string          `json:"description" validate:"max=5000"`
	Price         decimal.Decimal `json:"price"`
	CatalogNumber int             `json:"catalog_number" validate:"gte=0"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	if err := validate.Struct(nc); err != nil {
		return err
	}
	if nc.Price.IsNegative() {
		return core.NewValidationError(errInvalidPrice, core.FieldError{Field: "price", Error: errInvalidPrice.Error()})
	}
	return nil
}

// UpdateCourse defines what information may be provided to modify an existing Course.
type UpdateCourse struct {
	Title       string           `json:"title" validate:"max=200"`
	Description *string          `json:"description" validate:"omitempty,max=5000"`
	Price       *decimal.Decimal `json:"price"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	uc.Title = core.CleanString(uc.Title)
	if uc.Description != nil {
		desc := core.CleanString(*uc.Description)
		uc.Description = &desc
	}
	if err := validate.Struct(uc); err != nil {
		return err
	}
	if uc.Price != nil && uc.Price.IsNegative() {
		return core.NewValidationError(errInvalidPrice, core.FieldError{Field: "price", Error: errInvalidPrice.Error()})
	}
	return nil
}

type QueryFilter struct {
	Search          string `query:"search"`
	TeacherID       primitive.ObjectID
	IncludeArchived bool `query:"include_archived"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
