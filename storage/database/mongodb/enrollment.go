package mongorepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/soko/core/enrollment"
	"github.com/trezcool/soko/core/identity"
)

type paymentDoc struct {
	Method         string               `bson:"method,omitempty"`
	TransactionRef string               `bson:"transaction_ref,omitempty"`
	Amount         primitive.Decimal128 `bson:"amount"`
	ScreenshotRef  string               `bson:"screenshot_ref,omitempty"`
}

type enrollmentDoc struct {
	ID                   primitive.ObjectID `bson:"_id"`
	StudentID            primitive.ObjectID `bson:"student_id"`
	CourseID             interface{}        `bson:"course_id"`
	CourseTitle          string             `bson:"course_title"`
	Status               string             `bson:"status"`
	IsOpen               bool               `bson:"is_open"`
	Progress             int                `bson:"progress"`
	CurrentSection       string             `bson:"current_section,omitempty"`
	IsCompleted          bool               `bson:"is_completed"`
	Payment              paymentDoc         `bson:"payment"`
	VerificationRequired bool               `bson:"verification_required"`

	VerifiedAt        *time.Time          `bson:"verified_at,omitempty"`
	VerifiedBy        *primitive.ObjectID `bson:"verified_by,omitempty"`
	RejectedAt        *time.Time          `bson:"rejected_at,omitempty"`
	RejectedBy        *primitive.ObjectID `bson:"rejected_by,omitempty"`
	RejectionReason   string              `bson:"rejection_reason,omitempty"`
	CompletedAt       *time.Time          `bson:"completed_at,omitempty"`
	CertificateSentAt *time.Time          `bson:"certificate_sent_at,omitempty"`
	CertificateSentBy *primitive.ObjectID `bson:"certificate_sent_by,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
	Version   int       `bson:"version"`
}

type enrollmentRepository struct {
	coll *mongo.Collection
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *mongo.Database) *enrollmentRepository {
	return &enrollmentRepository{coll: db.Collection(enrollmentsCollection)}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func (repo enrollmentRepository) toDoc(e enrollment.Enrollment) enrollmentDoc {
	return enrollmentDoc{
		ID:             e.ID,
		StudentID:      e.StudentID,
		CourseID:       e.CourseRef.Native(),
		CourseTitle:    e.CourseTitle,
		Status:         string(e.Status),
		IsOpen:         e.Status != enrollment.StatusCancelled,
		Progress:       e.Progress,
		CurrentSection: e.CurrentSection,
		IsCompleted:    e.IsCompleted,
		Payment: paymentDoc{
			Method:         e.Payment.Method,
			TransactionRef: e.Payment.TransactionRef,
			Amount:         toDecimal128(e.Payment.Amount),
			ScreenshotRef:  e.Payment.ScreenshotRef,
		},
		VerificationRequired: e.VerificationRequired,
		VerifiedAt:           utcPtr(e.VerifiedAt),
		VerifiedBy:           e.VerifiedBy,
		RejectedAt:           utcPtr(e.RejectedAt),
		RejectedBy:           e.RejectedBy,
		RejectionReason:      e.RejectionReason,
		CompletedAt:          utcPtr(e.CompletedAt),
		CertificateSentAt:    utcPtr(e.CertificateSentAt),
		CertificateSentBy:    e.CertificateSentBy,
		CreatedAt:            e.CreatedAt.UTC(),
		UpdatedAt:            e.UpdatedAt.UTC(),
		Version:              e.Version,
	}
}

func (repo enrollmentRepository) fromDoc(doc enrollmentDoc) enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:             doc.ID,
		StudentID:      doc.StudentID,
		CourseRef:      identity.FromStored(doc.CourseID),
		CourseTitle:    doc.CourseTitle,
		Status:         enrollment.Status(doc.Status),
		Progress:       doc.Progress,
		CurrentSection: doc.CurrentSection,
		IsCompleted:    doc.IsCompleted,
		Payment: enrollment.Payment{
			Method:         doc.Payment.Method,
			TransactionRef: doc.Payment.TransactionRef,
			Amount:         fromDecimal128(doc.Payment.Amount),
			ScreenshotRef:  doc.Payment.ScreenshotRef,
		},
		VerificationRequired: doc.VerificationRequired,
		VerifiedAt:           utcPtr(doc.VerifiedAt),
		VerifiedBy:           doc.VerifiedBy,
		RejectedAt:           utcPtr(doc.RejectedAt),
		RejectedBy:           doc.RejectedBy,
		RejectionReason:      doc.RejectionReason,
		CompletedAt:          utcPtr(doc.CompletedAt),
		CertificateSentAt:    utcPtr(doc.CertificateSentAt),
		CertificateSentBy:    doc.CertificateSentBy,
		CreatedAt:            doc.CreatedAt.UTC(),
		UpdatedAt:            doc.UpdatedAt.UTC(),
		Version:              doc.Version,
	}
}

func (repo enrollmentRepository) CreateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	if _, err := repo.coll.InsertOne(ctx, repo.toDoc(e)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return e, nil
}

func (repo enrollmentRepository) GetEnrollment(ctx context.Context, id primitive.ObjectID) (enrollment.Enrollment, error) {
	var doc enrollmentDoc
	if err := repo.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return enrollment.Enrollment{}, trapNoDocumentsErr(err, enrollment.ErrNotFound, "finding enrollment")
	}
	return repo.fromDoc(doc), nil
}

func (repo enrollmentRepository) QueryEnrollments(ctx context.Context, filter enrollment.QueryFilter) ([]enrollment.Enrollment, error) {
	f := bson.M{}
	if !filter.StudentID.IsZero() {
		f["student_id"] = filter.StudentID
	}
	if !filter.CourseRef.IsZero() {
		f["course_id"] = courseFilter(filter.CourseRef)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		f["status"] = bson.M{"$in": statuses}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := repo.coll.Find(ctx, f, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	var docs []enrollmentDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding enrollments")
	}
	enrollments := make([]enrollment.Enrollment, 0, len(docs))
	for _, doc := range docs {
		enrollments = append(enrollments, repo.fromDoc(doc))
	}
	return enrollments, nil
}

// UpdateEnrollment replaces the document only while its version is still e.Version.
func (repo enrollmentRepository) UpdateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	var version interface{} = e.Version
	if e.Version == 0 {
		version = bson.M{"$in": bson.A{0, nil}} // documents written before versioning
	}
	e.Version++
	res, err := repo.coll.ReplaceOne(ctx, bson.M{"_id": e.ID, "version": version}, repo.toDoc(e))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if res.MatchedCount == 0 {
		n, err := repo.coll.CountDocuments(ctx, bson.M{"_id": e.ID})
		if err != nil {
			return enrollment.Enrollment{}, errors.Wrap(err, "checking enrollment")
		}
		if n == 0 {
			return enrollment.Enrollment{}, enrollment.ErrNotFound
		}
		return enrollment.Enrollment{}, enrollment.ErrStale
	}
	return e, nil
}
