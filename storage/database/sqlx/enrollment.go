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

	"github.com/trezcool/soko/core/enrollment"
)

var enrollmentColumns = []string{
	"id", "student_id", "course_kind", "course_id", "course_title", "status", "progress", "current_section",
	"is_completed", "payment_method", "transaction_ref", "amount", "screenshot_ref", "verification_required",
	"verified_at", "verified_by", "rejected_at", "rejected_by", "rejection_reason", "completed_at",
	"certificate_sent_at", "certificate_sent_by", "created_at", "updated_at", "version",
}

type enrollmentRow struct {
	ID                   string          `db:"id"`
	StudentID            string          `db:"student_id"`
	CourseKind           string          `db:"course_kind"`
	CourseID             string          `db:"course_id"`
	CourseTitle          string          `db:"course_title"`
	Status               string          `db:"status"`
	Progress             int             `db:"progress"`
	CurrentSection       string          `db:"current_section"`
	IsCompleted          bool            `db:"is_completed"`
	PaymentMethod        string          `db:"payment_method"`
	TransactionRef       string          `db:"transaction_ref"`
	Amount               decimal.Decimal `db:"amount"`
	ScreenshotRef        string          `db:"screenshot_ref"`
	VerificationRequired bool            `db:"verification_required"`
	VerifiedAt           null.Time       `db:"verified_at"`
	VerifiedBy           null.String     `db:"verified_by"`
	RejectedAt           null.Time       `db:"rejected_at"`
	RejectedBy           null.String     `db:"rejected_by"`
	RejectionReason      string          `db:"rejection_reason"`
	CompletedAt          null.Time       `db:"completed_at"`
	CertificateSentAt    null.Time       `db:"certificate_sent_at"`
	CertificateSentBy    null.String     `db:"certificate_sent_by"`
	CreatedAt            time.Time       `db:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at"`
	Version              int             `db:"version"`
}

type enrollmentRepository struct {
	db *sqlx.DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *sqlx.DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

func nullTime(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func timePtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func (repo enrollmentRepository) toRow(e enrollment.Enrollment) enrollmentRow {
	return enrollmentRow{
		ID:                   e.ID.Hex(),
		StudentID:            e.StudentID.Hex(),
		CourseKind:           e.CourseRef.Kind().String(),
		CourseID:             e.CourseRef.String(),
		CourseTitle:          e.CourseTitle,
		Status:               string(e.Status),
		Progress:             e.Progress,
		CurrentSection:       e.CurrentSection,
		IsCompleted:          e.IsCompleted,
		PaymentMethod:        e.Payment.Method,
		TransactionRef:       e.Payment.TransactionRef,
		Amount:               e.Payment.Amount,
		ScreenshotRef:        e.Payment.ScreenshotRef,
		VerificationRequired: e.VerificationRequired,
		VerifiedAt:           nullTime(e.VerifiedAt),
		VerifiedBy:           nullIDPtr(e.VerifiedBy),
		RejectedAt:           nullTime(e.RejectedAt),
		RejectedBy:           nullIDPtr(e.RejectedBy),
		RejectionReason:      e.RejectionReason,
		CompletedAt:          nullTime(e.CompletedAt),
		CertificateSentAt:    nullTime(e.CertificateSentAt),
		CertificateSentBy:    nullIDPtr(e.CertificateSentBy),
		CreatedAt:            e.CreatedAt.UTC(),
		UpdatedAt:            e.UpdatedAt.UTC(),
		Version:              e.Version,
	}
}

func (repo enrollmentRepository) fromRow(row enrollmentRow) enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:             parseID(row.ID),
		StudentID:      parseID(row.StudentID),
		CourseRef:      refFromColumns(row.CourseKind, row.CourseID),
		CourseTitle:    row.CourseTitle,
		Status:         enrollment.Status(row.Status),
		Progress:       row.Progress,
		CurrentSection: row.CurrentSection,
		IsCompleted:    row.IsCompleted,
		Payment: enrollment.Payment{
			Method:         row.PaymentMethod,
			TransactionRef: row.TransactionRef,
			Amount:         row.Amount,
			ScreenshotRef:  row.ScreenshotRef,
		},
		VerificationRequired: row.VerificationRequired,
		VerifiedAt:           timePtr(row.VerifiedAt),
		VerifiedBy:           idPtr(row.VerifiedBy),
		RejectedAt:           timePtr(row.RejectedAt),
		RejectedBy:           idPtr(row.RejectedBy),
		RejectionReason:      row.RejectionReason,
		CompletedAt:          timePtr(row.CompletedAt),
		CertificateSentAt:    timePtr(row.CertificateSentAt),
		CertificateSentBy:    idPtr(row.CertificateSentBy),
		CreatedAt:            row.CreatedAt.UTC(),
		UpdatedAt:            row.UpdatedAt.UTC(),
		Version:              row.Version,
	}
}

func (repo enrollmentRepository) values(row enrollmentRow) []interface{} {
	return []interface{}{
		row.ID, row.StudentID, row.CourseKind, row.CourseID, row.CourseTitle, row.Status, row.Progress,
		row.CurrentSection, row.IsCompleted, row.PaymentMethod, row.TransactionRef, row.Amount, row.ScreenshotRef,
		row.VerificationRequired, row.VerifiedAt, row.VerifiedBy, row.RejectedAt, row.RejectedBy,
		row.RejectionReason, row.CompletedAt, row.CertificateSentAt, row.CertificateSentBy, row.CreatedAt,
		row.UpdatedAt, row.Version,
	}
}

func (repo enrollmentRepository) CreateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	q, args, err := psql.Insert(enrollmentTable).Columns(enrollmentColumns...).Values(repo.values(repo.toRow(e))...).ToSql()
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, q, args...); err != nil {
		if isConstraint(err, "enrollment_open_uniq") {
			return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return e, nil
}

func (repo enrollmentRepository) GetEnrollment(ctx context.Context, id primitive.ObjectID) (enrollment.Enrollment, error) {
	q, args, err := psql.Select(enrollmentColumns...).From(enrollmentTable).Where(sq.Eq{"id": id.Hex()}).ToSql()
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "building query")
	}
	var row enrollmentRow
	if err = repo.db.GetContext(ctx, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return enrollment.Enrollment{}, enrollment.ErrNotFound
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "finding enrollment")
	}
	return repo.fromRow(row), nil
}

func (repo enrollmentRepository) QueryEnrollments(ctx context.Context, filter enrollment.QueryFilter) ([]enrollment.Enrollment, error) {
	query := psql.Select(enrollmentColumns...).From(enrollmentTable)
	if !filter.StudentID.IsZero() {
		query = query.Where(sq.Eq{"student_id": filter.StudentID.Hex()})
	}
	if !filter.CourseRef.IsZero() {
		query = query.Where(courseEq(filter.CourseRef))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		query = query.Where(sq.Eq{"status": statuses})
	}

	q, args, err := query.OrderBy("created_at DESC", "id DESC").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []enrollmentRow
	if err = repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrollments := make([]enrollment.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrollments = append(enrollments, repo.fromRow(row))
	}
	return enrollments, nil
}

// UpdateEnrollment writes the row only while its version is still e.Version.
func (repo enrollmentRepository) UpdateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	read := e.Version
	e.Version++
	row := repo.toRow(e)
	set := make(map[string]interface{}, len(enrollmentColumns))
	for i, val := range repo.values(row) {
		col := enrollmentColumns[i]
		if col == "id" || col == "created_at" {
			continue
		}
		set[col] = val
	}
	q, args, err := psql.Update(enrollmentTable).SetMap(set).
		Where(sq.Eq{"id": row.ID, "version": read}).ToSql()
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "building query")
	}

	res, err := repo.db.ExecContext(ctx, q, args...)
	if err != nil {
		if isConstraint(err, "enrollment_open_uniq") {
			return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if n == 0 {
		if _, err = repo.GetEnrollment(ctx, e.ID); err != nil {
			return enrollment.Enrollment{}, err
		}
		return enrollment.Enrollment{}, enrollment.ErrStale
	}
	return e, nil
}
