package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core/identity"
	"github.com/trezcool/soko/core/notification"
)

var notificationColumns = []string{
	"id", "event_id", "receiver_id", "sender_id", "type", "message", "related_id", "course_kind", "course_id",
	"is_read", "created_at",
}

type notificationRow struct {
	ID         string      `db:"id"`
	EventID    string      `db:"event_id"`
	ReceiverID string      `db:"receiver_id"`
	SenderID   null.String `db:"sender_id"`
	Type       string      `db:"type"`
	Message    string      `db:"message"`
	RelatedID  null.String `db:"related_id"`
	CourseKind null.String `db:"course_kind"`
	CourseID   null.String `db:"course_id"`
	IsRead     bool        `db:"is_read"`
	CreatedAt  time.Time   `db:"created_at"`
}

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sqlx.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo notificationRepository) fromRow(row notificationRow) notification.Notification {
	var ref identity.CourseRef
	if row.CourseKind.Valid {
		ref = refFromColumns(row.CourseKind.String, row.CourseID.String)
	}
	return notification.Notification{
		ID:         parseID(row.ID),
		EventID:    row.EventID,
		ReceiverID: parseID(row.ReceiverID),
		SenderID:   parseID(row.SenderID.String),
		Type:       notification.Type(row.Type),
		Message:    row.Message,
		RelatedID:  row.RelatedID.String,
		CourseRef:  ref,
		IsRead:     row.IsRead,
		CreatedAt:  row.CreatedAt.UTC(),
	}
}

// InsertNotifications writes all records with a single multi-row insert.
func (repo notificationRepository) InsertNotifications(ctx context.Context, notes ...notification.Notification) error {
	if len(notes) == 0 {
		return nil
	}
	query := psql.Insert(notificationTable).Columns(notificationColumns...)
	for _, note := range notes {
		if note.ID.IsZero() {
			note.ID = primitive.NewObjectID()
		}
		hasCourse := !note.CourseRef.IsZero()
		query = query.Values(
			note.ID.Hex(), note.EventID, note.ReceiverID.Hex(), nullID(note.SenderID), string(note.Type), note.Message,
			null.NewString(note.RelatedID, note.RelatedID != ""),
			null.NewString(note.CourseRef.Kind().String(), hasCourse), null.NewString(note.CourseRef.String(), hasCourse),
			note.IsRead, note.CreatedAt.UTC(),
		)
	}

	q, args, err := query.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, q, args...); err != nil {
		return errors.Wrap(err, "inserting notifications")
	}
	return nil
}

func (repo notificationRepository) QueryNotifications(ctx context.Context, receiverID primitive.ObjectID, filter notification.QueryFilter) ([]notification.Notification, error) {
	query := psql.Select(notificationColumns...).From(notificationTable).Where(sq.Eq{"receiver_id": receiverID.Hex()})
	if filter.UnreadOnly {
		query = query.Where(sq.Eq{"is_read": false})
	}
	query = query.OrderBy("created_at DESC", "id DESC")
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []notificationRow
	if err = repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	notes := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		notes = append(notes, repo.fromRow(row))
	}
	return notes, nil
}

func (repo notificationRepository) CountUnread(ctx context.Context, receiverID primitive.ObjectID) (int64, error) {
	q, args, err := psql.Select("COUNT(*)").From(notificationTable).
		Where(sq.Eq{"receiver_id": receiverID.Hex(), "is_read": false}).ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	var count int64
	if err = repo.db.GetContext(ctx, &count, q, args...); err != nil {
		return 0, errors.Wrap(err, "counting unread notifications")
	}
	return count, nil
}

func (repo notificationRepository) MarkRead(ctx context.Context, receiverID, id primitive.ObjectID) (notification.Notification, error) {
	q, args, err := psql.Update(notificationTable).Set("is_read", true).
		Where(sq.Eq{"id": id.Hex(), "receiver_id": receiverID.Hex()}).
		Suffix("RETURNING " + joinColumns(notificationColumns)).ToSql()
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "building query")
	}
	var row notificationRow
	if err = repo.db.GetContext(ctx, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return notification.Notification{}, notification.ErrNotFound
		}
		return notification.Notification{}, errors.Wrap(err, "marking notification read")
	}
	return repo.fromRow(row), nil
}

func (repo notificationRepository) MarkAllRead(ctx context.Context, receiverID primitive.ObjectID) (int64, error) {
	q, args, err := psql.Update(notificationTable).Set("is_read", true).
		Where(sq.Eq{"receiver_id": receiverID.Hex(), "is_read": false}).ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := repo.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	return res.RowsAffected()
}
