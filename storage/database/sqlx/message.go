package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core/message"
)

var messageColumns = []string{"id", "sender_id", "receiver_id", "body", "is_read", "created_at"}

type messageRow struct {
	ID         string    `db:"id"`
	SenderID   string    `db:"sender_id"`
	ReceiverID string    `db:"receiver_id"`
	Body       string    `db:"body"`
	IsRead     bool      `db:"is_read"`
	CreatedAt  time.Time `db:"created_at"`
}

type messageRepository struct {
	db *sqlx.DB
}

var _ message.Repository = (*messageRepository)(nil) // interface compliance check

func NewMessageRepository(db *sqlx.DB) *messageRepository {
	return &messageRepository{db: db}
}

func (repo messageRepository) CreateMessage(ctx context.Context, msg message.Message) (message.Message, error) {
	if msg.ID.IsZero() {
		msg.ID = primitive.NewObjectID()
	}
	q, args, err := psql.Insert(messageTable).Columns(messageColumns...).Values(
		msg.ID.Hex(), msg.SenderID.Hex(), msg.ReceiverID.Hex(), msg.Body, msg.IsRead, msg.CreatedAt.UTC(),
	).ToSql()
	if err != nil {
		return message.Message{}, errors.Wrap(err, "building query")
	}
	if _, err = repo.db.ExecContext(ctx, q, args...); err != nil {
		return message.Message{}, errors.Wrap(err, "inserting message")
	}
	return msg, nil
}

func (repo messageRepository) Conversation(ctx context.Context, a, b primitive.ObjectID, limit int) ([]message.Message, error) {
	query := psql.Select(messageColumns...).From(messageTable).
		Where(sq.Or{
			sq.Eq{"sender_id": a.Hex(), "receiver_id": b.Hex()},
			sq.Eq{"sender_id": b.Hex(), "receiver_id": a.Hex()},
		}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []messageRow
	if err = repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	msgs := make([]message.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, message.Message{
			ID:         parseID(row.ID),
			SenderID:   parseID(row.SenderID),
			ReceiverID: parseID(row.ReceiverID),
			Body:       row.Body,
			IsRead:     row.IsRead,
			CreatedAt:  row.CreatedAt.UTC(),
		})
	}
	return msgs, nil
}

func (repo messageRepository) MarkConversationRead(ctx context.Context, receiverID, senderID primitive.ObjectID) (int64, error) {
	q, args, err := psql.Update(messageTable).Set("is_read", true).
		Where(sq.Eq{"receiver_id": receiverID.Hex(), "sender_id": senderID.Hex(), "is_read": false}).ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := repo.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, errors.Wrap(err, "marking messages read")
	}
	return res.RowsAffected()
}
