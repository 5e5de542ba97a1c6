package mongorepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/soko/core/identity"
	"github.com/trezcool/soko/core/notification"
)

type notificationDoc struct {
	ID         primitive.ObjectID `bson:"_id"`
	EventID    string             `bson:"event_id"`
	ReceiverID primitive.ObjectID `bson:"receiver_id"`
	SenderID   primitive.ObjectID `bson:"sender_id,omitempty"`
	Type       string             `bson:"type"`
	Message    string             `bson:"message"`
	RelatedID  string             `bson:"related_id,omitempty"`
	CourseID   interface{}        `bson:"course_id,omitempty"`
	IsRead     bool               `bson:"is_read"`
	CreatedAt  time.Time          `bson:"created_at"`
}

type notificationRepository struct {
	coll *mongo.Collection
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *mongo.Database) *notificationRepository {
	return &notificationRepository{coll: db.Collection(notificationsCollection)}
}

func (repo notificationRepository) toDoc(note notification.Notification) notificationDoc {
	return notificationDoc{
		ID:         note.ID,
		EventID:    note.EventID,
		ReceiverID: note.ReceiverID,
		SenderID:   note.SenderID,
		Type:       string(note.Type),
		Message:    note.Message,
		RelatedID:  note.RelatedID,
		CourseID:   note.CourseRef.Native(),
		IsRead:     note.IsRead,
		CreatedAt:  note.CreatedAt.UTC(),
	}
}

func (repo notificationRepository) fromDoc(doc notificationDoc) notification.Notification {
	return notification.Notification{
		ID:         doc.ID,
		EventID:    doc.EventID,
		ReceiverID: doc.ReceiverID,
		SenderID:   doc.SenderID,
		Type:       notification.Type(doc.Type),
		Message:    doc.Message,
		RelatedID:  doc.RelatedID,
		CourseRef:  identity.FromStored(doc.CourseID),
		IsRead:     doc.IsRead,
		CreatedAt:  doc.CreatedAt.UTC(),
	}
}

func (repo notificationRepository) InsertNotifications(ctx context.Context, notes ...notification.Notification) error {
	if len(notes) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(notes))
	for _, note := range notes {
		if note.ID.IsZero() {
			note.ID = primitive.NewObjectID()
		}
		docs = append(docs, repo.toDoc(note))
	}
	if _, err := repo.coll.InsertMany(ctx, docs); err != nil {
		return errors.Wrap(err, "inserting notifications")
	}
	return nil
}

func (repo notificationRepository) QueryNotifications(ctx context.Context, receiverID primitive.ObjectID, filter notification.QueryFilter) ([]notification.Notification, error) {
	f := bson.M{"receiver_id": receiverID}
	if filter.UnreadOnly {
		f["is_read"] = false
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := repo.coll.Find(ctx, f, opts)
	if err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	var docs []notificationDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding notifications")
	}
	notes := make([]notification.Notification, 0, len(docs))
	for _, doc := range docs {
		notes = append(notes, repo.fromDoc(doc))
	}
	return notes, nil
}

func (repo notificationRepository) CountUnread(ctx context.Context, receiverID primitive.ObjectID) (int64, error) {
	count, err := repo.coll.CountDocuments(ctx, bson.M{"receiver_id": receiverID, "is_read": false})
	if err != nil {
		return 0, errors.Wrap(err, "counting unread notifications")
	}
	return count, nil
}

func (repo notificationRepository) MarkRead(ctx context.Context, receiverID, id primitive.ObjectID) (notification.Notification, error) {
	var doc notificationDoc
	err := repo.coll.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id, "receiver_id": receiverID},
		bson.M{"$set": bson.M{"is_read": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return notification.Notification{}, trapNoDocumentsErr(err, notification.ErrNotFound, "marking notification read")
	}
	return repo.fromDoc(doc), nil
}

func (repo notificationRepository) MarkAllRead(ctx context.Context, receiverID primitive.ObjectID) (int64, error) {
	res, err := repo.coll.UpdateMany(
		ctx,
		bson.M{"receiver_id": receiverID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	return res.ModifiedCount, nil
}
