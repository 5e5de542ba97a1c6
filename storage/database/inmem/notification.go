package inmemdb

import (
	"context"
	"sort"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trezcool/soko/core/notification"
)

type notificationRepository struct {
	db *notificationTable
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db.notification}
}

func (repo *notificationRepository) InsertNotifications(_ context.Context, notes ...notification.Notification) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for i := range notes {
		note := notes[i]
		note.ID = newID(note.ID)
		repo.db.table[note.ID] = &note
	}
	return nil
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, receiverID primitive.ObjectID, filter notification.QueryFilter) ([]notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	notes := make([]notification.Notification, 0)
	for _, note := range repo.db.table {
		if note.ReceiverID != receiverID || (filter.UnreadOnly && note.IsRead) {
			continue
		}
		notes = append(notes, *note)
	}
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].ID.Hex() > notes[j].ID.Hex()
		}
		return notes[i].CreatedAt.After(notes[j].CreatedAt)
	})
	if filter.Limit > 0 && len(notes) > filter.Limit {
		notes = notes[:filter.Limit]
	}
	return notes, nil
}

func (repo *notificationRepository) CountUnread(_ context.Context, receiverID primitive.ObjectID) (int64, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int64
	for _, note := range repo.db.table {
		if note.ReceiverID == receiverID && !note.IsRead {
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) MarkRead(_ context.Context, receiverID, id primitive.ObjectID) (notification.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	note, ok := repo.db.table[id]
	if !ok || note.ReceiverID != receiverID {
		return notification.Notification{}, notification.ErrNotFound
	}
	note.IsRead = true
	return *note, nil
}

func (repo *notificationRepository) MarkAllRead(_ context.Context, receiverID primitive.ObjectID) (int64, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var count int64
	for _, note := range repo.db.table {
		if note.ReceiverID == receiverID && !note.IsRead {
			note.IsRead = true
			count++
		}
	}
	return count, nil
}
