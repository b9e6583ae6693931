package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/mind-engage/examdesk/internal/notify"
)

type NotificationStore struct {
	col *mongo.Collection
}

func NewNotificationStore(db *mongo.Database) *NotificationStore {
	return &NotificationStore{col: db.Collection(colNotifications)}
}

func (s *NotificationStore) Create(ctx context.Context, n notify.Notification) error {
	_, err := s.col.InsertOne(ctx, n)
	return err
}

func (s *NotificationStore) List(ctx context.Context, limit, offset int) ([]notify.Notification, int, error) {
	limit, offset = pageOf(limit, offset)
	total, err := s.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}
	cur, err := s.col.Find(ctx, bson.M{},
		findPage(limit, offset).SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)
	out := []notify.Notification{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, int(total), nil
}
