// Package mongostore implements the persistence interfaces on MongoDB.
package mongostore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	colQuestions     = "questions"
	colExams         = "exams"
	colAttempts      = "attempts"
	colUsers         = "users"
	colNotifications = "notifications"
	colAudit         = "audit_events"
	colCounters      = "counters"
)

type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
}

// Connect opens a client, pings the server and ensures indexes.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Database, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 50
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	db := client.Database(cfg.Database)
	if err := EnsureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	return client, db, nil
}

// EnsureIndexes creates the lookup indexes. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	idx := map[string][]mongo.IndexModel{
		colQuestions: {
			{Keys: bson.D{{Key: "topic_key", Value: 1}, {Key: "difficulty", Value: 1}}},
			{Keys: bson.D{{Key: "tags", Value: 1}}},
		},
		colExams: {
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "question_ids", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		colAttempts: {
			{Keys: bson.D{{Key: "exam_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
			{
				Keys:    bson.D{{Key: "exam_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": "in_progress"}),
			},
		},
		colUsers: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "role", Value: 1}, {Key: "active", Value: 1}}},
		},
		colNotifications: {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		colAudit: {
			{Keys: bson.D{{Key: "seq", Value: -1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for col, models := range idx {
		if _, err := db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", col, err)
		}
	}
	return nil
}

// contains builds a case-insensitive substring match.
func contains(q string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(q), "$options": "i"}
}

func findPage(limit, offset int) *options.FindOptionsBuilder {
	return options.Find().SetSkip(int64(offset)).SetLimit(int64(limit))
}

// plain converts decoded BSON containers into the map and slice types the
// rest of the code expects from JSON.
func plain(v any) any {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = plain(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = plain(e)
		}
		return m
	case map[string]any:
		for k, e := range t {
			t[k] = plain(e)
		}
		return t
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = plain(e)
		}
		return t
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	}
	return v
}

type countRow struct {
	Key string `bson:"_id"`
	N   int    `bson:"n"`
}

func countBy(ctx context.Context, col *mongo.Collection, field string) ([]countRow, error) {
	cur, err := col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$" + field}, {Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var rows []countRow
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

func pageOf(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
