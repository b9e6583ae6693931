package mongostore

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mind-engage/examdesk/internal/audit"
)

type AuditLog struct {
	col      *mongo.Collection
	counters *mongo.Collection
}

func NewAuditLog(db *mongo.Database) *AuditLog {
	return &AuditLog{col: db.Collection(colAudit), counters: db.Collection(colCounters)}
}

type auditDoc struct {
	Seq       int64  `bson:"seq"`
	Actor     string `bson:"actor"`
	Type      string `bson:"typ"`
	Key       string `bson:"key"`
	Data      string `bson:"data,omitempty"`
	CreatedAt int64  `bson:"created_at"`
}

// nextSeq hands out the offsets in the order events are appended.
func (l *AuditLog) nextSeq(ctx context.Context) (int64, error) {
	var c struct {
		N int64 `bson:"n"`
	}
	err := l.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": colAudit},
		bson.M{"$inc": bson.M{"n": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	return c.N, err
}

func (l *AuditLog) Append(ctx context.Context, e audit.Event) (audit.Event, error) {
	seq, err := l.nextSeq(ctx)
	if err != nil {
		return audit.Event{}, err
	}
	e.Seq = seq
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	doc := auditDoc{Seq: e.Seq, Actor: e.Actor, Type: e.Type, Key: e.Key, Data: string(e.Data), CreatedAt: e.CreatedAt}
	if _, err := l.col.InsertOne(ctx, doc); err != nil {
		return audit.Event{}, err
	}
	return e, nil
}

func (l *AuditLog) Search(ctx context.Context, q string, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = audit.DefaultLimit
	}
	if limit > audit.MaxLimit {
		limit = audit.MaxLimit
	}
	filter := bson.M{}
	if q = strings.TrimSpace(q); q != "" {
		filter["$or"] = bson.A{bson.M{"typ": contains(q)}, bson.M{"key": contains(q)}, bson.M{"actor": contains(q)}}
	}
	cur, err := l.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "seq", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var docs []auditDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]audit.Event, 0, len(docs))
	for _, d := range docs {
		e := audit.Event{Seq: d.Seq, Actor: d.Actor, Type: d.Type, Key: d.Key, CreatedAt: d.CreatedAt}
		if d.Data != "" && d.Data != "null" {
			e.Data = []byte(d.Data)
		}
		out = append(out, e)
	}
	return out, nil
}
