package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mind-engage/examdesk/internal/bank"
)

type QuestionStore struct {
	col *mongo.Collection
}

func NewQuestionStore(db *mongo.Database) *QuestionStore {
	return &QuestionStore{col: db.Collection(colQuestions)}
}

func (s *QuestionStore) Create(ctx context.Context, qs ...bank.Question) error {
	if len(qs) == 0 {
		return nil
	}
	ids := make([]string, len(qs))
	docs := make([]any, len(qs))
	for i, q := range qs {
		q.TopicKey = bank.TopicKey(q.Topic)
		ids[i] = q.ID
		docs[i] = q
	}
	// checked up front so a batch with a taken id writes nothing
	var taken bank.Question
	err := s.col.FindOne(ctx, bson.M{"_id": bson.M{"$in": ids}}).Decode(&taken)
	if err == nil {
		return fmt.Errorf("%w: %s", bank.ErrExists, taken.ID)
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return err
	}
	if _, err := s.col.InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return bank.ErrExists
		}
		return err
	}
	return nil
}

func (s *QuestionStore) Update(ctx context.Context, q bank.Question) error {
	q.TopicKey = bank.TopicKey(q.Topic)
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": q.ID}, bson.M{"$set": bson.M{
		"topic":       q.Topic,
		"topic_key":   q.TopicKey,
		"difficulty":  q.Difficulty,
		"type":        q.Type,
		"prompt_html": q.PromptHTML,
		"choices":     q.Choices,
		"answer_key":  q.AnswerKey,
		"points":      q.Points,
		"explanation": q.Explanation,
		"tags":        q.Tags,
		"media_keys":  q.MediaKeys,
		"updated_at":  q.UpdatedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return bank.ErrNotFound
	}
	return nil
}

func (s *QuestionStore) Get(ctx context.Context, id string) (bank.Question, error) {
	var q bank.Question
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&q)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return bank.Question{}, bank.ErrNotFound
	}
	return q, err
}

func (s *QuestionStore) GetMany(ctx context.Context, ids []string) (map[string]bank.Question, error) {
	out := make(map[string]bank.Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var qs []bank.Question
	if err := cur.All(ctx, &qs); err != nil {
		return nil, err
	}
	for _, q := range qs {
		out[q.ID] = q
	}
	return out, nil
}

func (s *QuestionStore) Delete(ctx context.Context, id string) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return bank.ErrNotFound
	}
	return nil
}

func questionFilter(f bank.Filter) bson.M {
	m := bson.M{}
	if f.Topic != "" {
		m["topic_key"] = bank.TopicKey(f.Topic)
	}
	if f.Difficulty != "" {
		m["difficulty"] = f.Difficulty
	}
	if f.Type != "" {
		m["type"] = f.Type
	}
	if f.Tag != "" {
		m["tags"] = f.Tag
	}
	if f.Q != "" {
		m["$or"] = bson.A{bson.M{"prompt_html": contains(f.Q)}, bson.M{"topic": contains(f.Q)}}
	}
	if len(f.IDs) > 0 {
		m["_id"] = bson.M{"$in": f.IDs}
	}
	return m
}

// difficultyRank mirrors bank.Difficulty.Rank for server-side sorting.
var difficultyRank = bson.D{{Key: "$switch", Value: bson.D{
	{Key: "branches", Value: bson.A{
		bson.D{{Key: "case", Value: bson.D{{Key: "$eq", Value: bson.A{"$difficulty", "easy"}}}}, {Key: "then", Value: 0}},
		bson.D{{Key: "case", Value: bson.D{{Key: "$eq", Value: bson.A{"$difficulty", "medium"}}}}, {Key: "then", Value: 1}},
		bson.D{{Key: "case", Value: bson.D{{Key: "$eq", Value: bson.A{"$difficulty", "hard"}}}}, {Key: "then", Value: 2}},
	}},
	{Key: "default", Value: 3},
}}}

func (s *QuestionStore) List(ctx context.Context, f bank.Filter) ([]bank.Question, int, error) {
	f = f.Clamp()
	filter := questionFilter(f)
	total, err := s.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	cur, err := s.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$addFields", Value: bson.D{{Key: "_rank", Value: difficultyRank}}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "topic_key", Value: 1}, {Key: "_rank", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1},
		}}},
		{{Key: "$skip", Value: f.Offset}},
		{{Key: "$limit", Value: f.Limit}},
		{{Key: "$project", Value: bson.D{{Key: "_rank", Value: 0}}}},
	})
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)
	out := []bank.Question{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, int(total), nil
}

func (s *QuestionStore) Topics(ctx context.Context) ([]bank.TopicCount, error) {
	cur, err := s.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "k", Value: "$topic_key"}, {Key: "d", Value: "$difficulty"}}},
			{Key: "topic", Value: bson.D{{Key: "$min", Value: "$topic"}}},
			{Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var rows []struct {
		ID struct {
			Key        string `bson:"k"`
			Difficulty string `bson:"d"`
		} `bson:"_id"`
		Topic string `bson:"topic"`
		N     int    `bson:"n"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	byKey := map[string]*bank.TopicCount{}
	var keys []string
	for _, r := range rows {
		tc, ok := byKey[r.ID.Key]
		if !ok {
			tc = &bank.TopicCount{Topic: r.Topic}
			byKey[r.ID.Key] = tc
			keys = append(keys, r.ID.Key)
		}
		if r.Topic < tc.Topic {
			tc.Topic = r.Topic
		}
		tc.Add(bank.Difficulty(r.ID.Difficulty), r.N)
	}
	sort.Strings(keys)
	out := make([]bank.TopicCount, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byKey[k])
	}
	return out, nil
}

func (s *QuestionStore) Pool(ctx context.Context, topicKeys []string) (bank.Pool, error) {
	filter := bson.M{}
	if len(topicKeys) > 0 {
		filter["topic_key"] = bson.M{"$in": topicKeys}
	}
	opts := options.Find().
		SetProjection(bson.M{"_id": 1, "topic_key": 1, "difficulty": 1}).
		SetSort(bson.D{{Key: "topic_key", Value: 1}, {Key: "difficulty", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var rows []struct {
		ID         string `bson:"_id"`
		TopicKey   string `bson:"topic_key"`
		Difficulty string `bson:"difficulty"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	p := bank.Pool{}
	for _, r := range rows {
		p.Add(r.TopicKey, bank.Difficulty(r.Difficulty), r.ID)
	}
	return p, nil
}
