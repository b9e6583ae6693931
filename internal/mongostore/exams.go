package mongostore

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mind-engage/examdesk/internal/exam"
)

type ExamStore struct {
	exams    *mongo.Collection
	attempts *mongo.Collection
}

func NewExamStore(db *mongo.Database) *ExamStore {
	return &ExamStore{
		exams:    db.Collection(colExams),
		attempts: db.Collection(colAttempts),
	}
}

func (s *ExamStore) CreateExam(ctx context.Context, e exam.Exam) error {
	if e.QuestionIDs == nil {
		e.QuestionIDs = []string{}
	}
	_, err := s.exams.InsertOne(ctx, e)
	return err
}

func (s *ExamStore) UpdateExam(ctx context.Context, e exam.Exam) error {
	if e.QuestionIDs == nil {
		e.QuestionIDs = []string{}
	}
	res, err := s.exams.ReplaceOne(ctx, bson.M{"_id": e.ID}, e)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return exam.ErrNotFound
	}
	return nil
}

func (s *ExamStore) GetExam(ctx context.Context, id string) (exam.Exam, error) {
	var e exam.Exam
	err := s.exams.FindOne(ctx, bson.M{"_id": id}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return exam.Exam{}, exam.ErrNotFound
	}
	return e, err
}

func (s *ExamStore) DeleteExam(ctx context.Context, id string) error {
	res, err := s.exams.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return exam.ErrNotFound
	}
	_, err = s.attempts.DeleteMany(ctx, bson.M{"exam_id": id})
	return err
}

func (s *ExamStore) ListExams(ctx context.Context, o exam.ListOpts) ([]exam.Exam, int, error) {
	limit, offset := pageOf(o.Limit, o.Offset)
	filter := bson.M{}
	if o.Status != "" {
		filter["status"] = o.Status
	}
	if q := strings.TrimSpace(o.Q); q != "" {
		filter["$or"] = bson.A{bson.M{"title": contains(q)}, bson.M{"description": contains(q)}}
	}
	total, err := s.exams.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	opts := findPage(limit, offset).SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := s.exams.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)
	out := []exam.Exam{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, int(total), nil
}

func (s *ExamStore) CountExamsByStatus(ctx context.Context) (map[exam.Status]int, error) {
	rows, err := countBy(ctx, s.exams, "status")
	if err != nil {
		return nil, err
	}
	out := map[exam.Status]int{}
	for _, r := range rows {
		out[exam.Status(r.Key)] = r.N
	}
	return out, nil
}

func (s *ExamStore) QuestionInUse(ctx context.Context, questionID string) (bool, error) {
	n, err := s.exams.CountDocuments(ctx, bson.M{
		"status":       bson.M{"$ne": exam.StatusClosed},
		"question_ids": questionID,
	}, options.Count().SetLimit(1))
	return n > 0, err
}

// ---- attempts ----

func normalize(a exam.Attempt) exam.Attempt {
	if a.Responses == nil {
		a.Responses = map[string]interface{}{}
	}
	for k, v := range a.Responses {
		a.Responses[k] = plain(v)
	}
	return a
}

func (s *ExamStore) CreateAttempt(ctx context.Context, a exam.Attempt) error {
	if a.Responses == nil {
		a.Responses = map[string]interface{}{}
	}
	_, err := s.attempts.InsertOne(ctx, a)
	return err
}

func (s *ExamStore) UpdateAttempt(ctx context.Context, a exam.Attempt) error {
	if a.Responses == nil {
		a.Responses = map[string]interface{}{}
	}
	res, err := s.attempts.ReplaceOne(ctx, bson.M{"_id": a.ID}, a)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return exam.ErrAttemptNotFound
	}
	return nil
}

func (s *ExamStore) findAttempt(ctx context.Context, filter bson.M) (exam.Attempt, error) {
	var a exam.Attempt
	err := s.attempts.FindOne(ctx, filter).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return exam.Attempt{}, exam.ErrAttemptNotFound
	}
	if err != nil {
		return exam.Attempt{}, err
	}
	return normalize(a), nil
}

func (s *ExamStore) GetAttempt(ctx context.Context, id string) (exam.Attempt, error) {
	return s.findAttempt(ctx, bson.M{"_id": id})
}

func (s *ExamStore) FindOpenAttempt(ctx context.Context, examID, userID string) (exam.Attempt, error) {
	return s.findAttempt(ctx, bson.M{"exam_id": examID, "user_id": userID, "status": exam.AttemptInProgress})
}

func (s *ExamStore) decodeAttempts(ctx context.Context, cur *mongo.Cursor) ([]exam.Attempt, error) {
	defer cur.Close(ctx)
	out := []exam.Attempt{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i] = normalize(out[i])
	}
	return out, nil
}

func (s *ExamStore) ListAttempts(ctx context.Context, o exam.AttemptListOpts) ([]exam.Attempt, int, error) {
	limit, offset := pageOf(o.Limit, o.Offset)
	filter := bson.M{}
	if o.ExamID != "" {
		filter["exam_id"] = o.ExamID
	}
	if o.UserID != "" {
		filter["user_id"] = o.UserID
	}
	if o.Status != "" {
		filter["status"] = o.Status
	}
	total, err := s.attempts.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	cur, err := s.attempts.Find(ctx, filter,
		findPage(limit, offset).SetSort(bson.D{{Key: "started_at", Value: -1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, 0, err
	}
	out, err := s.decodeAttempts(ctx, cur)
	return out, int(total), err
}

func (s *ExamStore) ExamAttempts(ctx context.Context, examID string) ([]exam.Attempt, error) {
	cur, err := s.attempts.Find(ctx, bson.M{"exam_id": examID},
		options.Find().SetSort(bson.D{{Key: "started_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	return s.decodeAttempts(ctx, cur)
}

func (s *ExamStore) CountAttempts(ctx context.Context, examID string) (int, error) {
	n, err := s.attempts.CountDocuments(ctx, bson.M{"exam_id": examID})
	return int(n), err
}

func (s *ExamStore) CountAttemptsByStatus(ctx context.Context) (map[exam.AttemptStatus]int, error) {
	rows, err := countBy(ctx, s.attempts, "status")
	if err != nil {
		return nil, err
	}
	out := map[exam.AttemptStatus]int{}
	for _, r := range rows {
		out[exam.AttemptStatus(r.Key)] = r.N
	}
	return out, nil
}

func (s *ExamStore) DeleteUserAttempts(ctx context.Context, userID string) (int, error) {
	res, err := s.attempts.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}
