package stats

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/examdesk/internal/bank"
	"github.com/mind-engage/examdesk/internal/exam"
	"github.com/mind-engage/examdesk/internal/grading"
	"github.com/mind-engage/examdesk/internal/users"
)

func submitted(user string, score, max float64, items ...grading.Result) exam.Attempt {
	resp := map[string]interface{}{}
	for _, it := range items {
		resp[it.QuestionID] = "x"
	}
	return exam.Attempt{
		ID: user + "-a", UserID: user, Status: exam.AttemptSubmitted,
		Score: score, MaxScore: max, Items: items, Responses: resp,
	}
}

func item(id string, got, max float64) grading.Result {
	return grading.Result{QuestionID: id, AutoPoints: got, MaxPoints: max}
}

var statsExam = exam.Exam{ID: "e1", PassMarkPct: 50, QuestionIDs: []string{"q1", "q2", "q3"}}

var statsQuestions = map[string]bank.Question{
	"q1": {ID: "q1", Topic: "Algebra", Difficulty: bank.Easy},
	"q2": {ID: "q2", Topic: "Algebra", Difficulty: bank.Hard},
	"q3": {ID: "q3", Topic: "Geometry", Difficulty: bank.Medium},
}

func TestCompute(t *testing.T) {
	attempts := []exam.Attempt{
		submitted("u1", 3, 3, item("q1", 1, 1), item("q2", 1, 1), item("q3", 1, 1)),
		submitted("u2", 1, 3, item("q1", 1, 1), item("q2", 0, 1)),
		submitted("u3", 1.5, 3, item("q1", 1, 1), item("q2", 0.5, 1), item("q3", 0, 1)),
		submitted("u4", 0, 0),
		{ID: "u5-a", UserID: "u5", Status: exam.AttemptInProgress},
		{ID: "u1-b", UserID: "u1", Status: exam.AttemptInProgress},
	}
	st := Compute(statsExam, statsQuestions, attempts, 99)

	assert.Equal(t, 6, st.Attempts)
	assert.Equal(t, 4, st.Submitted)
	assert.Equal(t, 2, st.InProgress)
	assert.Equal(t, 5, st.UniqueUsers)
	assert.Equal(t, 3, st.Scored, "zero max score is left out")

	// 100, 33.33, 50
	assert.Equal(t, 61.11, st.MeanPct)
	assert.Equal(t, 50.0, st.MedianPct)
	assert.Equal(t, 33.33, st.MinPct)
	assert.Equal(t, 100.0, st.MaxPct)
	assert.Equal(t, 28.33, st.StddevPct)
	assert.Equal(t, 2, st.Passed)
	assert.Equal(t, 0.67, st.PassRate)
	assert.Equal(t, [Buckets]int{3: 1, 5: 1, 9: 1}, st.Histogram)
	assert.Equal(t, int64(99), st.ComputedAt)

	require.Len(t, st.Questions, 3)
	assert.Equal(t, QuestionStat{QuestionID: "q1", Topic: "Algebra", Difficulty: bank.Easy, Answered: 3, Correct: 3, Facility: 1, AvgPoints: 1}, st.Questions[0])
	assert.Equal(t, QuestionStat{QuestionID: "q2", Topic: "Algebra", Difficulty: bank.Hard, Answered: 3, Correct: 1, Facility: 0.33, AvgPoints: 0.5}, st.Questions[1])
	assert.Equal(t, 2, st.Questions[2].Answered)
	assert.Equal(t, 0.5, st.Questions[2].Facility)

	assert.Equal(t, []TopicStat{
		{Topic: "Algebra", Answered: 6, Correct: 4, Facility: 0.67},
		{Topic: "Geometry", Answered: 2, Correct: 1, Facility: 0.5},
	}, st.Topics)
}

func TestComputeEmpty(t *testing.T) {
	st := Compute(statsExam, statsQuestions, nil, 1)
	assert.Zero(t, st.MeanPct)
	assert.Zero(t, st.PassRate)
	assert.Len(t, st.Questions, 3)
	assert.Zero(t, st.Questions[0].Facility)
}

func TestBucket(t *testing.T) {
	assert.Equal(t, 0, bucket(0))
	assert.Equal(t, 0, bucket(9.99))
	assert.Equal(t, 1, bucket(10))
	assert.Equal(t, 9, bucket(90))
	assert.Equal(t, 9, bucket(100))
}

type memCache struct {
	data map[string][]byte
	gets int
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	m.gets++
	b, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return b, nil
}

func (m *memCache) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	m.data[key] = val
	return nil
}

func (m *memCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

type fakeExams struct {
	attempts []exam.Attempt
	loads    int
}

func (f *fakeExams) GetExam(_ context.Context, id string) (exam.Exam, error) {
	if id != statsExam.ID {
		return exam.Exam{}, exam.ErrNotFound
	}
	return statsExam, nil
}

func (f *fakeExams) ExamAttempts(context.Context, string) ([]exam.Attempt, error) {
	f.loads++
	return f.attempts, nil
}

func (f *fakeExams) CountExamsByStatus(context.Context) (map[exam.Status]int, error) {
	return map[exam.Status]int{exam.StatusDraft: 2, exam.StatusPublished: 1}, nil
}

func (f *fakeExams) CountAttemptsByStatus(context.Context) (map[exam.AttemptStatus]int, error) {
	return map[exam.AttemptStatus]int{exam.AttemptSubmitted: 4, exam.AttemptInProgress: 1}, nil
}

type fakeQuestions struct{}

func (fakeQuestions) GetMany(_ context.Context, ids []string) (map[string]bank.Question, error) {
	out := map[string]bank.Question{}
	for _, id := range ids {
		if q, ok := statsQuestions[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

func (fakeQuestions) Topics(context.Context) ([]bank.TopicCount, error) {
	return []bank.TopicCount{{Topic: "Algebra", Easy: 1, Hard: 1, Total: 2}}, nil
}

type roleCounts map[users.Role]int

func (r roleCounts) CountByRole(context.Context) (map[users.Role]int, error) { return r, nil }

func TestServiceCachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	cache := &memCache{data: map[string][]byte{}}
	ex := &fakeExams{attempts: []exam.Attempt{submitted("u1", 2, 4, item("q1", 1, 1))}}
	s := NewService(ex, fakeQuestions{}, roleCounts{users.RoleStudent: 3}, cache, time.Minute, nil)

	st, err := s.Exam(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 50.0, st.MeanPct)

	ex.attempts = append(ex.attempts, submitted("u2", 4, 4))
	st, err = s.Exam(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 1, ex.loads, "second read served from cache")
	assert.Equal(t, 1, st.Submitted)

	require.NoError(t, s.Invalidate(ctx, "e1"))
	st, err = s.Exam(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 2, ex.loads)
	assert.Equal(t, 2, st.Submitted)
	assert.Equal(t, 75.0, st.MeanPct)

	_, err = s.Exam(ctx, "nope")
	assert.ErrorIs(t, err, exam.ErrNotFound)
}

func TestOverview(t *testing.T) {
	ctx := context.Background()
	s := NewService(&fakeExams{}, fakeQuestions{}, roleCounts{users.RoleStudent: 3, users.RoleAdmin: 1}, nil, 0, nil)
	ov, err := s.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, ov.Attempts)
	assert.Equal(t, 4, ov.Submitted)
	assert.Equal(t, 2, ov.ExamsByStatus[exam.StatusDraft])
	assert.Equal(t, 3, ov.UsersByRole[users.RoleStudent])
	require.Len(t, ov.QuestionsByTopic, 1)
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	c := NewRedisCache(addr, os.Getenv("REDIS_PASSWORD"), 0)
	defer c.Close()
	require.NoError(t, c.Ping(ctx))

	key := "examdesk:test:" + time.Now().Format(time.RFC3339Nano)
	_, err := c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)
	require.NoError(t, c.Set(ctx, key, []byte("v"), time.Minute))
	b, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "v", string(b))
	require.NoError(t, c.Del(ctx, key))
}
