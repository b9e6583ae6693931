package exam

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/examdesk/internal/autofill"
	"github.com/mind-engage/examdesk/internal/bank"
	"github.com/mind-engage/examdesk/internal/db"
	"github.com/mind-engage/examdesk/internal/notify"
	"github.com/mind-engage/examdesk/internal/users"
)

type sentLog struct {
	mu   sync.Mutex
	reqs []notify.Request
}

func (s *sentLog) Send(_ context.Context, req notify.Request) (notify.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return notify.Notification{ID: fmt.Sprint(len(s.reqs)), Kind: req.Kind, Recipients: len(req.Audience.UserIDs)}, nil
}

type invalidations []string

func (i *invalidations) Invalidate(_ context.Context, examID string) error {
	*i = append(*i, examID)
	return nil
}

type dirFunc func(id string) (users.User, error)

func (f dirFunc) Get(_ context.Context, id string) (users.User, error) { return f(id) }

type env struct {
	svc   *Service
	bank  *bank.Service
	sent  *sentLog
	stats *invalidations
	clock *time.Time
}

func newEnv(t *testing.T) env {
	t.Helper()
	ctx := context.Background()
	sqlDB, err := db.Open(ctx, db.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	store := NewSQLStore(sqlDB)
	bs := bank.NewService(bank.NewSQLStore(sqlDB), store)
	clock := time.Unix(1_700_000_000, 0)
	e := env{bank: bs, sent: &sentLog{}, stats: &invalidations{}, clock: &clock}
	e.svc = NewService(store, bs, Options{
		Notifier:   e.sent,
		Stats:      e.stats,
		AutoNotify: true,
		Directory: dirFunc(func(id string) (users.User, error) {
			return users.User{ID: id, Username: "user-" + id}, nil
		}),
		Now: func() time.Time { return *e.clock },
	})
	return e
}

func (e env) advance(d time.Duration) { *e.clock = e.clock.Add(d) }

func (e env) seed(t *testing.T, topic string, d bank.Difficulty, n int) []string {
	t.Helper()
	var ids []string
	for i := 0; i < n; i++ {
		q, err := e.bank.Create(context.Background(), bank.Question{
			Topic: topic, Difficulty: d, Type: bank.TypeMCQSingle,
			PromptHTML: fmt.Sprintf("<p>%s %s %d</p>", topic, d, i),
			Choices:    []bank.Choice{{ID: "A", LabelHTML: "a"}, {ID: "B", LabelHTML: "b"}},
			AnswerKey:  []string{"A"},
		}, "tester")
		require.NoError(t, err)
		ids = append(ids, q.ID)
	}
	return ids
}

func TestExamLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ids := e.seed(t, "Algebra", bank.Easy, 3)

	ex, err := e.svc.Create(ctx, ExamInput{Title: " Midterm ", PassMarkPct: 50, QuestionIDs: ids[:2]}, "staff1")
	require.NoError(t, err)
	assert.Equal(t, "Midterm", ex.Title)
	assert.Equal(t, StatusDraft, ex.Status)

	all := ids
	ex, err = e.svc.Update(ctx, ex.ID, Patch{QuestionIDs: &all})
	require.NoError(t, err)
	assert.Len(t, ex.QuestionIDs, 3)

	*e.stats = nil
	ex, err = e.svc.Publish(ctx, ex.ID, "staff1")
	require.NoError(t, err)
	assert.Equal(t, StatusPublished, ex.Status)
	assert.Equal(t, []string{ex.ID}, []string(*e.stats), "status change drops cached stats")
	assert.Equal(t, e.clock.Unix(), ex.PublishedAt)
	require.Len(t, e.sent.reqs, 1)
	assert.Equal(t, notify.KindExamPublished, e.sent.reqs[0].Kind)
	assert.Equal(t, []string{"student"}, e.sent.reqs[0].Audience.Roles)

	shuffle := true
	_, err = e.svc.Update(ctx, ex.ID, Patch{Shuffle: &shuffle})
	assert.ErrorIs(t, err, ErrFrozen)
	title := "Midterm (rev)"
	closes := e.clock.Add(time.Hour).Unix()
	ex, err = e.svc.Update(ctx, ex.ID, Patch{Title: &title, ClosesAt: &closes})
	require.NoError(t, err)
	assert.Equal(t, "Midterm (rev)", ex.Title)

	_, err = e.svc.Publish(ctx, ex.ID, "staff1")
	assert.ErrorIs(t, err, ErrStatus)

	ex, err = e.svc.Close(ctx, ex.ID, "staff1")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, ex.Status)
	assert.Equal(t, []string{ex.ID, ex.ID}, []string(*e.stats))
	_, err = e.svc.Close(ctx, ex.ID, "staff1")
	assert.ErrorIs(t, err, ErrStatus)

	summaries, total, err := e.svc.List(ctx, ListOpts{Status: StatusClosed})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 3, summaries[0].QuestionCount)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.svc.Create(ctx, ExamInput{Title: ""}, "x")
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = e.svc.Create(ctx, ExamInput{Title: "t", PassMarkPct: 120}, "x")
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = e.svc.Create(ctx, ExamInput{Title: "t", OpensAt: 200, ClosesAt: 100}, "x")
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = e.svc.Create(ctx, ExamInput{Title: "t", QuestionIDs: []string{"a", "a"}}, "x")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestPublishNotReady(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	empty, err := e.svc.Create(ctx, ExamInput{Title: "Empty"}, "x")
	require.NoError(t, err)
	_, err = e.svc.Publish(ctx, empty.ID, "x")
	assert.ErrorIs(t, err, ErrNotReady)

	ghost, err := e.svc.Create(ctx, ExamInput{Title: "Ghost", QuestionIDs: []string{"nope"}}, "x")
	require.NoError(t, err)
	_, err = e.svc.Publish(ctx, ghost.ID, "x")
	assert.ErrorIs(t, err, ErrNotReady)

	d, err := e.svc.Detail(ctx, ghost.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"nope"}, d.Missing)
	assert.Empty(t, d.Questions)
	assert.Empty(t, e.sent.reqs)
}

func TestAutoFillPreviewAndApply(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	for _, topic := range []string{"Algebra", "Geometry"} {
		for _, d := range bank.Difficulties {
			e.seed(t, topic, d, 4)
		}
	}
	ex, err := e.svc.Create(ctx, ExamInput{Title: "Auto"}, "x")
	require.NoError(t, err)

	req := AutoFillRequest{Blueprint: autofill.Blueprint{
		Total:  10,
		Topics: []autofill.TopicWeight{{Topic: "algebra", Weight: 1}, {Topic: "Geometry", Weight: 1}},
		Seed:   42,
	}}
	preview, err := e.svc.AutoFill(ctx, ex.ID, req)
	require.NoError(t, err)
	assert.False(t, preview.Applied)
	assert.Len(t, preview.QuestionIDs, 10)
	assert.Equal(t, map[string]int{"algebra": 5, "Geometry": 5}, preview.Allocation.PerTopic)
	assert.Equal(t, map[bank.Difficulty]int{bank.Easy: 3, bank.Medium: 5, bank.Hard: 2}, preview.Allocation.Targets)

	got, err := e.svc.Get(ctx, ex.ID)
	require.NoError(t, err)
	assert.Empty(t, got.QuestionIDs, "preview leaves the exam untouched")

	req.Apply = true
	applied, err := e.svc.AutoFill(ctx, ex.ID, req)
	require.NoError(t, err)
	assert.True(t, applied.Applied)
	assert.Equal(t, preview.QuestionIDs, applied.QuestionIDs, "same seed, same selection")

	got, err = e.svc.Get(ctx, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, applied.QuestionIDs, got.QuestionIDs)
	require.NotNil(t, got.Blueprint)
	assert.Equal(t, int64(42), got.Blueprint.Seed)
	assert.Equal(t, autofill.DefaultRatio, got.Blueprint.Ratio)
}

func TestAutoFillTopUp(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ids := e.seed(t, "Algebra", bank.Medium, 6)

	ex, err := e.svc.Create(ctx, ExamInput{Title: "TopUp", QuestionIDs: ids[:2]}, "x")
	require.NoError(t, err)
	res, err := e.svc.AutoFill(ctx, ex.ID, AutoFillRequest{
		Mode:      "top_up",
		Apply:     true,
		Blueprint: autofill.Blueprint{Total: 5, Topics: []autofill.TopicWeight{{Topic: "Algebra", Weight: 1}}, Seed: 7},
	})
	require.NoError(t, err)
	assert.Equal(t, ids[:2], res.Kept)
	assert.Len(t, res.Added, 3)
	assert.Equal(t, ids[:2], res.QuestionIDs[:2])
	for _, id := range res.Added {
		assert.NotContains(t, ids[:2], id)
	}

	_, err = e.svc.AutoFill(ctx, ex.ID, AutoFillRequest{
		Mode:      "top_up",
		Blueprint: autofill.Blueprint{Total: 5, Topics: []autofill.TopicWeight{{Topic: "Algebra", Weight: 1}}},
	})
	assert.ErrorIs(t, err, ErrInvalid, "exam is already full")
}

func TestAutoFillShortfall(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.seed(t, "Algebra", bank.Easy, 3)
	ex, err := e.svc.Create(ctx, ExamInput{Title: "Short"}, "x")
	require.NoError(t, err)

	bp := autofill.Blueprint{Total: 5, Topics: []autofill.TopicWeight{{Topic: "Algebra"}}, Seed: 1}
	_, err = e.svc.AutoFill(ctx, ex.ID, AutoFillRequest{Blueprint: bp, Apply: true, Strict: true})
	require.ErrorIs(t, err, ErrShortfall)
	got, err := e.svc.Get(ctx, ex.ID)
	require.NoError(t, err)
	assert.Empty(t, got.QuestionIDs)

	res, err := e.svc.AutoFill(ctx, ex.ID, AutoFillRequest{Blueprint: bp, Apply: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Allocation.Shortfall)
	assert.Len(t, res.QuestionIDs, 3)

	_, err = e.svc.AutoFill(ctx, ex.ID, AutoFillRequest{Blueprint: autofill.Blueprint{}})
	assert.ErrorIs(t, err, autofill.ErrInvalidBlueprint)
}

func publishedExam(t *testing.T, e env, in ExamInput) Exam {
	t.Helper()
	ctx := context.Background()
	if in.Title == "" {
		in.Title = "Quiz"
	}
	if len(in.QuestionIDs) == 0 {
		in.QuestionIDs = e.seed(t, "Algebra", bank.Easy, 4)
	}
	ex, err := e.svc.Create(ctx, in, "staff")
	require.NoError(t, err)
	ex, err = e.svc.Publish(ctx, ex.ID, "staff")
	require.NoError(t, err)
	return ex
}

func TestAttemptFlow(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ex := publishedExam(t, e, ExamInput{PassMarkPct: 50})
	q := ex.QuestionIDs

	a, created, err := e.svc.Start(ctx, ex.ID, "stu1")
	require.NoError(t, err)
	assert.True(t, created)
	again, created, err := e.svc.Start(ctx, ex.ID, "stu1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, a.ID, again.ID)

	_, err = e.svc.Save(ctx, a.ID, "stu2", map[string]interface{}{q[0]: "A"})
	assert.ErrorIs(t, err, ErrNotOwner)

	a, err = e.svc.Save(ctx, a.ID, "stu1", map[string]interface{}{q[0]: "A", q[1]: "B"})
	require.NoError(t, err)
	a, err = e.svc.Save(ctx, a.ID, "stu1", map[string]interface{}{q[1]: "A"})
	require.NoError(t, err)
	assert.Len(t, a.Responses, 2)

	before := len(*e.stats)
	a, err = e.svc.Submit(ctx, a.ID, "stu1", map[string]interface{}{q[2]: "B"})
	require.NoError(t, err)
	assert.Equal(t, AttemptSubmitted, a.Status)
	assert.Equal(t, 2.0, a.Score)
	assert.Equal(t, 4.0, a.MaxScore)
	assert.Equal(t, 50.0, a.Pct())
	require.Len(t, a.Items, 4)
	assert.Equal(t, []string{"no response"}, a.Items[3].Feedback)
	assert.Equal(t, []string{ex.ID}, []string((*e.stats)[before:]))

	_, err = e.svc.Save(ctx, a.ID, "stu1", map[string]interface{}{q[3]: "A"})
	assert.ErrorIs(t, err, ErrAttemptClosed)
	_, err = e.svc.Submit(ctx, a.ID, "stu1", nil)
	assert.ErrorIs(t, err, ErrAttemptClosed)

	// a new attempt may start once the previous one is submitted
	b, created, err := e.svc.Start(ctx, ex.ID, "stu1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, a.ID, b.ID)

	list, total, err := e.svc.ListAttempts(ctx, AttemptListOpts{ExamID: ex.ID, Status: AttemptSubmitted})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, a.ID, list[0].ID)

	assert.ErrorIs(t, e.svc.Delete(ctx, ex.ID), ErrHasAttempts)

	n, err := e.svc.ReleaseResults(ctx, ex.ID, "staff")
	require.NoError(t, err)
	assert.Equal(t, notify.KindResultsReleased, n.Kind)
	last := e.sent.reqs[len(e.sent.reqs)-1]
	assert.Equal(t, []string{"stu1"}, last.Audience.UserIDs)
}

func TestStartRequiresOpenExam(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	draft, err := e.svc.Create(ctx, ExamInput{Title: "Draft", QuestionIDs: e.seed(t, "A", bank.Easy, 1)}, "x")
	require.NoError(t, err)
	_, _, err = e.svc.Start(ctx, draft.ID, "stu")
	assert.ErrorIs(t, err, ErrNotOpen)

	later := publishedExam(t, e, ExamInput{OpensAt: e.clock.Add(time.Hour).Unix()})
	_, _, err = e.svc.Start(ctx, later.ID, "stu")
	assert.ErrorIs(t, err, ErrNotOpen)

	e.advance(2 * time.Hour)
	_, _, err = e.svc.Start(ctx, later.ID, "stu")
	assert.NoError(t, err)

	_, _, err = e.svc.Start(ctx, "missing", "stu")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.svc.ReleaseResults(ctx, draft.ID, "x")
	assert.ErrorIs(t, err, ErrStatus)
}

func TestTimeLimit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ex := publishedExam(t, e, ExamInput{TimeLimitSec: 60})
	q := ex.QuestionIDs

	a, _, err := e.svc.Start(ctx, ex.ID, "stu")
	require.NoError(t, err)
	_, err = e.svc.Save(ctx, a.ID, "stu", map[string]interface{}{q[0]: "A"})
	require.NoError(t, err)

	e.advance(5 * time.Minute)
	_, err = e.svc.Save(ctx, a.ID, "stu", map[string]interface{}{q[1]: "A"})
	assert.ErrorIs(t, err, ErrTimeUp)

	a, err = e.svc.Submit(ctx, a.ID, "stu", map[string]interface{}{q[1]: "A"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, a.Score, "late responses are ignored")
}

func TestViewHidesKeysAndShufflesStably(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ex := publishedExam(t, e, ExamInput{Shuffle: true, QuestionIDs: e.seed(t, "Algebra", bank.Easy, 8), TimeLimitSec: 600})

	a, _, err := e.svc.Start(ctx, ex.ID, "stu")
	require.NoError(t, err)
	v1, err := e.svc.View(ctx, a.ID, "stu")
	require.NoError(t, err)
	v2, err := e.svc.View(ctx, a.ID, "stu")
	require.NoError(t, err)

	order := func(v AttemptView) []string {
		var ids []string
		for _, q := range v.Exam.Questions {
			ids = append(ids, q.ID)
			assert.Empty(t, q.AnswerKey)
		}
		return ids
	}
	assert.Equal(t, order(v1), order(v2))
	assert.ElementsMatch(t, ex.QuestionIDs, order(v1))
	assert.Equal(t, int64(600), v1.Remaining)
	assert.Nil(t, v1.Exam.Exam.Blueprint)

	_, err = e.svc.View(ctx, a.ID, "someone-else")
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestQuestionInUseBlocksBankDelete(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ex := publishedExam(t, e, ExamInput{})

	assert.ErrorIs(t, e.bank.Delete(ctx, ex.QuestionIDs[0]), bank.ErrInUse)
	_, err := e.svc.Close(ctx, ex.ID, "x")
	require.NoError(t, err)
	assert.NoError(t, e.bank.Delete(ctx, ex.QuestionIDs[0]))
}

func TestQuestionInUseMatchesIDLiterally(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	for _, id := range []string{"q_1", "qx1", "q%2", "qab2"} {
		_, err := e.bank.Create(ctx, bank.Question{
			ID: id, Topic: "Algebra", Difficulty: bank.Easy, Type: bank.TypeMCQSingle,
			PromptHTML: "<p>" + id + "</p>",
			Choices:    []bank.Choice{{ID: "A", LabelHTML: "a"}, {ID: "B", LabelHTML: "b"}},
			AnswerKey:  []string{"A"},
		}, "tester")
		require.NoError(t, err)
	}
	_, err := e.svc.Create(ctx, ExamInput{Title: "Draft", QuestionIDs: []string{"qx1", "qab2"}}, "staff1")
	require.NoError(t, err)

	assert.NoError(t, e.bank.Delete(ctx, "q_1"))
	assert.NoError(t, e.bank.Delete(ctx, "q%2"))
	assert.ErrorIs(t, e.bank.Delete(ctx, "qx1"), bank.ErrInUse)
	assert.ErrorIs(t, e.bank.Delete(ctx, "qab2"), bank.ErrInUse)
}

func TestExportAndResultsCSV(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ex := publishedExam(t, e, ExamInput{Title: "Final Exam: Part 1", PassMarkPct: 60})

	a, _, err := e.svc.Start(ctx, ex.ID, "stu")
	require.NoError(t, err)
	_, err = e.svc.Submit(ctx, a.ID, "stu", map[string]interface{}{ex.QuestionIDs[0]: "A"})
	require.NoError(t, err)
	e.advance(time.Minute)
	_, _, err = e.svc.Start(ctx, ex.ID, "stu2")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, e.svc.WriteResultsCSV(ctx, ex.ID, &buf))
	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, resultsHeader, recs[0])
	assert.Equal(t, []string{"stu", "user-stu", "submitted", "1.00", "4.00", "25.00", "false"},
		[]string{recs[1][1], recs[1][2], recs[1][4], recs[1][5], recs[1][6], recs[1][7], recs[1][8]})
	assert.Equal(t, "in_progress", recs[2][4])
	assert.Equal(t, "", recs[2][8])

	js, err := e.svc.Export(ctx, ex.ID, ExportJSON)
	require.NoError(t, err)
	assert.Equal(t, "final-exam-part-1.json", js.Filename)
	assert.Contains(t, string(js.Data), `"answer_key"`)

	q, err := e.svc.Export(ctx, ex.ID, ExportQTI)
	require.NoError(t, err)
	assert.Equal(t, "application/zip", q.ContentType)
	zr, err := zip.NewReader(bytes.NewReader(q.Data), int64(len(q.Data)))
	require.NoError(t, err)
	assert.NotEmpty(t, zr.File)

	_, err = e.svc.Export(ctx, ex.ID, "pdf")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestPurgeUser(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ex := publishedExam(t, e, ExamInput{})
	a, _, err := e.svc.Start(ctx, ex.ID, "gone")
	require.NoError(t, err)

	n, err := e.svc.PurgeUser(ctx, "gone")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = e.svc.GetAttempt(ctx, a.ID)
	assert.ErrorIs(t, err, ErrAttemptNotFound)
	assert.Contains(t, []string(*e.stats), ex.ID)
	assert.NoError(t, e.svc.Delete(ctx, ex.ID))
}
