package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/mind-engage/examdesk/internal/audit"
	"github.com/mind-engage/examdesk/internal/bank"
	"github.com/mind-engage/examdesk/internal/exam"
	"github.com/mind-engage/examdesk/internal/notify"
	"github.com/mind-engage/examdesk/internal/users"
)

// openTestDB needs MONGO_URI; each test gets its own database.
func openTestDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	client, db, err := Connect(ctx, Config{URI: uri, Database: "examdesk_test_" + uuid.NewString()[:8]})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

func TestPlain(t *testing.T) {
	in := bson.D{
		{Key: "a", Value: bson.A{"x", int32(2)}},
		{Key: "b", Value: bson.D{{Key: "c", Value: int64(3)}}},
	}
	assert.Equal(t, map[string]any{
		"a": []any{"x", float64(2)},
		"b": map[string]any{"c": float64(3)},
	}, plain(in))
}

func TestQuestionStore(t *testing.T) {
	ctx := context.Background()
	s := NewQuestionStore(openTestDB(t))

	mk := func(id, topic string, d bank.Difficulty, at int64) bank.Question {
		return bank.Question{ID: id, Topic: topic, Difficulty: d, Type: bank.TypeEssay, PromptHTML: "p " + id, Points: 1, CreatedAt: at, UpdatedAt: at}
	}
	require.NoError(t, s.Create(ctx,
		mk("q1", "Algebra", bank.Hard, 1),
		mk("q2", "algebra", bank.Easy, 2),
		mk("q3", "Geometry", bank.Medium, 3),
	))
	assert.ErrorIs(t, s.Create(ctx, mk("q4", "x", bank.Easy, 4), mk("q1", "x", bank.Easy, 4)), bank.ErrExists)
	_, err := s.Get(ctx, "q4")
	assert.ErrorIs(t, err, bank.ErrNotFound)

	list, total, err := s.List(ctx, bank.Filter{Topic: "ALGEBRA"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, list, 2)
	assert.Equal(t, "q2", list[0].ID, "easy sorts before hard")

	topics, err := s.Topics(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, 2, topics[0].Total)
	assert.Equal(t, 1, topics[0].Easy)

	pool, err := s.Pool(ctx, []string{"geometry"})
	require.NoError(t, err)
	assert.Equal(t, []string{"q3"}, pool["geometry"][bank.Medium])

	q := mk("q3", "Geometry", bank.Hard, 3)
	require.NoError(t, s.Update(ctx, q))
	got, err := s.Get(ctx, "q3")
	require.NoError(t, err)
	assert.Equal(t, bank.Hard, got.Difficulty)

	require.NoError(t, s.Delete(ctx, "q3"))
	assert.ErrorIs(t, s.Delete(ctx, "q3"), bank.ErrNotFound)
}

func TestExamStore(t *testing.T) {
	ctx := context.Background()
	s := NewExamStore(openTestDB(t))

	e := exam.Exam{ID: "e1", Title: "Midterm", Status: exam.StatusPublished, QuestionIDs: []string{"q1", "q2"}, CreatedAt: 10}
	require.NoError(t, s.CreateExam(ctx, e))
	inUse, err := s.QuestionInUse(ctx, "q2")
	require.NoError(t, err)
	assert.True(t, inUse)

	a := exam.Attempt{ID: "a1", ExamID: "e1", UserID: "u1", Status: exam.AttemptInProgress, StartedAt: 20,
		Responses: map[string]interface{}{"q1": []interface{}{"A", "C"}, "q2": 4.5}}
	require.NoError(t, s.CreateAttempt(ctx, a))
	dup := a
	dup.ID = "a2"
	assert.Error(t, s.CreateAttempt(ctx, dup), "one open attempt per user and exam")

	open, err := s.FindOpenAttempt(ctx, "e1", "u1")
	require.NoError(t, err)
	assert.Equal(t, []any{"A", "C"}, open.Responses["q1"])
	assert.Equal(t, 4.5, open.Responses["q2"])

	open.Status = exam.AttemptSubmitted
	open.SubmittedAt = 30
	require.NoError(t, s.UpdateAttempt(ctx, open))
	_, err = s.FindOpenAttempt(ctx, "e1", "u1")
	assert.ErrorIs(t, err, exam.ErrAttemptNotFound)

	counts, err := s.CountAttemptsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[exam.AttemptSubmitted])

	n, err := s.DeleteUserAttempts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUserStore(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore(openTestDB(t))

	require.NoError(t, s.Create(ctx, users.User{ID: "u1", Username: "alice", Role: users.RoleAdmin, Active: true}))
	assert.ErrorIs(t, s.Create(ctx, users.User{ID: "u2", Username: "alice"}), users.ErrExists)
	require.NoError(t, s.Create(ctx, users.User{ID: "u3", Username: "bob", Role: users.RoleStudent, Active: true}))

	u, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	require.NoError(t, s.SetPassword(ctx, "u1", "hash"))
	u, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "hash", u.PasswordHash)

	admins, err := s.CountActiveAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, admins)

	list, total, err := s.List(ctx, users.ListOpts{Q: "BO"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "bob", list[0].Username)
}

func TestNotificationAndAudit(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	ns := NewNotificationStore(db)
	require.NoError(t, ns.Create(ctx, notify.Notification{ID: "n1", Kind: notify.KindAnnouncement, Title: "a", Status: notify.StatusSent, CreatedAt: 1}))
	require.NoError(t, ns.Create(ctx, notify.Notification{ID: "n2", Kind: notify.KindAnnouncement, Title: "b", Status: notify.StatusSent, CreatedAt: 2}))
	list, total, err := ns.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "n2", list[0].ID)

	al := NewAuditLog(db)
	require.NoError(t, audit.Record(ctx, al, "admin", "exam.publish", "e1", map[string]int{"n": 1}))
	require.NoError(t, audit.Record(ctx, al, "admin", "user.create", "bob", nil))
	events, err := al.Search(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].Seq)
	assert.JSONEq(t, `{"n":1}`, string(events[1].Data))
}
