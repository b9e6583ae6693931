package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/examdesk/internal/config"
	"github.com/mind-engage/examdesk/internal/db"
	"github.com/mind-engage/examdesk/internal/logger"
	"github.com/mind-engage/examdesk/internal/users"
)

type fakeNotifier struct {
	mu   sync.Mutex
	err  error
	sent []Message
}

func (*fakeNotifier) Name() string { return "fake" }

func (f *fakeNotifier) Notify(_ context.Context, m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	return f.err
}

type staticUsers []users.User

func (s staticUsers) ActiveUsers(context.Context) ([]users.User, error) { return s, nil }

var directory = staticUsers{
	{ID: "u1", Username: "ann", Email: "ann@example.com", Role: users.RoleStudent, Active: true},
	{ID: "u2", Username: "ben", Role: users.RoleStudent, Active: true},
	{ID: "u3", Username: "cat", DisplayName: "Cat Staff", Email: "cat@example.com", Role: users.RoleStaff, Active: true},
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Prefix: "notify", Output: io.Discard})
}

func newTestService(t *testing.T, n Notifier) *Service {
	t.Helper()
	sqlDB, err := db.Open(context.Background(), db.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return NewService(NewSQLStore(sqlDB), directory, n, testLogger())
}

func TestSendResolvesAudience(t *testing.T) {
	ctx := context.Background()
	fn := &fakeNotifier{}
	s := newTestService(t, fn)

	n, err := s.Send(ctx, Request{
		Kind:      KindExamPublished,
		Title:     "Midterm is open",
		Audience:  Audience{Roles: []string{"student"}, UserIDs: []string{"u3"}},
		ExamID:    "e1",
		CreatedBy: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, n.Status)
	assert.Equal(t, 3, n.Recipients)
	assert.Equal(t, "fake", n.Channel)
	assert.NotZero(t, n.SentAt)

	require.Len(t, fn.sent, 1)
	assert.Equal(t, "Cat Staff", fn.sent[0].Recipients[2].Name)
	assert.Equal(t, "e1", fn.sent[0].ExamID)

	list, total, err := s.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, n.ID, list[0].ID)
	assert.Equal(t, []string{"student"}, list[0].Audience.Roles)
}

func TestSendErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, &fakeNotifier{})

	_, err := s.Send(ctx, Request{Title: "Hi"})
	assert.ErrorIs(t, err, ErrNoRecipients)

	_, err = s.Send(ctx, Request{Title: "Hi", Audience: Audience{UserIDs: []string{"ghost"}}})
	assert.ErrorIs(t, err, ErrNoRecipients)

	_, err = s.Send(ctx, Request{Title: "  ", Audience: Audience{All: true}})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = s.Send(ctx, Request{Kind: "party", Title: "Hi", Audience: Audience{All: true}})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSendRecordsFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, &fakeNotifier{err: errors.New("boom")})

	n, err := s.Send(ctx, Request{Title: "Heads up", Audience: Audience{All: true}})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, n.Status)
	assert.Equal(t, "boom", n.Error)
	assert.Equal(t, KindAnnouncement, n.Kind)

	list, _, err := s.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, StatusFailed, list[0].Status)
}

func TestFunctionNotifier(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	msg := Message{ID: "n1", Kind: KindResultsReleased, Title: "Results", Recipients: []Recipient{{UserID: "u1"}}}
	require.NoError(t, NewFunctionNotifier(srv.URL, "s3cret").Notify(context.Background(), msg))
	assert.Equal(t, msg, got)

	err := NewFunctionNotifier(srv.URL, "wrong").Notify(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

type fakePublisher struct {
	exchange, key string
	msg           amqp091.Publishing
}

func (p *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	p.exchange, p.key, p.msg = exchange, key, msg
	return nil
}

func TestAMQPNotifier(t *testing.T) {
	pub := &fakePublisher{}
	a := NewAMQPNotifier(pub, "examdesk.notifications")
	require.NoError(t, a.Notify(context.Background(), Message{ID: "n2", Kind: KindExamClosed, Title: "Closed"}))

	assert.Equal(t, "examdesk.notifications", pub.exchange)
	assert.Equal(t, "notification.exam_closed", pub.key)
	assert.Equal(t, amqp091.Persistent, pub.msg.DeliveryMode)
	assert.Equal(t, "n2", pub.msg.MessageId)
	var m Message
	require.NoError(t, json.Unmarshal(pub.msg.Body, &m))
	assert.Equal(t, "Closed", m.Title)
}

type fakeBroker struct {
	fakeNotifier
	closed int
}

func (b *fakeBroker) Close() error {
	b.closed++
	return nil
}

func stubBroker(t *testing.T) *fakeBroker {
	t.Helper()
	b := &fakeBroker{}
	orig := dialAMQP
	dialAMQP = func(string, string) (brokerNotifier, error) { return b, nil }
	t.Cleanup(func() { dialAMQP = orig })
	return b
}

func TestNewClosesBrokerOnBadConfig(t *testing.T) {
	b := stubBroker(t)
	cfg := config.Config{NotifyChannels: []string{"amqp", "sendgrid"}, AMQPURL: "amqp://broker"}

	chans, closeFn, err := New(cfg, testLogger())
	require.Error(t, err)
	assert.Nil(t, chans)
	assert.Equal(t, 1, b.closed)
	assert.NoError(t, closeFn())
	assert.Equal(t, 1, b.closed)
}

func TestNewBuildsChannels(t *testing.T) {
	b := stubBroker(t)
	cfg := config.Config{NotifyChannels: []string{"log", "amqp"}, AMQPURL: "amqp://broker"}

	chans, closeFn, err := New(cfg, testLogger())
	require.NoError(t, err)
	require.Len(t, chans, 2)
	assert.Zero(t, b.closed)
	require.NoError(t, chans.Notify(context.Background(), Message{ID: "n1", Kind: KindAnnouncement}))
	assert.Len(t, b.sent, 1)

	require.NoError(t, closeFn())
	assert.Equal(t, 1, b.closed)
}

func TestSendGridNotifier(t *testing.T) {
	var (
		mu    sync.Mutex
		tos   []string
		auths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		var body struct {
			Personalizations []struct {
				To []struct {
					Email string `json:"email"`
				} `json:"to"`
			} `json:"personalizations"`
		}
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.NewDecoder(bytes.NewReader(b)).Decode(&body))
		mu.Lock()
		tos = append(tos, body.Personalizations[0].To[0].Email)
		auths = append(auths, r.Header.Get("Authorization"))
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sg := NewSendGridNotifier("SG.key", "examdesk", "noreply@example.com").WithHost(srv.URL)
	err := sg.Notify(context.Background(), Message{
		Kind: KindAnnouncement, Title: "Hello", Body: "Line one\nLine two",
		Recipients: []Recipient{{UserID: "u1", Email: "ann@example.com"}, {UserID: "u2"}, {UserID: "u3", Email: "cat@example.com"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ann@example.com", "cat@example.com"}, tos)
	assert.Equal(t, "Bearer SG.key", auths[0])

	err = sg.Notify(context.Background(), Message{Title: "x", Recipients: []Recipient{{UserID: "u2"}}})
	assert.Error(t, err)
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &fakeNotifier{}
	bad := LogNotifier{Log: testLogger()}
	m := Multi{ok, bad, &fakeNotifier{err: errors.New("down")}}
	assert.Equal(t, "fake,log,fake", m.Name())

	err := m.Notify(context.Background(), Message{Kind: KindAnnouncement})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fake: down")
	assert.Len(t, ok.sent, 1)
}
