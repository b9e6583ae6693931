package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/examdesk/internal/logger"
	"github.com/mind-engage/examdesk/internal/users"
)

// UserLister supplies the accounts an audience is resolved against.
type UserLister interface {
	ActiveUsers(ctx context.Context) ([]users.User, error)
}

type Service struct {
	store    Store
	users    UserLister
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time
}

func NewService(store Store, ul UserLister, n Notifier, log *logger.Logger) *Service {
	return &Service{store: store, users: ul, notifier: n, log: log, now: time.Now}
}

// Resolve lists active users matching the audience.
func (s *Service) Resolve(ctx context.Context, a Audience) ([]Recipient, error) {
	if a.Empty() {
		return nil, nil
	}
	all, err := s.users.ActiveUsers(ctx)
	if err != nil {
		return nil, err
	}
	roles := map[string]bool{}
	for _, r := range a.Roles {
		roles[strings.ToLower(r)] = true
	}
	ids := map[string]bool{}
	for _, id := range a.UserIDs {
		ids[id] = true
	}
	var out []Recipient
	for _, u := range all {
		if a.All || roles[string(u.Role)] || ids[u.ID] {
			out = append(out, Recipient{UserID: u.ID, Email: u.Email, Name: u.Name()})
		}
	}
	return out, nil
}

// Send delivers a notification and records it. Delivery failures are stored
// with status failed rather than returned.
func (s *Service) Send(ctx context.Context, req Request) (Notification, error) {
	kind, err := ParseKind(string(req.Kind))
	if err != nil {
		return Notification{}, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return Notification{}, fmt.Errorf("%w: title required", ErrInvalid)
	}
	if req.Audience.Empty() {
		return Notification{}, ErrNoRecipients
	}
	rcpts, err := s.Resolve(ctx, req.Audience)
	if err != nil {
		return Notification{}, err
	}
	if len(rcpts) == 0 {
		return Notification{}, ErrNoRecipients
	}

	n := Notification{
		ID:         uuid.NewString(),
		Kind:       kind,
		Title:      title,
		Body:       req.Body,
		Audience:   req.Audience,
		ExamID:     req.ExamID,
		Recipients: len(rcpts),
		Channel:    s.notifier.Name(),
		CreatedBy:  req.CreatedBy,
		CreatedAt:  s.now().Unix(),
	}
	err = s.notifier.Notify(ctx, Message{
		ID: n.ID, Kind: kind, Title: title, Body: req.Body, ExamID: req.ExamID, Recipients: rcpts,
	})
	if err != nil {
		n.Status = StatusFailed
		n.Error = err.Error()
		if s.log != nil {
			s.log.Error("notification delivery failed", err, map[string]any{"notification_id": n.ID, "kind": string(kind)})
		}
	} else {
		n.Status = StatusSent
		n.SentAt = s.now().Unix()
	}
	if err := s.store.Create(ctx, n); err != nil {
		return n, fmt.Errorf("record notification: %w", err)
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]Notification, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, limit, offset)
}
