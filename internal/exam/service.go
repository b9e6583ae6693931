package exam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/examdesk/internal/bank"
	"github.com/mind-engage/examdesk/internal/grading"
	"github.com/mind-engage/examdesk/internal/logger"
	"github.com/mind-engage/examdesk/internal/notify"
	qtiexport "github.com/mind-engage/examdesk/internal/qti/export"
	"github.com/mind-engage/examdesk/internal/users"
)

// QuestionSource resolves bank questions.
type QuestionSource interface {
	GetMany(ctx context.Context, ids []string) (map[string]bank.Question, error)
	Pool(ctx context.Context, topics []string) (bank.Pool, error)
}

// Notifier sends a notification to an audience.
type Notifier interface {
	Send(ctx context.Context, req notify.Request) (notify.Notification, error)
}

// Invalidator drops cached statistics of an exam.
type Invalidator interface {
	Invalidate(ctx context.Context, examID string) error
}

// Directory looks up account details for result exports.
type Directory interface {
	Get(ctx context.Context, idOrUsername string) (users.User, error)
}

type Options struct {
	Grader     grading.Grader
	Notifier   Notifier
	Stats      Invalidator
	Directory  Directory
	Media      qtiexport.MediaFetcher
	AutoNotify bool
	Log        *logger.Logger
	Now        func() time.Time
}

type Service struct {
	store     Store
	questions QuestionSource
	opts      Options
}

func NewService(store Store, questions QuestionSource, opts Options) *Service {
	if opts.Grader == nil {
		opts.Grader = grading.NewDefaultGrader()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: store, questions: questions, opts: opts}
}

// SetStats wires the statistics cache after construction.
func (s *Service) SetStats(inv Invalidator) { s.opts.Stats = inv }

func (s *Service) now() int64 { return s.opts.Now().Unix() }

// ExamInput is the writable part of an exam.
type ExamInput struct {
	Title        string   `json:"title" validate:"required,max=200"`
	Description  string   `json:"description" validate:"max=5000"`
	TimeLimitSec int      `json:"time_limit_sec" validate:"gte=0"`
	PassMarkPct  float64  `json:"pass_mark_pct" validate:"gte=0,lte=100"`
	QuestionIDs  []string `json:"question_ids"`
	Shuffle      bool     `json:"shuffle"`
	OpensAt      int64    `json:"opens_at" validate:"gte=0"`
	ClosesAt     int64    `json:"closes_at" validate:"gte=0"`
}

// Patch changes selected fields; nil leaves a field as is. Once an exam has
// left draft only Title, Description and ClosesAt may change.
type Patch struct {
	Title        *string   `json:"title" validate:"omitempty,max=200"`
	Description  *string   `json:"description" validate:"omitempty,max=5000"`
	TimeLimitSec *int      `json:"time_limit_sec" validate:"omitempty,gte=0"`
	PassMarkPct  *float64  `json:"pass_mark_pct" validate:"omitempty,gte=0,lte=100"`
	QuestionIDs  *[]string `json:"question_ids"`
	Shuffle      *bool     `json:"shuffle"`
	OpensAt      *int64    `json:"opens_at" validate:"omitempty,gte=0"`
	ClosesAt     *int64    `json:"closes_at" validate:"omitempty,gte=0"`
}

func (p Patch) touchesFrozen() bool {
	return p.TimeLimitSec != nil || p.PassMarkPct != nil || p.QuestionIDs != nil || p.Shuffle != nil || p.OpensAt != nil
}

func validateExam(e Exam) error {
	var problems []string
	if strings.TrimSpace(e.Title) == "" {
		problems = append(problems, "title is required")
	}
	if e.TimeLimitSec < 0 {
		problems = append(problems, "time_limit_sec must not be negative")
	}
	if e.PassMarkPct < 0 || e.PassMarkPct > 100 {
		problems = append(problems, "pass_mark_pct must be between 0 and 100")
	}
	if e.OpensAt > 0 && e.ClosesAt > 0 && e.OpensAt >= e.ClosesAt {
		problems = append(problems, "opens_at must be before closes_at")
	}
	seen := map[string]bool{}
	for _, id := range e.QuestionIDs {
		if id == "" {
			problems = append(problems, "empty question id")
			continue
		}
		if seen[id] {
			problems = append(problems, "question "+id+" listed twice")
		}
		seen[id] = true
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in ExamInput, actor string) (Exam, error) {
	now := s.now()
	e := Exam{
		ID:           uuid.NewString(),
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		Status:       StatusDraft,
		TimeLimitSec: in.TimeLimitSec,
		PassMarkPct:  in.PassMarkPct,
		QuestionIDs:  in.QuestionIDs,
		Shuffle:      in.Shuffle,
		OpensAt:      in.OpensAt,
		ClosesAt:     in.ClosesAt,
		CreatedBy:    actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if e.QuestionIDs == nil {
		e.QuestionIDs = []string{}
	}
	if err := validateExam(e); err != nil {
		return Exam{}, err
	}
	if err := s.store.CreateExam(ctx, e); err != nil {
		return Exam{}, err
	}
	s.invalidate(ctx, e.ID)
	return e, nil
}

func (s *Service) Get(ctx context.Context, id string) (Exam, error) {
	return s.store.GetExam(ctx, id)
}

// Detail resolves the exam's questions in order and lists ids the bank no
// longer has.
func (s *Service) Detail(ctx context.Context, id string) (ExamDetail, error) {
	e, err := s.store.GetExam(ctx, id)
	if err != nil {
		return ExamDetail{}, err
	}
	qs, missing, err := s.resolve(ctx, e.QuestionIDs)
	if err != nil {
		return ExamDetail{}, err
	}
	return ExamDetail{Exam: e, Questions: qs, Missing: missing}, nil
}

func (s *Service) resolve(ctx context.Context, ids []string) ([]bank.Question, []string, error) {
	byID, err := s.questions.GetMany(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	qs := make([]bank.Question, 0, len(ids))
	var missing []string
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		qs = append(qs, q)
	}
	return qs, missing, nil
}

func (s *Service) Update(ctx context.Context, id string, p Patch) (Exam, error) {
	e, err := s.store.GetExam(ctx, id)
	if err != nil {
		return Exam{}, err
	}
	if e.Status != StatusDraft && p.touchesFrozen() {
		return Exam{}, ErrFrozen
	}
	if p.Title != nil {
		e.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		e.Description = strings.TrimSpace(*p.Description)
	}
	if p.TimeLimitSec != nil {
		e.TimeLimitSec = *p.TimeLimitSec
	}
	if p.PassMarkPct != nil {
		e.PassMarkPct = *p.PassMarkPct
	}
	if p.QuestionIDs != nil {
		e.QuestionIDs = append([]string{}, (*p.QuestionIDs)...)
	}
	if p.Shuffle != nil {
		e.Shuffle = *p.Shuffle
	}
	if p.OpensAt != nil {
		e.OpensAt = *p.OpensAt
	}
	if p.ClosesAt != nil {
		e.ClosesAt = *p.ClosesAt
	}
	if err := validateExam(e); err != nil {
		return Exam{}, err
	}
	e.UpdatedAt = s.now()
	if err := s.store.UpdateExam(ctx, e); err != nil {
		return Exam{}, err
	}
	return e, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.GetExam(ctx, id); err != nil {
		return err
	}
	n, err := s.store.CountAttempts(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d attempts", ErrHasAttempts, n)
	}
	if err := s.store.DeleteExam(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) List(ctx context.Context, opts ListOpts) ([]ExamSummary, int, error) {
	opts.Limit, opts.Offset = clampPage(opts.Limit, opts.Offset)
	exams, total, err := s.store.ListExams(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	out := make([]ExamSummary, 0, len(exams))
	for _, e := range exams {
		out = append(out, e.Summary())
	}
	return out, total, nil
}

func (s *Service) CountByStatus(ctx context.Context) (map[Status]int, error) {
	return s.store.CountExamsByStatus(ctx)
}

// Publish moves a draft to published once it is complete.
func (s *Service) Publish(ctx context.Context, id, actor string) (Exam, error) {
	e, err := s.store.GetExam(ctx, id)
	if err != nil {
		return Exam{}, err
	}
	if e.Status != StatusDraft {
		return Exam{}, fmt.Errorf("%w: %s exam cannot be published", ErrStatus, e.Status)
	}
	if len(e.QuestionIDs) == 0 {
		return Exam{}, fmt.Errorf("%w: exam has no questions", ErrNotReady)
	}
	if err := validateExam(e); err != nil {
		return Exam{}, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	_, missing, err := s.resolve(ctx, e.QuestionIDs)
	if err != nil {
		return Exam{}, err
	}
	if len(missing) > 0 {
		return Exam{}, fmt.Errorf("%w: unknown questions %s", ErrNotReady, strings.Join(missing, ", "))
	}

	now := s.now()
	e.Status = StatusPublished
	e.PublishedAt = now
	e.UpdatedAt = now
	if err := s.store.UpdateExam(ctx, e); err != nil {
		return Exam{}, err
	}
	s.invalidate(ctx, e.ID)
	if s.opts.AutoNotify {
		s.announce(ctx, notify.Request{
			Kind:      notify.KindExamPublished,
			Title:     e.Title + " is now available",
			Body:      e.Description,
			Audience:  notify.Audience{Roles: []string{string(users.RoleStudent)}},
			ExamID:    e.ID,
			CreatedBy: actor,
		})
	}
	return e, nil
}

func (s *Service) Close(ctx context.Context, id, actor string) (Exam, error) {
	e, err := s.store.GetExam(ctx, id)
	if err != nil {
		return Exam{}, err
	}
	if e.Status != StatusPublished {
		return Exam{}, fmt.Errorf("%w: %s exam cannot be closed", ErrStatus, e.Status)
	}
	e.Status = StatusClosed
	e.UpdatedAt = s.now()
	if err := s.store.UpdateExam(ctx, e); err != nil {
		return Exam{}, err
	}
	s.invalidate(ctx, e.ID)
	if s.opts.AutoNotify {
		s.announce(ctx, notify.Request{
			Kind:      notify.KindExamClosed,
			Title:     e.Title + " is closed",
			Audience:  notify.Audience{Roles: []string{string(users.RoleStudent)}},
			ExamID:    e.ID,
			CreatedBy: actor,
		})
	}
	return e, nil
}

// announce sends an automatic notification; failures are logged only.
func (s *Service) announce(ctx context.Context, req notify.Request) {
	if s.opts.Notifier == nil {
		return
	}
	_, err := s.opts.Notifier.Send(ctx, req)
	if err == nil || errors.Is(err, notify.ErrNoRecipients) {
		return
	}
	if s.opts.Log != nil {
		s.opts.Log.Error("auto notification failed", err, map[string]any{"exam_id": req.ExamID, "kind": string(req.Kind)})
	}
}

// ReleaseResults tells every user with a submitted attempt that results are
// available.
func (s *Service) ReleaseResults(ctx context.Context, id, actor string) (notify.Notification, error) {
	e, err := s.store.GetExam(ctx, id)
	if err != nil {
		return notify.Notification{}, err
	}
	if e.Status == StatusDraft {
		return notify.Notification{}, fmt.Errorf("%w: draft exam has no results", ErrStatus)
	}
	if s.opts.Notifier == nil {
		return notify.Notification{}, errors.New("notifications are not configured")
	}
	attempts, err := s.store.ExamAttempts(ctx, id)
	if err != nil {
		return notify.Notification{}, err
	}
	seen := map[string]bool{}
	var ids []string
	for _, a := range attempts {
		if a.Status == AttemptSubmitted && !seen[a.UserID] {
			seen[a.UserID] = true
			ids = append(ids, a.UserID)
		}
	}
	if len(ids) == 0 {
		return notify.Notification{}, notify.ErrNoRecipients
	}
	return s.opts.Notifier.Send(ctx, notify.Request{
		Kind:      notify.KindResultsReleased,
		Title:     "Results for " + e.Title,
		Body:      "Your results are now available.",
		Audience:  notify.Audience{UserIDs: ids},
		ExamID:    e.ID,
		CreatedBy: actor,
	})
}
