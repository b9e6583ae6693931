package stats

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mind-engage/examdesk/internal/bank"
	"github.com/mind-engage/examdesk/internal/exam"
	"github.com/mind-engage/examdesk/internal/logger"
	"github.com/mind-engage/examdesk/internal/metrics"
	"github.com/mind-engage/examdesk/internal/users"
)

const (
	examKeyPrefix = "examdesk:stats:exam:"
	overviewKey   = "examdesk:stats:overview"
)

type ExamSource interface {
	GetExam(ctx context.Context, id string) (exam.Exam, error)
	ExamAttempts(ctx context.Context, examID string) ([]exam.Attempt, error)
	CountExamsByStatus(ctx context.Context) (map[exam.Status]int, error)
	CountAttemptsByStatus(ctx context.Context) (map[exam.AttemptStatus]int, error)
}

type QuestionSource interface {
	GetMany(ctx context.Context, ids []string) (map[string]bank.Question, error)
	Topics(ctx context.Context) ([]bank.TopicCount, error)
}

type UserCounter interface {
	CountByRole(ctx context.Context) (map[users.Role]int, error)
}

type Service struct {
	exams     ExamSource
	questions QuestionSource
	users     UserCounter
	cache     Cache
	ttl       time.Duration
	log       *logger.Logger
	now       func() time.Time
}

func NewService(exams ExamSource, questions QuestionSource, uc UserCounter, cache Cache, ttl time.Duration, log *logger.Logger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{exams: exams, questions: questions, users: uc, cache: cache, ttl: ttl, log: log, now: time.Now}
}

func (s *Service) cached(ctx context.Context, key string, dst any) bool {
	b, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		if json.Unmarshal(b, dst) == nil {
			metrics.StatsCache.WithLabelValues("hit").Inc()
			return true
		}
		metrics.StatsCache.WithLabelValues("error").Inc()
	case errors.Is(err, ErrCacheMiss):
		metrics.StatsCache.WithLabelValues("miss").Inc()
	default:
		metrics.StatsCache.WithLabelValues("error").Inc()
		s.warnf("stats cache get %s: %v", key, err)
	}
	return false
}

func (s *Service) store(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
		s.warnf("stats cache set %s: %v", key, err)
	}
}

func (s *Service) warnf(format string, args ...any) {
	if s.log != nil {
		s.log.Warnf(format, args...)
	}
}

// Exam returns statistics for one exam, served from cache while fresh.
func (s *Service) Exam(ctx context.Context, examID string) (ExamStats, error) {
	var st ExamStats
	if s.cached(ctx, examKeyPrefix+examID, &st) {
		return st, nil
	}
	e, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return ExamStats{}, err
	}
	attempts, err := s.exams.ExamAttempts(ctx, examID)
	if err != nil {
		return ExamStats{}, err
	}
	qs, err := s.questions.GetMany(ctx, e.QuestionIDs)
	if err != nil {
		return ExamStats{}, err
	}
	st = Compute(e, qs, attempts, s.now().Unix())
	s.store(ctx, examKeyPrefix+examID, st)
	return st, nil
}

// Invalidate drops the cached statistics of an exam and the overview.
func (s *Service) Invalidate(ctx context.Context, examID string) error {
	return s.cache.Del(ctx, examKeyPrefix+examID, overviewKey)
}

func (s *Service) Overview(ctx context.Context) (Overview, error) {
	var ov Overview
	if s.cached(ctx, overviewKey, &ov) {
		return ov, nil
	}
	topics, err := s.questions.Topics(ctx)
	if err != nil {
		return Overview{}, err
	}
	exams, err := s.exams.CountExamsByStatus(ctx)
	if err != nil {
		return Overview{}, err
	}
	attempts, err := s.exams.CountAttemptsByStatus(ctx)
	if err != nil {
		return Overview{}, err
	}
	ov = Overview{
		QuestionsByTopic: topics,
		ExamsByStatus:    exams,
		AttemptsByStatus: attempts,
		Submitted:        attempts[exam.AttemptSubmitted],
		ComputedAt:       s.now().Unix(),
	}
	for _, n := range attempts {
		ov.Attempts += n
	}
	if s.users != nil {
		if ov.UsersByRole, err = s.users.CountByRole(ctx); err != nil {
			return Overview{}, err
		}
	}
	s.store(ctx, overviewKey, ov)
	return ov, nil
}
