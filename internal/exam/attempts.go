package exam

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/mind-engage/examdesk/internal/autofill"
	"github.com/mind-engage/examdesk/internal/bank"
	"github.com/mind-engage/examdesk/internal/grading"
	"github.com/mind-engage/examdesk/internal/metrics"
)

var ErrNotOwner = errors.New("attempt belongs to another user")

// deadlineGrace absorbs client clock and network delay on timed exams.
const deadlineGrace = 30

// Start opens an attempt, or returns the one the user already has in progress.
func (s *Service) Start(ctx context.Context, examID, userID string) (Attempt, bool, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return Attempt{}, false, err
	}
	if a, err := s.store.FindOpenAttempt(ctx, examID, userID); err == nil {
		return a, false, nil
	} else if !errors.Is(err, ErrAttemptNotFound) {
		return Attempt{}, false, err
	}
	now := s.now()
	if !e.Open(now) {
		return Attempt{}, false, ErrNotOpen
	}
	a := Attempt{
		ID:        uuid.NewString(),
		ExamID:    examID,
		UserID:    userID,
		Status:    AttemptInProgress,
		Responses: map[string]interface{}{},
		StartedAt: now,
	}
	if err := s.store.CreateAttempt(ctx, a); err != nil {
		// lost a race against a concurrent start
		if existing, ferr := s.store.FindOpenAttempt(ctx, examID, userID); ferr == nil {
			return existing, false, nil
		}
		return Attempt{}, false, err
	}
	return a, true, nil
}

func (s *Service) ownAttempt(ctx context.Context, attemptID, userID string) (Attempt, Exam, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, Exam{}, err
	}
	if userID != "" && a.UserID != userID {
		return Attempt{}, Exam{}, ErrNotOwner
	}
	e, err := s.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return Attempt{}, Exam{}, err
	}
	return a, e, nil
}

func (s *Service) timeUp(e Exam, a Attempt, now int64) bool {
	if e.TimeLimitSec > 0 && now > a.StartedAt+int64(e.TimeLimitSec)+deadlineGrace {
		return true
	}
	return e.ClosesAt > 0 && now >= e.ClosesAt+deadlineGrace
}

// Save merges responses into an attempt in progress. An empty userID skips
// the ownership check.
func (s *Service) Save(ctx context.Context, attemptID, userID string, responses map[string]interface{}) (Attempt, error) {
	a, e, err := s.ownAttempt(ctx, attemptID, userID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != AttemptInProgress {
		return Attempt{}, ErrAttemptClosed
	}
	if s.timeUp(e, a, s.now()) {
		return Attempt{}, ErrTimeUp
	}
	if a.Responses == nil {
		a.Responses = map[string]interface{}{}
	}
	for k, v := range responses {
		a.Responses[k] = v
	}
	if err := s.store.UpdateAttempt(ctx, a); err != nil {
		return Attempt{}, err
	}
	return a, nil
}

// Submit grades the attempt and closes it. Responses sent with the submit
// are merged first unless the time is up, in which case only what was saved
// counts.
func (s *Service) Submit(ctx context.Context, attemptID, userID string, responses map[string]interface{}) (Attempt, error) {
	a, e, err := s.ownAttempt(ctx, attemptID, userID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != AttemptInProgress {
		return Attempt{}, ErrAttemptClosed
	}
	now := s.now()
	if a.Responses == nil {
		a.Responses = map[string]interface{}{}
	}
	if !s.timeUp(e, a, now) {
		for k, v := range responses {
			a.Responses[k] = v
		}
	}

	qs, _, err := s.resolve(ctx, e.QuestionIDs)
	if err != nil {
		return Attempt{}, err
	}
	gq := make([]grading.Q, 0, len(qs))
	for _, q := range qs {
		gq = append(gq, grading.Q{ID: q.ID, Type: string(q.Type), Points: q.Points, AnswerKey: q.AnswerKey})
	}
	sheet := grading.GradeAll(ctx, s.opts.Grader, gq, a.Responses)

	a.Score = sheet.Score
	a.MaxScore = sheet.MaxScore
	a.Items = sheet.Items
	a.Status = AttemptSubmitted
	a.SubmittedAt = now
	if err := s.store.UpdateAttempt(ctx, a); err != nil {
		return Attempt{}, err
	}
	metrics.AttemptsSubmitted.Inc()
	s.invalidate(ctx, a.ExamID)
	return a, nil
}

func (s *Service) invalidate(ctx context.Context, examID string) {
	if s.opts.Stats == nil {
		return
	}
	if err := s.opts.Stats.Invalidate(ctx, examID); err != nil && s.opts.Log != nil {
		s.opts.Log.Warnf("stats invalidate %s: %v", examID, err)
	}
}

func (s *Service) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return s.store.GetAttempt(ctx, id)
}

// AttemptView is what a candidate sees while taking an exam.
type AttemptView struct {
	Attempt   Attempt    `json:"attempt"`
	Exam      ExamDetail `json:"exam"`
	Remaining int64      `json:"remaining_sec,omitempty"`
}

// View returns the attempt with the exam's questions, keys removed. Shuffled
// exams get a per-attempt order that stays stable across reloads.
func (s *Service) View(ctx context.Context, attemptID, userID string) (AttemptView, error) {
	a, e, err := s.ownAttempt(ctx, attemptID, userID)
	if err != nil {
		return AttemptView{}, err
	}
	qs, _, err := s.resolve(ctx, e.QuestionIDs)
	if err != nil {
		return AttemptView{}, err
	}
	if e.Shuffle {
		order := make([]string, len(qs))
		byID := make(map[string]int, len(qs))
		for i, q := range qs {
			order[i] = q.ID
			byID[q.ID] = i
		}
		autofill.Shuffle(order, attemptSeed(a.ID))
		shuffled := make([]bank.Question, 0, len(qs))
		for _, id := range order {
			shuffled = append(shuffled, qs[byID[id]])
		}
		qs = shuffled
	}
	v := AttemptView{
		Attempt: a,
		Exam:    ExamDetail{Exam: e, Questions: qs}.ForCandidate(),
	}
	if a.Status == AttemptInProgress && e.TimeLimitSec > 0 {
		left := a.StartedAt + int64(e.TimeLimitSec) - s.now()
		if left < 0 {
			left = 0
		}
		v.Remaining = left
	}
	if a.Status == AttemptInProgress {
		v.Attempt.Items = nil
	}
	return v, nil
}

func attemptSeed(id string) int64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return int64(h.Sum64())
}

func (s *Service) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, int, error) {
	opts.Limit, opts.Offset = clampPage(opts.Limit, opts.Offset)
	return s.store.ListAttempts(ctx, opts)
}

func (s *Service) CountAttemptsByStatus(ctx context.Context) (map[AttemptStatus]int, error) {
	return s.store.CountAttemptsByStatus(ctx)
}

// PurgeUser deletes every attempt of a user and refreshes the statistics of
// the exams involved.
func (s *Service) PurgeUser(ctx context.Context, userID string) (int, error) {
	exams := map[string]bool{}
	for offset := 0; ; offset += maxLimit {
		page, _, err := s.store.ListAttempts(ctx, AttemptListOpts{UserID: userID, Limit: maxLimit, Offset: offset})
		if err != nil {
			return 0, err
		}
		for _, a := range page {
			exams[a.ExamID] = true
		}
		if len(page) < maxLimit {
			break
		}
	}
	n, err := s.store.DeleteUserAttempts(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("delete attempts: %w", err)
	}
	for id := range exams {
		s.invalidate(ctx, id)
	}
	return n, nil
}
