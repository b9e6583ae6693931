package exam

import (
	"github.com/mind-engage/examdesk/internal/autofill"
	"github.com/mind-engage/examdesk/internal/bank"
	"github.com/mind-engage/examdesk/internal/grading"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusClosed    Status = "closed"
)

func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusPublished || s == StatusClosed
}

type Exam struct {
	ID           string              `json:"id" bson:"_id"`
	Title        string              `json:"title" bson:"title"`
	Description  string              `json:"description,omitempty" bson:"description,omitempty"`
	Status       Status              `json:"status" bson:"status"`
	TimeLimitSec int                 `json:"time_limit_sec" bson:"time_limit_sec"`
	PassMarkPct  float64             `json:"pass_mark_pct" bson:"pass_mark_pct"`
	QuestionIDs  []string            `json:"question_ids" bson:"question_ids"`
	Blueprint    *autofill.Blueprint `json:"blueprint,omitempty" bson:"blueprint,omitempty"`
	Shuffle      bool                `json:"shuffle" bson:"shuffle"`
	OpensAt      int64               `json:"opens_at,omitempty" bson:"opens_at,omitempty"`
	ClosesAt     int64               `json:"closes_at,omitempty" bson:"closes_at,omitempty"`
	CreatedBy    string              `json:"created_by,omitempty" bson:"created_by"`
	CreatedAt    int64               `json:"created_at" bson:"created_at"`
	UpdatedAt    int64               `json:"updated_at" bson:"updated_at"`
	PublishedAt  int64               `json:"published_at,omitempty" bson:"published_at,omitempty"`
}

// Open reports whether attempts may start at unix time now.
func (e Exam) Open(now int64) bool {
	if e.Status != StatusPublished {
		return false
	}
	if e.OpensAt > 0 && now < e.OpensAt {
		return false
	}
	if e.ClosesAt > 0 && now >= e.ClosesAt {
		return false
	}
	return true
}

type ExamSummary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Status        Status `json:"status"`
	QuestionCount int    `json:"question_count"`
	CreatedAt     int64  `json:"created_at"`
	PublishedAt   int64  `json:"published_at,omitempty"`
}

func (e Exam) Summary() ExamSummary {
	return ExamSummary{
		ID: e.ID, Title: e.Title, Status: e.Status, QuestionCount: len(e.QuestionIDs),
		CreatedAt: e.CreatedAt, PublishedAt: e.PublishedAt,
	}
}

// ExamDetail carries the exam with its questions resolved in order.
type ExamDetail struct {
	Exam      Exam            `json:"exam"`
	Questions []bank.Question `json:"questions"`
	Missing   []string        `json:"missing,omitempty"`
}

// ForCandidate strips answer keys and explanations.
func (d ExamDetail) ForCandidate() ExamDetail {
	out := d
	out.Exam.Blueprint = nil
	out.Questions = make([]bank.Question, len(d.Questions))
	for i, q := range d.Questions {
		q.AnswerKey = nil
		q.Explanation = ""
		q.Tags = nil
		out.Questions[i] = q
	}
	out.Missing = nil
	return out
}

type ListOpts struct {
	Q      string
	Status Status
	Limit  int
	Offset int
}

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
)

// ItemResult is the graded outcome of one question in an attempt.
type ItemResult = grading.Result

type Attempt struct {
	ID          string                 `json:"id" bson:"_id"`
	ExamID      string                 `json:"exam_id" bson:"exam_id"`
	UserID      string                 `json:"user_id" bson:"user_id"`
	Status      AttemptStatus          `json:"status" bson:"status"`
	Score       float64                `json:"score" bson:"score"`
	MaxScore    float64                `json:"max_score" bson:"max_score"`
	Responses   map[string]interface{} `json:"responses" bson:"responses"` // questionID -> response payload
	Items       []ItemResult           `json:"items,omitempty" bson:"items,omitempty"`
	StartedAt   int64                  `json:"started_at" bson:"started_at"`
	SubmittedAt int64                  `json:"submitted_at,omitempty" bson:"submitted_at,omitempty"`
}

// Pct is the score as a percentage of MaxScore, or 0 when nothing is scorable.
func (a Attempt) Pct() float64 {
	if a.MaxScore <= 0 {
		return 0
	}
	return 100 * a.Score / a.MaxScore
}

type AttemptListOpts struct {
	ExamID string
	UserID string
	Status AttemptStatus
	Limit  int
	Offset int
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
