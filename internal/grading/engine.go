package grading

import (
	"context"
)

// Q is the part of a question needed for grading.
type Q struct {
	ID        string
	Type      string
	Points    float64
	AnswerKey []string
}

// Result is the outcome of grading one response.
type Result struct {
	QuestionID  string   `json:"question_id" bson:"question_id"`
	AutoPoints  float64  `json:"auto_points" bson:"auto_points"`
	MaxPoints   float64  `json:"max_points" bson:"max_points"`
	NeedsManual bool     `json:"needs_manual,omitempty" bson:"needs_manual,omitempty"`
	Feedback    []string `json:"feedback,omitempty" bson:"feedback,omitempty"`
}

// Full reports whether the response earned every available point.
func (r Result) Full() bool {
	return !r.NeedsManual && r.MaxPoints > 0 && r.AutoPoints >= r.MaxPoints
}

func (r *Result) note(msg string) { r.Feedback = append(r.Feedback, msg) }

// Grader scores a response to one question. A malformed response is an error.
type Grader interface {
	Grade(ctx context.Context, q Q, response any) (Result, error)
}

type scorer func(q Q, response any) (Result, error)

type Option func(*settings)

type settings struct {
	maxEdit      int
	partialMulti bool
}

// WithMaxEditDistance sets how many edits a short answer may be off by and
// still earn half credit. Zero disables fuzzy matching.
func WithMaxEditDistance(n int) Option { return func(s *settings) { s.maxEdit = n } }

// WithPartialMulti toggles proportional credit on multi-select questions
// answered without any wrong choice.
func WithPartialMulti(on bool) Option { return func(s *settings) { s.partialMulti = on } }

type typeGrader map[string]scorer

// NewDefaultGrader knows every objective question type plus essay, which is
// always left for manual marking.
func NewDefaultGrader(opts ...Option) Grader {
	st := settings{maxEdit: 1, partialMulti: true}
	for _, o := range opts {
		o(&st)
	}
	return typeGrader{
		"mcq_single": singleChoice,
		"true_false": singleChoice,
		"mcq_multi":  multiChoice(st.partialMulti),
		"short_word": shortAnswer(st.maxEdit),
		"numeric":    numericAnswer,
		"essay":      manual("manual grading required"),
	}
}

func (g typeGrader) Grade(_ context.Context, q Q, response any) (Result, error) {
	score, ok := g[q.Type]
	if !ok {
		score = manual("no strategy available")
	}
	res, err := score(q, response)
	res.QuestionID = q.ID
	res.MaxPoints = q.Points
	return res, err
}

func manual(reason string) scorer {
	return func(Q, any) (Result, error) {
		return Result{NeedsManual: true, Feedback: []string{reason}}, nil
	}
}

// Sheet is the graded view of a whole response set.
type Sheet struct {
	Score    float64  `json:"score"`
	MaxScore float64  `json:"max_score"`
	Items    []Result `json:"items"`
}

// GradeAll grades qs in order. A missing or malformed response scores zero
// and carries the reason as feedback.
func GradeAll(ctx context.Context, g Grader, qs []Q, responses map[string]any) Sheet {
	sh := Sheet{Items: make([]Result, 0, len(qs))}
	for _, q := range qs {
		sh.MaxScore += q.Points
		res := Result{QuestionID: q.ID, MaxPoints: q.Points}
		if resp := responses[q.ID]; resp == nil {
			res.note("no response")
		} else if graded, err := g.Grade(ctx, q, resp); err != nil {
			res.note(err.Error())
		} else {
			res = graded
		}
		sh.Score += res.AutoPoints
		sh.Items = append(sh.Items, res)
	}
	return sh
}
