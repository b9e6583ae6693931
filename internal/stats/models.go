package stats

import (
	"github.com/mind-engage/examdesk/internal/bank"
	"github.com/mind-engage/examdesk/internal/exam"
	"github.com/mind-engage/examdesk/internal/users"
)

const Buckets = 10

type ExamStats struct {
	ExamID      string         `json:"exam_id"`
	Attempts    int            `json:"attempts"`
	Submitted   int            `json:"submitted"`
	InProgress  int            `json:"in_progress"`
	UniqueUsers int            `json:"unique_users"`
	Scored      int            `json:"scored"`
	MeanPct     float64        `json:"mean_pct"`
	MedianPct   float64        `json:"median_pct"`
	MinPct      float64        `json:"min_pct"`
	MaxPct      float64        `json:"max_pct"`
	StddevPct   float64        `json:"stddev_pct"`
	PassRate    float64        `json:"pass_rate"`
	Passed      int            `json:"passed"`
	Histogram   [Buckets]int   `json:"histogram"`
	Questions   []QuestionStat `json:"questions"`
	Topics      []TopicStat    `json:"topics"`
	ComputedAt  int64          `json:"computed_at"`
}

// QuestionStat counts full-credit answers; Facility is Correct/Answered.
type QuestionStat struct {
	QuestionID string          `json:"question_id"`
	Topic      string          `json:"topic"`
	Difficulty bank.Difficulty `json:"difficulty"`
	Answered   int             `json:"answered"`
	Correct    int             `json:"correct"`
	Facility   float64         `json:"facility"`
	AvgPoints  float64         `json:"avg_points"`
}

type TopicStat struct {
	Topic    string  `json:"topic"`
	Answered int     `json:"answered"`
	Correct  int     `json:"correct"`
	Facility float64 `json:"facility"`
}

// Overview feeds the dashboard landing page.
type Overview struct {
	QuestionsByTopic []bank.TopicCount          `json:"questions_by_topic"`
	ExamsByStatus    map[exam.Status]int        `json:"exams_by_status"`
	UsersByRole      map[users.Role]int         `json:"users_by_role"`
	Attempts         int                        `json:"attempts"`
	Submitted        int                        `json:"submitted"`
	AttemptsByStatus map[exam.AttemptStatus]int `json:"attempts_by_status"`
	ComputedAt       int64                      `json:"computed_at"`
}
