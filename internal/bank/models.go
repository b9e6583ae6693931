package bank

import (
	"fmt"
	"strings"
)

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Difficulties lists every level in ascending order.
var Difficulties = []Difficulty{Easy, Medium, Hard}

func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case Easy, Medium, Hard:
		return d, nil
	}
	return "", fmt.Errorf("%w: difficulty %q", ErrInvalid, s)
}

// Rank orders difficulties: easy=0, medium=1, hard=2, unknown=3.
func (d Difficulty) Rank() int {
	switch d {
	case Easy:
		return 0
	case Medium:
		return 1
	case Hard:
		return 2
	}
	return 3
}

type QuestionType string

const (
	TypeMCQSingle QuestionType = "mcq_single"
	TypeMCQMulti  QuestionType = "mcq_multi"
	TypeTrueFalse QuestionType = "true_false"
	TypeShortWord QuestionType = "short_word"
	TypeNumeric   QuestionType = "numeric"
	TypeEssay     QuestionType = "essay"
)

func (t QuestionType) Valid() bool {
	switch t {
	case TypeMCQSingle, TypeMCQMulti, TypeTrueFalse, TypeShortWord, TypeNumeric, TypeEssay:
		return true
	}
	return false
}

func (t QuestionType) HasChoices() bool {
	return t == TypeMCQSingle || t == TypeMCQMulti || t == TypeTrueFalse
}

type Choice struct {
	ID        string `json:"id" bson:"id"`
	LabelHTML string `json:"label_html" bson:"label_html"`
}

type Question struct {
	ID          string       `json:"id" bson:"_id"`
	Topic       string       `json:"topic" bson:"topic"`
	Difficulty  Difficulty   `json:"difficulty" bson:"difficulty"`
	Type        QuestionType `json:"type" bson:"type"`
	PromptHTML  string       `json:"prompt_html" bson:"prompt_html"`
	Choices     []Choice     `json:"choices,omitempty" bson:"choices,omitempty"`
	AnswerKey   []string     `json:"answer_key,omitempty" bson:"answer_key,omitempty"`
	Points      float64      `json:"points" bson:"points"`
	Explanation string       `json:"explanation,omitempty" bson:"explanation,omitempty"`
	Tags        []string     `json:"tags,omitempty" bson:"tags,omitempty"`
	MediaKeys   []string     `json:"media_keys,omitempty" bson:"media_keys,omitempty"`
	CreatedBy   string       `json:"created_by,omitempty" bson:"created_by"`
	CreatedAt   int64        `json:"created_at" bson:"created_at"`
	UpdatedAt   int64        `json:"updated_at" bson:"updated_at"`

	// lower-cased topic used for matching; mirrors Topic
	TopicKey string `json:"-" bson:"topic_key"`
}

type Filter struct {
	Topic      string
	Difficulty Difficulty
	Type       QuestionType
	Tag        string
	Q          string
	IDs        []string
	Limit      int
	Offset     int
}

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Clamp applies the default and maximum page size.
func (f Filter) Clamp() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

type TopicCount struct {
	Topic  string `json:"topic"`
	Easy   int    `json:"easy"`
	Medium int    `json:"medium"`
	Hard   int    `json:"hard"`
	Total  int    `json:"total"`
}

func (tc *TopicCount) Add(d Difficulty, n int) {
	switch d {
	case Easy:
		tc.Easy += n
	case Medium:
		tc.Medium += n
	case Hard:
		tc.Hard += n
	default:
		return
	}
	tc.Total += n
}

// Pool holds question ids keyed by topic key then difficulty.
type Pool map[string]map[Difficulty][]string

func (p Pool) Add(topicKey string, d Difficulty, id string) {
	m, ok := p[topicKey]
	if !ok {
		m = map[Difficulty][]string{}
		p[topicKey] = m
	}
	m[d] = append(m[d], id)
}

// TopicKey normalises a topic name for case-insensitive matching.
func TopicKey(topic string) string {
	return strings.ToLower(strings.Join(strings.Fields(topic), " "))
}
