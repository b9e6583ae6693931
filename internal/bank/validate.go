package bank

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("question not found")
	ErrInvalid  = errors.New("invalid question")
	ErrInUse    = errors.New("question is used by an open exam")
)

// Normalize trims text fields and fills defaults. It does not validate.
func Normalize(q *Question) {
	q.ID = strings.TrimSpace(q.ID)
	q.Topic = strings.Join(strings.Fields(q.Topic), " ")
	q.TopicKey = TopicKey(q.Topic)
	q.Difficulty = Difficulty(strings.ToLower(strings.TrimSpace(string(q.Difficulty))))
	q.Type = QuestionType(strings.ToLower(strings.TrimSpace(string(q.Type))))
	q.PromptHTML = strings.TrimSpace(q.PromptHTML)
	q.Explanation = strings.TrimSpace(q.Explanation)
	for i := range q.Choices {
		q.Choices[i].ID = strings.TrimSpace(q.Choices[i].ID)
		q.Choices[i].LabelHTML = strings.TrimSpace(q.Choices[i].LabelHTML)
	}
	q.AnswerKey = trimAll(q.AnswerKey)
	q.Tags = trimAll(q.Tags)
	q.MediaKeys = trimAll(q.MediaKeys)
	if q.Points == 0 {
		q.Points = 1
	}
	if q.Type == TypeTrueFalse && len(q.Choices) == 0 {
		q.Choices = []Choice{{ID: "true", LabelHTML: "True"}, {ID: "false", LabelHTML: "False"}}
	}
}

func trimAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks the structural rules for q. Call Normalize first.
func Validate(q Question) error {
	var problems []string
	if q.Topic == "" {
		problems = append(problems, "topic is required")
	}
	if _, err := ParseDifficulty(string(q.Difficulty)); err != nil {
		problems = append(problems, fmt.Sprintf("difficulty %q must be easy, medium or hard", q.Difficulty))
	}
	if !q.Type.Valid() {
		problems = append(problems, fmt.Sprintf("unknown type %q", q.Type))
	}
	if q.PromptHTML == "" {
		problems = append(problems, "prompt is required")
	}
	if q.Points < 0 {
		problems = append(problems, "points must be positive")
	}

	switch {
	case q.Type.HasChoices():
		if len(q.Choices) < 2 {
			problems = append(problems, "at least two choices are required")
		}
		ids := map[string]bool{}
		for _, c := range q.Choices {
			if c.ID == "" {
				problems = append(problems, "choice id is required")
				continue
			}
			if ids[c.ID] {
				problems = append(problems, fmt.Sprintf("duplicate choice id %q", c.ID))
			}
			ids[c.ID] = true
		}
		if len(q.AnswerKey) == 0 {
			problems = append(problems, "answer key is required")
		}
		if (q.Type == TypeMCQSingle || q.Type == TypeTrueFalse) && len(q.AnswerKey) > 1 {
			problems = append(problems, "exactly one key is allowed")
		}
		for _, k := range q.AnswerKey {
			if !ids[k] {
				problems = append(problems, fmt.Sprintf("key %q is not a choice", k))
			}
		}
	case q.Type == TypeShortWord || q.Type == TypeNumeric:
		if len(q.AnswerKey) == 0 {
			problems = append(problems, "answer key is required")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
