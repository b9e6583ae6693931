package bank

import (
	"context"
	"fmt"
	"html"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/mind-engage/examdesk/internal/qti/parser"
)

type QTIOptions struct {
	Topic      string
	Difficulty Difficulty
	// StoreMedia saves a packaged media file and returns its blob key.
	// Media is skipped when nil.
	StoreMedia func(ctx context.Context, name string, data []byte) (string, error)
	// MediaURL turns a blob key into the URL written into prompts.
	MediaURL func(key string) string
}

// ImportQTI maps every item in a QTI 2.x package to a bank question and
// stores them all or none.
func (s *Service) ImportQTI(ctx context.Context, data []byte, opts QTIOptions, actor string) (ImportResult, error) {
	if strings.TrimSpace(opts.Topic) == "" {
		return ImportResult{}, fmt.Errorf("%w: topic is required", ErrInvalid)
	}
	d, err := ParseDifficulty(string(opts.Difficulty))
	if err != nil {
		return ImportResult{}, err
	}
	pkg, err := parser.Open(data)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	items, err := pkg.Items()
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(items) == 0 {
		return ImportResult{}, fmt.Errorf("%w: package has no items", ErrInvalid)
	}

	media := map[string]string{} // package path -> blob key
	if opts.StoreMedia != nil {
		for name, b := range pkg.Media() {
			key, err := opts.StoreMedia(ctx, name, b)
			if err != nil {
				return ImportResult{}, fmt.Errorf("store media %s: %w", name, err)
			}
			media[name] = key
		}
	}

	qs := make([]Question, 0, len(items))
	var rowErrs []RowError
	for i, it := range items {
		q := MapQTIItem(it, opts.Topic, d)
		q.ID = uuid.NewString()
		q.PromptHTML, q.MediaKeys = rewriteMedia(q.PromptHTML, path.Dir(it.Href), media, opts.MediaURL)
		Normalize(&q)
		if err := Validate(q); err != nil {
			rowErrs = append(rowErrs, RowError{Row: i + 1, Message: it.Href + ": " + err.Error()})
			continue
		}
		qs = append(qs, q)
	}
	if len(rowErrs) > 0 {
		return ImportResult{}, &ImportError{Rows: rowErrs}
	}
	return s.createAll(ctx, qs, actor)
}

// MapQTIItem converts a parsed item; ids and media are left to the caller.
func MapQTIItem(it parser.ParsedItem, topic string, d Difficulty) Question {
	var t QuestionType
	switch it.Kind {
	case parser.InteractionChoiceSingle:
		t = TypeMCQSingle
		if isTrueFalse(it.Choices) {
			t = TypeTrueFalse
		}
	case parser.InteractionChoiceMulti:
		t = TypeMCQMulti
	case parser.InteractionTextEntry:
		t = TypeShortWord
	case parser.InteractionNumeric:
		t = TypeNumeric
	default:
		t = TypeEssay
	}
	var choices []Choice
	for _, c := range it.Choices {
		choices = append(choices, Choice{ID: c.ID, LabelHTML: c.Label})
	}
	prompt := it.PromptHTML
	if strings.TrimSpace(prompt) == "" {
		prompt = html.EscapeString(it.Title)
	}
	return Question{
		Topic:       topic,
		Difficulty:  d,
		Type:        t,
		PromptHTML:  prompt,
		Choices:     choices,
		AnswerKey:   it.AnswerKey,
		Points:      it.Points,
		Explanation: it.Feedback,
	}
}

func isTrueFalse(cs []parser.Choice) bool {
	if len(cs) != 2 {
		return false
	}
	a, b := strings.ToLower(cs[0].ID), strings.ToLower(cs[1].ID)
	return (a == "true" && b == "false") || (a == "false" && b == "true")
}

// rewriteMedia points src/href attributes at stored media and reports the
// keys that the prompt references.
func rewriteMedia(prompt, itemDir string, media map[string]string, url func(string) string) (string, []string) {
	if len(media) == 0 {
		return prompt, nil
	}
	if url == nil {
		url = func(k string) string { return "/media/" + k }
	}
	var keys []string
	for name, key := range media {
		rel := name
		if itemDir != "." && strings.HasPrefix(name, itemDir+"/") {
			rel = strings.TrimPrefix(name, itemDir+"/")
		}
		found := false
		for _, ref := range []string{name, rel, "../" + name} {
			for _, q := range []string{`"`, `'`} {
				old := "=" + q + ref + q
				if strings.Contains(prompt, old) {
					prompt = strings.ReplaceAll(prompt, old, "="+q+url(key)+q)
					found = true
				}
			}
		}
		if found {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return prompt, keys
}
