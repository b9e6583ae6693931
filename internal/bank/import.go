package bank

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed question.schema.json
var questionSchemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func importSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var doc any
		if schemaErr = json.Unmarshal(questionSchemaJSON, &doc); schemaErr != nil {
			return
		}
		c := jsonschema.NewCompiler()
		const url = "schema://examdesk/question-import.json"
		if schemaErr = c.AddResource(url, doc); schemaErr != nil {
			return
		}
		schema, schemaErr = c.Compile(url)
	})
	return schema, schemaErr
}

type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportError lists every rejected row. Nothing is stored when it is returned.
type ImportError struct {
	Rows []RowError `json:"rows"`
}

func (e *ImportError) Error() string {
	if len(e.Rows) == 1 {
		return fmt.Sprintf("import rejected: row %d: %s", e.Rows[0].Row, e.Rows[0].Message)
	}
	return fmt.Sprintf("import rejected: %d invalid rows", len(e.Rows))
}

func (e *ImportError) Unwrap() error { return ErrInvalid }

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// DetectFormat picks json for payloads starting with '[' and csv otherwise.
func DetectFormat(contentType string, data []byte) Format {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "json"):
		return FormatJSON
	case strings.Contains(ct, "csv"):
		return FormatCSV
	}
	if t := bytes.TrimSpace(data); len(t) > 0 && t[0] == '[' {
		return FormatJSON
	}
	return FormatCSV
}

// ParseImport decodes and validates a JSON or CSV payload. Row numbers are
// 1-based; for CSV they count data rows after the header.
func ParseImport(format Format, data []byte) ([]Question, error) {
	var (
		qs  []Question
		err error
	)
	switch format {
	case FormatJSON:
		qs, err = parseJSON(data)
	case FormatCSV:
		qs, err = parseCSV(data)
	default:
		return nil, fmt.Errorf("%w: unsupported import format %q", ErrInvalid, format)
	}
	if err != nil {
		return nil, err
	}

	var rowErrs []RowError
	firstRow := map[string]int{}
	for i := range qs {
		Normalize(&qs[i])
		if err := Validate(qs[i]); err != nil {
			rowErrs = append(rowErrs, RowError{Row: i + 1, Message: strings.TrimPrefix(err.Error(), ErrInvalid.Error()+": ")})
		}
		id := qs[i].ID
		if id == "" {
			continue
		}
		if prev, dup := firstRow[id]; dup {
			rowErrs = append(rowErrs, RowError{Row: i + 1, Message: fmt.Sprintf("id %q repeats row %d", id, prev)})
			continue
		}
		firstRow[id] = i + 1
	}
	if len(rowErrs) > 0 {
		return nil, &ImportError{Rows: rowErrs}
	}
	return qs, nil
}

func parseJSON(data []byte) ([]Question, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	sch, err := importSchema()
	if err != nil {
		return nil, fmt.Errorf("import schema: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, &ImportError{Rows: schemaRowErrors(ve)}
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var qs []Question
	if err := json.Unmarshal(data, &qs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return qs, nil
}

// schemaRowErrors flattens validation causes into per-row messages using the
// first segment of the instance location as the row index.
func schemaRowErrors(ve *jsonschema.ValidationError) []RowError {
	var out []RowError
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			row := 0
			if len(e.InstanceLocation) > 0 {
				if n, err := strconv.Atoi(e.InstanceLocation[0]); err == nil {
					row = n + 1
				}
			}
			msg := e.Error()
			if len(e.InstanceLocation) > 1 {
				msg = strings.Join(e.InstanceLocation[1:], "/") + ": " + msg
			}
			out = append(out, RowError{Row: row, Message: msg})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}

var csvColumns = []string{"topic", "difficulty", "type", "prompt", "choices", "answer", "points", "explanation", "tags"}

func parseCSV(data []byte) ([]Question, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: csv header: %v", ErrInvalid, err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range []string{"topic", "difficulty", "type", "prompt"} {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("%w: csv header must include %s (columns: %s)", ErrInvalid, c, strings.Join(csvColumns, ","))
		}
	}
	get := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var (
		qs      []Question
		rowErrs []RowError
	)
	for row := 1; ; row++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv row %d: %v", ErrInvalid, row, err)
		}
		q := Question{
			Topic:       get(rec, "topic"),
			Difficulty:  Difficulty(get(rec, "difficulty")),
			Type:        QuestionType(get(rec, "type")),
			PromptHTML:  get(rec, "prompt"),
			Explanation: get(rec, "explanation"),
			AnswerKey:   splitBar(get(rec, "answer")),
			Tags:        splitBar(get(rec, "tags")),
		}
		for _, c := range splitBar(get(rec, "choices")) {
			id, label, ok := strings.Cut(c, "=")
			if !ok {
				rowErrs = append(rowErrs, RowError{Row: row, Message: fmt.Sprintf("choice %q must be ID=label", c)})
				continue
			}
			q.Choices = append(q.Choices, Choice{ID: strings.TrimSpace(id), LabelHTML: strings.TrimSpace(label)})
		}
		if p := get(rec, "points"); p != "" {
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				rowErrs = append(rowErrs, RowError{Row: row, Message: fmt.Sprintf("points %q is not a number", p)})
			}
			q.Points = v
		}
		qs = append(qs, q)
	}
	if len(rowErrs) > 0 {
		return nil, &ImportError{Rows: rowErrs}
	}
	if len(qs) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrInvalid)
	}
	return qs, nil
}

func splitBar(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
