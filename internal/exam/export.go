package exam

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	qtiexport "github.com/mind-engage/examdesk/internal/qti/export"
)

type ExportFormat string

const (
	ExportQTI  ExportFormat = "qti"
	ExportJSON ExportFormat = "json"
)

// Export is a rendered exam ready to download.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (s *Service) Export(ctx context.Context, id string, format ExportFormat) (Export, error) {
	d, err := s.Detail(ctx, id)
	if err != nil {
		return Export{}, err
	}
	base := slug(d.Exam.Title)
	if base == "" {
		base = d.Exam.ID
	}
	switch format {
	case ExportJSON, "":
		b, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return Export{}, err
		}
		return Export{Filename: base + ".json", ContentType: "application/json", Data: b}, nil
	case ExportQTI:
		b, err := qtiexport.BuildPackage(ctx, d.Exam.Title, d.Questions, s.opts.Media)
		if err != nil {
			return Export{}, err
		}
		return Export{Filename: base + "-qti.zip", ContentType: "application/zip", Data: b}, nil
	}
	return Export{}, fmt.Errorf("%w: unknown export format %q", ErrInvalid, format)
}

var resultsHeader = []string{
	"attempt_id", "user_id", "username", "display_name", "status",
	"score", "max_score", "percent", "passed", "started_at", "submitted_at",
}

// WriteResultsCSV writes one row per attempt of the exam, oldest first.
func (s *Service) WriteResultsCSV(ctx context.Context, id string, w io.Writer) error {
	e, err := s.store.GetExam(ctx, id)
	if err != nil {
		return err
	}
	attempts, err := s.store.ExamAttempts(ctx, id)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(resultsHeader); err != nil {
		return err
	}
	for _, a := range attempts {
		var username, name string
		if s.opts.Directory != nil {
			if u, err := s.opts.Directory.Get(ctx, a.UserID); err == nil {
				username, name = u.Username, u.DisplayName
			}
		}
		passed := ""
		if a.Status == AttemptSubmitted {
			passed = strconv.FormatBool(a.Pct() >= e.PassMarkPct)
		}
		rec := []string{
			a.ID, a.UserID, username, name, string(a.Status),
			fmtFloat(a.Score), fmtFloat(a.MaxScore), fmtFloat(a.Pct()), passed,
			fmtTime(a.StartedAt), fmtTime(a.SubmittedAt),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func fmtFloat(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }

func fmtTime(ts int64) string {
	if ts == 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
