package exam

import (
	"context"
	"fmt"

	"github.com/mind-engage/examdesk/internal/autofill"
	"github.com/mind-engage/examdesk/internal/metrics"
)

type AutoFillRequest struct {
	Blueprint autofill.Blueprint `json:"blueprint" validate:"required"`
	Mode      string             `json:"mode" validate:"omitempty,oneof=replace top_up"`
	// Apply stores the result; otherwise the call is a preview.
	Apply bool `json:"apply"`
	// Strict refuses to apply when the bank cannot cover the total.
	Strict bool `json:"strict"`
}

type AutoFillResult struct {
	Mode        autofill.Mode       `json:"mode"`
	Applied     bool                `json:"applied"`
	Seed        int64               `json:"seed"`
	Allocation  autofill.Allocation `json:"allocation"`
	Kept        []string            `json:"kept,omitempty"`
	Added       []string            `json:"added"`
	QuestionIDs []string            `json:"question_ids"`
	Exam        *Exam               `json:"exam,omitempty"`
}

// AutoFill picks questions for a draft exam from a blueprint. In top_up mode
// the current questions stay and only the remaining seats are filled.
func (s *Service) AutoFill(ctx context.Context, id string, req AutoFillRequest) (res AutoFillResult, err error) {
	mode, err := autofill.ParseMode(req.Mode)
	if err != nil {
		return AutoFillResult{}, err
	}
	defer func() {
		outcome := "preview"
		switch {
		case err != nil:
			outcome = "error"
		case res.Allocation.Shortfall > 0:
			outcome = "shortfall"
		case res.Applied:
			outcome = "applied"
		}
		metrics.AutoFillRuns.WithLabelValues(string(mode), outcome).Inc()
		if err == nil {
			metrics.AutoFillShortfall.Observe(float64(res.Allocation.Shortfall))
		}
	}()

	e, err := s.store.GetExam(ctx, id)
	if err != nil {
		return AutoFillResult{}, err
	}
	if e.Status != StatusDraft {
		return AutoFillResult{}, ErrFrozen
	}
	bp, err := req.Blueprint.Validate()
	if err != nil {
		return AutoFillResult{}, err
	}
	if bp.Seed == 0 {
		bp.Seed = s.opts.Now().UnixNano()
	}

	var kept []string
	run := bp
	if mode == autofill.ModeTopUp {
		kept = append(kept, e.QuestionIDs...)
		run.Total = bp.Total - len(kept)
		if run.Total <= 0 {
			return AutoFillResult{}, fmt.Errorf("%w: exam already holds %d of %d questions", ErrInvalid, len(kept), bp.Total)
		}
	}

	topics := make([]string, 0, len(bp.Topics))
	for _, tw := range bp.Topics {
		topics = append(topics, tw.Topic)
	}
	pool, err := s.questions.Pool(ctx, topics)
	if err != nil {
		return AutoFillResult{}, err
	}
	fill, err := autofill.Fill(run, pool, kept)
	if err != nil {
		return AutoFillResult{}, err
	}

	res = AutoFillResult{
		Mode:        mode,
		Seed:        bp.Seed,
		Allocation:  fill.Allocation,
		Kept:        kept,
		Added:       fill.QuestionIDs,
		QuestionIDs: append(append([]string{}, kept...), fill.QuestionIDs...),
	}
	if !req.Apply {
		return res, nil
	}
	if req.Strict && fill.Allocation.Shortfall > 0 {
		return res, fmt.Errorf("%w: %d of %d questions could not be placed", ErrShortfall, fill.Allocation.Shortfall, run.Total)
	}

	e.QuestionIDs = res.QuestionIDs
	e.Blueprint = &bp
	e.UpdatedAt = s.now()
	if err := s.store.UpdateExam(ctx, e); err != nil {
		return res, err
	}
	res.Applied = true
	res.Exam = &e
	return res, nil
}
