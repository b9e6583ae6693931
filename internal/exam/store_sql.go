package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/mind-engage/examdesk/internal/autofill"
	"github.com/mind-engage/examdesk/internal/db"
)

type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

type examRow struct {
	ID              string  `db:"id"`
	Title           string  `db:"title"`
	Description     string  `db:"description"`
	Status          string  `db:"status"`
	TimeLimitSec    int     `db:"time_limit_sec"`
	PassMarkPct     float64 `db:"pass_mark_pct"`
	QuestionIDsJSON string  `db:"question_ids_json"`
	BlueprintJSON   string  `db:"blueprint_json"`
	Shuffle         int     `db:"shuffle"`
	OpensAt         int64   `db:"opens_at"`
	ClosesAt        int64   `db:"closes_at"`
	CreatedBy       string  `db:"created_by"`
	CreatedAt       int64   `db:"created_at"`
	UpdatedAt       int64   `db:"updated_at"`
	PublishedAt     int64   `db:"published_at"`
}

const examCols = `id, title, description, status, time_limit_sec, pass_mark_pct, question_ids_json,
	blueprint_json, shuffle, opens_at, closes_at, created_by, created_at, updated_at, published_at`

func toExamRow(e Exam) (examRow, error) {
	r := examRow{
		ID: e.ID, Title: e.Title, Description: e.Description, Status: string(e.Status),
		TimeLimitSec: e.TimeLimitSec, PassMarkPct: e.PassMarkPct, OpensAt: e.OpensAt, ClosesAt: e.ClosesAt,
		CreatedBy: e.CreatedBy, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt, PublishedAt: e.PublishedAt,
	}
	if e.Shuffle {
		r.Shuffle = 1
	}
	ids := e.QuestionIDs
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return r, err
	}
	r.QuestionIDsJSON = string(b)
	if e.Blueprint != nil {
		b, err := json.Marshal(e.Blueprint)
		if err != nil {
			return r, err
		}
		r.BlueprintJSON = string(b)
	}
	return r, nil
}

func (r examRow) exam() (Exam, error) {
	e := Exam{
		ID: r.ID, Title: r.Title, Description: r.Description, Status: Status(r.Status),
		TimeLimitSec: r.TimeLimitSec, PassMarkPct: r.PassMarkPct, Shuffle: r.Shuffle != 0,
		OpensAt: r.OpensAt, ClosesAt: r.ClosesAt, CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, PublishedAt: r.PublishedAt,
	}
	if err := json.Unmarshal([]byte(r.QuestionIDsJSON), &e.QuestionIDs); err != nil {
		return Exam{}, fmt.Errorf("exam %s: question ids: %w", r.ID, err)
	}
	if r.BlueprintJSON != "" {
		var bp autofill.Blueprint
		if err := json.Unmarshal([]byte(r.BlueprintJSON), &bp); err != nil {
			return Exam{}, fmt.Errorf("exam %s: blueprint: %w", r.ID, err)
		}
		e.Blueprint = &bp
	}
	return e, nil
}

func (s *SQLStore) CreateExam(ctx context.Context, e Exam) error {
	r, err := toExamRow(e)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `INSERT INTO exams (`+examCols+`)
		VALUES (:id, :title, :description, :status, :time_limit_sec, :pass_mark_pct, :question_ids_json,
		        :blueprint_json, :shuffle, :opens_at, :closes_at, :created_by, :created_at, :updated_at, :published_at)`, r)
	return err
}

func (s *SQLStore) UpdateExam(ctx context.Context, e Exam) error {
	r, err := toExamRow(e)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx, `UPDATE exams SET
		title=:title, description=:description, status=:status, time_limit_sec=:time_limit_sec,
		pass_mark_pct=:pass_mark_pct, question_ids_json=:question_ids_json, blueprint_json=:blueprint_json,
		shuffle=:shuffle, opens_at=:opens_at, closes_at=:closes_at, updated_at=:updated_at, published_at=:published_at
		WHERE id=:id`, r)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) GetExam(ctx context.Context, id string) (Exam, error) {
	var r examRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+examCols+` FROM exams WHERE id=?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, ErrNotFound
	}
	if err != nil {
		return Exam{}, err
	}
	return r.exam()
}

func (s *SQLStore) DeleteExam(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM exams WHERE id=?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ListExams(ctx context.Context, opts ListOpts) ([]Exam, int, error) {
	limit, offset := clampPage(opts.Limit, opts.Offset)
	var where []string
	var args []any
	if opts.Status != "" {
		where = append(where, "status=?")
		args = append(args, string(opts.Status))
	}
	if q := strings.TrimSpace(opts.Q); q != "" {
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)")
		like := "%" + strings.ToLower(q) + "%"
		args = append(args, like, like)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT COUNT(*) FROM exams`+cond), args...); err != nil {
		return nil, 0, err
	}
	var rows []examRow
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(`SELECT `+examCols+` FROM exams`+cond+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`),
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Exam, 0, len(rows))
	for _, r := range rows {
		e, err := r.exam()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, nil
}

func (s *SQLStore) CountExamsByStatus(ctx context.Context) (map[Status]int, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM exams GROUP BY status`); err != nil {
		return nil, err
	}
	out := map[Status]int{}
	for _, r := range rows {
		out[Status(r.Status)] = r.N
	}
	return out, nil
}

func (s *SQLStore) QuestionInUse(ctx context.Context, questionID string) (bool, error) {
	b, _ := json.Marshal(questionID)
	var n int
	err := s.db.GetContext(ctx, &n,
		s.db.Rebind(`SELECT COUNT(*) FROM exams WHERE status<>? AND question_ids_json LIKE ?`+db.LikeEscape),
		string(StatusClosed), db.Contains(string(b)))
	return n > 0, err
}

// ---- attempts ----

type attemptRow struct {
	ID            string  `db:"id"`
	ExamID        string  `db:"exam_id"`
	UserID        string  `db:"user_id"`
	Status        string  `db:"status"`
	Score         float64 `db:"score"`
	MaxScore      float64 `db:"max_score"`
	ResponsesJSON string  `db:"responses_json"`
	ItemsJSON     string  `db:"items_json"`
	StartedAt     int64   `db:"started_at"`
	SubmittedAt   int64   `db:"submitted_at"`
}

const attemptCols = `id, exam_id, user_id, status, score, max_score, responses_json, items_json, started_at, submitted_at`

func toAttemptRow(a Attempt) (attemptRow, error) {
	r := attemptRow{
		ID: a.ID, ExamID: a.ExamID, UserID: a.UserID, Status: string(a.Status),
		Score: a.Score, MaxScore: a.MaxScore, StartedAt: a.StartedAt, SubmittedAt: a.SubmittedAt,
	}
	resp := a.Responses
	if resp == nil {
		resp = map[string]interface{}{}
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return r, err
	}
	r.ResponsesJSON = string(b)
	items := a.Items
	if items == nil {
		items = []ItemResult{}
	}
	if b, err = json.Marshal(items); err != nil {
		return r, err
	}
	r.ItemsJSON = string(b)
	return r, nil
}

func (r attemptRow) attempt() Attempt {
	a := Attempt{
		ID: r.ID, ExamID: r.ExamID, UserID: r.UserID, Status: AttemptStatus(r.Status),
		Score: r.Score, MaxScore: r.MaxScore, StartedAt: r.StartedAt, SubmittedAt: r.SubmittedAt,
	}
	if err := json.Unmarshal([]byte(r.ResponsesJSON), &a.Responses); err != nil || a.Responses == nil {
		a.Responses = map[string]interface{}{}
	}
	_ = json.Unmarshal([]byte(r.ItemsJSON), &a.Items)
	return a
}

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) error {
	r, err := toAttemptRow(a)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `INSERT INTO attempts (`+attemptCols+`)
		VALUES (:id, :exam_id, :user_id, :status, :score, :max_score, :responses_json, :items_json, :started_at, :submitted_at)`, r)
	return err
}

func (s *SQLStore) UpdateAttempt(ctx context.Context, a Attempt) error {
	r, err := toAttemptRow(a)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx, `UPDATE attempts SET status=:status, score=:score, max_score=:max_score,
		responses_json=:responses_json, items_json=:items_json, submitted_at=:submitted_at WHERE id=:id`, r)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	var r attemptRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+attemptCols+` FROM attempts WHERE id=?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, err
	}
	return r.attempt(), nil
}

func (s *SQLStore) FindOpenAttempt(ctx context.Context, examID, userID string) (Attempt, error) {
	var r attemptRow
	err := s.db.GetContext(ctx, &r,
		s.db.Rebind(`SELECT `+attemptCols+` FROM attempts WHERE exam_id=? AND user_id=? AND status=?`),
		examID, userID, string(AttemptInProgress))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, err
	}
	return r.attempt(), nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, int, error) {
	limit, offset := clampPage(opts.Limit, opts.Offset)
	var where []string
	var args []any
	if opts.ExamID != "" {
		where = append(where, "exam_id=?")
		args = append(args, opts.ExamID)
	}
	if opts.UserID != "" {
		where = append(where, "user_id=?")
		args = append(args, opts.UserID)
	}
	if opts.Status != "" {
		where = append(where, "status=?")
		args = append(args, string(opts.Status))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT COUNT(*) FROM attempts`+cond), args...); err != nil {
		return nil, 0, err
	}
	var rows []attemptRow
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(`SELECT `+attemptCols+` FROM attempts`+cond+` ORDER BY started_at DESC, id LIMIT ? OFFSET ?`),
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Attempt, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.attempt())
	}
	return out, total, nil
}

func (s *SQLStore) ExamAttempts(ctx context.Context, examID string) ([]Attempt, error) {
	var rows []attemptRow
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(`SELECT `+attemptCols+` FROM attempts WHERE exam_id=? ORDER BY started_at, id`), examID)
	if err != nil {
		return nil, err
	}
	out := make([]Attempt, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.attempt())
	}
	return out, nil
}

func (s *SQLStore) CountAttempts(ctx context.Context, examID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM attempts WHERE exam_id=?`), examID)
	return n, err
}

func (s *SQLStore) CountAttemptsByStatus(ctx context.Context) (map[AttemptStatus]int, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM attempts GROUP BY status`); err != nil {
		return nil, err
	}
	out := map[AttemptStatus]int{}
	for _, r := range rows {
		out[AttemptStatus(r.Status)] = r.N
	}
	return out, nil
}

func (s *SQLStore) DeleteUserAttempts(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM attempts WHERE user_id=?`), userID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
