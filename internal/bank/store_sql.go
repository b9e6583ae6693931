package bank

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/mind-engage/examdesk/internal/db"
)

type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore { return &SQLStore{db: db} }

type questionRow struct {
	ID            string  `db:"id"`
	Topic         string  `db:"topic"`
	TopicKey      string  `db:"topic_key"`
	Difficulty    string  `db:"difficulty"`
	Type          string  `db:"type"`
	PromptHTML    string  `db:"prompt_html"`
	ChoicesJSON   string  `db:"choices_json"`
	AnswerKeyJSON string  `db:"answer_key_json"`
	Points        float64 `db:"points"`
	Explanation   string  `db:"explanation"`
	TagsJSON      string  `db:"tags_json"`
	MediaKeysJSON string  `db:"media_keys_json"`
	CreatedBy     string  `db:"created_by"`
	CreatedAt     int64   `db:"created_at"`
	UpdatedAt     int64   `db:"updated_at"`
}

const questionCols = `id, topic, topic_key, difficulty, type, prompt_html, choices_json, answer_key_json,
	points, explanation, tags_json, media_keys_json, created_by, created_at, updated_at`

func toRow(q Question) (questionRow, error) {
	r := questionRow{
		ID: q.ID, Topic: q.Topic, TopicKey: TopicKey(q.Topic), Difficulty: string(q.Difficulty),
		Type: string(q.Type), PromptHTML: q.PromptHTML, Points: q.Points, Explanation: q.Explanation,
		CreatedBy: q.CreatedBy, CreatedAt: q.CreatedAt, UpdatedAt: q.UpdatedAt,
	}
	var err error
	if r.ChoicesJSON, err = marshalList(q.Choices); err != nil {
		return r, err
	}
	if r.AnswerKeyJSON, err = marshalList(q.AnswerKey); err != nil {
		return r, err
	}
	if r.TagsJSON, err = marshalList(q.Tags); err != nil {
		return r, err
	}
	if r.MediaKeysJSON, err = marshalList(q.MediaKeys); err != nil {
		return r, err
	}
	return r, nil
}

func (r questionRow) question() (Question, error) {
	q := Question{
		ID: r.ID, Topic: r.Topic, TopicKey: r.TopicKey, Difficulty: Difficulty(r.Difficulty),
		Type: QuestionType(r.Type), PromptHTML: r.PromptHTML, Points: r.Points,
		Explanation: r.Explanation, CreatedBy: r.CreatedBy, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	for _, f := range []struct {
		src string
		dst any
	}{
		{r.ChoicesJSON, &q.Choices},
		{r.AnswerKeyJSON, &q.AnswerKey},
		{r.TagsJSON, &q.Tags},
		{r.MediaKeysJSON, &q.MediaKeys},
	} {
		if f.src == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.src), f.dst); err != nil {
			return Question{}, fmt.Errorf("question %s: %w", r.ID, err)
		}
	}
	return q, nil
}

func marshalList[T any](v []T) (string, error) {
	if len(v) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	return string(b), err
}

// Create inserts all questions in one transaction.
func (s *SQLStore) Create(ctx context.Context, qs ...Question) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range qs {
		var n int
		if err := tx.GetContext(ctx, &n, tx.Rebind(`SELECT COUNT(*) FROM questions WHERE id=?`), q.ID); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", ErrExists, q.ID)
		}
		row, err := toRow(q)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO questions (`+questionCols+`)
			VALUES (:id, :topic, :topic_key, :difficulty, :type, :prompt_html, :choices_json, :answer_key_json,
			        :points, :explanation, :tags_json, :media_keys_json, :created_by, :created_at, :updated_at)`, row); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Update(ctx context.Context, q Question) error {
	row, err := toRow(q)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx, `UPDATE questions SET
		topic=:topic, topic_key=:topic_key, difficulty=:difficulty, type=:type, prompt_html=:prompt_html,
		choices_json=:choices_json, answer_key_json=:answer_key_json, points=:points, explanation=:explanation,
		tags_json=:tags_json, media_keys_json=:media_keys_json, updated_at=:updated_at
		WHERE id=:id`, row)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Question, error) {
	var r questionRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+questionCols+` FROM questions WHERE id=?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, ErrNotFound
	}
	if err != nil {
		return Question{}, err
	}
	return r.question()
}

func (s *SQLStore) GetMany(ctx context.Context, ids []string) (map[string]Question, error) {
	out := make(map[string]Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT `+questionCols+` FROM questions WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []questionRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, r := range rows {
		q, err := r.question()
		if err != nil {
			return nil, err
		}
		out[q.ID] = q
	}
	return out, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM questions WHERE id=?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const difficultyOrder = `CASE difficulty WHEN 'easy' THEN 0 WHEN 'medium' THEN 1 WHEN 'hard' THEN 2 ELSE 3 END`

func (s *SQLStore) List(ctx context.Context, f Filter) ([]Question, int, error) {
	f = f.Clamp()
	var where []string
	var args []any
	if f.Topic != "" {
		where = append(where, "topic_key=?")
		args = append(args, TopicKey(f.Topic))
	}
	if f.Difficulty != "" {
		where = append(where, "difficulty=?")
		args = append(args, string(f.Difficulty))
	}
	if f.Type != "" {
		where = append(where, "type=?")
		args = append(args, string(f.Type))
	}
	if f.Tag != "" {
		b, _ := json.Marshal(f.Tag)
		where = append(where, "tags_json LIKE ?"+db.LikeEscape)
		args = append(args, db.Contains(string(b)))
	}
	if f.Q != "" {
		where = append(where, "(LOWER(prompt_html) LIKE ? OR LOWER(topic) LIKE ?)")
		like := "%" + strings.ToLower(f.Q) + "%"
		args = append(args, like, like)
	}
	if len(f.IDs) > 0 {
		where = append(where, "id IN (?)")
		args = append(args, f.IDs)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	countQ, countArgs, err := sqlx.In(`SELECT COUNT(*) FROM questions`+cond, args...)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(countQ), countArgs...); err != nil {
		return nil, 0, err
	}

	listQ, listArgs, err := sqlx.In(`SELECT `+questionCols+` FROM questions`+cond+
		` ORDER BY topic_key, `+difficultyOrder+`, created_at, id LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	var rows []questionRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(listQ), listArgs...); err != nil {
		return nil, 0, err
	}
	out := make([]Question, 0, len(rows))
	for _, r := range rows {
		q, err := r.question()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, q)
	}
	return out, total, nil
}

func (s *SQLStore) Topics(ctx context.Context) ([]TopicCount, error) {
	var rows []struct {
		TopicKey   string `db:"topic_key"`
		Topic      string `db:"topic"`
		Difficulty string `db:"difficulty"`
		N          int    `db:"n"`
	}
	err := s.db.SelectContext(ctx, &rows, `SELECT topic_key, MIN(topic) AS topic, difficulty, COUNT(*) AS n
		FROM questions GROUP BY topic_key, difficulty ORDER BY topic_key`)
	if err != nil {
		return nil, err
	}
	byKey := map[string]*TopicCount{}
	var keys []string
	for _, r := range rows {
		tc, ok := byKey[r.TopicKey]
		if !ok {
			tc = &TopicCount{Topic: r.Topic}
			byKey[r.TopicKey] = tc
			keys = append(keys, r.TopicKey)
		}
		tc.Add(Difficulty(r.Difficulty), r.N)
	}
	sort.Strings(keys)
	out := make([]TopicCount, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byKey[k])
	}
	return out, nil
}

func (s *SQLStore) Pool(ctx context.Context, topicKeys []string) (Pool, error) {
	query := `SELECT id, topic_key, difficulty FROM questions`
	var args []any
	if len(topicKeys) > 0 {
		var err error
		query, args, err = sqlx.In(query+` WHERE topic_key IN (?)`, topicKeys)
		if err != nil {
			return nil, err
		}
	}
	var rows []struct {
		ID         string `db:"id"`
		TopicKey   string `db:"topic_key"`
		Difficulty string `db:"difficulty"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query+` ORDER BY topic_key, difficulty, created_at, id`), args...); err != nil {
		return nil, err
	}
	p := Pool{}
	for _, r := range rows {
		p.Add(r.TopicKey, Difficulty(r.Difficulty), r.ID)
	}
	return p, nil
}
