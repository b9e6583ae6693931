package audit

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

type SQLLog struct{ db *sqlx.DB }

func NewSQLLog(db *sqlx.DB) *SQLLog { return &SQLLog{db: db} }

type eventRow struct {
	Seq       int64  `db:"seq"`
	Actor     string `db:"actor"`
	Typ       string `db:"typ"`
	Key       string `db:"key"`
	Data      string `db:"data"`
	CreatedAt int64  `db:"created_at"`
}

func (r eventRow) event() Event {
	e := Event{Seq: r.Seq, Actor: r.Actor, Type: r.Typ, Key: r.Key, CreatedAt: r.CreatedAt}
	if r.Data != "" && r.Data != "null" {
		e.Data = []byte(r.Data)
	}
	return e
}

func (l *SQLLog) Append(ctx context.Context, e Event) (Event, error) {
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	data := string(e.Data)
	if data == "" {
		data = "null"
	}
	err := l.db.GetContext(ctx, &e.Seq, l.db.Rebind(
		`INSERT INTO audit_events (actor, typ, key, data, created_at)
		 VALUES (?, ?, ?, ?, ?) RETURNING seq`),
		e.Actor, e.Type, e.Key, data, e.CreatedAt)
	if err != nil {
		return Event{}, err
	}
	return e, nil
}

// Search matches q as a case-insensitive substring of type, key or actor.
func (l *SQLLog) Search(ctx context.Context, q string, limit int) ([]Event, error) {
	query := `SELECT seq, actor, typ, key, data, created_at FROM audit_events`
	var args []any
	if q = strings.TrimSpace(q); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query += ` WHERE LOWER(typ) LIKE ? OR LOWER(key) LIKE ? OR LOWER(actor) LIKE ?`
		args = append(args, like, like, like)
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, clampLimit(limit))

	var rows []eventRow
	if err := l.db.SelectContext(ctx, &rows, l.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.event())
	}
	return out, nil
}
