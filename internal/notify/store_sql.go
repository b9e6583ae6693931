package notify

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
)

type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore { return &SQLStore{db: db} }

type notificationRow struct {
	ID           string `db:"id"`
	Kind         string `db:"kind"`
	Title        string `db:"title"`
	Body         string `db:"body"`
	AudienceJSON string `db:"audience_json"`
	ExamID       string `db:"exam_id"`
	Recipients   int    `db:"recipients"`
	Channel      string `db:"channel"`
	Status       string `db:"status"`
	Error        string `db:"error"`
	CreatedBy    string `db:"created_by"`
	CreatedAt    int64  `db:"created_at"`
	SentAt       int64  `db:"sent_at"`
}

func (s *SQLStore) Create(ctx context.Context, n Notification) error {
	aud, err := json.Marshal(n.Audience)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `INSERT INTO notifications
		(id, kind, title, body, audience_json, exam_id, recipients, channel, status, error, created_by, created_at, sent_at)
		VALUES (:id, :kind, :title, :body, :audience_json, :exam_id, :recipients, :channel, :status, :error, :created_by, :created_at, :sent_at)`,
		notificationRow{
			ID: n.ID, Kind: string(n.Kind), Title: n.Title, Body: n.Body, AudienceJSON: string(aud),
			ExamID: n.ExamID, Recipients: n.Recipients, Channel: n.Channel, Status: string(n.Status),
			Error: n.Error, CreatedBy: n.CreatedBy, CreatedAt: n.CreatedAt, SentAt: n.SentAt,
		})
	return err
}

func (s *SQLStore) List(ctx context.Context, limit, offset int) ([]Notification, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications`); err != nil {
		return nil, 0, err
	}
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT id, kind, title, body, audience_json, exam_id,
		recipients, channel, status, error, created_by, created_at, sent_at
		FROM notifications ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Notification, 0, len(rows))
	for _, r := range rows {
		n := Notification{
			ID: r.ID, Kind: Kind(r.Kind), Title: r.Title, Body: r.Body, ExamID: r.ExamID,
			Recipients: r.Recipients, Channel: r.Channel, Status: Status(r.Status), Error: r.Error,
			CreatedBy: r.CreatedBy, CreatedAt: r.CreatedAt, SentAt: r.SentAt,
		}
		if r.AudienceJSON != "" {
			if err := json.Unmarshal([]byte(r.AudienceJSON), &n.Audience); err != nil {
				return nil, 0, err
			}
		}
		out = append(out, n)
	}
	return out, total, nil
}
