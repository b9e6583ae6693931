package notify

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoRecipients = errors.New("audience resolved to no recipients")
	ErrInvalid      = errors.New("invalid notification")
)

type Kind string

const (
	KindExamPublished   Kind = "exam_published"
	KindExamClosed      Kind = "exam_closed"
	KindResultsReleased Kind = "results_released"
	KindAnnouncement    Kind = "announcement"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindExamPublished, KindExamClosed, KindResultsReleased, KindAnnouncement:
		return k, nil
	case "":
		return KindAnnouncement, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalid, s)
}

// Audience selects recipients. All wins over Roles and UserIDs, which are
// combined.
type Audience struct {
	All     bool     `json:"all,omitempty" bson:"all,omitempty"`
	Roles   []string `json:"roles,omitempty" bson:"roles,omitempty"`
	UserIDs []string `json:"user_ids,omitempty" bson:"user_ids,omitempty"`
}

func (a Audience) Empty() bool { return !a.All && len(a.Roles) == 0 && len(a.UserIDs) == 0 }

type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

type Notification struct {
	ID         string   `json:"id" bson:"_id"`
	Kind       Kind     `json:"kind" bson:"kind"`
	Title      string   `json:"title" bson:"title"`
	Body       string   `json:"body,omitempty" bson:"body,omitempty"`
	Audience   Audience `json:"audience" bson:"audience"`
	ExamID     string   `json:"exam_id,omitempty" bson:"exam_id,omitempty"`
	Recipients int      `json:"recipients" bson:"recipients"`
	Channel    string   `json:"channel" bson:"channel"`
	Status     Status   `json:"status" bson:"status"`
	Error      string   `json:"error,omitempty" bson:"error,omitempty"`
	CreatedBy  string   `json:"created_by,omitempty" bson:"created_by"`
	CreatedAt  int64    `json:"created_at" bson:"created_at"`
	SentAt     int64    `json:"sent_at,omitempty" bson:"sent_at,omitempty"`
}

type Recipient struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Message is what a channel delivers.
type Message struct {
	ID         string      `json:"id"`
	Kind       Kind        `json:"kind"`
	Title      string      `json:"title"`
	Body       string      `json:"body,omitempty"`
	ExamID     string      `json:"exam_id,omitempty"`
	Recipients []Recipient `json:"recipients"`
}

// Request asks the service to notify an audience.
type Request struct {
	Kind      Kind     `json:"kind"`
	Title     string   `json:"title" validate:"required,max=200"`
	Body      string   `json:"body" validate:"max=5000"`
	Audience  Audience `json:"audience"`
	ExamID    string   `json:"exam_id,omitempty"`
	CreatedBy string   `json:"-"`
}
