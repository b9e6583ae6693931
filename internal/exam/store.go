package exam

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("exam not found")
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrInvalid         = errors.New("invalid exam")
	ErrFrozen          = errors.New("exam is no longer a draft")
	ErrHasAttempts     = errors.New("exam has attempts")
	ErrNotReady        = errors.New("exam is not ready to publish")
	ErrStatus          = errors.New("invalid status transition")
	ErrNotOpen         = errors.New("exam is not open")
	ErrAttemptClosed   = errors.New("attempt already submitted")
	ErrTimeUp          = errors.New("time limit exceeded")
	ErrShortfall       = errors.New("not enough questions in the bank")
)

// Store persists exams and attempts.
type Store interface {
	CreateExam(ctx context.Context, e Exam) error
	UpdateExam(ctx context.Context, e Exam) error
	GetExam(ctx context.Context, id string) (Exam, error)
	DeleteExam(ctx context.Context, id string) error
	ListExams(ctx context.Context, opts ListOpts) ([]Exam, int, error)
	CountExamsByStatus(ctx context.Context) (map[Status]int, error)
	// QuestionInUse reports whether a draft or published exam lists the question.
	QuestionInUse(ctx context.Context, questionID string) (bool, error)

	CreateAttempt(ctx context.Context, a Attempt) error
	UpdateAttempt(ctx context.Context, a Attempt) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	// FindOpenAttempt returns ErrAttemptNotFound when the user has no attempt in progress.
	FindOpenAttempt(ctx context.Context, examID, userID string) (Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, int, error)
	// ExamAttempts returns every attempt of an exam, oldest first.
	ExamAttempts(ctx context.Context, examID string) ([]Attempt, error)
	CountAttempts(ctx context.Context, examID string) (int, error)
	CountAttemptsByStatus(ctx context.Context) (map[AttemptStatus]int, error)
	DeleteUserAttempts(ctx context.Context, userID string) (int, error)
}
