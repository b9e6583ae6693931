package bank

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UsageChecker reports whether a question is referenced by an exam that is
// not closed.
type UsageChecker interface {
	QuestionInUse(ctx context.Context, id string) (bool, error)
}

type Service struct {
	store Store
	usage UsageChecker
	now   func() time.Time
}

func NewService(store Store, usage UsageChecker) *Service {
	return &Service{store: store, usage: usage, now: time.Now}
}

type ImportResult struct {
	Imported int      `json:"imported"`
	IDs      []string `json:"ids"`
}

func (s *Service) Create(ctx context.Context, q Question, actor string) (Question, error) {
	Normalize(&q)
	if err := Validate(q); err != nil {
		return Question{}, err
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	now := s.now().Unix()
	q.CreatedBy, q.CreatedAt, q.UpdatedAt = actor, now, now
	if err := s.store.Create(ctx, q); err != nil {
		return Question{}, err
	}
	return q, nil
}

// Update replaces every editable field of an existing question.
func (s *Service) Update(ctx context.Context, q Question) (Question, error) {
	cur, err := s.store.Get(ctx, q.ID)
	if err != nil {
		return Question{}, err
	}
	Normalize(&q)
	if err := Validate(q); err != nil {
		return Question{}, err
	}
	q.CreatedBy, q.CreatedAt = cur.CreatedBy, cur.CreatedAt
	q.UpdatedAt = s.now().Unix()
	if err := s.store.Update(ctx, q); err != nil {
		return Question{}, err
	}
	return q, nil
}

func (s *Service) Get(ctx context.Context, id string) (Question, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetMany(ctx context.Context, ids []string) (map[string]Question, error) {
	return s.store.GetMany(ctx, ids)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}
	if s.usage != nil {
		inUse, err := s.usage.QuestionInUse(ctx, id)
		if err != nil {
			return err
		}
		if inUse {
			return ErrInUse
		}
	}
	return s.store.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]Question, int, error) {
	if f.Difficulty != "" {
		d, err := ParseDifficulty(string(f.Difficulty))
		if err != nil {
			return nil, 0, err
		}
		f.Difficulty = d
	}
	return s.store.List(ctx, f.Clamp())
}

func (s *Service) Topics(ctx context.Context) ([]TopicCount, error) {
	return s.store.Topics(ctx)
}

// Pool returns candidate ids for the given display topics.
func (s *Service) Pool(ctx context.Context, topics []string) (Pool, error) {
	keys := make([]string, 0, len(topics))
	for _, t := range topics {
		keys = append(keys, TopicKey(t))
	}
	return s.store.Pool(ctx, keys)
}

// Import stores every question in the payload or none of them.
func (s *Service) Import(ctx context.Context, format Format, data []byte, actor string) (ImportResult, error) {
	qs, err := ParseImport(format, data)
	if err != nil {
		return ImportResult{}, err
	}
	return s.createAll(ctx, qs, actor)
}

func (s *Service) createAll(ctx context.Context, qs []Question, actor string) (ImportResult, error) {
	now := s.now().Unix()
	res := ImportResult{IDs: make([]string, 0, len(qs))}
	for i := range qs {
		if qs[i].ID == "" {
			qs[i].ID = uuid.NewString()
		}
		qs[i].CreatedBy, qs[i].CreatedAt, qs[i].UpdatedAt = actor, now, now
		res.IDs = append(res.IDs, qs[i].ID)
	}
	if err := s.store.Create(ctx, qs...); err != nil {
		return ImportResult{}, fmt.Errorf("import: %w", err)
	}
	res.Imported = len(qs)
	return res, nil
}
