package autofill

import (
	"fmt"
	"math/rand"

	"github.com/mind-engage/examdesk/internal/bank"
)

// Select samples Count distinct ids for every cell of a. Output follows the
// cell order: topic order of the blueprint, then difficulty, then draw order.
func Select(a Allocation, pool bank.Pool, exclude map[string]bool, rng *rand.Rand) ([]string, error) {
	out := make([]string, 0, a.Allocated)
	taken := map[string]bool{}
	for _, c := range a.Cells {
		var candidates []string
		for _, id := range pool[bank.TopicKey(c.Topic)][c.Difficulty] {
			if !exclude[id] && !taken[id] {
				candidates = append(candidates, id)
			}
		}
		if len(candidates) < c.Count {
			return nil, fmt.Errorf("autofill: %s/%s needs %d questions, pool has %d", c.Topic, c.Difficulty, c.Count, len(candidates))
		}
		// partial Fisher-Yates
		for i := 0; i < c.Count; i++ {
			j := i + rng.Intn(len(candidates)-i)
			candidates[i], candidates[j] = candidates[j], candidates[i]
			taken[candidates[i]] = true
			out = append(out, candidates[i])
		}
	}
	return out, nil
}

type Result struct {
	Allocation  Allocation `json:"allocation"`
	QuestionIDs []string   `json:"question_ids"`
	Seed        int64      `json:"seed"`
}

// Fill allocates against the pool (minus exclude) and samples with the
// blueprint seed. Identical inputs give identical output.
func Fill(bp Blueprint, pool bank.Pool, exclude []string) (Result, error) {
	ex := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		ex[id] = true
	}
	a, err := Allocate(bp, InventoryOf(pool, ex))
	if err != nil {
		return Result{}, err
	}
	ids, err := Select(a, pool, ex, rand.New(rand.NewSource(bp.Seed)))
	if err != nil {
		return Result{}, err
	}
	return Result{Allocation: a, QuestionIDs: ids, Seed: bp.Seed}, nil
}

// Shuffle reorders ids in place with a seeded generator.
func Shuffle(ids []string, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}
