// Package autofill distributes a question count across topics and
// difficulty levels and samples concrete questions from the bank.
//
// Allocation works in three passes: topic quotas by weight, global
// difficulty targets by ratio, then a per-topic split that steers each
// topic toward the targets still open. Every pass uses largest-remainder
// apportionment bounded by what the bank actually holds.
package autofill

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mind-engage/examdesk/internal/bank"
)

var ErrInvalidBlueprint = errors.New("invalid blueprint")

type Mode string

const (
	ModeReplace Mode = "replace"
	ModeTopUp   Mode = "top_up"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeReplace, nil
	case ModeReplace, ModeTopUp:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidBlueprint, s)
}

type TopicWeight struct {
	Topic  string  `json:"topic" bson:"topic" validate:"required"`
	Weight float64 `json:"weight" bson:"weight" validate:"gte=0"`
}

// Ratio is a relative easy/medium/hard mix; the values need not sum to 100.
type Ratio struct {
	Easy   float64 `json:"easy" bson:"easy" validate:"gte=0"`
	Medium float64 `json:"medium" bson:"medium" validate:"gte=0"`
	Hard   float64 `json:"hard" bson:"hard" validate:"gte=0"`
}

var DefaultRatio = Ratio{Easy: 30, Medium: 50, Hard: 20}

func (r Ratio) IsZero() bool { return r.Easy == 0 && r.Medium == 0 && r.Hard == 0 }

// weights returns the ratio in bank.Difficulties order.
func (r Ratio) weights() []float64 { return []float64{r.Easy, r.Medium, r.Hard} }

type Blueprint struct {
	Total  int           `json:"total" bson:"total" validate:"gt=0"`
	Topics []TopicWeight `json:"topics" bson:"topics" validate:"min=1,dive"`
	Ratio  Ratio         `json:"ratio" bson:"ratio"`
	// Seed makes sampling repeatable; zero lets the caller pick one.
	Seed int64 `json:"seed,omitempty" bson:"seed,omitempty"`
}

// Validate checks the blueprint and returns it with the default ratio
// applied when none was given.
func (bp Blueprint) Validate() (Blueprint, error) {
	if bp.Total <= 0 {
		return bp, fmt.Errorf("%w: total must be positive", ErrInvalidBlueprint)
	}
	if len(bp.Topics) == 0 {
		return bp, fmt.Errorf("%w: at least one topic is required", ErrInvalidBlueprint)
	}
	seen := map[string]bool{}
	for _, tw := range bp.Topics {
		key := bank.TopicKey(tw.Topic)
		if key == "" {
			return bp, fmt.Errorf("%w: topic name is required", ErrInvalidBlueprint)
		}
		if tw.Weight < 0 {
			return bp, fmt.Errorf("%w: topic %q has a negative weight", ErrInvalidBlueprint, tw.Topic)
		}
		if seen[key] {
			return bp, fmt.Errorf("%w: topic %q listed twice", ErrInvalidBlueprint, tw.Topic)
		}
		seen[key] = true
	}
	if bp.Ratio.Easy < 0 || bp.Ratio.Medium < 0 || bp.Ratio.Hard < 0 {
		return bp, fmt.Errorf("%w: ratio values must not be negative", ErrInvalidBlueprint)
	}
	if bp.Ratio.IsZero() {
		bp.Ratio = DefaultRatio
	}
	return bp, nil
}

// Inventory is the number of available questions per topic key and difficulty.
type Inventory map[string]map[bank.Difficulty]int

func (inv Inventory) cell(topicKey string, d bank.Difficulty) int {
	return inv[topicKey][d]
}

func (inv Inventory) topic(topicKey string) int {
	n := 0
	for _, c := range inv[topicKey] {
		n += c
	}
	return n
}

// InventoryOf counts the pool, leaving out excluded ids.
func InventoryOf(p bank.Pool, exclude map[string]bool) Inventory {
	inv := Inventory{}
	for key, byDiff := range p {
		m := map[bank.Difficulty]int{}
		for d, ids := range byDiff {
			for _, id := range ids {
				if !exclude[id] {
					m[d]++
				}
			}
		}
		inv[key] = m
	}
	return inv
}

type Cell struct {
	Topic      string          `json:"topic"`
	Difficulty bank.Difficulty `json:"difficulty"`
	Count      int             `json:"count"`
	Available  int             `json:"available"`
}

type Allocation struct {
	Total     int                     `json:"total"`
	Allocated int                     `json:"allocated"`
	Shortfall int                     `json:"shortfall"`
	Cells     []Cell                  `json:"cells"`
	PerTopic  map[string]int          `json:"per_topic"`
	Targets   map[bank.Difficulty]int `json:"targets"`
	Achieved  map[bank.Difficulty]int `json:"achieved"`
}
