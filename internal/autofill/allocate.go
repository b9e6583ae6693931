package autofill

import (
	"github.com/mind-engage/examdesk/internal/bank"
)

// Allocate decides how many questions each topic and difficulty cell gets.
// It never asks for more than inv holds; whatever cannot be placed is
// reported as Shortfall.
func Allocate(bp Blueprint, inv Inventory) (Allocation, error) {
	bp, err := bp.Validate()
	if err != nil {
		return Allocation{}, err
	}

	keys := make([]string, len(bp.Topics))
	weights := make([]float64, len(bp.Topics))
	topicCaps := make([]int, len(bp.Topics))
	for i, tw := range bp.Topics {
		keys[i] = bank.TopicKey(tw.Topic)
		weights[i] = tw.Weight
		topicCaps[i] = inv.topic(keys[i])
	}
	quotas := Apportion(bp.Total, weights, topicCaps)

	placed := 0
	for _, q := range quotas {
		placed += q
	}

	diffCaps := make([]int, len(bank.Difficulties))
	for j, d := range bank.Difficulties {
		for _, k := range keys {
			diffCaps[j] += inv.cell(k, d)
		}
	}
	ratio := bp.Ratio.weights()
	targets := Apportion(placed, ratio, diffCaps)

	a := Allocation{
		Total:     bp.Total,
		Allocated: placed,
		Shortfall: bp.Total - placed,
		PerTopic:  map[string]int{},
		Targets:   map[bank.Difficulty]int{},
		Achieved:  map[bank.Difficulty]int{},
	}
	for j, d := range bank.Difficulties {
		a.Targets[d] = targets[j]
	}

	assigned := make([]int, len(bank.Difficulties))
	for i, tw := range bp.Topics {
		split := splitTopic(quotas[i], keys[i], inv, targets, assigned, ratio)
		a.PerTopic[tw.Topic] = quotas[i]
		for j, d := range bank.Difficulties {
			assigned[j] += split[j]
			if split[j] == 0 {
				continue
			}
			a.Cells = append(a.Cells, Cell{
				Topic:      tw.Topic,
				Difficulty: d,
				Count:      split[j],
				Available:  inv.cell(keys[i], d),
			})
		}
	}
	for j, d := range bank.Difficulties {
		a.Achieved[d] = assigned[j]
	}
	return a, nil
}

// splitTopic divides one topic's quota across difficulties. Open targets
// are filled first, bounded by what the topic holds; seats the targets
// cannot absorb go to any cell with spare questions, weighted by ratio.
func splitTopic(quota int, key string, inv Inventory, targets, assigned []int, ratio []float64) []int {
	n := len(bank.Difficulties)
	open := make([]float64, n)
	firstCaps := make([]int, n)
	for j, d := range bank.Difficulties {
		left := targets[j] - assigned[j]
		if left < 0 {
			left = 0
		}
		open[j] = float64(left)
		firstCaps[j] = min(inv.cell(key, d), left)
	}
	split := Apportion(quota, open, firstCaps)

	got := 0
	for _, v := range split {
		got += v
	}
	if got == quota {
		return split
	}

	spare := make([]int, n)
	for j, d := range bank.Difficulties {
		spare[j] = inv.cell(key, d) - split[j]
	}
	extra := Apportion(quota-got, ratio, spare)
	for j := range split {
		split[j] += extra[j]
	}
	return split
}
