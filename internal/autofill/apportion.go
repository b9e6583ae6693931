package autofill

import (
	"math"
	"sort"
)

// Apportion hands out n seats in proportion to weights using the
// largest-remainder method. Fractional seats go to the largest remainders,
// ties to the lower index. A member whose share would pass its cap is held
// at the cap and the spare seats are apportioned again among the rest. When
// all remaining weights are zero the remaining members share equally.
//
// caps may be nil for no limit. The result never exceeds a cap and sums to
// min(n, sum of caps).
func Apportion(n int, weights []float64, caps []int) []int {
	out := make([]int, len(weights))
	if n <= 0 || len(weights) == 0 {
		return out
	}
	capOf := func(i int) int {
		if caps == nil {
			return n
		}
		if i >= len(caps) || caps[i] < 0 {
			return 0
		}
		return caps[i]
	}

	active := make([]int, 0, len(weights))
	for i := range weights {
		if capOf(i) > 0 {
			active = append(active, i)
		}
	}

	remaining := n
	for remaining > 0 && len(active) > 0 {
		w := make([]float64, len(active))
		for k, i := range active {
			if weights[i] > 0 {
				w[k] = weights[i]
			}
		}
		share := largestRemainder(remaining, w)

		var keep []int
		clamped := false
		for k, i := range active {
			if share[k] >= capOf(i) {
				if share[k] > capOf(i) {
					clamped = true
				}
				continue
			}
			keep = append(keep, i)
		}
		if !clamped {
			for k, i := range active {
				out[i] = share[k]
			}
			return out
		}
		// fix every member that reached its cap and retry with the rest
		for k, i := range active {
			if share[k] >= capOf(i) {
				out[i] = capOf(i)
				remaining -= capOf(i)
			}
		}
		active = keep
	}
	return out
}

// largestRemainder splits n seats by weight; all-zero weights share equally.
func largestRemainder(n int, w []float64) []int {
	out := make([]int, len(w))
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if sum <= 0 {
		w = make([]float64, len(out))
		for i := range w {
			w[i] = 1
		}
		sum = float64(len(w))
	}

	rem := make([]float64, len(w))
	given := 0
	for i, v := range w {
		q := float64(n) * v / sum
		f := math.Floor(q + 1e-9)
		out[i] = int(f)
		rem[i] = q - f
		given += out[i]
	}

	order := make([]int, len(w))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := rem[order[a]], rem[order[b]]
		if math.Abs(ra-rb) > 1e-9 {
			return ra > rb
		}
		return order[a] < order[b]
	})
	for k := 0; given < n && k < len(order); k++ {
		if w[order[k]] <= 0 {
			continue
		}
		out[order[k]]++
		given++
	}
	return out
}
