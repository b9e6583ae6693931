package autofill

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApportion(t *testing.T) {
	cases := []struct {
		name    string
		n       int
		weights []float64
		caps    []int
		want    []int
	}{
		{"even split tie goes to lower index", 10, []float64{1, 1, 1}, nil, []int{4, 3, 3}},
		{"largest remainder", 7, []float64{30, 50, 20}, nil, []int{2, 4, 1}},
		{"exact shares", 20, []float64{30, 50, 20}, nil, []int{6, 10, 4}},
		{"cap redistributes", 10, []float64{1, 1}, []int{2, 100}, []int{2, 8}},
		{"capacity short", 10, []float64{1, 1}, []int{2, 3}, []int{2, 3}},
		{"all zero weights share equally", 5, []float64{0, 0}, nil, []int{3, 2}},
		{"zero weight fills only after others are full", 5, []float64{1, 0}, []int{2, 10}, []int{2, 3}},
		{"zero cap is skipped", 4, []float64{1, 1, 1}, []int{0, 5, 5}, []int{0, 2, 2}},
		{"nothing to hand out", 0, []float64{1, 2}, nil, []int{0, 0}},
		{"cascading clamps", 12, []float64{5, 4, 1}, []int{3, 4, 20}, []int{3, 4, 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Apportion(tc.n, tc.weights, tc.caps))
		})
	}
}

func TestApportionProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 500; iter++ {
		k := 1 + rng.Intn(6)
		n := rng.Intn(60)
		weights := make([]float64, k)
		caps := make([]int, k)
		capSum := 0
		for i := range weights {
			if rng.Intn(4) > 0 {
				weights[i] = float64(rng.Intn(10))
			}
			caps[i] = rng.Intn(15)
			capSum += caps[i]
		}

		got := Apportion(n, weights, caps)
		sum := 0
		for i, v := range got {
			assert.GreaterOrEqual(t, v, 0)
			assert.LessOrEqual(t, v, caps[i], "iter %d weights %v caps %v", iter, weights, caps)
			sum += v
		}
		assert.Equal(t, min(n, capSum), sum, "iter %d n %d weights %v caps %v", iter, n, weights, caps)
	}
}

func TestApportionWithinOneOfIdealWhenUncapped(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		k := 1 + rng.Intn(5)
		n := 1 + rng.Intn(100)
		weights := make([]float64, k)
		total := 0.0
		for i := range weights {
			weights[i] = float64(1 + rng.Intn(20))
			total += weights[i]
		}
		got := Apportion(n, weights, nil)
		for i, v := range got {
			ideal := float64(n) * weights[i] / total
			assert.InDelta(t, ideal, float64(v), 1.0)
		}
	}
}
