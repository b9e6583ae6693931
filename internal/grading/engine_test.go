package grading

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGrader(t *testing.T) {
	g := NewDefaultGrader()
	ctx := context.Background()

	cases := []struct {
		name     string
		q        Q
		resp     interface{}
		want     float64
		manual   bool
		hasError bool
	}{
		{"single correct", Q{Type: "mcq_single", Points: 2, AnswerKey: []string{"B"}}, "B", 2, false, false},
		{"single wrong", Q{Type: "mcq_single", Points: 2, AnswerKey: []string{"B"}}, "A", 0, false, false},
		{"single as one-element list", Q{Type: "mcq_single", Points: 1, AnswerKey: []string{"B"}}, []interface{}{"B"}, 1, false, false},
		{"true false bool", Q{Type: "true_false", Points: 1, AnswerKey: []string{"true"}}, true, 1, false, false},
		{"multi exact", Q{Type: "mcq_multi", Points: 4, AnswerKey: []string{"A", "C"}}, []interface{}{"C", "A"}, 4, false, false},
		{"multi partial", Q{Type: "mcq_multi", Points: 4, AnswerKey: []string{"A", "C"}}, []interface{}{"A"}, 2, false, false},
		{"multi false positive", Q{Type: "mcq_multi", Points: 4, AnswerKey: []string{"A", "C"}}, []interface{}{"A", "B"}, 0, false, false},
		{"short exact ignoring case", Q{Type: "short_word", Points: 2, AnswerKey: []string{"Photosynthesis"}}, " photosynthesis. ", 2, false, false},
		{"short fuzzy", Q{Type: "short_word", Points: 2, AnswerKey: []string{"mitochondria"}}, "mitochondrai", 0, false, false},
		{"short one edit", Q{Type: "short_word", Points: 2, AnswerKey: []string{"mitochondria"}}, "mitocondria", 1, false, false},
		{"numeric tolerance", Q{Type: "numeric", Points: 1, AnswerKey: []string{"3.14159", "tol=0.01"}}, 3.14, 1, false, false},
		{"numeric outside tolerance", Q{Type: "numeric", Points: 1, AnswerKey: []string{"3.14159", "tol=0.001"}}, "3.14", 0, false, false},
		{"numeric relative", Q{Type: "numeric", Points: 1, AnswerKey: []string{"100", "reltol=0.05"}}, "104", 1, false, false},
		{"essay manual", Q{Type: "essay", Points: 5}, "long text", 0, true, false},
		{"unknown type", Q{Type: "matching", Points: 3}, "x", 0, true, false},
		{"bad response shape", Q{Type: "mcq_single", Points: 1, AnswerKey: []string{"A"}}, 42.0, 0, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := g.Grade(ctx, tc.q, tc.resp)
			if tc.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.want, res.AutoPoints, 1e-9)
			assert.Equal(t, tc.manual, res.NeedsManual)
			assert.Equal(t, tc.q.Points, res.MaxPoints)
		})
	}
}

func TestGradeAll(t *testing.T) {
	qs := []Q{
		{ID: "q1", Type: "mcq_single", Points: 2, AnswerKey: []string{"A"}},
		{ID: "q2", Type: "numeric", Points: 3, AnswerKey: []string{"10"}},
		{ID: "q3", Type: "essay", Points: 5},
		{ID: "q4", Type: "mcq_single", Points: 1, AnswerKey: []string{"A"}},
	}
	responses := map[string]interface{}{
		"q1": "A",
		"q2": "11",
		"q3": "essay text",
		"q4": map[string]interface{}{"oops": true},
	}
	sh := GradeAll(context.Background(), NewDefaultGrader(), qs, responses)

	assert.Equal(t, 2.0, sh.Score)
	assert.Equal(t, 11.0, sh.MaxScore)
	require.Len(t, sh.Items, 4)
	assert.True(t, sh.Items[0].Full())
	assert.False(t, sh.Items[1].Full())
	assert.True(t, sh.Items[2].NeedsManual)
	assert.Equal(t, "q4", sh.Items[3].QuestionID)
	assert.NotEmpty(t, sh.Items[3].Feedback)

	empty := GradeAll(context.Background(), NewDefaultGrader(), qs[:1], nil)
	assert.Zero(t, empty.Score)
	assert.Equal(t, []string{"no response"}, empty.Items[0].Feedback)
}
