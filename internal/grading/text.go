package grading

import (
	"errors"
	"strings"
	"unicode"
)

// shortAnswer compares normalized text. A miss within maxEdit edits of any
// accepted answer earns half credit.
func shortAnswer(maxEdit int) scorer {
	return func(q Q, response any) (Result, error) {
		var res Result
		text, ok := response.(string)
		if !ok {
			return res, errors.New("response must be string")
		}
		got := foldText(text)
		near := false
		for _, k := range q.AnswerKey {
			want := foldText(k)
			if want == got {
				res.AutoPoints = q.Points
				return res, nil
			}
			near = near || (maxEdit > 0 && editDistance(want, got) <= maxEdit)
		}
		if near {
			res.AutoPoints = q.Points / 2
			res.note("close match (fuzzy)")
		}
		return res, nil
	}
}

// foldText lowercases s, drops punctuation and collapses runs of whitespace.
func foldText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// editDistance is the Levenshtein distance over runes.
func editDistance(a, b string) int {
	x, y := []rune(a), []rune(b)
	prev := make([]int, len(y)+1)
	cur := make([]int, len(y)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(x); i++ {
		cur[0] = i
		for j := 1; j <= len(y); j++ {
			sub := prev[j-1]
			if x[i-1] != y[j-1] {
				sub++
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, sub)
		}
		prev, cur = cur, prev
	}
	return prev[len(y)]
}
