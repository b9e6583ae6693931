package grading

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// tolerance is read from answer key entries after the first:
//
//	["3.14159", "tol=0.01"]  absolute
//	["100", "reltol=0.05"]   relative to the expected value
//
// Either bound passing is enough. Without bounds the values must be equal.
type tolerance struct {
	abs, rel float64
	hasAbs   bool
	hasRel   bool
}

func parseTolerance(entries []string) tolerance {
	var t tolerance
	for _, e := range entries {
		name, val, ok := strings.Cut(strings.ToLower(strings.TrimSpace(e)), "=")
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			continue
		}
		switch name {
		case "tol":
			t.abs, t.hasAbs = v, true
		case "reltol":
			t.rel, t.hasRel = v, true
		}
	}
	return t
}

func (t tolerance) accepts(got, want float64) bool {
	diff := math.Abs(got - want)
	if !t.hasAbs && !t.hasRel {
		return diff == 0
	}
	return (t.hasAbs && diff <= t.abs) || (t.hasRel && diff <= t.rel*math.Abs(want))
}

func numericAnswer(q Q, response any) (Result, error) {
	var res Result
	var text string
	switch v := response.(type) {
	case string:
		text = v
	case float64:
		text = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		text = strconv.Itoa(v)
	default:
		return res, errors.New("response must be a number or string")
	}
	if len(q.AnswerKey) == 0 {
		return res, nil
	}
	want := q.AnswerKey[0]
	if text == want {
		res.AutoPoints = q.Points
		return res, nil
	}
	g, okG := leadingNumber(text)
	w, okW := leadingNumber(want)
	if okG && okW && parseTolerance(q.AnswerKey[1:]).accepts(g, w) {
		res.AutoPoints = q.Points
	}
	return res, nil
}

// leadingNumber parses s, or failing that its first field, so "9.8 m/s"
// reads as 9.8.
func leadingNumber(s string) (float64, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return v, true
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	return v, err == nil
}
