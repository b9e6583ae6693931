package grading

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	errNotSingle = errors.New("response must be a single choice id")
	errNotList   = errors.New("response must be a list of choice ids")
)

func singleChoice(q Q, response any) (Result, error) {
	var res Result
	picked, err := oneChoice(response)
	if err != nil {
		return res, err
	}
	for _, k := range q.AnswerKey {
		if strings.EqualFold(picked, k) {
			res.AutoPoints = q.Points
			break
		}
	}
	return res, nil
}

// oneChoice accepts a string, a bool (true/false questions) or a list
// holding exactly one of those.
func oneChoice(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case []string:
		if len(t) == 1 {
			return t[0], nil
		}
	case []any:
		if len(t) == 1 {
			return oneChoice(t[0])
		}
	}
	return "", errNotSingle
}

// multiChoice awards full points for the exact key set. With partial credit
// on, a strict subset of the key earns its share; any wrong pick earns zero.
func multiChoice(partial bool) scorer {
	return func(q Q, response any) (Result, error) {
		var res Result
		picked, err := choiceSet(response)
		if err != nil {
			return res, err
		}
		key := make(map[string]bool, len(q.AnswerKey))
		for _, k := range q.AnswerKey {
			key[k] = true
		}
		hits := 0
		for id := range picked {
			if !key[id] {
				return res, nil
			}
			hits++
		}
		switch {
		case hits == len(key):
			res.AutoPoints = q.Points
		case partial && hits > 0:
			res.AutoPoints = q.Points * float64(hits) / float64(len(key))
			res.note(fmt.Sprintf("partial: %d/%d", hits, len(key)))
		}
		return res, nil
	}
}

func choiceSet(v any) (map[string]bool, error) {
	var ids []string
	switch t := v.(type) {
	case string:
		ids = []string{t}
	case []string:
		ids = t
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok {
				ids = append(ids, s)
			}
		}
	default:
		return nil, errNotList
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}
