package stats

import (
	"math"
	"sort"

	"github.com/mind-engage/examdesk/internal/bank"
	"github.com/mind-engage/examdesk/internal/exam"
)

// Compute derives exam statistics from its attempts. Score figures use only
// submitted attempts with a positive max score; item figures use every
// submitted attempt.
func Compute(e exam.Exam, questions map[string]bank.Question, attempts []exam.Attempt, now int64) ExamStats {
	st := ExamStats{ExamID: e.ID, Attempts: len(attempts), ComputedAt: now}

	users := map[string]bool{}
	var pcts []float64
	for _, a := range attempts {
		users[a.UserID] = true
		switch a.Status {
		case exam.AttemptSubmitted:
			st.Submitted++
			if a.MaxScore > 0 {
				pcts = append(pcts, a.Pct())
			}
		case exam.AttemptInProgress:
			st.InProgress++
		}
	}
	st.UniqueUsers = len(users)
	st.Scored = len(pcts)

	if len(pcts) > 0 {
		sort.Float64s(pcts)
		var sum float64
		for _, p := range pcts {
			sum += p
			if p >= e.PassMarkPct {
				st.Passed++
			}
			st.Histogram[bucket(p)]++
		}
		mean := sum / float64(len(pcts))
		var sq float64
		for _, p := range pcts {
			sq += (p - mean) * (p - mean)
		}
		st.MeanPct = round2(mean)
		st.MedianPct = round2(median(pcts))
		st.MinPct = round2(pcts[0])
		st.MaxPct = round2(pcts[len(pcts)-1])
		st.StddevPct = round2(math.Sqrt(sq / float64(len(pcts))))
		st.PassRate = round2(float64(st.Passed) / float64(len(pcts)))
	}

	st.Questions, st.Topics = itemStats(e.QuestionIDs, questions, attempts)
	return st
}

// bucket maps a percentage to a 10-point band; 100 lands in the last one.
func bucket(p float64) int {
	b := int(p / 10)
	if b >= Buckets {
		b = Buckets - 1
	}
	if b < 0 {
		b = 0
	}
	return b
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func itemStats(ids []string, questions map[string]bank.Question, attempts []exam.Attempt) ([]QuestionStat, []TopicStat) {
	qs := make([]QuestionStat, len(ids))
	index := make(map[string]int, len(ids))
	points := make([]float64, len(ids))
	for i, id := range ids {
		q := questions[id]
		qs[i] = QuestionStat{QuestionID: id, Topic: q.Topic, Difficulty: q.Difficulty}
		index[id] = i
	}
	for _, a := range attempts {
		if a.Status != exam.AttemptSubmitted {
			continue
		}
		for _, it := range a.Items {
			i, ok := index[it.QuestionID]
			if !ok {
				continue
			}
			if r, has := a.Responses[it.QuestionID]; !has || r == nil {
				continue
			}
			qs[i].Answered++
			points[i] += it.AutoPoints
			if it.Full() {
				qs[i].Correct++
			}
		}
	}

	byTopic := map[string]*TopicStat{}
	for i := range qs {
		if qs[i].Answered > 0 {
			qs[i].Facility = round2(float64(qs[i].Correct) / float64(qs[i].Answered))
			qs[i].AvgPoints = round2(points[i] / float64(qs[i].Answered))
		}
		key := bank.TopicKey(qs[i].Topic)
		ts, ok := byTopic[key]
		if !ok {
			ts = &TopicStat{Topic: qs[i].Topic}
			byTopic[key] = ts
		}
		ts.Answered += qs[i].Answered
		ts.Correct += qs[i].Correct
	}
	topics := make([]TopicStat, 0, len(byTopic))
	for _, ts := range byTopic {
		if ts.Answered > 0 {
			ts.Facility = round2(float64(ts.Correct) / float64(ts.Answered))
		}
		topics = append(topics, *ts)
	}
	sort.Slice(topics, func(i, j int) bool { return bank.TopicKey(topics[i].Topic) < bank.TopicKey(topics[j].Topic) })
	return qs, topics
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
