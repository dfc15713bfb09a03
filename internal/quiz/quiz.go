// Package quiz scores the three-question foundation self-assessment.
package quiz

import (
	"github.com/rotisserie/eris"
)

// Verdict is the assessment outcome.
type Verdict string

const (
	VerdictUrgent  Verdict = "URGENT"
	VerdictWarning Verdict = "WARNING"
	VerdictMonitor Verdict = "MONITOR"
)

// Option is one answer choice and the points it carries.
type Option struct {
	Label  string `json:"label"`
	Points int    `json:"points"`
}

// Question is a single step of the assessment.
type Question struct {
	Key     string   `json:"key"`
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options"`
}

// Questions is the assessment in display order.
var Questions = []Question{
	{
		Key:    "cracks",
		Prompt: "Do you see cracks in your sheetrock?",
		Options: []Option{
			{Label: "Yes, diagonal cracks above doors/windows.", Points: 3},
			{Label: "Yes, hairline vertical cracks near seams.", Points: 1},
			{Label: "No cracks visible.", Points: 0},
		},
	},
	{
		Key:    "sticking",
		Prompt: "Do your doors stick or fail to latch?",
		Options: []Option{
			{Label: "Yes, primarily during Summer or Droughts.", Points: 3},
			{Label: "Occasional rubbing, but they close.", Points: 1},
			{Label: "No, all doors operate smoothly.", Points: 0},
		},
	},
	{
		Key:    "history",
		Prompt: "Home History",
		Options: []Option{
			{Label: "Built before 1990 (Slab on Grade).", Points: 3},
			{Label: "Built after 2010 (Post-Tension Slab).", Points: 1},
			{Label: "Pier & Beam Foundation.", Points: 0},
		},
	},
}

// Result is a scored assessment.
type Result struct {
	Score   int     `json:"score"`
	Verdict Verdict `json:"verdict"`
	Title   string  `json:"title"`
	Advice  string  `json:"advice"`
}

var verdictCopy = map[Verdict][2]string{
	VerdictUrgent:  {"High Likelihood of Failure", "Your symptoms indicate active failure in the load-bearing strata."},
	VerdictWarning: {"Monitor Closely", "Seasonal movement is detected. Implement a moisture management plan."},
	VerdictMonitor: {"Stable Condition", "No immediate structural threats detected. Continual maintenance is key."},
}

// Classify maps a total score onto a verdict.
func Classify(score int) Verdict {
	switch {
	case score >= 6:
		return VerdictUrgent
	case score >= 3:
		return VerdictWarning
	default:
		return VerdictMonitor
	}
}

// Score totals the points chosen for each question, in question order.
func Score(points []int) (*Result, error) {
	if len(points) != len(Questions) {
		return nil, eris.Errorf("quiz: expected %d answers, got %d", len(Questions), len(points))
	}

	total := 0
	for i, p := range points {
		if !offers(Questions[i], p) {
			return nil, eris.Errorf("quiz: invalid answer %d for %q", p, Questions[i].Key)
		}
		total += p
	}

	v := Classify(total)
	c := verdictCopy[v]
	return &Result{Score: total, Verdict: v, Title: c[0], Advice: c[1]}, nil
}

func offers(q Question, points int) bool {
	for _, o := range q.Options {
		if o.Points == points {
			return true
		}
	}
	return false
}
