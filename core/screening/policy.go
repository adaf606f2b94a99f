// Package screening computes per-student marking statistics and flags the students whose marks look anomalous.
package screening

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/hansini-nalla/pes-sub000/core/exam"
)

type PolicyKind string

const (
	PolicyClassRelative PolicyKind = "class_relative"
	PolicySelfRelative  PolicyKind = "self_relative"
)

const (
	// DefaultClassThreshold is the number of class standard deviations a student average may drift before being flagged.
	DefaultClassThreshold = 1.0

	// DefaultSelfThreshold is the number of own standard deviations a received total may drift before being flagged.
	// Among k totals none can drift further than sqrt(k-1) population deviations,
	// so it stays under sqrt(3) for k=4 to keep a lone outlier flaggable.
	// It flags [18 19 20 18 5] (the 5 drifts 1.98 deviations) and lets [18 19 20 18 19] pass (the 20 drifts 1.60).
	DefaultSelfThreshold = 1.7

	// classRelativeMaxK is the largest k screened against the class.
	classRelativeMaxK = 3

	// epsilon absorbs rounding when a deviation equals the allowed drift.
	epsilon = 1e-9
)

// Group holds the evaluations received by one student.
type Group struct {
	Student     string
	Evaluations []exam.Evaluation
}

// GroupByEvaluatee groups evaluations by evaluatee, keeping the order in which students first appear.
func GroupByEvaluatee(evs []exam.Evaluation) []Group {
	idx := make(map[string]int)
	groups := make([]Group, 0)
	for _, ev := range evs {
		i, ok := idx[ev.Evaluatee]
		if !ok {
			i = len(groups)
			idx[ev.Evaluatee] = i
			groups = append(groups, Group{Student: ev.Evaluatee})
		}
		groups[i].Evaluations = append(groups[i].Evaluations, ev)
	}
	return groups
}

// totals returns the totals of the scored evaluations of the group.
func (g Group) totals() []float64 {
	totals := make([]float64, 0, len(g.Evaluations))
	for _, ev := range g.Evaluations {
		if ev.Scored() {
			totals = append(totals, ev.Total())
		}
	}
	return totals
}

// Verdict is the screening outcome of one student for one exam.
type Verdict struct {
	ExamID            string     `json:"exam_id"`
	Student           string     `json:"student"`
	Policy            PolicyKind `json:"policy"`
	Average           float64    `json:"average"`
	StandardDeviation float64    `json:"standard_deviation"` // of the student's own totals
	// class statistics, only set by the class-relative policy
	ClassAverage           *float64  `json:"class_average,omitempty"`
	ClassStandardDeviation *float64  `json:"class_standard_deviation,omitempty"`
	Flagged                bool      `json:"flagged"`
	RawMarks               []float64 `json:"raw_marks"` // per-evaluation totals
	ComputedAt             time.Time `json:"computed_at"`
}

// Policy turns grouped evaluations into verdicts.
type Policy interface {
	Kind() PolicyKind
	Screen(groups []Group) []Verdict
}

// Thresholds are the drifts, in standard deviations, tolerated by each policy.
type Thresholds struct {
	Class float64
	Self  float64
}

// DefaultThresholds returns the thresholds used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{Class: DefaultClassThreshold, Self: DefaultSelfThreshold}
}

// SelectPolicy picks the policy matching the number of peers each student was evaluated by.
// A non-positive threshold falls back to its default.
func SelectPolicy(k int, th Thresholds) Policy {
	if k <= classRelativeMaxK {
		if th.Class <= 0 {
			th.Class = DefaultClassThreshold
		}
		return ClassRelative{Threshold: th.Class}
	}
	if th.Self <= 0 {
		th.Self = DefaultSelfThreshold
	}
	return SelfRelative{MinEvaluations: k, Threshold: th.Self}
}

// Screen screens groups with the default thresholds.
func Screen(groups []Group, k int) []Verdict {
	return SelectPolicy(k, DefaultThresholds()).Screen(groups)
}

// ClassRelative flags the students whose average drifts away from the class average
// by more than Threshold class standard deviations.
// Students without any scored evaluation are skipped.
type ClassRelative struct {
	Threshold float64
}

func (ClassRelative) Kind() PolicyKind { return PolicyClassRelative }

func (p ClassRelative) Screen(groups []Group) []Verdict {
	verdicts := make([]Verdict, 0, len(groups))
	for _, g := range groups {
		totals := g.totals()
		if len(totals) == 0 {
			continue
		}
		avg := mean(totals)
		verdicts = append(verdicts, Verdict{
			Student:           g.Student,
			Policy:            PolicyClassRelative,
			Average:           avg,
			StandardDeviation: stdDev(totals),
			RawMarks:          totals,
		})
	}
	if len(verdicts) == 0 {
		return verdicts
	}

	avgs := make([]float64, len(verdicts))
	for i, v := range verdicts {
		avgs[i] = v.Average
	}
	classAvg := mean(avgs)
	classSD := stdDev(avgs)
	for i := range verdicts {
		ca, csd := classAvg, classSD
		verdicts[i].ClassAverage = &ca
		verdicts[i].ClassStandardDeviation = &csd
		verdicts[i].Flagged = deviates(verdicts[i].Average, classAvg, classSD, p.Threshold)
	}
	return verdicts
}

// SelfRelative flags the students who received at least one total drifting away from their own average
// by more than Threshold of their own standard deviations.
// Students with fewer than MinEvaluations scored evaluations have incomplete data and are skipped.
type SelfRelative struct {
	MinEvaluations int
	Threshold      float64
}

func (SelfRelative) Kind() PolicyKind { return PolicySelfRelative }

func (p SelfRelative) Screen(groups []Group) []Verdict {
	verdicts := make([]Verdict, 0, len(groups))
	for _, g := range groups {
		totals := g.totals()
		if len(totals) == 0 || len(totals) < p.MinEvaluations {
			continue
		}
		avg := mean(totals)
		sd := stdDev(totals)
		var flagged bool
		for _, t := range totals {
			if deviates(t, avg, sd, p.Threshold) {
				flagged = true
				break
			}
		}
		verdicts = append(verdicts, Verdict{
			Student:           g.Student,
			Policy:            PolicySelfRelative,
			Average:           avg,
			StandardDeviation: sd,
			Flagged:           flagged,
			RawMarks:          totals,
		})
	}
	return verdicts
}

func deviates(v, avg, sd, threshold float64) bool {
	return math.Abs(v-avg) > threshold*sd+epsilon
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// stdDev is the population standard deviation of xs.
func stdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return math.Sqrt(stat.PopVariance(xs, nil))
}
