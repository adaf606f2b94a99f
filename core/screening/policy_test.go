package screening

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hansini-nalla/pes-sub000/core/exam"
)

// received builds the completed single-question evaluations of student, one per total.
func received(student string, totals ...float64) []exam.Evaluation {
	evs := make([]exam.Evaluation, 0, len(totals))
	for i, total := range totals {
		evs = append(evs, exam.Evaluation{
			ID:        fmt.Sprintf("%s-%d", student, i),
			Evaluator: fmt.Sprintf("peer-%d", i),
			Evaluatee: student,
			Marks:     []float64{total},
			Status:    exam.StatusCompleted,
		})
	}
	return evs
}

func flaggedStudents(verdicts []Verdict) []string {
	flagged := make([]string, 0)
	for _, v := range verdicts {
		if v.Flagged {
			flagged = append(flagged, v.Student)
		}
	}
	return flagged
}

func TestSelectPolicy(t *testing.T) {
	tests := []struct {
		k    int
		th   Thresholds
		want Policy
	}{
		{k: 1, th: Thresholds{Class: 1, Self: 2}, want: ClassRelative{Threshold: 1}},
		{k: 3, th: Thresholds{Class: 2}, want: ClassRelative{Threshold: 2}},
		{k: 4, th: Thresholds{Class: 1, Self: 1.5}, want: SelfRelative{MinEvaluations: 4, Threshold: 1.5}},
		{k: 7, th: Thresholds{}, want: SelfRelative{MinEvaluations: 7, Threshold: DefaultSelfThreshold}},
		{k: 2, th: Thresholds{Class: -1}, want: ClassRelative{Threshold: DefaultClassThreshold}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("k=%d,class=%g,self=%g", tt.k, tt.th.Class, tt.th.Self), func(t *testing.T) {
			assert.Equal(t, tt.want, SelectPolicy(tt.k, tt.th))
		})
	}
}

func TestClassRelative_Screen(t *testing.T) {
	var evs []exam.Evaluation
	for i, avg := range []float64{80, 82, 79, 81, 40} {
		evs = append(evs, received(fmt.Sprintf("s%d", i), avg, avg, avg)...)
	}

	verdicts := Screen(GroupByEvaluatee(evs), 3)
	require.Len(t, verdicts, 5)
	assert.Equal(t, []string{"s4"}, flaggedStudents(verdicts))

	for _, v := range verdicts {
		assert.Equal(t, PolicyClassRelative, v.Policy)
		require.NotNil(t, v.ClassAverage)
		require.NotNil(t, v.ClassStandardDeviation)
		assert.InDelta(t, 72.4, *v.ClassAverage, 1e-9)
		assert.InDelta(t, math.Sqrt(263.44), *v.ClassStandardDeviation, 1e-9)
		assert.Len(t, v.RawMarks, 3)
		assert.Zero(t, v.StandardDeviation) // every student got the same total thrice
	}
	assert.Equal(t, "s0", verdicts[0].Student, "verdicts follow the order students first appear in")
}

func TestClassRelative_edgeCases(t *testing.T) {
	t.Run("no evaluations", func(t *testing.T) {
		verdicts := ClassRelative{Threshold: 1}.Screen(GroupByEvaluatee(nil))
		assert.Empty(t, verdicts)
	})
	t.Run("single student", func(t *testing.T) {
		verdicts := ClassRelative{Threshold: 1}.Screen(GroupByEvaluatee(received("solo", 12, 14)))
		require.Len(t, verdicts, 1)
		assert.False(t, verdicts[0].Flagged)
		assert.Equal(t, 13.0, verdicts[0].Average)
		assert.Equal(t, 13.0, *verdicts[0].ClassAverage)
		assert.Zero(t, *verdicts[0].ClassStandardDeviation)
	})
	t.Run("identical averages", func(t *testing.T) {
		evs := append(received("a", 10, 10), received("b", 10, 10)...)
		assert.Empty(t, flaggedStudents(ClassRelative{Threshold: 1}.Screen(GroupByEvaluatee(evs))))
	})
	t.Run("unscored evaluations are skipped", func(t *testing.T) {
		evs := received("a", 10)
		evs = append(evs, exam.Evaluation{ID: "pending", Evaluatee: "b", Status: exam.StatusPending, Marks: []float64{}})
		verdicts := ClassRelative{Threshold: 1}.Screen(GroupByEvaluatee(evs))
		require.Len(t, verdicts, 1)
		assert.Equal(t, "a", verdicts[0].Student)
	})
}

func TestSelfRelative_Screen(t *testing.T) {
	tests := []struct {
		name      string
		totals    []float64
		threshold float64
		want      bool
	}{
		{name: "one outlier", totals: []float64{18, 19, 20, 18, 5}, threshold: 1, want: true},
		{name: "uniform marks", totals: []float64{19, 19, 19, 19, 19}, threshold: 1, want: false},
		{name: "clustered marks, two deviations allowed", totals: []float64{18, 19, 20, 18, 19}, threshold: 2, want: false},
		// 20 drifts 1.2 from 18.8 while the deviation is about 0.75
		{name: "clustered marks, one deviation allowed", totals: []float64{18, 19, 20, 18, 19}, threshold: 1, want: true},
		{name: "outlier within three deviations", totals: []float64{18, 19, 20, 18, 5}, threshold: 3, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdicts := SelectPolicy(5, Thresholds{Self: tt.threshold}).Screen(GroupByEvaluatee(received("s", tt.totals...)))
			require.Len(t, verdicts, 1)
			v := verdicts[0]
			assert.Equal(t, tt.want, v.Flagged)
			assert.Equal(t, PolicySelfRelative, v.Policy)
			assert.Nil(t, v.ClassAverage)
			assert.Nil(t, v.ClassStandardDeviation)
			assert.Equal(t, tt.totals, v.RawMarks)
		})
	}

	t.Run("outlier statistics", func(t *testing.T) {
		verdicts := Screen(GroupByEvaluatee(received("s", 18, 19, 20, 18, 5)), 5)
		require.Len(t, verdicts, 1)
		assert.InDelta(t, 16, verdicts[0].Average, 1e-9)
		assert.InDelta(t, math.Sqrt(30.8), verdicts[0].StandardDeviation, 1e-9)
	})
}

func TestSelfRelative_defaultThresholdFlagsOnlyLoneOutliers(t *testing.T) {
	tests := []struct {
		name   string
		totals []float64
		want   bool
	}{
		{name: "lone low total", totals: []float64{18, 19, 20, 18, 5}, want: true},
		{name: "clustered totals", totals: []float64{18, 19, 20, 18, 19}, want: false},
		{name: "lone outlier among four", totals: []float64{18, 19, 20, 5}, want: true},
		{name: "spread among four", totals: []float64{12, 14, 16, 18}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdicts := Screen(GroupByEvaluatee(received("s", tt.totals...)), len(tt.totals))
			require.Len(t, verdicts, 1)
			assert.Equal(t, tt.want, verdicts[0].Flagged)
		})
	}
}

func TestSelfRelative_incompleteData(t *testing.T) {
	evs := received("complete", 18, 19, 20, 18, 5)
	evs = append(evs, received("incomplete", 18, 19, 20, 5)...)

	verdicts := Screen(GroupByEvaluatee(evs), 5)
	require.Len(t, verdicts, 1)
	assert.Equal(t, "complete", verdicts[0].Student)
}

func TestDeviates_boundary(t *testing.T) {
	// exactly one deviation away is not beyond it
	assert.False(t, deviates(12, 10, 2, 1))
	assert.False(t, deviates(1.1, 0.8, 0.3, 1)) // 1.1-0.8 rounds above 0.3
	assert.True(t, deviates(12.01, 10, 2, 1))
	assert.False(t, deviates(10, 10, 0, 1))
	assert.True(t, deviates(10.5, 10, 0, 1))
}
