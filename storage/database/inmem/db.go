// Package inmemdb stores everything in memory. A single lock guards every table
// so that operations spanning several tables are atomic, like a database transaction.
package inmemdb

import (
	"sync"

	"github.com/hansini-nalla/pes-sub000/core/actor"
	"github.com/hansini-nalla/pes-sub000/core/dispute"
	"github.com/hansini-nalla/pes-sub000/core/exam"
	"github.com/hansini-nalla/pes-sub000/core/screening"
)

type DB struct {
	mutex sync.RWMutex

	actors         map[string]actor.Actor
	batches        []actor.Batch // creation order
	courseTeachers map[string][]string

	exams       map[string]exam.Exam
	submissions map[string][]exam.Submission // exam ID -> submissions, in order
	evaluations []*exam.Evaluation           // creation order
	evalIndex   map[string]*exam.Evaluation

	flags   []*dispute.Flag // creation order
	tickets []*dispute.Ticket

	verdicts map[string][]screening.Verdict // exam ID -> verdicts
}

func Open() *DB {
	return &DB{
		actors:         make(map[string]actor.Actor),
		courseTeachers: make(map[string][]string),
		exams:          make(map[string]exam.Exam),
		submissions:    make(map[string][]exam.Submission),
		evalIndex:      make(map[string]*exam.Evaluation),
		verdicts:       make(map[string][]screening.Verdict),
	}
}

func copyFloats(xs []float64) []float64 {
	if xs == nil {
		return nil
	}
	out := make([]float64, len(xs))
	copy(out, xs)
	return out
}

func copyStrings(xs []string) []string {
	if xs == nil {
		return nil
	}
	out := make([]string, len(xs))
	copy(out, xs)
	return out
}
