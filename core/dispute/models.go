package dispute

import (
	"time"

	"github.com/hansini-nalla/pes-sub000/core"
)

type FlagStatus string

const (
	FlagPending   FlagStatus = "pending"
	FlagResolved  FlagStatus = "resolved"
	FlagEscalated FlagStatus = "escalated"
)

// OpenFlagStatuses are the statuses a flag can still leave.
var OpenFlagStatuses = []FlagStatus{FlagPending, FlagEscalated}

// Flag disputes one evaluation.
// pending -> resolved | escalated, escalated -> resolved. resolved is terminal.
type Flag struct {
	ID               string     `json:"id"`
	ExamID           string     `json:"exam_id"`
	EvaluationID     string     `json:"evaluation_id"`
	RaisedBy         string     `json:"raised_by"`
	Status           FlagStatus `json:"status"`
	ResolvedBy       string     `json:"resolved_by,omitempty"`
	EscalationReason string     `json:"escalation_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"` // UTC
	UpdatedAt        time.Time  `json:"updated_at"` // UTC
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

func (f Flag) IsOpen() bool {
	return f.Status == FlagPending || f.Status == FlagEscalated
}

type TicketStatus string

const (
	TicketOpen   TicketStatus = "open"
	TicketClosed TicketStatus = "closed"
)

const (
	// UncheckedMessage marks the tickets opened for evaluations nobody submitted.
	UncheckedMessage = "unchecked"
	// ScreeningMessage marks the tickets opened for students flagged by screening.
	ScreeningMessage = "flagged by screening"
)

// Ticket asks a reviewer to look into a student's marking for an exam.
// open -> closed. EscalatedToTeacher is set once and never cleared, whatever the status.
type Ticket struct {
	ID                 string       `json:"id"`
	ExamID             string       `json:"exam_id"`
	Student            string       `json:"student"`
	Evaluator          string       `json:"evaluator,omitempty"`
	Reviewer           string       `json:"reviewer"`
	EvaluationID       string       `json:"evaluation_id,omitempty"`
	Message            string       `json:"message"`
	Status             TicketStatus `json:"status"`
	EscalatedToTeacher bool         `json:"escalated_to_teacher"`
	CreatedAt          time.Time    `json:"created_at"` // UTC
	UpdatedAt          time.Time    `json:"updated_at"` // UTC
	ClosedAt           *time.Time   `json:"closed_at,omitempty"`
}

func (t Ticket) IsUnchecked() bool {
	return t.Message == UncheckedMessage
}

type FlagFilter struct {
	ExamID       string       `query:"exam_id"`
	EvaluationID string       `query:"evaluation_id"`
	RaisedBy     string       `query:"raised_by"`
	Statuses     []FlagStatus `query:"status"`
}

// Matches applies AND on the set filter fields, Statuses matching any of its values.
func (f FlagFilter) Matches(fl Flag) bool {
	if (f.ExamID != "" && fl.ExamID != f.ExamID) ||
		(f.EvaluationID != "" && fl.EvaluationID != f.EvaluationID) ||
		(f.RaisedBy != "" && fl.RaisedBy != f.RaisedBy) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if fl.Status == s {
			return true
		}
	}
	return false
}

type TicketFilter struct {
	ExamID    string       `query:"exam_id"`
	Student   string       `query:"student"`
	Evaluator string       `query:"evaluator"`
	Reviewer  string       `query:"reviewer"`
	Message   string       `query:"message"`
	Status    TicketStatus `query:"status"`
}

// Matches applies AND on the set filter fields.
func (f TicketFilter) Matches(t Ticket) bool {
	return (f.ExamID == "" || t.ExamID == f.ExamID) &&
		(f.Student == "" || t.Student == f.Student) &&
		(f.Evaluator == "" || t.Evaluator == f.Evaluator) &&
		(f.Reviewer == "" || t.Reviewer == f.Reviewer) &&
		(f.Message == "" || t.Message == f.Message) &&
		(f.Status == "" || t.Status == f.Status)
}

// Resolution is what a reviewer decides when resolving a flag.
// Nil Marks keep the evaluation marks, nil Feedback keeps its feedback.
type Resolution struct {
	ResolvedBy string    `json:"resolved_by" validate:"notblank"`
	Marks      []float64 `json:"marks"`
	Feedback   *string   `json:"feedback"`
}

func (r *Resolution) Validate() error {
	r.ResolvedBy = core.CleanString(r.ResolvedBy)
	return core.ValidateStruct(r)
}

type Escalation struct {
	Reason string `json:"reason" validate:"notblank"`
}

func (esc *Escalation) Validate() error {
	esc.Reason = core.CleanString(esc.Reason)
	return core.ValidateStruct(esc)
}

// UncheckedCompletion is what a reviewer submits to complete an evaluation nobody marked.
type UncheckedCompletion struct {
	Reviewer string    `json:"reviewer" validate:"notblank"`
	Marks    []float64 `json:"marks" validate:"required"`
	Feedback string    `json:"feedback"`
}

func (uc *UncheckedCompletion) Validate() error {
	uc.Reviewer = core.CleanString(uc.Reviewer)
	uc.Feedback = core.CleanString(uc.Feedback)
	return core.ValidateStruct(uc)
}

// SweepResult reports what a non-responder sweep did.
type SweepResult struct {
	Created  []Ticket `json:"created"`
	Skipped  int      `json:"skipped"`            // evaluations already ticketed
	Unrouted []string `json:"unrouted,omitempty"` // evaluations whose evaluatee has no reviewer
}
