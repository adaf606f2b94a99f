package exam

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hansini-nalla/pes-sub000/core"
)

type EvaluationStatus string

const (
	StatusPending   EvaluationStatus = "pending"
	StatusCompleted EvaluationStatus = "completed"
)

type Exam struct {
	ID                  string    `json:"id"`
	CourseID            string    `json:"course_id"`
	Title               string    `json:"title"`
	QuestionCount       int       `json:"question_count"`
	MaxMarksPerQuestion float64   `json:"max_marks_per_question"`
	PeersPerStudent     int       `json:"peers_per_student"` // k
	CreatedAt           time.Time `json:"created_at"`        // UTC
}

// MaxTotal is the best total an evaluation of the exam can reach.
func (e Exam) MaxTotal() float64 {
	return float64(e.QuestionCount) * e.MaxMarksPerQuestion
}

// NewExam contains information needed to create a new Exam.
type NewExam struct {
	CourseID            string  `json:"course_id" validate:"notblank"`
	Title               string  `json:"title" validate:"notblank"`
	QuestionCount       int     `json:"question_count" validate:"min=1"`
	MaxMarksPerQuestion float64 `json:"max_marks_per_question" validate:"gt=0"`
	PeersPerStudent     int     `json:"peers_per_student" validate:"min=1"`
}

func (ne *NewExam) Validate() error {
	ne.CourseID = core.CleanString(ne.CourseID)
	ne.Title = core.CleanString(ne.Title)
	return core.ValidateStruct(ne)
}

type Submission struct {
	ExamID      string    `json:"exam_id"`
	StudentID   string    `json:"student_id"`
	SubmittedAt time.Time `json:"submitted_at"` // UTC
}

// Evaluation is the marking of one evaluatee's submission by one evaluator.
type Evaluation struct {
	ID        string           `json:"id"`
	ExamID    string           `json:"exam_id"`
	Evaluator string           `json:"evaluator"`
	Evaluatee string           `json:"evaluatee"`
	Marks     []float64        `json:"marks"`
	Feedback  string           `json:"feedback"`
	Status    EvaluationStatus `json:"status"`
	Flagged   bool             `json:"flagged"`
	CreatedAt time.Time        `json:"created_at"` // UTC
	UpdatedAt time.Time        `json:"updated_at"` // UTC
}

// EvaluationState is what a conditional evaluation write expects to find stored.
type EvaluationState struct {
	Status  EvaluationStatus
	Flagged bool
}

func (s EvaluationState) String() string {
	if s.Flagged {
		return string(s.Status) + " (flagged)"
	}
	return string(s.Status)
}

func (ev Evaluation) State() EvaluationState {
	return EvaluationState{Status: ev.Status, Flagged: ev.Flagged}
}

// ForcedToZero reports whether nobody submitted the evaluation and it was zeroed pending a reviewer.
func (ev Evaluation) ForcedToZero() bool {
	return ev.Status == StatusPending && ev.Flagged
}

// EvaluationWrite saves Evaluation along another write, only if the stored evaluation is still in state Expected.
type EvaluationWrite struct {
	Evaluation Evaluation
	Expected   EvaluationState
}

// Total sums the per-question marks.
func (ev Evaluation) Total() float64 {
	var total float64
	for _, m := range ev.Marks {
		total += m
	}
	return total
}

// Scored reports whether the evaluation takes part in statistics.
func (ev Evaluation) Scored() bool {
	return ev.Status == StatusCompleted && len(ev.Marks) > 0
}

type EvaluationFilter struct {
	ExamID    string           `query:"exam_id"`
	Evaluator string           `query:"evaluator"`
	Evaluatee string           `query:"evaluatee"`
	Status    EvaluationStatus `query:"status"`
}

// Matches applies AND on the set filter fields.
func (f EvaluationFilter) Matches(ev Evaluation) bool {
	return (f.ExamID == "" || ev.ExamID == f.ExamID) &&
		(f.Evaluator == "" || ev.Evaluator == f.Evaluator) &&
		(f.Evaluatee == "" || ev.Evaluatee == f.Evaluatee) &&
		(f.Status == "" || ev.Status == f.Status)
}

// MarksSheet is a marks array checked against the exam it belongs to.
type MarksSheet struct {
	Marks         []float64 `json:"marks"`
	QuestionCount int       `json:"-"`
	MaxMarks      float64   `json:"-"`
}

const (
	marksCountTag = "markscount"
	marksRangeTag = "marksrange"
)

func init() {
	core.Validate.RegisterStructValidation(marksSheetValidation, MarksSheet{})
	core.RegisterParamTranslation(marksCountTag)
	core.RegisterCustomTranslation(marksRangeTag, "{0} {1}")
}

func marksSheetValidation(sl validator.StructLevel) {
	sheet := sl.Current().Interface().(MarksSheet)
	if len(sheet.Marks) != sheet.QuestionCount {
		sl.ReportError(sheet.Marks, "marks", "Marks", marksCountTag,
			fmt.Sprintf("expected %d marks, got %d", sheet.QuestionCount, len(sheet.Marks)))
		return
	}
	for i, m := range sheet.Marks {
		if !(m >= 0 && m <= sheet.MaxMarks) { // NaN fails both
			sl.ReportError(m, fmt.Sprintf("marks[%d]", i), "Marks", marksRangeTag,
				fmt.Sprintf("must be between 0 and %g, got %g", sheet.MaxMarks, m))
		}
	}
}

// ValidateMarks checks that marks holds exactly one mark per question of the exam,
// each within [0, exam.MaxMarksPerQuestion].
func ValidateMarks(e Exam, marks []float64) error {
	return core.ValidateStruct(MarksSheet{
		Marks:         marks,
		QuestionCount: e.QuestionCount,
		MaxMarks:      e.MaxMarksPerQuestion,
	})
}

// Zeros returns the marks of an evaluation forced to zero.
func Zeros(e Exam) []float64 {
	return make([]float64, e.QuestionCount)
}
