package actor

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hansini-nalla/pes-sub000/core"
)

// Roles
const (
	RoleAdmin   = "admin:"
	RoleTeacher = "teacher:"
	RoleTA      = "ta:"
	RoleStudent = "student:"
)

var AllRoles = []string{RoleAdmin, RoleTeacher, RoleTA, RoleStudent}

func init() {
	_ = core.Validate.RegisterValidation("actorroles", func(fl validator.FieldLevel) bool {
		roles, ok := fl.Field().Interface().([]string)
		if !ok {
			return false
		}
		for _, role := range roles {
			if !isKnownRole(role) {
				return false
			}
		}
		return true
	})
	core.RegisterCustomTranslation("actorroles", "{0} must only hold known roles")
}

func isKnownRole(role string) bool {
	for _, known := range AllRoles {
		if strings.HasPrefix(role, known) {
			return true
		}
	}
	return false
}

// Actor is anyone taking part in an exam: students, teaching assistants and teachers.
type Actor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name" validate:"notblank"`
	Email     string    `json:"email" validate:"omitempty,email"`
	Roles     []string  `json:"roles" validate:"required,actorroles"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

func (a *Actor) RoleStartsWith(prefix string) bool {
	for _, role := range a.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (a *Actor) IsTeacher() bool { return a.RoleStartsWith(RoleTeacher) }
func (a *Actor) IsTA() bool      { return a.RoleStartsWith(RoleTA) }
func (a *Actor) IsStudent() bool { return a.RoleStartsWith(RoleStudent) }

// Batch groups the students of a course followed by the same reviewers.
// Reviewers are ordered: the first one is responsible for the batch.
type Batch struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id" validate:"notblank"`
	Name      string    `json:"name"`
	Reviewers []string  `json:"reviewers"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"` // UTC
}
