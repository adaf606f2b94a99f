package core

import "context"

// Notification kinds
const (
	NotifyFlagResolved       = "flag_resolved"
	NotifyFlagEscalated      = "flag_escalated"
	NotifyUncheckedCompleted = "unchecked_completed"
	NotifyTicketEscalated    = "ticket_escalated"
)

// Notification tells a Notifier that something is due to a set of actors.
// What is said to them is up to the Notifier.
type Notification struct {
	Kind       string            `json:"kind"`
	ExamID     string            `json:"exam_id"`
	SubjectID  string            `json:"subject_id"` // flag or ticket ID
	Recipients []string          `json:"recipients"` // actor IDs
	Data       map[string]string `json:"data,omitempty"`
}

// Notifier delivers notifications, fire-and-forget.
// Implementations log delivery failures instead of reporting them.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) {}
