package notifier

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/actor"
	"github.com/hansini-nalla/pes-sub000/core/exam"
)

var subjects = map[string]string{
	core.NotifyFlagResolved:       "Your dispute has been resolved",
	core.NotifyFlagEscalated:      "A dispute has been escalated",
	core.NotifyUncheckedCompleted: "An unchecked evaluation has been marked",
	core.NotifyTicketEscalated:    "A ticket needs your attention",
}

type (
	ActorLookup interface {
		Actors(ctx context.Context, ids ...string) ([]actor.Actor, error)
	}

	ExamLookup interface {
		Get(ctx context.Context, id string) (exam.Exam, error)
	}

	// EmailData is what the email templates are rendered with.
	EmailData struct {
		RecipientName string
		ExamID        string
		ExamTitle     string
		Reason        string
	}

	// Email renders one email per recipient with an email address, from the template named after the notification kind.
	Email struct {
		actors  ActorLookup
		exams   ExamLookup
		mail    core.EmailService
		baseURL string
	}
)

var _ Deliverer = (*Email)(nil)

func NewEmail(actors ActorLookup, exams ExamLookup, mailSvc core.EmailService, frontendBaseURL string) *Email {
	return &Email{actors: actors, exams: exams, mail: mailSvc, baseURL: frontendBaseURL}
}

func (d *Email) Name() string { return "email" }

func (d *Email) Deliver(ctx context.Context, n core.Notification) error {
	msgs, err := d.messages(ctx, n)
	if err != nil {
		return err
	}
	if len(msgs) > 0 {
		d.mail.SendMessages(msgs...)
	}
	return nil
}

func (d *Email) messages(ctx context.Context, n core.Notification) ([]*core.EmailMessage, error) {
	subject, ok := subjects[n.Kind]
	if !ok {
		return nil, errors.Errorf("unknown notification kind %q", n.Kind)
	}
	e, err := d.exams.Get(ctx, n.ExamID)
	if err != nil {
		return nil, errors.Wrap(err, "getting exam")
	}
	recipients, err := d.actors.Actors(ctx, n.Recipients...)
	if err != nil {
		return nil, errors.Wrap(err, "getting recipients")
	}

	msgs := make([]*core.EmailMessage, 0, len(recipients))
	seen := make(map[string]bool, len(recipients))
	for _, r := range recipients {
		if r.Email == "" || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: r.Name, Address: r.Email}},
			Subject:      subject,
			TemplateName: n.Kind,
			BaseURL:      d.baseURL,
			TemplateData: EmailData{
				RecipientName: r.Name,
				ExamID:        e.ID,
				ExamTitle:     e.Title,
				Reason:        n.Data["reason"],
			},
		})
	}
	return msgs, nil
}
