package emailsvc

import (
	"net/http"
	"net/mail"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"golang.org/x/sync/errgroup"

	"github.com/hansini-nalla/pes-sub000/core"
)

// maxConcurrentSends bounds the requests in flight for one SendMessages call.
const maxConcurrentSends = 4

// sgClient is the part of *sendgrid.Client the service uses.
type sgClient interface {
	Send(email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendgridService sends the emails through the SendGrid v3 API.
type SendgridService struct {
	client      sgClient
	from        *sgmail.Email
	subjPrefix  string
	logger      core.Logger
	synchronous bool
}

var _ core.EmailService = (*SendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) *SendgridService {
	return newSendgridService(sendgrid.NewSendClient(conf.SendgridApiKey), conf, logger)
}

func newSendgridService(client sgClient, conf *core.Config, logger core.Logger) *SendgridService {
	from := conf.DefaultFromEmail()
	return &SendgridService{
		client:     client,
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

// SendMessages returns right away, the messages are sent in the background.
// Failures are logged.
func (svc *SendgridService) SendMessages(messages ...*core.EmailMessage) {
	if svc.synchronous {
		svc.sendAll(messages)
		return
	}
	go svc.sendAll(messages)
}

func (svc *SendgridService) sendAll(messages []*core.EmailMessage) {
	var g errgroup.Group
	g.SetLimit(maxConcurrentSends)
	for _, msg := range messages {
		msg := msg
		g.Go(func() error {
			if err := svc.send(msg); err != nil {
				svc.logger.Error("sending email", err, map[string]interface{}{"template": msg.TemplateName, "subject": msg.Subject})
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (svc *SendgridService) send(msg *core.EmailMessage) error {
	if err := msg.Render(); err != nil {
		return errors.Wrap(err, "rendering email")
	}
	if !msg.HasRecipients() || !msg.HasContent() {
		return nil
	}
	res, err := svc.client.Send(svc.build(*msg))
	if err != nil {
		return errors.Wrap(err, "calling sendgrid")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("sendgrid responded %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func (svc *SendgridService) build(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject
	p.AddTos(sgEmails(msg.To)...)
	p.AddCCs(sgEmails(msg.Cc)...)
	p.AddBCCs(sgEmails(msg.Bcc)...)

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	return m
}

func sgEmails(addrs []mail.Address) []*sgmail.Email {
	emails := make([]*sgmail.Email, 0, len(addrs))
	for _, a := range addrs {
		emails = append(emails, sgmail.NewEmail(a.Name, a.Address))
	}
	return emails
}
