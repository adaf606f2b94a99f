package emailsvc

import (
	"net/http"
	"net/mail"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hansini-nalla/pes-sub000/core"
	logsvc "github.com/hansini-nalla/pes-sub000/services/logger"
)

type fakeClient struct {
	mu     sync.Mutex
	sent   []*sgmail.SGMailV3
	status int
	err    error
}

func (c *fakeClient) Send(email *sgmail.SGMailV3) (*rest.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, email)
	if c.err != nil {
		return nil, c.err
	}
	return &rest.Response{StatusCode: c.status, Body: "{}"}, nil
}

func newMessage(to ...string) *core.EmailMessage {
	addrs := make([]mail.Address, 0, len(to))
	for _, a := range to {
		addrs = append(addrs, mail.Address{Address: a})
	}
	return &core.EmailMessage{To: addrs, Subject: "Hello", BodyStr: "hi"}
}

func TestSendgridService_SendMessages(t *testing.T) {
	conf := &core.Config{AppName: "PES"}
	client := &fakeClient{status: http.StatusAccepted}
	svc := newSendgridService(client, conf, logsvc.NewNopLogger())
	svc.synchronous = true

	svc.SendMessages(newMessage("ann@test.cd", "bob@test.cd"), newMessage(), newMessage("cat@test.cd"))
	require.Len(t, client.sent, 2, "messages without recipients are dropped")
	subjects := []string{client.sent[0].Personalizations[0].Subject, client.sent[1].Personalizations[0].Subject}
	assert.Equal(t, []string{"[PES] Hello", "[PES] Hello"}, subjects)
	tos := len(client.sent[0].Personalizations[0].To) + len(client.sent[1].Personalizations[0].To)
	assert.Equal(t, 3, tos)
	assert.Equal(t, "text/plain", client.sent[0].Content[0].Type)
}

func TestSendgridService_send(t *testing.T) {
	conf := &core.Config{AppName: "PES"}
	tests := []struct {
		name    string
		client  *fakeClient
		wantErr string
	}{
		{name: "accepted", client: &fakeClient{status: http.StatusAccepted}},
		{name: "rejected", client: &fakeClient{status: http.StatusUnauthorized}, wantErr: "sendgrid responded 401: {}"},
		{name: "unreachable", client: &fakeClient{err: errors.New("dial tcp: timeout")}, wantErr: "calling sendgrid: dial tcp: timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newSendgridService(tt.client, conf, logsvc.NewNopLogger())
			err := svc.send(newMessage("ann@test.cd"))
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.EqualError(t, err, tt.wantErr)
			}
		})
	}
}

func TestConsoleServiceMock(t *testing.T) {
	svc := NewConsoleServiceMock(&core.Config{AppName: "PES"}, logsvc.NewNopLogger())
	svc.SendMessages(newMessage("ann@test.cd"), newMessage())
	sent := svc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "hi", sent[0].TextContent)
}
