package notifier

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/pkg/errors"

	"github.com/hansini-nalla/pes-sub000/core"
)

// Publisher is the part of an AMQP channel notifications are published with.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQP publishes every notification as a JSON message for other services to consume.
type AMQP struct {
	pub        Publisher
	exchange   string
	routingKey string
	nowFunc    func() time.Time
}

var _ Deliverer = (*AMQP)(nil)

func NewAMQP(pub Publisher, exchange, routingKey string) *AMQP {
	return &AMQP{pub: pub, exchange: exchange, routingKey: routingKey, nowFunc: time.Now}
}

func (d *AMQP) Name() string { return "amqp" }

func (d *AMQP) Deliver(ctx context.Context, n core.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "marshalling notification")
	}
	err = d.pub.PublishWithContext(ctx, d.exchange, d.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    d.nowFunc(),
		Type:         n.Kind,
	})
	return errors.Wrap(err, "publishing notification")
}

// Connection is an AMQP connection with a channel ready to publish notifications.
type Connection struct {
	conn    *amqp.Connection
	Channel *amqp.Channel
}

// Dial connects to the broker at url and declares the durable direct exchange notifications go to.
func Dial(url, exchange string) (*Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to broker")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "opening channel")
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "declaring exchange")
	}
	return &Connection{conn: conn, Channel: ch}, nil
}

func (c *Connection) Close() error {
	if err := c.Channel.Close(); err != nil {
		_ = c.conn.Close()
		return errors.Wrap(err, "closing channel")
	}
	return errors.Wrap(c.conn.Close(), "closing connection")
}
