// Package notifier delivers core notifications by email and over AMQP.
package notifier

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hansini-nalla/pes-sub000/core"
)

// Deliverer delivers a notification through one channel.
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, n core.Notification) error
}

// Fanout delivers every notification through all its deliverers concurrently and logs their failures.
type Fanout struct {
	deliverers []Deliverer
	logger     core.Logger
	timeout    time.Duration
}

var _ core.Notifier = (*Fanout)(nil)

func NewFanout(logger core.Logger, deliverers ...Deliverer) *Fanout {
	return &Fanout{deliverers: deliverers, logger: logger, timeout: 10 * time.Second}
}

// Notify blocks until every deliverer is done. The caller's cancellation is not propagated:
// a notification due is delivered even when the request that triggered it has ended.
func (f *Fanout) Notify(ctx context.Context, n core.Notification) {
	if len(n.Recipients) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()

	var g errgroup.Group
	for _, d := range f.deliverers {
		d := d
		g.Go(func() error {
			if err := d.Deliver(ctx, n); err != nil {
				f.logger.Error("delivering notification", err, map[string]interface{}{
					"channel": d.Name(), "kind": n.Kind, "subject": n.SubjectID,
				})
			}
			return nil
		})
	}
	_ = g.Wait()
}
