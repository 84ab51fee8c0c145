package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sharebot/internal/eventbus"
	"sharebot/internal/metrics"
	"sharebot/pkg/logx"
)

const (
	Producer       = "sharebot"
	publishTimeout = 5 * time.Second
)

// Forwarder relays bus events to a Publisher. It subscribes at construction
// so nothing published before Run is lost.
type Forwarder struct {
	pub   Publisher
	log   logx.Logger
	ch    <-chan eventbus.Event
	unsub func()
}

func NewForwarder(bus eventbus.Bus, pub Publisher, log logx.Logger) *Forwarder {
	ch, unsub := bus.Subscribe(256)
	return &Forwarder{pub: pub, log: log, ch: ch, unsub: unsub}
}

// RoutingKey maps an in-process event type to its versioned routing key.
func RoutingKey(typ string) string { return Producer + "." + typ + ".v1" }

// Run forwards until ctx is done or the subscription closes.
func (f *Forwarder) Run(ctx context.Context) error {
	defer f.unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-f.ch:
			if !ok {
				return nil
			}
			f.forward(ctx, e)
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, e eventbus.Event) {
	key := RoutingKey(e.Type)
	env := Envelope{
		Meta: Meta{
			ID:       uuid.NewString(),
			Producer: Producer,
			Time:     e.Time.UTC(),
			Type:     key,
		},
		Data: e.Data,
	}
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := f.pub.Publish(pctx, key, env); err != nil {
		metrics.EventsPublished.WithLabelValues(e.Type, "failed").Inc()
		f.log.Warn("event publish failed", logx.String("key", key), logx.Err(err))
		return
	}
	metrics.EventsPublished.WithLabelValues(e.Type, "ok").Inc()
}
