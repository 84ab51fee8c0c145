package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"sharebot/pkg/logx"
)

type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
	Close() error
}

// ErrNotConfirmed is returned when the broker nacks a publish.
var ErrNotConfirmed = errors.New("events: publish not confirmed by broker")

var errPublisherClosed = errors.New("events: publisher closed")

// confirmation is satisfied by *amqp.DeferredConfirmation.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

type brokerChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Confirm(noWait bool) error
	IsClosed() bool
	Close() error
	publish(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error)
}

type brokerConn interface {
	channel() (brokerChannel, error)
	IsClosed() bool
	Close() error
}

type dialFunc func(url string) (brokerConn, error)

type amqpConn struct{ *amqp.Connection }

func (c amqpConn) channel() (brokerChannel, error) {
	ch, err := c.Channel()
	if err != nil {
		return nil, err
	}
	return amqpChannel{ch}, nil
}

type amqpChannel struct{ *amqp.Channel }

func (c amqpChannel) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error) {
	dc, err := c.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil || dc == nil {
		return nil, err
	}
	return dc, nil
}

func dialAMQP(url string) (brokerConn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConn{conn}, nil
}

type amqpPublisher struct {
	mu       sync.Mutex
	url      string
	exchange string
	dial     dialFunc
	conn     brokerConn
	ch       brokerChannel
	closed   bool
	log      logx.Logger
}

// NewAMQP dials url, declares a durable topic exchange and enables publisher confirms.
// A dropped connection or channel is re-established on the next Publish.
func NewAMQP(url, exchange string, log logx.Logger) (Publisher, error) {
	return newAMQP(url, exchange, log, dialAMQP)
}

func newAMQP(url, exchange string, log logx.Logger, dial dialFunc) (*amqpPublisher, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &amqpPublisher{url: url, exchange: exchange, dial: dial, log: log}
	if err := p.ensureLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

// ensureLocked redials a closed connection and reopens a closed channel.
func (p *amqpPublisher) ensureLocked() error {
	if p.closed {
		return errPublisherClosed
	}
	if p.conn == nil || p.conn.IsClosed() {
		if p.conn != nil {
			_ = p.conn.Close()
			p.log.Warn("amqp connection lost, redialing")
		}
		p.conn, p.ch = nil, nil
		conn, err := p.dial(p.url)
		if err != nil {
			return fmt.Errorf("dial amqp: %w", err)
		}
		p.conn = conn
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	ch, err := p.conn.channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("enable confirms: %w", err)
	}
	p.ch = ch
	return nil
}

func (p *amqpPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	if env.Meta.ID == "" {
		env.Meta.ID = uuid.NewString()
	}
	if env.Meta.CorrelationID == "" {
		env.Meta.CorrelationID = env.Meta.ID
	}
	if env.Meta.Time.IsZero() {
		env.Meta.Time = time.Now().UTC()
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: env.Meta.CorrelationID,
		Type:          env.Meta.Type,
		Timestamp:     env.Meta.Time,
		AppId:         env.Meta.Producer,
		Body:          body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureLocked(); err != nil {
		return err
	}
	dc, err := p.ch.publish(ctx, p.exchange, key, msg)
	if errors.Is(err, amqp.ErrClosed) {
		// The channel closed after the check above; retry once on a fresh one.
		_ = p.ch.Close()
		p.ch = nil
		if rerr := p.ensureLocked(); rerr != nil {
			return rerr
		}
		dc, err = p.ch.publish(ctx, p.exchange, key, msg)
	}
	if err != nil {
		return err
	}
	if dc != nil {
		ok, err := dc.WaitContext(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotConfirmed
		}
	}
	p.log.Debug("published", logx.String("key", key), logx.String("exchange", p.exchange))
	return nil
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// logPublisher is used when no broker is configured; events are only logged.
type logPublisher struct{ log logx.Logger }

func NewLogPublisher(log logx.Logger) Publisher { return logPublisher{log: log} }

func (l logPublisher) Publish(_ context.Context, key string, env Envelope) error {
	l.log.Debug("event", logx.String("key", key), logx.String("type", env.Meta.Type))
	return nil
}

func (logPublisher) Close() error { return nil }
