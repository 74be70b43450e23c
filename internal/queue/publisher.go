package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends ReservationEvents to the reservation.activity queue.
// The connection is opened lazily and dropped after any failure.  Dialing
// is bounded by a short timeout and happens outside the lock.  While one
// dial is in flight, or during the cool-down after a failed one, Publish
// fails at once instead of waiting for the broker.  Safe for concurrent
// use.
type Publisher struct {
	url      string
	log      *slog.Logger
	dial     func(url string) (*amqp.Connection, error)
	now      func() time.Time
	cooldown time.Duration

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	dialing bool
	retryAt time.Time
}

const (
	dialTimeout  = 2 * time.Second
	dialCooldown = 5 * time.Second
)

var (
	errDialing    = errors.New("rabbitmq: connection in progress")
	errBrokerDown = errors.New("rabbitmq: broker unavailable, retrying later")
)

// NewPublisher returns a Publisher for the broker at url.  No connection
// is made until the first Publish.
func NewPublisher(url string, log *slog.Logger) *Publisher {
	return &Publisher{
		url: url,
		log: log,
		dial: func(url string) (*amqp.Connection, error) {
			return amqp.DialConfig(url, amqp.Config{
				Heartbeat: 10 * time.Second,
				Locale:    "en_US",
				Dial:      amqp.DefaultDial(dialTimeout),
			})
		},
		now:      time.Now,
		cooldown: dialCooldown,
	}
}

// Publish marks the message persistent and routes it through the default
// exchange.  Errors are logged and returned so the caller can choose to
// ignore them.
func (p *Publisher) Publish(ctx context.Context, ev ReservationEvent) error {
	msg, err := newPublishing(ev, time.Now().UTC())
	if err != nil {
		p.log.Error("rabbitmq: marshal event failed", "error", err)
		return err
	}

	ch, err := p.channel()
	if err != nil {
		p.log.Warn("rabbitmq: not connected", "error", err, "action", ev.Action)
		return err
	}
	if err := ch.PublishWithContext(ctx,
		"",        // default exchange
		QueueName, // routing key = queue name
		false,     // mandatory
		false,     // immediate
		msg,
	); err != nil {
		p.log.Warn("rabbitmq: publish failed", "error", err, "action", ev.Action)
		p.mu.Lock()
		if p.ch == ch {
			p.reset()
		}
		p.mu.Unlock()
		return err
	}
	return nil
}

// Close releases the broker connection, if any.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

// channel returns the open channel or dials a new one.  Only one caller
// dials at a time and the lock is not held while it does.
func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	if p.ch != nil && !p.ch.IsClosed() {
		ch := p.ch
		p.mu.Unlock()
		return ch, nil
	}
	if p.dialing {
		p.mu.Unlock()
		return nil, errDialing
	}
	if p.now().Before(p.retryAt) {
		p.mu.Unlock()
		return nil, errBrokerDown
	}
	p.reset()
	p.dialing = true
	p.mu.Unlock()

	conn, ch, err := p.connect()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialing = false
	if err != nil {
		p.retryAt = p.now().Add(p.cooldown)
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) connect() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := p.dial(p.url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("queue declare: %w", err)
	}
	return conn, ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

func newPublishing(ev ReservationEvent, now time.Time) (amqp.Publishing, error) {
	if ev.OccurredAt == "" {
		ev.OccurredAt = now.Format(time.RFC3339)
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    uuid.NewString(),
		Type:         ev.Action,
		Timestamp:    now,
		Body:         body,
	}, nil
}
