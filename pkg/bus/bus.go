package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/applets-core/pkg/jobs"
)

// Message is one outbound event.
type Message struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Sink delivers messages to one external system. Deliveries may repeat.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

// Observer records delivery outcomes.
type Observer interface {
	RecordBusDelivery(sink, topic string, ok bool)
	RecordBusExhausted(sink, topic string)
}

type enqueuer interface {
	Enqueue(job jobs.Job) error
}

const (
	PrefixEmail  = "email."
	PrefixPush   = "push."
	PrefixReport = "report."
)

// Config wires sinks to topic prefixes. Topics matching no prefix go to Queue.
type Config struct {
	Email  Sink
	Push   Sink
	Report Sink
	Queue  Sink
}

// Bus is the process-wide outbound publisher.
type Bus struct {
	routes   []route
	fallback Sink
	queue    enqueuer
	observer Observer
	logger   *zap.Logger
	now      func() time.Time
}

type route struct {
	prefix string
	sink   Sink
}

// Option customises the bus.
type Option func(*Bus)

// WithObserver records delivery metrics.
func WithObserver(o Observer) Option {
	return func(b *Bus) { b.observer = o }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

// New builds a bus. Call Handle from a jobs.Queue and attach it with Attach.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{fallback: cfg.Queue, logger: logger, now: time.Now}
	for _, r := range []route{{PrefixEmail, cfg.Email}, {PrefixPush, cfg.Push}, {PrefixReport, cfg.Report}} {
		if r.sink != nil {
			b.routes = append(b.routes, r)
		}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach sets the queue that carries deliveries.
func (b *Bus) Attach(q enqueuer) {
	b.queue = q
}

// Publish enqueues payload for delivery on topic. Failures are logged, never returned.
func (b *Bus) Publish(ctx context.Context, topic string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("bus payload marshal failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	msg := Message{ID: uuid.NewString(), Topic: topic, Payload: raw, OccurredAt: b.now().UTC()}

	if b.queue == nil {
		if err := b.deliver(ctx, msg); err != nil {
			b.logger.Warn("bus delivery failed", zap.String("topic", topic), zap.String("message_id", msg.ID), zap.Error(err))
		}
		return
	}
	if err := b.queue.Enqueue(jobs.Job{ID: msg.ID, Type: topic, Payload: msg}); err != nil {
		b.logger.Error("bus enqueue failed", zap.String("topic", topic), zap.String("message_id", msg.ID), zap.Error(err))
	}
}

// Handle is the jobs.Handler delivering one queued message.
func (b *Bus) Handle(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(Message)
	if !ok {
		b.logger.Error("bus job carries unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	return b.deliver(ctx, msg)
}

// Exhausted is the jobs.ExhaustedFunc of the delivery queue.
func (b *Bus) Exhausted(job jobs.Job, err error) {
	msg, ok := job.Payload.(Message)
	if !ok {
		return
	}
	sink := b.SinkFor(msg.Topic)
	if sink == nil {
		return
	}
	b.logger.Error("bus message abandoned",
		zap.String("topic", msg.Topic),
		zap.String("message_id", msg.ID),
		zap.String("sink", sink.Name()),
		zap.Int("attempts", job.Attempt),
		zap.Error(err),
	)
	if b.observer != nil {
		b.observer.RecordBusExhausted(sink.Name(), msg.Topic)
	}
}

// SinkFor returns the sink responsible for topic.
func (b *Bus) SinkFor(topic string) Sink {
	for _, r := range b.routes {
		if strings.HasPrefix(topic, r.prefix) {
			return r.sink
		}
	}
	return b.fallback
}

func (b *Bus) deliver(ctx context.Context, msg Message) error {
	sink := b.SinkFor(msg.Topic)
	if sink == nil {
		b.logger.Debug("bus topic has no sink", zap.String("topic", msg.Topic))
		return nil
	}
	err := sink.Deliver(ctx, msg)
	if b.observer != nil {
		b.observer.RecordBusDelivery(sink.Name(), msg.Topic, err == nil)
	}
	if err != nil {
		return fmt.Errorf("%s sink: %w", sink.Name(), err)
	}
	return nil
}
