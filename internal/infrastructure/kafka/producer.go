package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ibm-messaging/iot-go/pkg/config"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 50 * time.Millisecond
	batchBytes          = 1 << 20
)

var (
	// ErrClosed is returned by Publish after Close.
	ErrClosed = errors.New("kafka: producer closed")

	// ErrNoBrokers is returned when no broker address is configured.
	ErrNoBrokers = errors.New("kafka: no brokers configured")
)

// Record is one message to produce.
type Record struct {
	Key     string
	Value   []byte
	Headers map[string]string
	Time    time.Time
}

// Stats counts messages by delivery outcome.
type Stats struct {
	Written uint64
	Failed  uint64
}

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes records to one topic.
//
// Thread Safety:
//   - Publish may be called from multiple goroutines.
//   - The error callback runs on the writer's goroutine.
type Producer struct {
	w     messageWriter
	topic string

	mu     sync.RWMutex
	closed bool

	errMu   sync.RWMutex
	onError func(error)

	written atomic.Uint64
	failed  atomic.Uint64
}

// NewProducer creates an asynchronous producer for cfg.Topic. Publish
// returns once records are queued; batches are acknowledged by the
// partition leader and outcomes reach Stats and SetOnError.
func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	p := &Producer{topic: cfg.Topic}
	p.w = &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              batch,
		BatchBytes:             batchBytes,
		BatchTimeout:           defaultBatchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion:             p.complete,
	}
	return p, nil
}

func newProducer(w messageWriter, topic string) *Producer {
	return &Producer{w: w, topic: topic}
}

// SetOnError registers fn for batches the broker did not accept.
func (p *Producer) SetOnError(fn func(error)) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	p.onError = fn
}

// Stats returns delivery counters.
func (p *Producer) Stats() Stats {
	return Stats{Written: p.written.Load(), Failed: p.failed.Load()}
}

// complete is the writer's completion callback for one batch.
func (p *Producer) complete(msgs []kafka.Message, err error) {
	if err == nil {
		p.written.Add(uint64(len(msgs)))
		return
	}
	p.failed.Add(uint64(len(msgs)))

	p.errMu.RLock()
	fn := p.onError
	p.errMu.RUnlock()
	if fn != nil {
		fn(fmt.Errorf("kafka: delivering %d message(s) to %s: %w", len(msgs), p.topic, err))
	}
}

// Topic returns the destination topic.
func (p *Producer) Topic() string {
	return p.topic
}

// Publish hands records to the writer. With the writer built by
// NewProducer it does not wait for the broker.
func (p *Producer) Publish(ctx context.Context, records ...Record) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if len(records) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, toMessage(r))
	}

	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka: writing %d message(s) to %s: %w", len(msgs), p.topic, err)
	}
	return nil
}

// Close flushes pending batches and releases connections. Safe to call twice.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.w.Close(); err != nil {
		return fmt.Errorf("kafka: closing writer: %w", err)
	}
	return nil
}

func toMessage(r Record) kafka.Message {
	m := kafka.Message{
		Key:   []byte(r.Key),
		Value: r.Value,
		Time:  r.Time,
	}
	for k, v := range r.Headers {
		m.Headers = append(m.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return m
}
