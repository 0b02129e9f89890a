package historian

import (
	"context"

	"github.com/ibm-messaging/iot-go/internal/infrastructure/kafka"
	"github.com/ibm-messaging/iot-go/pkg/message"
)

// recordPublisher is the subset of *kafka.Producer the recorder uses.
type recordPublisher interface {
	Publish(ctx context.Context, records ...kafka.Record) error
	Close() error
}

// Kafka produces one record per message keyed by source, so a device's
// messages stay ordered within their partition.
type Kafka struct {
	p recordPublisher
}

// NewKafka wraps a producer. The recorder owns p.
func NewKafka(p recordPublisher) *Kafka {
	return &Kafka{p: p}
}

// Record produces msg's raw payload with kind, name and format headers.
func (k *Kafka) Record(ctx context.Context, msg message.Message) error {
	e := NewEntry(msg)

	headers := map[string]string{
		"id":     e.ID,
		"kind":   e.Kind,
		"format": e.Format,
	}
	if e.Name != "" {
		headers["name"] = e.Name
	}

	return k.p.Publish(ctx, kafka.Record{
		Key:     e.Key(),
		Value:   e.Payload,
		Headers: headers,
		Time:    e.ReceivedAt,
	})
}

// Close flushes and closes the producer.
func (k *Kafka) Close() error {
	return k.p.Close()
}
