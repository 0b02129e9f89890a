// Package dispatch routes inbound broker messages to typed handlers.
//
// For every (topic, payload) pair the Dispatcher:
//  1. decodes the topic for the client's role, dropping malformed topics
//  2. resolves the most specific active subscription, dropping messages
//     that no longer have one (a normal race during unsubscribe)
//  3. decodes the payload, falling back to raw bytes when a structured
//     payload does not parse
//  4. invokes the single handler registered for the subscription's kind
//
// Nothing inbound is ever surfaced as an error: drops and downgrades are
// logged and counted.
package dispatch

import (
	"sync/atomic"

	"github.com/ibm-messaging/iot-go/pkg/envelope"
	"github.com/ibm-messaging/iot-go/pkg/message"
	"github.com/ibm-messaging/iot-go/pkg/mqtt"
	"github.com/ibm-messaging/iot-go/pkg/topic"
)

// Resolver finds the subscription that owns a concrete topic.
// *mqtt.Manager and *mqtt.Registry satisfy it.
type Resolver interface {
	Lookup(concrete string) (mqtt.Subscription, bool)
}

// RegistryResolver adapts a bare Registry.
type RegistryResolver struct{ *mqtt.Registry }

// Lookup implements Resolver.
func (r RegistryResolver) Lookup(concrete string) (mqtt.Subscription, bool) {
	return r.Match(concrete)
}

// Stats counts dispatcher outcomes.
type Stats struct {
	Delivered  uint64
	Dropped    uint64
	Downgraded uint64
}

// Dispatcher routes messages for one client.
type Dispatcher struct {
	builder  topic.Builder
	subs     Resolver
	handlers *Table
	logger   mqtt.Logger

	scopeType string
	scopeID   string

	delivered  atomic.Uint64
	dropped    atomic.Uint64
	downgraded atomic.Uint64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for drops and downgrades.
func WithLogger(l mqtt.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithScope sets the device identity attached to messages received on
// device-scoped topics, which carry no type or id of their own.
func WithScope(deviceType, deviceID string) Option {
	return func(d *Dispatcher) {
		d.scopeType, d.scopeID = deviceType, deviceID
	}
}

// New creates a Dispatcher decoding topics with builder and resolving
// subscriptions with subs.
func New(builder topic.Builder, subs Resolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		builder:  builder,
		subs:     subs,
		handlers: &Table{},
		logger:   mqtt.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handlers returns the handler table.
func (d *Dispatcher) Handlers() *Table {
	return d.handlers
}

// Stats returns a snapshot of the outcome counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Delivered:  d.delivered.Load(),
		Dropped:    d.dropped.Load(),
		Downgraded: d.downgraded.Load(),
	}
}

// HandleMessage routes one inbound message. It has the mqtt.MessageHandler
// signature and runs on the delivery goroutine.
func (d *Dispatcher) HandleMessage(concrete string, payload []byte) {
	t, err := d.builder.Decode(concrete)
	if err != nil {
		d.drop("malformed topic", concrete, "error", err)
		return
	}

	sub, ok := d.subs.Lookup(concrete)
	if !ok {
		d.drop("no subscription", concrete)
		return
	}

	h := d.handlers.Get(sub.Kind)
	if h == nil {
		d.drop("no handler", concrete, "kind", sub.Kind)
		return
	}

	env, err := envelope.Decode(formatOf(t), payload)
	if err != nil {
		d.downgraded.Add(1)
		d.logger.Warn("payload downgraded to raw bytes",
			"topic", concrete,
			"bytes", len(payload),
			"error", err,
		)
	}

	d.delivered.Add(1)
	h(d.build(t, env))
}

func (d *Dispatcher) drop(reason, concrete string, args ...any) {
	d.dropped.Add(1)
	d.logger.Warn("inbound message dropped", append([]any{"reason", reason, "topic", concrete}, args...)...)
}

// formatOf returns the declared payload format. Status and notification
// topics carry no format segment; their documents are JSON.
func formatOf(t topic.Topic) string {
	if t.Format != "" {
		return t.Format
	}
	return envelope.FormatJSON
}

// build turns a decoded topic and envelope into the message variant.
func (d *Dispatcher) build(t topic.Topic, env envelope.Envelope) message.Message {
	deviceType, deviceID := t.DeviceType, t.DeviceID
	if t.Scoped() {
		deviceType, deviceID = d.scopeType, d.scopeID
	}

	switch t.Direction {
	case topic.DirectionEvent:
		return &message.Event{Envelope: env, DeviceType: deviceType, DeviceID: deviceID, Name: t.Name}
	case topic.DirectionCommand:
		return &message.Command{Envelope: env, DeviceType: deviceType, DeviceID: deviceID, Name: t.Name}
	case topic.DirectionNotification:
		return &message.Notification{Envelope: env, DeviceType: deviceType, DeviceID: deviceID}
	default:
		return message.NewStatusUpdate(t, env)
	}
}
