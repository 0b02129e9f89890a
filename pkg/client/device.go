package client

import (
	"context"

	"github.com/ibm-messaging/iot-go/pkg/config"
	"github.com/ibm-messaging/iot-go/pkg/message"
	"github.com/ibm-messaging/iot-go/pkg/mqtt"
	"github.com/ibm-messaging/iot-go/pkg/topic"
)

// Device is a client acting as a single device. It publishes its own
// events and receives commands addressed to it.
type Device struct {
	*base
}

// NewDevice creates a device client. cfg must describe a device identity
// (orgId, typeId, deviceId and a token, or quickstart).
func NewDevice(cfg *config.Config, opts ...Option) (*Device, error) {
	b, err := newBase(cfg, topic.RoleDevice, opts)
	if err != nil {
		return nil, err
	}
	return &Device{base: b}, nil
}

// Connect connects to the broker and, unless disabled or in quickstart,
// subscribes to every command for this device at QoS 1. The subscription
// is replayed after reconnects like any other. If that subscribe fails the
// device is disconnected before the error is returned.
func (d *Device) Connect(ctx context.Context) error {
	return d.connectWithCommands(ctx, topic.Topic{Direction: topic.DirectionCommand})
}

// PublishEvent publishes data as a JSON event called name.
func (d *Device) PublishEvent(ctx context.Context, name string, data any, qos mqtt.QoS) error {
	return d.PublishEventWithFormat(ctx, name, "", data, qos)
}

// PublishEventWithFormat publishes an event in format. For formats other
// than json, data must be a []byte.
func (d *Device) PublishEventWithFormat(ctx context.Context, name, format string, data any, qos mqtt.QoS) error {
	return d.publish(ctx, topic.Topic{Direction: topic.DirectionEvent, Name: name, Format: format}, data, qos)
}

// SubscribeToCommands subscribes to commands for this device. An empty
// name matches every command; format may only be set with a name.
func (d *Device) SubscribeToCommands(ctx context.Context, name, format string, qos mqtt.QoS) error {
	return d.subscribe(ctx, topic.Topic{Direction: topic.DirectionCommand, Name: name, Format: format}, qos, message.KindCommand)
}

// UnsubscribeFromCommands removes a subscription made by SubscribeToCommands.
func (d *Device) UnsubscribeFromCommands(ctx context.Context, name, format string) error {
	return d.unsubscribe(ctx, topic.Topic{Direction: topic.DirectionCommand, Name: name, Format: format})
}

// SetCommandCallback sets the command handler. nil clears it.
func (d *Device) SetCommandCallback(cb func(*message.Command)) {
	d.setHandler(message.KindCommand, commandHandler(cb))
}
