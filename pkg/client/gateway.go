package client

import (
	"context"

	"github.com/ibm-messaging/iot-go/pkg/config"
	"github.com/ibm-messaging/iot-go/pkg/message"
	"github.com/ibm-messaging/iot-go/pkg/mqtt"
	"github.com/ibm-messaging/iot-go/pkg/topic"
)

// Gateway is a client acting for itself and for the devices attached to
// it. Every topic it uses is fully qualified.
type Gateway struct {
	*base
}

// NewGateway creates a gateway client. Gateways cannot use quickstart.
func NewGateway(cfg *config.Config, opts ...Option) (*Gateway, error) {
	b, err := newBase(cfg, topic.RoleGateway, opts)
	if err != nil {
		return nil, err
	}
	return &Gateway{base: b}, nil
}

func (g *Gateway) self() (string, string) {
	return g.cfg.Identity.TypeID, g.cfg.Identity.DeviceID
}

// Connect connects to the broker and, unless disabled, subscribes to every
// command addressed to the gateway itself at QoS 1. Commands for attached
// devices still need SubscribeToDeviceCommands.
func (g *Gateway) Connect(ctx context.Context) error {
	typeID, deviceID := g.self()
	return g.connectWithCommands(ctx, topic.Topic{Direction: topic.DirectionCommand, DeviceType: typeID, DeviceID: deviceID})
}

// PublishEvent publishes a JSON event for the gateway itself.
func (g *Gateway) PublishEvent(ctx context.Context, name string, data any, qos mqtt.QoS) error {
	typeID, deviceID := g.self()
	return g.PublishDeviceEventWithFormat(ctx, typeID, deviceID, name, "", data, qos)
}

// PublishDeviceEvent publishes a JSON event on behalf of an attached device.
func (g *Gateway) PublishDeviceEvent(ctx context.Context, typeID, deviceID, name string, data any, qos mqtt.QoS) error {
	return g.PublishDeviceEventWithFormat(ctx, typeID, deviceID, name, "", data, qos)
}

// PublishDeviceEventWithFormat is PublishDeviceEvent with an explicit format.
func (g *Gateway) PublishDeviceEventWithFormat(ctx context.Context, typeID, deviceID, name, format string, data any, qos mqtt.QoS) error {
	t := topic.Topic{Direction: topic.DirectionEvent, DeviceType: typeID, DeviceID: deviceID, Name: name, Format: format}
	return g.publish(ctx, t, data, qos)
}

// PublishCommand sends a JSON command to a device.
func (g *Gateway) PublishCommand(ctx context.Context, typeID, deviceID, name string, data any, qos mqtt.QoS) error {
	t := topic.Topic{Direction: topic.DirectionCommand, DeviceType: typeID, DeviceID: deviceID, Name: name}
	return g.publish(ctx, t, data, qos)
}

// SubscribeToCommands subscribes to commands sent to the gateway itself.
func (g *Gateway) SubscribeToCommands(ctx context.Context, name, format string, qos mqtt.QoS) error {
	typeID, deviceID := g.self()
	return g.SubscribeToDeviceCommands(ctx, Filter{DeviceType: typeID, DeviceID: deviceID, Name: name, Format: format}, qos)
}

// SubscribeToDeviceCommands subscribes to commands for attached devices.
func (g *Gateway) SubscribeToDeviceCommands(ctx context.Context, f Filter, qos mqtt.QoS) error {
	return g.subscribe(ctx, f.topic(topic.DirectionCommand), qos, message.KindCommand)
}

// UnsubscribeFromDeviceCommands removes a subscription made by
// SubscribeToDeviceCommands or SubscribeToCommands.
func (g *Gateway) UnsubscribeFromDeviceCommands(ctx context.Context, f Filter) error {
	return g.unsubscribe(ctx, f.topic(topic.DirectionCommand))
}

// SubscribeToNotifications subscribes to the gateway's notification topic.
func (g *Gateway) SubscribeToNotifications(ctx context.Context, qos mqtt.QoS) error {
	typeID, deviceID := g.self()
	t := topic.Topic{Direction: topic.DirectionNotification, DeviceType: typeID, DeviceID: deviceID}
	return g.subscribe(ctx, t, qos, message.KindNotification)
}

// UnsubscribeFromNotifications removes the notification subscription.
func (g *Gateway) UnsubscribeFromNotifications(ctx context.Context) error {
	typeID, deviceID := g.self()
	return g.unsubscribe(ctx, topic.Topic{Direction: topic.DirectionNotification, DeviceType: typeID, DeviceID: deviceID})
}

// SetCommandCallback sets the command handler. nil clears it.
func (g *Gateway) SetCommandCallback(cb func(*message.Command)) {
	g.setHandler(message.KindCommand, commandHandler(cb))
}

// SetNotificationCallback sets the notification handler. nil clears it.
func (g *Gateway) SetNotificationCallback(cb func(*message.Notification)) {
	g.setHandler(message.KindNotification, notificationHandler(cb))
}
