package client

import (
	"context"

	"github.com/ibm-messaging/iot-go/pkg/config"
	"github.com/ibm-messaging/iot-go/pkg/message"
	"github.com/ibm-messaging/iot-go/pkg/mqtt"
	"github.com/ibm-messaging/iot-go/pkg/topic"
)

// Application is a client that observes and controls devices.
type Application struct {
	*base
}

// NewApplication creates an application client. An empty app id in cfg
// has already been replaced with a generated one by config.Load.
func NewApplication(cfg *config.Config, opts ...Option) (*Application, error) {
	b, err := newBase(cfg, topic.RoleApplication, opts)
	if err != nil {
		return nil, err
	}
	return &Application{base: b}, nil
}

// PublishEvent publishes a JSON event as if sent by the given device.
func (a *Application) PublishEvent(ctx context.Context, typeID, deviceID, name string, data any, qos mqtt.QoS) error {
	return a.PublishEventWithFormat(ctx, typeID, deviceID, name, "", data, qos)
}

// PublishEventWithFormat is PublishEvent with an explicit format.
func (a *Application) PublishEventWithFormat(ctx context.Context, typeID, deviceID, name, format string, data any, qos mqtt.QoS) error {
	t := topic.Topic{Direction: topic.DirectionEvent, DeviceType: typeID, DeviceID: deviceID, Name: name, Format: format}
	return a.publish(ctx, t, data, qos)
}

// PublishCommand sends a JSON command to a device.
func (a *Application) PublishCommand(ctx context.Context, typeID, deviceID, name string, data any, qos mqtt.QoS) error {
	return a.PublishCommandWithFormat(ctx, typeID, deviceID, name, "", data, qos)
}

// PublishCommandWithFormat is PublishCommand with an explicit format.
func (a *Application) PublishCommandWithFormat(ctx context.Context, typeID, deviceID, name, format string, data any, qos mqtt.QoS) error {
	t := topic.Topic{Direction: topic.DirectionCommand, DeviceType: typeID, DeviceID: deviceID, Name: name, Format: format}
	return a.publish(ctx, t, data, qos)
}

// SubscribeToEvents subscribes to device events matching f. The zero
// Filter subscribes to every event in the organization.
func (a *Application) SubscribeToEvents(ctx context.Context, f Filter, qos mqtt.QoS) error {
	return a.subscribe(ctx, f.topic(topic.DirectionEvent), qos, message.KindEvent)
}

// UnsubscribeFromEvents removes a subscription made by SubscribeToEvents
// with the same filter.
func (a *Application) UnsubscribeFromEvents(ctx context.Context, f Filter) error {
	return a.unsubscribe(ctx, f.topic(topic.DirectionEvent))
}

// SubscribeToCommands subscribes to commands matching f, as seen by the
// devices receiving them.
func (a *Application) SubscribeToCommands(ctx context.Context, f Filter, qos mqtt.QoS) error {
	return a.subscribe(ctx, f.topic(topic.DirectionCommand), qos, message.KindCommand)
}

// UnsubscribeFromCommands removes a subscription made by SubscribeToCommands.
func (a *Application) UnsubscribeFromCommands(ctx context.Context, f Filter) error {
	return a.unsubscribe(ctx, f.topic(topic.DirectionCommand))
}

// SubscribeToDeviceStatus subscribes to connect and disconnect reports for
// devices. Empty typeID and deviceID match every device.
func (a *Application) SubscribeToDeviceStatus(ctx context.Context, typeID, deviceID string, qos mqtt.QoS) error {
	t := topic.Topic{Direction: topic.DirectionDeviceStatus, DeviceType: typeID, DeviceID: deviceID}
	return a.subscribe(ctx, t, qos, message.KindStatus)
}

// UnsubscribeFromDeviceStatus mirrors SubscribeToDeviceStatus.
func (a *Application) UnsubscribeFromDeviceStatus(ctx context.Context, typeID, deviceID string) error {
	return a.unsubscribe(ctx, topic.Topic{Direction: topic.DirectionDeviceStatus, DeviceType: typeID, DeviceID: deviceID})
}

// SubscribeToApplicationStatus subscribes to status reports for
// applications. An empty appID matches every application.
func (a *Application) SubscribeToApplicationStatus(ctx context.Context, appID string, qos mqtt.QoS) error {
	t := topic.Topic{Direction: topic.DirectionAppStatus, AppID: appID}
	return a.subscribe(ctx, t, qos, message.KindStatus)
}

// UnsubscribeFromApplicationStatus mirrors SubscribeToApplicationStatus.
func (a *Application) UnsubscribeFromApplicationStatus(ctx context.Context, appID string) error {
	return a.unsubscribe(ctx, topic.Topic{Direction: topic.DirectionAppStatus, AppID: appID})
}

// SetEventCallback sets the event handler. nil clears it.
func (a *Application) SetEventCallback(cb func(*message.Event)) {
	a.setHandler(message.KindEvent, eventHandler(cb))
}

// SetCommandCallback sets the command handler. nil clears it.
func (a *Application) SetCommandCallback(cb func(*message.Command)) {
	a.setHandler(message.KindCommand, commandHandler(cb))
}

// SetStatusCallback sets the handler for device and application status.
// nil clears it.
func (a *Application) SetStatusCallback(cb func(*message.StatusUpdate)) {
	a.setHandler(message.KindStatus, statusHandler(cb))
}
