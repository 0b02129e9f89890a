// Package message defines the inbound message variants delivered to handlers.
//
// Every inbound message is one of Event, Command, Notification or
// StatusUpdate. Each carries the decoded envelope and the identifiers parsed
// from its topic. A message is owned by the dispatcher until it is handed to
// a handler; after that it must be treated as immutable.
package message

import (
	"fmt"

	"github.com/ibm-messaging/iot-go/pkg/envelope"
	"github.com/ibm-messaging/iot-go/pkg/topic"
)

// Kind tags the message variant.
type Kind int

// Message kinds, one handler slot each.
const (
	KindEvent Kind = iota
	KindCommand
	KindNotification
	KindStatus
)

// Kinds lists every message kind in slot order.
var Kinds = []Kind{KindEvent, KindCommand, KindNotification, KindStatus}

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindCommand:
		return "command"
	case KindNotification:
		return "notification"
	case KindStatus:
		return "status"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// KindFor maps a topic direction to the message kind it produces.
func KindFor(d topic.Direction) (Kind, bool) {
	switch d {
	case topic.DirectionEvent:
		return KindEvent, true
	case topic.DirectionCommand:
		return KindCommand, true
	case topic.DirectionNotification:
		return KindNotification, true
	case topic.DirectionDeviceStatus, topic.DirectionAppStatus:
		return KindStatus, true
	}
	return 0, false
}

// Message is the common view of every inbound variant.
type Message interface {
	// Kind returns the variant tag.
	Kind() Kind

	// Source returns the structured topic the message arrived on.
	Source() topic.Topic

	// Payload returns the captured envelope.
	Payload() envelope.Envelope
}

// Event is a device-to-application message.
type Event struct {
	envelope.Envelope
	DeviceType string
	DeviceID   string
	Name       string
}

// Kind implements Message.
func (e *Event) Kind() Kind { return KindEvent }

// Source implements Message.
func (e *Event) Source() topic.Topic {
	return topic.Topic{
		Direction:  topic.DirectionEvent,
		DeviceType: e.DeviceType,
		DeviceID:   e.DeviceID,
		Name:       e.Name,
		Format:     e.Format,
	}
}

// Payload implements Message.
func (e *Event) Payload() envelope.Envelope { return e.Envelope }

func (e *Event) String() string {
	return fmt.Sprintf("Event [%s] %s:%s - %s: %s",
		e.Timestamp.Format(envelope.TimestampLayout), e.DeviceType, e.DeviceID, e.Name, e.Envelope)
}

// Command is an application-to-device message.
//
// Commands received by a device on its own scoped topic carry the device's
// own type and id.
type Command struct {
	envelope.Envelope
	DeviceType string
	DeviceID   string
	Name       string
}

// Kind implements Message.
func (c *Command) Kind() Kind { return KindCommand }

// Source implements Message.
func (c *Command) Source() topic.Topic {
	return topic.Topic{
		Direction:  topic.DirectionCommand,
		DeviceType: c.DeviceType,
		DeviceID:   c.DeviceID,
		Name:       c.Name,
		Format:     c.Format,
	}
}

// Payload implements Message.
func (c *Command) Payload() envelope.Envelope { return c.Envelope }

func (c *Command) String() string {
	return fmt.Sprintf("Command [%s] %s:%s - %s: %s",
		c.Timestamp.Format(envelope.TimestampLayout), c.DeviceType, c.DeviceID, c.Name, c.Envelope)
}

// Notification is a gateway lifecycle signal.
type Notification struct {
	envelope.Envelope
	DeviceType string
	DeviceID   string
}

// Kind implements Message.
func (n *Notification) Kind() Kind { return KindNotification }

// Source implements Message.
func (n *Notification) Source() topic.Topic {
	return topic.Topic{
		Direction:  topic.DirectionNotification,
		DeviceType: n.DeviceType,
		DeviceID:   n.DeviceID,
	}
}

// Payload implements Message.
func (n *Notification) Payload() envelope.Envelope { return n.Envelope }

func (n *Notification) String() string {
	return fmt.Sprintf("Notification [%s] %s:%s - %s",
		n.Timestamp.Format(envelope.TimestampLayout), n.DeviceType, n.DeviceID, n.Envelope)
}
