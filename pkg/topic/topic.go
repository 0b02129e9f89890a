package topic

import (
	"fmt"
	"strings"
)

// Topic segment literals of the Watson IoT Platform MQTT namespace.
const (
	// Root is the first segment of every topic.
	Root = "iot-2"

	// SingleLevelWildcard matches exactly one segment in a filter.
	SingleLevelWildcard = "+"

	// MultiLevelWildcard matches one or more trailing segments in a filter.
	MultiLevelWildcard = "#"

	// Separator divides topic levels.
	Separator = "/"

	segType   = "type"
	segID     = "id"
	segFormat = "fmt"
	segApp    = "app"
)

// Role identifies which kind of actor a client acts as.
type Role string

// Supported client roles.
const (
	RoleDevice      Role = "device"
	RoleGateway     Role = "gateway"
	RoleApplication Role = "application"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleDevice, RoleGateway, RoleApplication:
		return true
	}
	return false
}

// Direction is the literal marker that tells what a topic carries.
type Direction string

// Topic directions. The values are the wire markers, except
// DirectionAppStatus which is carried by the "app" root segment.
const (
	DirectionEvent        Direction = "evt"
	DirectionCommand      Direction = "cmd"
	DirectionDeviceStatus Direction = "mon"
	DirectionNotification Direction = "notify"
	DirectionAppStatus    Direction = "app"
)

// Topic is the structured form of a broker topic.
//
// For device-scoped topics (a device publishing its own events or receiving
// its own commands) DeviceType and DeviceID are empty: the namespace is
// implied by the device's session. AppID is only used by DirectionAppStatus.
type Topic struct {
	Direction  Direction
	DeviceType string
	DeviceID   string
	AppID      string
	Name       string
	Format     string
}

// Scoped reports whether t lives in a device's implicit namespace.
func (t Topic) Scoped() bool {
	return (t.Direction == DirectionEvent || t.Direction == DirectionCommand) &&
		t.DeviceType == "" && t.DeviceID == ""
}

// String renders t for logs; it is not a wire encoding.
func (t Topic) String() string {
	switch {
	case t.Direction == DirectionAppStatus:
		return fmt.Sprintf("%s[app=%s]", t.Direction, t.AppID)
	case t.Scoped():
		return fmt.Sprintf("%s[%s/%s]", t.Direction, t.Name, t.Format)
	default:
		return fmt.Sprintf("%s[%s:%s %s/%s]", t.Direction, t.DeviceType, t.DeviceID, t.Name, t.Format)
	}
}

// field names a variable segment of a shape.
type field int

const (
	fieldNone field = iota
	fieldType
	fieldID
	fieldApp
	fieldName
	fieldFormat
)

func (f field) String() string {
	switch f {
	case fieldType:
		return "type"
	case fieldID:
		return "id"
	case fieldApp:
		return "app id"
	case fieldName:
		return "name"
	case fieldFormat:
		return "format"
	}
	return "literal"
}

// segment is either a literal marker or a variable field.
type segment struct {
	literal string
	field   field
}

func lit(s string) segment    { return segment{literal: s} }
func vary(f field) segment    { return segment{field: f} }
func (s segment) isVar() bool { return s.field != fieldNone }

// shape describes the segment layout of one kind of topic.
type shape struct {
	name      string
	direction Direction
	scoped    bool
	segments  []segment
}

// Topic shapes, one per wire layout.
var (
	shapeScopedEvent = shape{
		name: "scoped event", direction: DirectionEvent, scoped: true,
		segments: []segment{lit(Root), lit(string(DirectionEvent)), vary(fieldName), lit(segFormat), vary(fieldFormat)},
	}
	shapeScopedCommand = shape{
		name: "scoped command", direction: DirectionCommand, scoped: true,
		segments: []segment{lit(Root), lit(string(DirectionCommand)), vary(fieldName), lit(segFormat), vary(fieldFormat)},
	}
	shapeEvent = shape{
		name: "event", direction: DirectionEvent,
		segments: []segment{
			lit(Root), lit(segType), vary(fieldType), lit(segID), vary(fieldID),
			lit(string(DirectionEvent)), vary(fieldName), lit(segFormat), vary(fieldFormat),
		},
	}
	shapeCommand = shape{
		name: "command", direction: DirectionCommand,
		segments: []segment{
			lit(Root), lit(segType), vary(fieldType), lit(segID), vary(fieldID),
			lit(string(DirectionCommand)), vary(fieldName), lit(segFormat), vary(fieldFormat),
		},
	}
	shapeDeviceStatus = shape{
		name: "device status", direction: DirectionDeviceStatus,
		segments: []segment{lit(Root), lit(segType), vary(fieldType), lit(segID), vary(fieldID), lit(string(DirectionDeviceStatus))},
	}
	shapeNotification = shape{
		name: "notification", direction: DirectionNotification,
		segments: []segment{lit(Root), lit(segType), vary(fieldType), lit(segID), vary(fieldID), lit(string(DirectionNotification))},
	}
	shapeAppStatus = shape{
		name: "application status", direction: DirectionAppStatus,
		segments: []segment{lit(Root), lit(segApp), vary(fieldApp), lit(string(DirectionDeviceStatus))},
	}
)

// roleShapes lists the shapes each role may encode, decode and filter on.
var roleShapes = map[Role][]shape{
	RoleDevice:      {shapeScopedEvent, shapeScopedCommand},
	RoleGateway:     {shapeEvent, shapeCommand, shapeNotification},
	RoleApplication: {shapeEvent, shapeCommand, shapeDeviceStatus, shapeAppStatus},
}

// get returns the value of f in t.
func (t Topic) get(f field) string {
	switch f {
	case fieldType:
		return t.DeviceType
	case fieldID:
		return t.DeviceID
	case fieldApp:
		return t.AppID
	case fieldName:
		return t.Name
	case fieldFormat:
		return t.Format
	}
	return ""
}

// set stores v as the value of f in t.
func (t *Topic) set(f field, v string) {
	switch f {
	case fieldType:
		t.DeviceType = v
	case fieldID:
		t.DeviceID = v
	case fieldApp:
		t.AppID = v
	case fieldName:
		t.Name = v
	case fieldFormat:
		t.Format = v
	}
}

// validSegment reports whether v may appear as a concrete topic level.
func validSegment(v string) bool {
	return v != "" && !strings.ContainsAny(v, "/+#")
}
