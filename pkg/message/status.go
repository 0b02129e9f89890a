package message

import (
	"fmt"

	"github.com/ibm-messaging/iot-go/pkg/envelope"
	"github.com/ibm-messaging/iot-go/pkg/topic"
)

// StatusUpdate reports a device or application connecting to or leaving the
// broker. Device status has DeviceType and DeviceID set; application status
// has AppID set.
//
// The remaining fields are decoded from the broker's status document and
// stay zero when the payload is not valid JSON.
type StatusUpdate struct {
	envelope.Envelope `json:"-"`

	DeviceType string `json:"-"`
	DeviceID   string `json:"-"`
	AppID      string `json:"-"`

	Action      string `json:"Action"`
	Time        string `json:"Time"`
	ClientAddr  string `json:"ClientAddr"`
	ClientID    string `json:"ClientID"`
	Port        int    `json:"Port"`
	SSL         bool   `json:"SSL"`
	Protocol    string `json:"Protocol"`
	User        string `json:"User"`
	ConnectTime string `json:"ConnectTime"`
	CloseCode   int    `json:"CloseCode"`
	Reason      string `json:"Reason"`
	ReadBytes   int64  `json:"ReadBytes"`
	ReadMsg     int64  `json:"ReadMsg"`
	WriteBytes  int64  `json:"WriteBytes"`
	WriteMsg    int64  `json:"WriteMsg"`
}

// Status actions reported by the broker.
const (
	ActionConnect    = "Connect"
	ActionDisconnect = "Disconnect"
)

// NewStatusUpdate builds a StatusUpdate from a decoded envelope. Fields the
// payload cannot supply are left zero.
func NewStatusUpdate(src topic.Topic, env envelope.Envelope) *StatusUpdate {
	s := &StatusUpdate{}
	if env.Structured() {
		_ = env.Unmarshal(s)
	}
	s.Envelope = env
	s.DeviceType = src.DeviceType
	s.DeviceID = src.DeviceID
	s.AppID = src.AppID
	return s
}

// Kind implements Message.
func (s *StatusUpdate) Kind() Kind { return KindStatus }

// Source implements Message.
func (s *StatusUpdate) Source() topic.Topic {
	if s.AppID != "" {
		return topic.Topic{Direction: topic.DirectionAppStatus, AppID: s.AppID}
	}
	return topic.Topic{
		Direction:  topic.DirectionDeviceStatus,
		DeviceType: s.DeviceType,
		DeviceID:   s.DeviceID,
	}
}

// Payload implements Message.
func (s *StatusUpdate) Payload() envelope.Envelope { return s.Envelope }

// IsApplication reports whether the update concerns an application.
func (s *StatusUpdate) IsApplication() bool { return s.AppID != "" }

// Connected reports whether the update announces a new connection.
func (s *StatusUpdate) Connected() bool { return s.Action == ActionConnect }

func (s *StatusUpdate) String() string {
	ts := s.Timestamp.Format(envelope.TimestampLayout)
	action := s.Action
	if s.Reason != "" {
		action += " (" + s.Reason + ")"
	}
	if s.IsApplication() {
		return fmt.Sprintf("Status [%s] app %s - %s", ts, s.AppID, action)
	}
	return fmt.Sprintf("Status [%s] %s:%s - %s", ts, s.DeviceType, s.DeviceID, action)
}
