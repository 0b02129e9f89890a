// Package topic maps structured identifiers to Watson IoT broker topics and back.
//
// This package manages:
//   - Concrete topic construction (Encode) and parsing (Decode)
//   - Subscription filter construction with "+" for omitted segments
//   - Filter matching and specificity ranking used by the dispatcher
//
// # Topic Shapes
//
// Device clients publish and receive in an implicit namespace:
//
//	iot-2/evt/<name>/fmt/<format>
//	iot-2/cmd/<name>/fmt/<format>
//
// Gateways and applications use fully qualified topics:
//
//	iot-2/type/<type>/id/<id>/evt/<name>/fmt/<format>
//	iot-2/type/<type>/id/<id>/cmd/<name>/fmt/<format>
//	iot-2/type/<type>/id/<id>/mon
//	iot-2/type/<type>/id/<id>/notify
//	iot-2/app/<appId>/mon
//
// The literal strings are the broker's wire contract and must not change.
//
// # Usage
//
//	b := topic.NewBuilder(topic.RoleApplication)
//	s, err := b.Encode(topic.Topic{
//	    Direction:  topic.DirectionEvent,
//	    DeviceType: "iotsample", DeviceID: "00aabb",
//	    Name: "blink", Format: "json",
//	})
//	// s == "iot-2/type/iotsample/id/00aabb/evt/blink/fmt/json"
//
//	f, err := b.Filter(topic.Topic{Direction: topic.DirectionEvent, DeviceType: "iotsample"})
//	// f == "iot-2/type/iotsample/id/+/evt/+/fmt/+"
package topic
