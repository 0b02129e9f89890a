// Package envelope encodes and decodes the Watson IoT payload wrapper.
//
// Structured payloads travel as a JSON document with a capture timestamp
// and the data under "d":
//
//	{"ts": "2026-01-02T15:04:05.000Z", "d": {"cpu": 90}}
//
// Any other declared format is carried as opaque bytes. The wire timestamp
// is informational only: a decoded Envelope is always stamped with the
// local receipt time because the broker does not guarantee one.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// FormatJSON is the only structured payload format.
const FormatJSON = "json"

// TimestampLayout is the wire layout of the "ts" field.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	// ErrMalformedPayload is returned when a structured payload cannot be parsed.
	// The accompanying Envelope still carries the raw bytes.
	ErrMalformedPayload = errors.New("envelope: malformed payload")

	// ErrUnsupportedFormat is returned when non-structured data is not raw bytes.
	ErrUnsupportedFormat = errors.New("envelope: unsupported format")
)

// now is replaced in tests.
var now = time.Now

// Envelope is an immutable captured payload.
type Envelope struct {
	// Timestamp is the local capture time (publish or receipt).
	Timestamp time.Time

	// Format is the declared payload format taken from the topic.
	Format string

	// Raw is the payload exactly as carried on the wire.
	Raw []byte

	// Data is the decoded structured value. Nil for opaque formats and for
	// structured payloads that failed to parse.
	Data any

	data json.RawMessage
}

// wire is the JSON document layout.
type wire struct {
	Timestamp string `json:"ts"`
	Data      any    `json:"d"`
}

// IsStructured reports whether format carries a JSON document.
func IsStructured(format string) bool {
	return strings.EqualFold(format, FormatJSON)
}

// Encode serialises data for format.
//
// For "json" the data is wrapped with the current timestamp. A []byte or
// json.RawMessage holding valid JSON is embedded as-is. For any other format
// data must be a []byte and is returned unchanged.
func Encode(format string, data any) ([]byte, error) {
	if !IsStructured(format) {
		b, ok := data.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: format %q requires []byte, got %T", ErrUnsupportedFormat, format, data)
		}
		return b, nil
	}

	switch v := data.(type) {
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, fmt.Errorf("%w: invalid JSON data", ErrUnsupportedFormat)
		}
	case []byte:
		if json.Valid(v) {
			data = json.RawMessage(v)
		}
	}

	b, err := json.Marshal(wire{Timestamp: now().UTC().Format(TimestampLayout), Data: data})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	return b, nil
}

// Decode wraps payload in an Envelope stamped with the receipt time.
//
// For "json" the document's "d" member is decoded when the document is an
// object that has one, otherwise the whole document is used. On a parse
// failure Decode returns the raw-bytes Envelope together with
// ErrMalformedPayload, so callers can still deliver it.
func Decode(format string, payload []byte) (Envelope, error) {
	env := Envelope{
		Timestamp: now(),
		Format:    format,
		Raw:       payload,
	}
	if !IsStructured(format) {
		return env, nil
	}

	var doc json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return env, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	data := doc
	if trimmed := bytes.TrimSpace(doc); len(trimmed) > 0 && trimmed[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(doc, &obj); err == nil {
			if d, ok := obj["d"]; ok {
				data = d
			}
		}
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return env, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	env.Data = v
	env.data = data
	return env, nil
}

// Structured reports whether the envelope holds decoded data.
func (e Envelope) Structured() bool {
	return e.data != nil
}

// Unmarshal decodes the structured data into v.
func (e Envelope) Unmarshal(v any) error {
	if e.data == nil {
		return fmt.Errorf("%w: no structured data", ErrMalformedPayload)
	}
	if err := json.Unmarshal(e.data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return nil
}

// Field returns a top-level member of an object payload.
func (e Envelope) Field(name string) (any, bool) {
	m, ok := e.Data.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[name]
	return v, ok
}

// String renders the payload for logs.
func (e Envelope) String() string {
	if e.data != nil {
		return string(e.data)
	}
	return string(e.Raw)
}
