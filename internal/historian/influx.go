package historian

import (
	"context"
	"time"

	"github.com/ibm-messaging/iot-go/pkg/message"
)

// Measurement is the InfluxDB measurement written per message.
const Measurement = "wiotp_messages"

// pointWriter is the subset of *influxdb.Client the recorder uses.
type pointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) error
	Close() error
}

// Influx records one point per message. Numeric and boolean top-level
// members of a JSON object payload become fields next to "size".
type Influx struct {
	w pointWriter
}

// NewInflux wraps a connected writer. The recorder owns w.
func NewInflux(w pointWriter) *Influx {
	return &Influx{w: w}
}

// Record queues a point for msg. Writes are batched, so a nil error means
// queued, not stored.
func (i *Influx) Record(_ context.Context, msg message.Message) error {
	e := NewEntry(msg)

	tags := map[string]string{
		"kind":   e.Kind,
		"format": e.Format,
	}
	for k, v := range map[string]string{"type_id": e.DeviceType, "device_id": e.DeviceID, "app_id": e.AppID, "name": e.Name} {
		if v != "" {
			tags[k] = v
		}
	}

	return i.w.WritePoint(Measurement, tags, fieldsOf(msg), e.ReceivedAt)
}

// Close flushes and closes the writer.
func (i *Influx) Close() error {
	return i.w.Close()
}

func fieldsOf(msg message.Message) map[string]any {
	env := msg.Payload()
	fields := map[string]any{"size": len(env.Raw)}

	obj, ok := env.Data.(map[string]any)
	if !ok {
		return fields
	}
	for k, v := range obj {
		if k == "size" {
			continue
		}
		switch v.(type) {
		case float64, bool:
			fields[k] = v
		}
	}
	return fields
}
