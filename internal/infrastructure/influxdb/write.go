package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint queues a point for the batched writer. It never blocks on the
// network; rejected batches surface through SetOnError and Stats.
//
// Tags should be low cardinality. After Close points are dropped and
// ErrNotConnected is returned.
//
// Example:
//
//	client.WritePoint("wiotp_messages",
//	    map[string]string{"kind": "event", "type_id": "raspi"},
//	    map[string]any{"size": 42, "cpu": 90.0},
//	    receivedAt)
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if len(fields) == 0 {
		return ErrNoFields
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
	c.queued.Add(1)
	return nil
}
