// Package influxdb provides InfluxDB v2 connectivity for the message historian.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes, and health monitoring.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.Historian.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { logger.Warn("influx write", "error", err) })
//
// # Error Handling
//
// Write operations are non-blocking; batch errors arrive via the
// SetOnError callback wrapped in ErrWriteFailed. Connection and health
// check errors are returned directly.
package influxdb
