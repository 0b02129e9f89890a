// Package historian records inbound messages to an optional sink.
//
// Three backends implement Recorder:
//   - SQLite: rows in message_history, queryable per device with History
//   - InfluxDB: one wiotp_messages point per message with numeric payload fields
//   - Kafka: one record per message keyed by "type/id"
//
// Recording is attached to a client by wrapping its handlers with Tap.
// Errors are logged and the message is still handed to the next handler
// first. Wrapping the backend in Buffered moves the writes off the
// delivery goroutine.
package historian
