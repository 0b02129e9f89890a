// Package logging provides structured logging for the Watson IoT client tools.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the CLI and historian.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the logging section of the client config:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("connected", "client_id", cfg.ClientID())
//	logger.Error("publish failed", "error", err)
//
// # Security
//
// Never log auth tokens or API keys. Client ids and org ids are safe.
package logging
