// Package logging provides structured logging for the serial bridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the bridge.
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
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("serial write", "topic", topic, "bytes", n)
//	logger.Error("failed to read from serial port", "error", err)
//
// Serial payloads are logged at debug level through Hex, which renders at
// most 64 bytes and only when the entry is actually written:
//
//	logger.Debug("serial write", "payload", logging.Hex(payload))
//
// # Security
//
// Never log the broker password. Log config.BrokerConfig through its
// String method, which redacts it.
package logging
