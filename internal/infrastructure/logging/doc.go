// Package logging provides structured logging for the controls service.
//
// It wraps log/slog with JSON or text output, level filtering and default
// service/version fields on every entry.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	registryLog := logger.Component("registry")
//	registryLog.Info("control created", "control_id", id)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
