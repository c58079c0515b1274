// Package logging provides structured logging for the daemon.
//
// It wraps Go's standard log/slog package so every component logs
// through the same handler with consistent default fields.
//
// # Configuration
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file: "/var/log/deckd/deckd.log"
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting api server", "port", 8732)
//	logger.Error("device open failed", "error", err)
package logging
