// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Always keeps the most recent entries in an in-memory ring buffer,
//     which the HTTP API serves under /api/logs
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:      "info", // Global log level: debug, info, warn, error
//		Format:     "text", // Output format: text or json
//		BufferSize: 1000,   // Entries kept for /api/logs
//		Modules: map[string]string{
//			"v4l2":    "debug", // Per-module overrides
//			"capture": "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("capture")
//	logger.Info("Stream started", "device", path, "buffers", n)
//	logger.Debug("Frame", "seq", f.Sequence)
//
// The v4l2 package does not import this one. main hands it a module logger:
//
//	v4l2.SetLogger(logging.GetLogger("v4l2"))
//
// # Runtime changes
//
// Every module logger reads its level from a *slog.LevelVar, so levels can
// change while the service runs:
//
//	logging.SetLevel("v4l2", "debug") // one module
//	logging.SetLevel("", "warn")      // global level, modules without override
//	logging.Apply(cfg.Logging)        // levels from a reloaded config file
//
// The output format and buffer size only change on Initialize.
//
// # Viewing Logs
//
// When running as a systemd service or on a system with journald:
//
//	journalctl -t v4lstream              # All v4lstream logs
//	journalctl -t v4lstream -f           # Follow live
//	journalctl -t v4lstream -p err       # Errors only
//
// Filter by structured fields:
//
//	journalctl -t v4lstream MODULE=capture
//	journalctl -t v4lstream DEVICE=/dev/video0
//
// # Configuration
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//	buffer_size = 1000
//
//	[logging.modules]
//	v4l2 = "debug"
//	api = "warn"
package logging
