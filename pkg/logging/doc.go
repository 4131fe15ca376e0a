// Package logging provides structured logging utilities for hostbundle.
//
// # Overview
//
// This package wraps the standard library slog package with hostbundle defaults
// and conventions for consistent logging across all components. It supports
// environment-based log level configuration, module/version context injection,
// and automatic source location tracking for debug logs.
//
// # Features
//
//   - Structured JSON logging to stderr
//   - Environment-based log level configuration (LOG_LEVEL)
//   - Automatic module and version context
//   - Source location tracking for debug logs
//   - Flexible log level parsing
//   - Integration with standard library log package
//
// # Log Levels
//
// Supported log levels (case-insensitive):
//   - DEBUG: Detailed diagnostic information with source location
//   - INFO: General informational messages (default)
//   - WARN/WARNING: Warning messages for potentially problematic situations
//   - ERROR: Error messages for failures requiring attention
//
// # Usage
//
// Setting the default logger (recommended):
//
//	func main() {
//	    logging.SetDefaultStructuredLogger("hostbundle", "v1.0.0")
//	    defer slog.Info("application started")
//
//	    // Use slog as normal
//	    slog.Info("processing request", "id", "req-123")
//	    slog.Debug("detailed state", "data", complexObject)
//	    slog.Error("operation failed", "error", err)
//	}
//
// Creating a custom logger:
//
//	logger := logging.NewStructuredLogger("hostbundle", "v2.0.0", "debug")
//	logger.Info("staging created", "root", root)
//
// Setting explicit log level:
//
//	logging.SetDefaultStructuredLoggerWithLevel("hostbundle", "v1.0.0", "warn")
//
// Mapping -v repeat counts onto levels:
//
//	level := logging.LevelForVerbosity(cmd.Count("verbose")) // warn, info, debug
//
// Teeing records into the archive's engine log once staging exists:
//
//	f, _ := os.Create(filepath.Join(root, "logs", "engine.log"))
//	restore := logging.Install(logging.WithFile(logging.Console(), f, "hostbundle", version))
//	defer restore()
//
// # Environment Configuration
//
// The LOG_LEVEL environment variable controls logging verbosity:
//
//	LOG_LEVEL=debug hostbundle --batch --build
//
// If LOG_LEVEL is not set, the CLI derives the level from -v (warn by default).
//
// # Output Format
//
// All logs are written to stderr in JSON format:
//
//	{
//	    "time": "2025-01-15T10:30:00.123Z",
//	    "level": "INFO",
//	    "msg": "staging created",
//	    "module": "hostbundle",
//	    "version": "v1.0.0",
//	    "root": "/tmp/host-20250115103000-1736937000"
//	}
//
// Debug logs include source location:
//
//	{
//	    "time": "2025-01-15T10:30:00.123Z",
//	    "level": "DEBUG",
//	    "source": {
//	        "function": "github.com/NVIDIA/hostbundle/pkg/collect.(*Collector).Copy",
//	        "file": "copy.go",
//	        "line": 45
//	    },
//	    "msg": "copied",
//	    "module": "hostbundle",
//	    "version": "v1.0.0"
//	}
//
// # Integration
//
// This package is used by:
//   - pkg/cli - root logger setup from flags and LOG_LEVEL
//   - pkg/engine - run logging and the logs/engine.log tee
//   - pkg/collect - copy progress and command capture
//
// All components share consistent logging format and configuration.
package logging
