// Package logger provides structured logging functionality for the checkin project.
//
// Features:
//   - Multiple log levels (TRACE, DEBUG, INFO, WARN, ERROR)
//   - Component-based filtering
//   - Multiple output formats (text, JSON, color), encoded by zap
//   - Optional JSON log file with lumberjack rotation
//   - Thread-safe operations
//
// Usage:
//
//	// Get a component logger
//	log := logger.WithComponent(logger.ComponentWAF)
//
//	// Log messages with different levels
//	log.Info("Clearance cookie merged", map[string]interface{}{
//		"cookie": "https_ydclearance",
//	})
//
//	// Configure global logger
//	config := logger.DefaultConfig()
//	config.Level = logger.DEBUG
//	config.Format = logger.FormatJSON
//	logger.SetGlobalLogger(logger.New(config))
//
// Components:
//   - ComponentApp: Runner and CLI logs
//   - ComponentWAF: Challenge detection and decoding logs
//   - ComponentClient: HTTP client logs
//   - ComponentSite: Per-site sign-in logs
//   - ComponentNotify: Notification dispatch logs
//   - ComponentJSVM: Script engine fallback logs
//   - ComponentConfig: Configuration loading logs
package logger
