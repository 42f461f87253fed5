// Package main is the entry point of the personium engine.
//
// The engine runs script services relayed by a personium unit. Each
// request gets a fresh sandboxed JavaScript context bounded by a watchdog.
//
// Configuration:
//   - Optional TOML file named by ENGINE_CONFIG_FILE
//   - Environment variables (12-factor), applied over the file
//   - CLI flags, applied last
//
// Usage:
//
//	# Production mode
//	./server -port 8080 -fs-root /personium/dav
//
//	# Development mode (debug route, console logs, debug level)
//	./server -dev -test-dir ./scripts
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
