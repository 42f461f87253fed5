// Package middleware provides the gin middleware of the engine: CORS,
// per-client and global rate limiting, and plain-text panic recovery.
package middleware
