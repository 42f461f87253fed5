// Package server wires the engine, its extensions, the bridge into the
// unit and the HTTP API into one process.
package server
