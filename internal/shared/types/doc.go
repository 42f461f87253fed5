// Package types holds the request identity shared by the engine, the
// data-access bridge and the HTTP layer.
package types
