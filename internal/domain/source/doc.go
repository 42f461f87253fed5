// Package source locates service scripts.
//
// A Manager answers four questions for one service collection: who the
// service subject is, which script serves a path, what the script's text
// is, and when it last changed. Backends:
//
//   - FS reads a collection laid out on disk by the unit: a .pmeta metadata
//     file holding the routing document and one __src/<name> directory per
//     script, optionally encrypted.
//   - System serves the engine's embedded system scripts.
//   - Memory and Directory serve ad-hoc scripts for the test routes.
package source
