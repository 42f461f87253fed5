// Package cache holds compiled script programs.
//
// Two tiers exist. The library tier keeps trusted engine scripts for the
// life of the process and never re-checks them. The user tier keeps tenant
// service scripts in a bounded LRU and recompiles an entry when the source
// backend reports a newer modification time.
//
// Both tiers are safe for concurrent use. Compilation happens outside any
// lock, so two requests may compile the same source at once; the later Put
// wins and both results are valid.
package cache
