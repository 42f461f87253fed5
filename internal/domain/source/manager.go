package source

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no script serves a path or a named script
// does not exist.
var ErrNotFound = errors.New("script not found")

// ErrNotText is returned when script content is not text.
var ErrNotText = errors.New("script content is not text")

// Manager is the contract every source backend satisfies.
type Manager interface {
	// ServiceSubject returns the subject scripts act as.
	ServiceSubject() string
	// ScriptNameForServicePath maps a service path to a script name.
	ScriptNameForServicePath(path string) (string, error)
	// Source returns the text of a script.
	Source(name string) (string, error)
	// ModTime returns when a script last changed, or the zero time when
	// the backend cannot tell.
	ModTime(name string) (time.Time, error)
	// CacheKey scopes a script name to this backend so that compiled
	// programs of different tenants never collide.
	CacheKey(name string) string
}
