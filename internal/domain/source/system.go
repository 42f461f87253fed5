package source

import (
	"embed"
	"fmt"
	"io/fs"
	"time"
)

// SystemSubject is the service subject of the embedded system scripts.
const SystemSubject = "_engine"

//go:embed system/*.js
var systemFS embed.FS

// System serves the embedded system scripts. A path "relay" is served by
// system/relay.js.
type System struct {
	files fs.FS
}

// NewSystem creates the system backend.
func NewSystem() *System {
	sub, err := fs.Sub(systemFS, "system")
	if err != nil {
		panic(err)
	}
	return &System{files: sub}
}

func (s *System) ServiceSubject() string { return SystemSubject }

func (s *System) ScriptNameForServicePath(path string) (string, error) {
	name := path + ".js"
	if _, err := fs.Stat(s.files, name); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return name, nil
}

func (s *System) Source(name string) (string, error) {
	data, err := fs.ReadFile(s.files, name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return string(data), nil
}

// ModTime is unknown; embedded scripts never change while running.
func (s *System) ModTime(string) (time.Time, error) { return time.Time{}, nil }

func (s *System) CacheKey(name string) string { return "sys:" + name }
