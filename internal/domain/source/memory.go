package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TestSubject is the service subject of the test backends.
const TestSubject = "engine"

// Memory serves scripts held in memory. Paths name scripts directly.
type Memory struct {
	mu      sync.RWMutex
	subject string
	scripts map[string]string
	scope   string
}

// NewMemory creates a backend over scripts, keyed by name.
func NewMemory(scope string, scripts map[string]string) *Memory {
	m := &Memory{subject: TestSubject, scripts: make(map[string]string), scope: scope}
	for k, v := range scripts {
		m.scripts[k] = v
	}
	return m
}

// Put adds or replaces a script.
func (m *Memory) Put(name, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[name] = text
}

func (m *Memory) ServiceSubject() string { return m.subject }

func (m *Memory) ScriptNameForServicePath(path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.scripts[path]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return path, nil
}

func (m *Memory) Source(name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.scripts[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return text, nil
}

// ModTime is unknown for in-memory scripts.
func (m *Memory) ModTime(string) (time.Time, error) { return time.Time{}, nil }

func (m *Memory) CacheKey(name string) string { return "mem:" + m.scope + ":" + name }

// Directory serves scripts from files under a root directory.
type Directory struct {
	root string
}

// NewDirectory creates a backend rooted at dir.
func NewDirectory(dir string) (*Directory, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("test source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("test source directory %s is not a directory", abs)
	}
	return &Directory{root: abs}, nil
}

func (d *Directory) ServiceSubject() string { return TestSubject }

func (d *Directory) ScriptNameForServicePath(path string) (string, error) {
	if _, err := d.file(path); err != nil {
		return "", err
	}
	return path, nil
}

func (d *Directory) Source(name string) (string, error) {
	p, err := d.file(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	if !isText(data) {
		return "", fmt.Errorf("%w: %s", ErrNotText, name)
	}
	return string(data), nil
}

func (d *Directory) ModTime(name string) (time.Time, error) {
	p, err := d.file(name)
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (d *Directory) CacheKey(name string) string { return "dir:" + d.root + ":" + name }

// file resolves name inside the root, refusing escapes.
func (d *Directory) file(name string) (string, error) {
	clean := filepath.Clean("/" + strings.TrimPrefix(name, "/"))
	p := filepath.Join(d.root, clean)
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p, nil
}
