package cache

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// Source supplies script text and its modification time.
type Source interface {
	// Source returns the text of the named script.
	Source(name string) (string, error)
	// ModTime returns the current modification time of the named script,
	// or the zero time when the backend cannot tell.
	ModTime(name string) (time.Time, error)
}

// Observer receives cache lookup outcomes. Implemented by monitoring.
type Observer interface {
	CacheLookup(tier string, hit bool)
}

// CompileFunc turns source text into a program.
type CompileFunc func(name, src string) (*goja.Program, error)

// Service bundles both tiers. It is built once at start-up and shared by
// every execution context.
type Service struct {
	library  *Library
	user     *User
	compile  CompileFunc
	observer Observer
}

// NewService creates a cache service with a user tier of the given capacity.
func NewService(userCapacity int, compile CompileFunc, observer Observer) *Service {
	if compile == nil {
		compile = CompileScript
	}
	return &Service{
		library:  NewLibrary(),
		user:     NewUser(userCapacity),
		compile:  compile,
		observer: observer,
	}
}

// Library returns the trusted tier.
func (s *Service) Library() *Library { return s.library }

// User returns the tenant tier.
func (s *Service) User() *User { return s.user }

// LibraryProgram returns the compiled program for a trusted script, compiling
// src on first use. Library entries are never re-validated.
func (s *Service) LibraryProgram(name, src string) (*goja.Program, error) {
	if cached, ok := s.library.Get(name); ok {
		s.observe(s.library, true)
		return cached.Program, nil
	}
	s.observe(s.library, false)

	prg, err := s.compile(name, src)
	if err != nil {
		return nil, err
	}
	s.library.Put(name, &Script{Program: prg, SourceName: name})
	return prg, nil
}

// UserProgram returns the compiled program for a tenant script. key scopes
// the entry to its tenant; name is what src reads and compiles. wrap, when
// set, rewrites the source before compilation.
func (s *Service) UserProgram(key, name string, src Source, wrap func(string) string) (*goja.Program, error) {
	latest, err := src.ModTime(name)
	if err != nil {
		latest = time.Time{}
	}

	if cached, ok := s.user.Get(key); ok && cached.FreshAgainst(latest) {
		s.observe(s.user, true)
		return cached.Program, nil
	}
	s.observe(s.user, false)

	text, err := src.Source(name)
	if err != nil {
		return nil, err
	}
	if wrap != nil {
		text = wrap(text)
	}
	prg, err := s.compile(name, text)
	if err != nil {
		return nil, err
	}
	s.user.Put(key, &Script{Program: prg, SourceName: name, ModTime: latest})
	return prg, nil
}

func (s *Service) observe(t Tier, hit bool) {
	if s.observer != nil {
		s.observer.CacheLookup(t.Name(), hit)
	}
}

// CompileScript compiles src in non-strict mode.
func CompileScript(name, src string) (*goja.Program, error) {
	prg, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return prg, nil
}
