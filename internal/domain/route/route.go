// Package route maps logical service paths to script source names.
//
// Two strategies are provided. Exact resolves case-sensitive literal names.
// Template resolves JAX-RS style templates such as "{id}/view" or
// "{id: \d+}/view", trying routes in registration order. Both satisfy
// Resolver, so a routing document can be loaded into either.
package route

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Resolver maps a service path to the source name registered for it.
type Resolver interface {
	// Register adds a route. Templates are validated here, never at Resolve.
	Register(name, src string) error
	// Resolve returns the target of the matching route. An empty path
	// never matches.
	Resolve(path string) (string, bool)
}

// RegistrationError reports a route that could not be registered.
type RegistrationError struct {
	Name string
	Src  string
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("Route registration failed. (name=%s, src=%s)", e.Name, e.Src)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// Exact resolves literal service names.
type Exact struct {
	mu     sync.RWMutex
	routes map[string]string
}

// NewExact creates an empty exact-match resolver.
func NewExact() *Exact {
	return &Exact{routes: make(map[string]string)}
}

// Register binds name to src. A later registration of the same name wins.
func (r *Exact) Register(name, src string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[name] = src
	return nil
}

// Resolve looks up path verbatim.
func (r *Exact) Resolve(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.routes[path]
	return src, ok
}

// Template resolves templated service paths, first registered match wins.
type Template struct {
	mu     sync.RWMutex
	routes []templateRoute
}

type templateRoute struct {
	pattern *regexp.Regexp
	name    string
	src     string
}

// NewTemplate creates an empty templated resolver.
func NewTemplate() *Template {
	return &Template{}
}

// Register compiles name as a template and appends it to the table.
func (r *Template) Register(name, src string) error {
	re, err := compileTemplate(name)
	if err != nil {
		return &RegistrationError{Name: name, Src: src, Err: err}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, templateRoute{pattern: re, name: name, src: src})
	return nil
}

// Resolve returns the target of the first template that matches path in full.
func (r *Template) Resolve(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rt := range r.routes {
		if rt.pattern.MatchString(path) {
			return rt.src, true
		}
	}
	return "", false
}

// Len reports how many routes are registered.
func (r *Template) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

var variableName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// compileTemplate turns a template into an anchored regular expression.
// Literal text is quoted; "{name}" matches one non-empty path segment and
// "{name: regex}" matches regex. Braces inside a custom regex may nest.
func compileTemplate(tmpl string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")

	for i := 0; i < len(tmpl); {
		open := strings.IndexByte(tmpl[i:], '{')
		if open < 0 {
			b.WriteString(regexp.QuoteMeta(tmpl[i:]))
			break
		}
		b.WriteString(regexp.QuoteMeta(tmpl[i : i+open]))
		i += open

		end, err := closingBrace(tmpl, i)
		if err != nil {
			return nil, err
		}
		expr, err := variableExpr(tmpl[i+1 : end])
		if err != nil {
			return nil, err
		}
		b.WriteString("(")
		b.WriteString(expr)
		b.WriteString(")")
		i = end + 1
	}

	b.WriteString("$")
	return regexp.Compile(b.String())
}

func closingBrace(tmpl string, open int) (int, error) {
	depth := 0
	for j := open; j < len(tmpl); j++ {
		switch tmpl[j] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j, nil
			}
		}
	}
	return 0, fmt.Errorf("unclosed template variable at offset %d in %q", open, tmpl)
}

func variableExpr(body string) (string, error) {
	name, expr, custom := strings.Cut(body, ":")
	name = strings.TrimSpace(name)
	if !variableName.MatchString(name) {
		return "", fmt.Errorf("invalid template variable name %q", name)
	}
	if !custom {
		return "[^/]+?", nil
	}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", fmt.Errorf("empty regular expression for template variable %q", name)
	}
	if _, err := regexp.Compile(expr); err != nil {
		return "", fmt.Errorf("template variable %q: %w", name, err)
	}
	return expr, nil
}
