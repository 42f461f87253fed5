package extension

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/personium/personium-engine/internal/infrastructure/cache"
	"github.com/personium/personium-engine/internal/infrastructure/config"
	"github.com/personium/personium-engine/internal/infrastructure/logging"
	"github.com/personium/personium-engine/internal/infrastructure/monitoring"
	"github.com/personium/personium-engine/internal/providers/sandbox"
)

// Hooks called on an extension after it is defined, when present.
const (
	LoggerHook     = "setLogger"
	PropertiesHook = "setProperties"
)

// Module is one compiled extension.
type Module struct {
	Name       string
	Package    string
	Archive    string
	Properties map[string]string
	program    *goja.Program
}

// QualifiedName returns package and name joined by a dot.
func (m *Module) QualifiedName() string {
	if m.Package == "" {
		return m.Name
	}
	return m.Package + "." + m.Name
}

// Native is an extension implemented in Go.
type Native interface {
	sandbox.HostObject
	Name() string
}

// Loader discovers, compiles and defines extensions.
type Loader struct {
	cfg     config.ExtensionConfig
	log     *logging.Logger
	metrics *monitoring.Metrics
	filter  Filter
	natives []Native

	mu      sync.RWMutex
	modules []*Module
}

// NewLoader creates a loader. metrics may be nil.
func NewLoader(cfg config.ExtensionConfig, log *logging.Logger, metrics *monitoring.Metrics) *Loader {
	if log == nil {
		log = logging.NewNop()
	}
	return &Loader{
		cfg:     cfg,
		log:     log.Named("extension"),
		metrics: metrics,
		filter:  PrefixFilter(cfg.Prefix),
	}
}

// WithFilter replaces the reveal filter.
func (l *Loader) WithFilter(f Filter) *Loader {
	if f != nil {
		l.filter = f
	}
	return l
}

// WithNatives registers Go-implemented extensions.
func (l *Loader) WithNatives(n ...Native) *Loader {
	l.natives = append(l.natives, n...)
	return l
}

// Modules returns the compiled script extensions.
func (l *Loader) Modules() []*Module {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*Module(nil), l.modules...)
}

// ExtensionCount returns the number of script and native extensions.
func (l *Loader) ExtensionCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.modules) + len(l.natives)
}

// Load scans the extension directory and compiles every revealed
// extension. A missing directory loads nothing. Broken archives and
// extensions are logged and skipped.
func (l *Loader) Load() error {
	archives, err := l.scan()
	if err != nil {
		return err
	}

	var modules []*Module
	seen := make(map[string]string)
	for _, archive := range archives {
		found, err := l.loadArchive(archive)
		if err != nil {
			l.log.Warn("skipping extension archive", zap.String("archive", archive), zap.Error(err))
			continue
		}
		for _, m := range found {
			if prev, dup := seen[m.Name]; dup {
				l.log.Warn("duplicate extension name", zap.String("name", m.Name),
					zap.String("archive", archive), zap.String("first", prev))
				continue
			}
			seen[m.Name] = archive
			modules = append(modules, m)
		}
	}

	l.mu.Lock()
	l.modules = modules
	l.mu.Unlock()
	l.log.Info("extensions loaded", zap.Int("count", len(modules)), zap.Int("archives", len(archives)))
	return nil
}

func (l *Loader) scan() ([]string, error) {
	dir := l.cfg.Dir
	if dir == "" {
		return nil, nil
	}
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		l.log.Info("extension directory not found", zap.String("dir", dir))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("extension path %s is not a directory", dir)
	}

	var mu sync.Mutex
	var archives []string
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range l.cfg.Patterns {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				mu.Lock()
				archives = append(archives, p)
				mu.Unlock()
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(archives)
	return archives, nil
}

func (l *Loader) loadArchive(archive string) ([]*Module, error) {
	entries, err := readArchive(archive)
	if err != nil {
		return nil, err
	}

	props := make(map[string]map[string]string)
	for _, e := range entries {
		if base, ok := strings.CutSuffix(e.name, ".properties"); ok {
			props[base] = parseProperties(e.data)
		}
	}

	var out []*Module
	for _, e := range entries {
		base, ok := strings.CutSuffix(e.name, ".js")
		if !ok {
			continue
		}
		dir, name := path.Split(base)
		pkg := strings.ReplaceAll(strings.Trim(dir, "/"), "/", ".")
		if !l.filter(pkg, name) {
			continue
		}
		prg, err := cache.CompileScript(e.name, "(function(exports, module) {\n"+string(e.data)+"\n})")
		if err != nil {
			l.log.Warn("extension does not compile", zap.String("name", name), zap.Error(err))
			l.record(false)
			continue
		}
		out = append(out, &Module{
			Name:       name,
			Package:    pkg,
			Archive:    archive,
			Properties: props[base],
			program:    prg,
		})
	}
	return out, nil
}

// Define publishes every extension into ns. It implements the engine's
// Extensions contract.
func (l *Loader) Define(b *sandbox.Boundary, ns *goja.Object, log *logging.Logger) {
	if ns == nil {
		return
	}
	if log == nil {
		log = l.log
	}

	for _, n := range l.natives {
		if !l.filter(sandbox.ExtensionWrapperPrefix, n.Name()) {
			continue
		}
		v, err := b.Wrap(n)
		if err == nil {
			err = ns.Set(n.Name(), v)
		}
		l.outcome(log, n.Name(), err)
	}

	for _, m := range l.Modules() {
		l.outcome(log, m.Name, l.defineModule(b, ns, m, log))
	}
}

func (l *Loader) defineModule(b *sandbox.Boundary, ns *goja.Object, m *Module, log *logging.Logger) error {
	vm := b.Runtime()
	fnValue, err := vm.RunProgram(m.program)
	if err != nil {
		return err
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return fmt.Errorf("extension %s did not compile to a function", m.Name)
	}
	exports := vm.NewObject()
	module := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return err
	}
	if _, err := fn(goja.Undefined(), exports, module); err != nil {
		return err
	}
	value := module.Get("exports")
	if err := ns.Set(m.Name, value); err != nil {
		return err
	}

	obj, ok := value.(*goja.Object)
	if !ok {
		return nil
	}
	scoped := log.ForExtension(m.Name)
	l.inject(obj, LoggerHook, scoped, func() (goja.Value, error) {
		return b.Wrap(NewScriptLogger(scoped))
	})
	if len(m.Properties) > 0 {
		l.inject(obj, PropertiesHook, scoped, func() (goja.Value, error) {
			props := vm.NewObject()
			for k, v := range m.Properties {
				if err := props.Set(k, v); err != nil {
					return nil, err
				}
			}
			return props, nil
		})
	}
	return nil
}

// inject calls obj[hook](arg) when obj has such a function. Failures are
// logged and swallowed.
func (l *Loader) inject(obj *goja.Object, hook string, log *logging.Logger, arg func() (goja.Value, error)) {
	fn, ok := goja.AssertFunction(obj.Get(hook))
	if !ok {
		return
	}
	v, err := arg()
	if err == nil {
		_, err = fn(obj, v)
	}
	if err != nil {
		log.Warn("extension hook failed", zap.String("hook", hook), zap.Error(err))
	}
}

func (l *Loader) outcome(log *logging.Logger, name string, err error) {
	if err != nil {
		log.Warn("extension definition failed", zap.String("extension", name), zap.Error(err))
	}
	l.record(err == nil)
}

func (l *Loader) record(ok bool) {
	if l.metrics != nil {
		l.metrics.ExtensionLoaded(ok)
	}
}
