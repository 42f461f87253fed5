package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/personium/personium-engine/internal/domain/source"
	"github.com/personium/personium-engine/internal/providers/sandbox"
)

// RequireHostName is the qualified name of the module loader.
const RequireHostName = sandbox.WrapperPrefix + "Require"

// ErrModuleNotFound is thrown by require for unknown modules.
var ErrModuleNotFound = errors.New("module not found")

// requireHost loads modules from the request's source backend. A module is
// a script run as the body of function(exports, module); require returns
// module.exports. Each module runs at most once per context.
type requireHost struct {
	c *Context
}

func (r *requireHost) QualifiedName() string { return RequireHostName }

func (r *requireHost) Methods() map[string]sandbox.Method {
	return map[string]sandbox.Method{
		"doRequire": func(call sandbox.Call) (any, error) {
			return r.c.require(call.String(0, ""))
		},
	}
}

// ModuleFile maps a require() argument to a script name: a leading "./"
// is dropped and ".js" appended when missing.
func ModuleFile(name string) string {
	name = strings.TrimPrefix(name, "./")
	if !strings.HasSuffix(name, ".js") {
		name += ".js"
	}
	return name
}

func (c *Context) require(name string) (goja.Value, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty module name", ErrModuleNotFound)
	}
	file := ModuleFile(name)
	if exports, ok := c.modules[file]; ok {
		return exports, nil
	}

	prg, err := c.engine.cache.UserProgram("mod:"+c.src.CacheKey(file), file, c.src, func(text string) string {
		return "(function(exports, module) {\n" + text + "\n})"
	})
	if errors.Is(err, source.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	if err != nil {
		return nil, err
	}

	fnValue, err := c.vm.RunProgram(prg)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, fmt.Errorf("module %s did not compile to a function", name)
	}

	exports := c.vm.NewObject()
	module := c.vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, err
	}
	// Cycles see the partially filled exports object.
	c.modules[file] = exports
	if _, err := fn(goja.Undefined(), exports, module); err != nil {
		delete(c.modules, file)
		return nil, err
	}
	result := module.Get("exports")
	c.modules[file] = result
	return result, nil
}
