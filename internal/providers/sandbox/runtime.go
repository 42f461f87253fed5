package sandbox

import (
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// RuntimeConfig configures a fresh script runtime.
type RuntimeConfig struct {
	// MaxCallStack bounds recursion depth; zero keeps the goja default.
	MaxCallStack int
	// Console receives console.* output. Nil discards it.
	Console *zap.Logger
}

// NewRuntime creates a runtime with the standard built-ins, a console bound
// to the configured logger and the host module globals removed.
func NewRuntime(cfg RuntimeConfig) *goja.Runtime {
	vm := goja.New()
	if cfg.MaxCallStack > 0 {
		vm.SetMaxCallStackSize(cfg.MaxCallStack)
	}

	for _, name := range []string{"require", "process", "module", "exports"} {
		_ = vm.Set(name, goja.Undefined())
	}

	console := vm.NewObject()
	logger := cfg.Console
	if logger == nil {
		logger = zap.NewNop()
	}
	_ = console.Set("log", consoleFunc(logger.Info))
	_ = console.Set("info", consoleFunc(logger.Info))
	_ = console.Set("debug", consoleFunc(logger.Debug))
	_ = console.Set("warn", consoleFunc(logger.Warn))
	_ = console.Set("error", consoleFunc(logger.Error))
	_ = vm.Set("console", console)

	// Timers would outlive the request; they are accepted and ignored.
	inert := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for _, name := range []string{"setTimeout", "setInterval", "clearTimeout", "clearInterval"} {
		_ = vm.Set(name, inert)
	}
	return vm
}

func consoleFunc(log func(string, ...zap.Field)) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		log(strings.Join(parts, " "), zap.String("source", "script"))
		return goja.Undefined()
	}
}
