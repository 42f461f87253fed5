package extension

import (
	"go.uber.org/zap"

	"github.com/personium/personium-engine/internal/infrastructure/logging"
	"github.com/personium/personium-engine/internal/providers/sandbox"
)

// ScriptLoggerType is the qualified name of the logger handed to
// extensions.
const ScriptLoggerType = sandbox.ExtensionWrapperPrefix + "Logger"

// ScriptLogger is the scoped logger an extension receives through its
// setLogger hook.
type ScriptLogger struct {
	log *logging.Logger
}

// NewScriptLogger wraps log.
func NewScriptLogger(log *logging.Logger) *ScriptLogger {
	return &ScriptLogger{log: log}
}

func (s *ScriptLogger) QualifiedName() string { return ScriptLoggerType }

func (s *ScriptLogger) Methods() map[string]sandbox.Method {
	level := func(fn func(string, ...zap.Field)) sandbox.Method {
		return func(c sandbox.Call) (any, error) {
			fn(c.String(0, ""))
			return nil, nil
		}
	}
	return map[string]sandbox.Method{
		"debug": level(s.log.Debug),
		"info":  level(s.log.Info),
		"warn":  level(s.log.Warn),
		"error": level(s.log.Error),
	}
}
