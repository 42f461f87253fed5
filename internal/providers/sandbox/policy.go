package sandbox

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNotVisible is returned when a host type is not on the allow-list.
var ErrNotVisible = errors.New("class not visible to scripts")

// Qualified names of the engine's own host types.
const (
	ClientPrefix           = "io.personium.client."
	WrapperPrefix          = "io.personium.engine.wrapper."
	AdapterPrefix          = "io.personium.engine.adapter."
	ExtensionWrapperPrefix = "io.personium.engine.extension.wrapper."
	LoggerType             = "go.uber.org/zap.Logger"
	EngineErrorType        = "io.personium.engine.EngineError"
)

// DefaultAllowList is the allow-list used by the engine.
var DefaultAllowList = []string{
	ClientPrefix,
	WrapperPrefix,
	AdapterPrefix,
	ExtensionWrapperPrefix,
	LoggerType,
	EngineErrorType,
}

// Policy is the class visibility filter. It is shared by every execution
// context and safe for concurrent use.
type Policy struct {
	allow    []string
	accepted sync.Map
}

// NewPolicy creates a policy over the given prefixes. With no arguments the
// default allow-list is used.
func NewPolicy(allow ...string) *Policy {
	if len(allow) == 0 {
		allow = DefaultAllowList
	}
	return &Policy{allow: append([]string(nil), allow...)}
}

// Visible reports whether name may cross into script space.
func (p *Policy) Visible(name string) bool {
	if _, ok := p.accepted.Load(name); ok {
		return true
	}
	for _, prefix := range p.allow {
		if strings.HasPrefix(name, prefix) {
			p.accepted.Store(name, struct{}{})
			return true
		}
	}
	return false
}

// Check returns ErrNotVisible for names outside the allow-list.
func (p *Policy) Check(name string) error {
	if !p.Visible(name) {
		return fmt.Errorf("%w: %s", ErrNotVisible, name)
	}
	return nil
}

// Memoized reports whether name has already been accepted.
func (p *Policy) Memoized(name string) bool {
	_, ok := p.accepted.Load(name)
	return ok
}
