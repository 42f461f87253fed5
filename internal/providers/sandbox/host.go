package sandbox

import (
	"github.com/dop251/goja"
)

// HostObject is a Go value that scripts may hold. Its methods are the only
// operations a script can perform on it.
type HostObject interface {
	QualifiedName() string
	Methods() map[string]Method
}

// Method implements one script-callable operation. The result is converted
// with Boundary.Wrap; a non-nil error is thrown into the script.
type Method func(call Call) (any, error)

// Call carries the arguments of one method invocation.
type Call struct {
	Args     []goja.Value
	Boundary *Boundary
}

// Arg returns argument i, or undefined.
func (c Call) Arg(i int) goja.Value {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return goja.Undefined()
}

// Present reports whether argument i was passed and is neither undefined
// nor null.
func (c Call) Present(i int) bool {
	v := c.Arg(i)
	return !goja.IsUndefined(v) && !goja.IsNull(v)
}

// String returns argument i as text, or def when absent.
func (c Call) String(i int, def string) string {
	if !c.Present(i) {
		return def
	}
	return c.Arg(i).String()
}

// Int returns argument i as an integer, or def when absent.
func (c Call) Int(i int, def int64) int64 {
	if !c.Present(i) {
		return def
	}
	return c.Arg(i).ToInteger()
}

// StringMap returns argument i as a string map. Non-object arguments
// yield an empty map.
func (c Call) StringMap(i int) map[string]string {
	out := map[string]string{}
	if !c.Present(i) {
		return out
	}
	obj, ok := c.Arg(i).(*goja.Object)
	if !ok {
		return out
	}
	for _, k := range obj.Keys() {
		v := obj.Get(k)
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			continue
		}
		out[k] = v.String()
	}
	return out
}

// Host returns the host value behind argument i, if it is one.
func (c Call) Host(i int) (any, bool) {
	return c.Boundary.Unwrap(c.Arg(i))
}
