package sandbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
)

// ErrUnsupportedValue is returned for host values with no wrap rule.
var ErrUnsupportedValue = errors.New("host value cannot cross into script space")

// NotFoundMessage is thrown by guarded constructors.
const NotFoundMessage = "not found"

// Document is a structured key/value host document. Crossing the boundary
// it becomes JSON text.
type Document map[string]any

// Boundary converts values between one runtime and the host.
type Boundary struct {
	vm     *goja.Runtime
	policy *Policy

	hosts  map[*goja.Object]any
	protos map[string]*goja.Object
}

// NewBoundary binds a boundary to vm.
func NewBoundary(vm *goja.Runtime, policy *Policy) *Boundary {
	return &Boundary{
		vm:     vm,
		policy: policy,
		hosts:  make(map[*goja.Object]any),
		protos: make(map[string]*goja.Object),
	}
}

// Runtime returns the runtime the boundary is bound to.
func (b *Boundary) Runtime() *goja.Runtime { return b.vm }

// Policy returns the visibility policy.
func (b *Boundary) Policy() *Policy { return b.policy }

// Expose publishes h as a global under name.
func (b *Boundary) Expose(name string, h HostObject) error {
	obj, err := b.hostObject(h)
	if err != nil {
		return err
	}
	return b.vm.Set(name, obj)
}

// Wrap converts a host value into its script representation.
func (b *Boundary) Wrap(v any) (goja.Value, error) {
	switch x := v.(type) {
	case nil:
		return goja.Null(), nil
	case goja.Value:
		return x, nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return b.vm.ToValue(x), nil
	case *InputStream:
		return b.hostObject(x)
	case *DocumentProxy:
		return b.hostObject(x)
	case HostObject:
		return b.hostObject(x)
	case []byte:
		return b.hostObject(NewInputStream(bytes.NewReader(x)))
	case io.Reader:
		return b.hostObject(NewInputStream(x))
	case Document:
		return b.documentText(x)
	case map[string]any:
		return b.documentText(x)
	case []string:
		items := make([]any, len(x))
		for i, s := range x {
			items[i] = s
		}
		return b.array(items)
	case []any:
		return b.array(x)
	case []Document:
		items := make([]any, len(x))
		for i, d := range x {
			items[i] = d
		}
		return b.array(items)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// Unwrap returns the host value behind a script object created by this
// boundary.
func (b *Boundary) Unwrap(v goja.Value) (any, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	h, ok := b.hosts[obj]
	return h, ok
}

// Throw raises err inside the running script as a catchable error. A script
// exception surfacing through a host call is rethrown as the original value.
// An interrupt surfacing the same way becomes an ordinary error; the
// watchdog keeps interrupting until the top-level call unwinds.
func (b *Boundary) Throw(err error) {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		panic(ex.Value())
	}
	panic(b.vm.NewGoError(err))
}

func (b *Boundary) documentText(doc map[string]any) (goja.Value, error) {
	text, err := sonic.MarshalString(doc)
	if err != nil {
		return nil, fmt.Errorf("serialize document: %w", err)
	}
	return b.vm.ToValue(text), nil
}

// array copies items into a fresh script array.
func (b *Boundary) array(items []any) (goja.Value, error) {
	values := make([]any, len(items))
	for i, item := range items {
		v, err := b.Wrap(item)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return b.vm.NewArray(values...), nil
}

func (b *Boundary) hostObject(h HostObject) (*goja.Object, error) {
	name := h.QualifiedName()
	if err := b.policy.Check(name); err != nil {
		return nil, err
	}

	obj := b.vm.NewObject()
	if err := obj.SetPrototype(b.prototype(name)); err != nil {
		return nil, err
	}
	for methodName, m := range h.Methods() {
		fn := b.vm.ToValue(b.native(m))
		if err := obj.DefineDataProperty(methodName, fn, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return nil, err
		}
	}
	b.hosts[obj] = h
	return obj, nil
}

func (b *Boundary) native(m Method) func(goja.FunctionCall) goja.Value {
	return func(fc goja.FunctionCall) goja.Value {
		res, err := invoke(m, Call{Args: fc.Arguments, Boundary: b})
		if err != nil {
			b.Throw(err)
		}
		v, err := b.Wrap(res)
		if err != nil {
			b.Throw(err)
		}
		return v
	}
}

// invoke runs m, turning a Go panic into an error. Values thrown by the
// runtime itself keep unwinding.
func invoke(m Method, c Call) (res any, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch r.(type) {
		case goja.Value, *goja.Exception, *goja.InterruptedError:
			panic(r)
		}
		err = fmt.Errorf("host method panic: %v", r)
	}()
	return m(c)
}

// prototype returns the shared prototype for host objects of one type.
// Its constructor refuses script-side construction for guarded types.
func (b *Boundary) prototype(name string) *goja.Object {
	if p, ok := b.protos[name]; ok {
		return p
	}
	p := b.vm.NewObject()
	if guarded(name) {
		_ = p.DefineDataProperty("constructor", b.Guard(), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	}
	b.protos[name] = p
	return p
}

// Guard returns a constructor that always throws "not found".
func (b *Boundary) Guard() goja.Value {
	return b.vm.ToValue(func(goja.ConstructorCall) *goja.Object {
		panic(b.vm.NewTypeError(NotFoundMessage))
	})
}

// InstallGuards defines a throwing constructor on ns for every host type
// scripts must not construct, keyed by simple name.
func (b *Boundary) InstallGuards(ns *goja.Object) error {
	for _, name := range GuardedTypes {
		if err := ns.Set(simpleName(name), b.Guard()); err != nil {
			return err
		}
	}
	return nil
}
