package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/personium/personium-engine/internal/domain/jsgi"
	"github.com/personium/personium-engine/internal/domain/source"
	"github.com/personium/personium-engine/internal/infrastructure/logging"
	"github.com/personium/personium-engine/internal/infrastructure/monitoring"
	"github.com/personium/personium-engine/internal/providers/sandbox"
	"github.com/personium/personium-engine/internal/shared/id"
	"github.com/personium/personium-engine/internal/shared/types"
)

// Well-known script names.
const (
	NamespaceName = "_p"
	HostName      = "pjvm"
	RequireName   = "_require"
	EntrySymbol   = "fn_jsgi"
)

// Context executes one request. It is not safe for concurrent use and is
// never reused after Dispose.
type Context struct {
	id     id.ExecutionID
	engine *Engine
	log    *logging.Logger

	vm       *goja.Runtime
	boundary *sandbox.Boundary
	watchdog *Watchdog
	ns       *goja.Object

	meta    types.RequestMeta
	src     source.Manager
	modules map[string]goja.Value

	ctx    context.Context
	cancel context.CancelFunc

	state       atomic.Int32
	disposeOnce sync.Once
}

// NewContext allocates a runtime with the standard built-ins and binds the
// sandbox boundary to it.
func (e *Engine) NewContext(parent context.Context) (*Context, error) {
	if len(e.cfg.TokenSecretKey) < MinSecretKeyLength {
		return nil, &InitializationError{
			Cause: fmt.Errorf("token secret key must be at least %d bytes", MinSecretKeyLength),
		}
	}

	execID := id.NewExecutionID()
	log := e.log.With(zap.String("execution_id", execID.String()))
	vm := sandbox.NewRuntime(sandbox.RuntimeConfig{
		MaxCallStack: e.cfg.MaxCallStack,
		Console:      log.Named("script").Logger,
	})

	ctx, cancel := context.WithCancel(parent)
	c := &Context{
		id:       execID,
		engine:   e,
		log:      log,
		vm:       vm,
		boundary: sandbox.NewBoundary(vm, e.policy),
		watchdog: NewWatchdog(vm, e.cfg.ScriptTimeout, e.cfg.WatchdogInterval()),
		modules:  make(map[string]goja.Value),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.state.Store(int32(StateCreated))
	if e.metrics != nil {
		e.metrics.ContextOpened()
	}
	return c, nil
}

// ID returns the execution id.
func (c *Context) ID() id.ExecutionID { return c.id }

// State returns the current lifecycle state.
func (c *Context) State() State { return State(c.state.Load()) }

// Boundary returns the sandbox boundary of the runtime.
func (c *Context) Boundary() *sandbox.Boundary { return c.boundary }

// Prepare binds the context to one request: it publishes the host objects,
// runs the trusted libraries in order and defines the extensions.
func (c *Context) Prepare(meta types.RequestMeta, src source.Manager) error {
	if !c.transition(StateCreated, StatePreparing) {
		return c.misuse("prepare")
	}
	meta.Subject = src.ServiceSubject()
	c.meta, c.src = meta, src
	c.log = c.log.ForRequest(meta.RequestID, meta.Cell, meta.Box, meta.Service)

	if err := c.prepare(); err != nil {
		c.state.Store(int32(StateFailed))
		return err
	}
	return nil
}

func (c *Context) prepare() error {
	host, err := c.engine.hosts(c.ctx, c.meta, c.log)
	if err != nil {
		return &InitializationError{Cause: err}
	}
	if err := c.boundary.Expose(HostName, host); err != nil {
		return &InitializationError{Cause: err}
	}
	if err := c.boundary.Expose(RequireName, &requireHost{c: c}); err != nil {
		return &InitializationError{Cause: err}
	}

	ns := c.vm.NewObject()
	wrapper := c.vm.NewObject()
	if err := c.boundary.InstallGuards(wrapper); err != nil {
		return &InitializationError{Cause: err}
	}
	for name, v := range map[string]any{"extension": c.vm.NewObject(), "wrapper": wrapper} {
		if err := ns.Set(name, v); err != nil {
			return &InitializationError{Cause: err}
		}
	}
	if err := c.vm.Set(NamespaceName, ns); err != nil {
		return &InitializationError{Cause: err}
	}
	c.ns = ns

	for _, name := range Libraries {
		prg, err := c.engine.cache.LibraryProgram(name, c.engine.libraries[name])
		if err != nil {
			return &InitializationError{Cause: err}
		}
		if _, err := c.watchdog.Run(func() (goja.Value, error) { return c.vm.RunProgram(prg) }); err != nil {
			if errors.Is(err, ErrTimeout) {
				return err
			}
			return &InitializationError{Cause: fmt.Errorf("library %s: %w", name, err)}
		}
	}

	if c.engine.extensions != nil {
		ext, _ := ns.Get("extension").(*goja.Object)
		_, err := c.watchdog.Run(func() (goja.Value, error) {
			c.engine.extensions.Define(c.boundary, ext, c.log)
			return nil, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Evaluate resolves servicePath, runs the script bound to the entry
// symbol, calls it with the request and validates what it returns.
func (c *Context) Evaluate(servicePath string, req jsgi.Request) (*jsgi.Response, error) {
	if !c.transition(StatePreparing, StateEvaluating) {
		return nil, c.misuse("evaluate")
	}
	resp, err := c.evaluate(servicePath, req)
	c.finish(err)
	return resp, err
}

func (c *Context) evaluate(servicePath string, req jsgi.Request) (*jsgi.Response, error) {
	name, err := c.src.ScriptNameForServicePath(servicePath)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrScriptNotFound, servicePath)
		}
		return nil, newServerError(err)
	}

	key := "svc:" + c.src.CacheKey(name)
	prg, err := c.engine.cache.UserProgram(key, name, c.src, func(text string) string {
		return EntrySymbol + " = " + text
	})
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrScriptNotFound, name)
		}
		var syn *goja.CompilerSyntaxError
		if errors.As(err, &syn) {
			return nil, &ServerError{Message: syn.Error(), Cause: err}
		}
		return nil, newServerError(err)
	}

	if _, err := c.watchdog.Run(func() (goja.Value, error) { return c.vm.RunProgram(prg) }); err != nil {
		return nil, c.scriptError(err)
	}
	entry, ok := goja.AssertFunction(c.vm.Get(EntrySymbol))
	if !ok {
		return nil, &ServerError{Message: EntrySymbol + " is not a function", Cause: fmt.Errorf("script %s", name)}
	}

	reqValue, err := req.Value(c.boundary)
	if err != nil {
		return nil, newServerError(err)
	}
	result, err := c.watchdog.Run(func() (goja.Value, error) { return entry(goja.Undefined(), reqValue) })
	if err != nil {
		return nil, c.scriptError(err)
	}

	resp, err := jsgi.ParseResponse(c.boundary, result, c.watchdog.Run)
	if err != nil {
		return nil, c.scriptError(err)
	}
	return resp, nil
}

// Write streams resp to w. Once the status is sent a failure can only cut
// the body short, reported as ErrResponseAborted.
func (c *Context) Write(resp *jsgi.Response, w http.ResponseWriter) error {
	if c.State() == StateDisposed {
		return ErrDisposed
	}
	if err := resp.Write(w); err != nil {
		c.finish(c.scriptError(err))
		return fmt.Errorf("%w: %w", ErrResponseAborted, err)
	}
	return nil
}

// Serve prepares the context, evaluates the service and writes the
// response. It does not dispose the context.
func (c *Context) Serve(meta types.RequestMeta, src source.Manager, servicePath string, req jsgi.Request, w http.ResponseWriter) error {
	timer := monitoring.NewTimer(c.engine.metrics, string(meta.Kind))
	err := c.serve(meta, src, servicePath, req, w)
	timer.Stop(outcome(err))
	if err != nil {
		c.log.Warn("service failed", zap.String("path", servicePath), zap.Error(err))
	}
	return err
}

func (c *Context) serve(meta types.RequestMeta, src source.Manager, servicePath string, req jsgi.Request, w http.ResponseWriter) error {
	if err := c.Prepare(meta, src); err != nil {
		return err
	}
	resp, err := c.Evaluate(servicePath, req)
	if err != nil {
		return err
	}
	return c.Write(resp, w)
}

// Dispose stops the watchdog and releases the runtime. Safe to call on
// every exit path and more than once.
func (c *Context) Dispose() {
	c.disposeOnce.Do(func() {
		c.watchdog.Stop()
		c.cancel()
		c.vm.Interrupt(ErrDisposed)
		c.modules = nil
		c.state.Store(int32(StateDisposed))
		if c.engine.metrics != nil {
			c.engine.metrics.ContextClosed()
		}
	})
}

func (c *Context) transition(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

func (c *Context) misuse(op string) error {
	if c.State() == StateDisposed {
		return ErrDisposed
	}
	return fmt.Errorf("cannot %s in state %s", op, c.State())
}

func (c *Context) finish(err error) {
	next := StateCompleted
	switch {
	case err == nil:
	case errors.Is(err, ErrTimeout):
		next = StateTimedOut
	default:
		next = StateFailed
	}
	for {
		cur := c.State()
		if cur == StateDisposed || cur == StateTimedOut || cur == StateFailed {
			return
		}
		if c.transition(cur, next) {
			return
		}
	}
}

// scriptError classifies a failure raised while script code ran.
func (c *Context) scriptError(err error) error {
	if errors.Is(err, ErrTimeout) || c.watchdog.Fired() {
		return ErrTimeout
	}
	var se *ServerError
	if errors.As(err, &se) {
		return se
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		c.log.Debug("script exception", zap.String("stack", ex.String()))
		return &ServerError{Message: exceptionMessage(ex), Cause: err}
	}
	// protocol violations by the returned response object
	return &ServerError{Message: err.Error(), Cause: err}
}

func exceptionMessage(ex *goja.Exception) string {
	if obj, ok := ex.Value().(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			return msg.String()
		}
	}
	return ex.Value().String()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return monitoring.OutcomeCompleted
	case errors.Is(err, ErrTimeout):
		return monitoring.OutcomeTimedOut
	case errors.Is(err, ErrScriptNotFound):
		return monitoring.OutcomeNotFound
	default:
		return monitoring.OutcomeFailed
	}
}
