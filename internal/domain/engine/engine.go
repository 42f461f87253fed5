package engine

import (
	"context"
	"embed"
	"fmt"

	"github.com/dop251/goja"

	"github.com/personium/personium-engine/internal/infrastructure/cache"
	"github.com/personium/personium-engine/internal/infrastructure/config"
	"github.com/personium/personium-engine/internal/infrastructure/logging"
	"github.com/personium/personium-engine/internal/infrastructure/monitoring"
	"github.com/personium/personium-engine/internal/providers/sandbox"
	"github.com/personium/personium-engine/internal/shared/types"
)

//go:embed jslib/*.js
var jslib embed.FS

// Libraries are the trusted scripts loaded into every context, in order.
var Libraries = []string{"dao.js", "lib.js", "jsgi.js"}

// MinSecretKeyLength is the shortest accepted token signing key.
const MinSecretKeyLength = 16

// Extensions defines the loaded extensions inside one context.
type Extensions interface {
	Define(b *sandbox.Boundary, ns *goja.Object, log *logging.Logger)
}

// HostFactory builds the pjvm host object for one request. The context
// passed in is cancelled when the execution context is disposed.
type HostFactory func(ctx context.Context, meta types.RequestMeta, log *logging.Logger) (sandbox.HostObject, error)

// Engine holds the process-wide state shared by all execution contexts.
type Engine struct {
	cfg        config.EngineConfig
	log        *logging.Logger
	metrics    *monitoring.Metrics
	cache      *cache.Service
	policy     *sandbox.Policy
	extensions Extensions
	hosts      HostFactory
	libraries  map[string]string
}

// New creates an engine. metrics may be nil.
func New(cfg config.EngineConfig, log *logging.Logger, metrics *monitoring.Metrics) (*Engine, error) {
	if log == nil {
		log = logging.NewNop()
	}
	var observer cache.Observer
	if metrics != nil {
		observer = metrics
	}

	libs := make(map[string]string, len(Libraries))
	for _, name := range Libraries {
		data, err := jslib.ReadFile("jslib/" + name)
		if err != nil {
			return nil, fmt.Errorf("read library %s: %w", name, err)
		}
		libs[name] = string(data)
	}

	return &Engine{
		cfg:       cfg,
		log:       log.Named("engine"),
		metrics:   metrics,
		cache:     cache.NewService(cfg.UserCacheSize, cache.CompileScript, observer),
		policy:    sandbox.NewPolicy(),
		hosts:     MetaHost,
		libraries: libs,
	}, nil
}

// WithExtensions sets the extensions defined into every context.
func (e *Engine) WithExtensions(ext Extensions) *Engine {
	e.extensions = ext
	return e
}

// WithHostFactory replaces the factory of the pjvm host object.
func (e *Engine) WithHostFactory(f HostFactory) *Engine {
	if f != nil {
		e.hosts = f
	}
	return e
}

// WithPolicy replaces the sandbox visibility policy.
func (e *Engine) WithPolicy(p *sandbox.Policy) *Engine {
	if p != nil {
		e.policy = p
	}
	return e
}

// Cache returns the shared script cache.
func (e *Engine) Cache() *cache.Service { return e.cache }

// Policy returns the shared visibility policy.
func (e *Engine) Policy() *sandbox.Policy { return e.policy }

// Config returns the engine configuration.
func (e *Engine) Config() config.EngineConfig { return e.cfg }
