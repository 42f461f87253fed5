package http

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/personium/personium-engine/internal/domain/engine"
	"github.com/personium/personium-engine/internal/domain/source"
	"github.com/personium/personium-engine/internal/infrastructure/config"
	"github.com/personium/personium-engine/internal/infrastructure/logging"
	"github.com/personium/personium-engine/internal/shared/types"
)

// Fixed identity of the debug route.
const (
	DebugCell = "engine_debug_cell"
	DebugBox  = "engine_debug_box"
)

// Stats reports process-wide figures on the health endpoint.
type Stats interface {
	ExtensionCount() int
}

// Handlers serves script services.
type Handlers struct {
	engine  *engine.Engine
	cfg     config.SourceConfig
	cryptor *source.Cryptor
	system  source.Manager
	test    source.Manager
	stats   Stats
	log     *logging.Logger
}

// NewHandlers creates the handler set. Encrypted service scripts are
// decrypted with the engine's token secret key; a key that is not a valid
// AES key leaves them undecryptable.
func NewHandlers(eng *engine.Engine, cfg config.SourceConfig, log *logging.Logger) (*Handlers, error) {
	if log == nil {
		log = logging.NewNop()
	}
	log = log.Named("api")
	cryptor, err := source.NewCryptor(eng.Config().TokenSecretKey)
	if err != nil {
		log.Warn("encrypted scripts disabled", zap.Error(err))
	}

	var test source.Manager = source.NewMemory("test", nil)
	if cfg.TestDir != "" {
		dir, err := source.NewDirectory(cfg.TestDir)
		if err != nil {
			return nil, err
		}
		test = dir
	}

	return &Handlers{
		engine:  eng,
		cfg:     cfg,
		cryptor: cryptor,
		system:  source.NewSystem(),
		test:    test,
		log:     log,
	}, nil
}

// WithTestSource replaces the backend of the test and debug routes.
func (h *Handlers) WithTestSource(src source.Manager) *Handlers {
	if src != nil {
		h.test = src
	}
	return h
}

// WithStats sets the figures reported by Health.
func (h *Handlers) WithStats(s Stats) *Handlers {
	h.stats = s
	return h
}

// Register adds every route to r. The debug route exists only when debug
// is set.
func (h *Handlers) Register(r gin.IRouter, debug bool) {
	r.GET("/healthz", h.Health)
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
		r.Handle(method, "/:cell/:box/service/*name", h.Service)
		r.Handle(method, "/:cell/:box/system/*name", h.System)
		r.Handle(method, "/:cell/:box/test/*name", h.Test)
		if debug {
			r.Handle(method, "/debug/*name", h.Debug)
		}
	}
}

// Health reports liveness and cache occupancy.
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status": "healthy",
		"cache": gin.H{
			"library": h.engine.Cache().Library().Len(),
			"user":    h.engine.Cache().User().Len(),
		},
	}
	if h.stats != nil {
		body["extensions"] = h.stats.ExtensionCount()
	}
	c.JSON(http.StatusOK, body)
}

// Service runs a script of a service collection stored on the file system.
func (h *Handlers) Service(c *gin.Context) {
	name := serviceName(c)
	t, err := parseTarget(c)
	if err != nil {
		h.fail(c, &engine.ServerError{Message: "malformed base url", Cause: err})
		return
	}

	dir := c.GetHeader(HeaderFsPath)
	if dir != "" && h.cfg.FsRoot != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(h.cfg.FsRoot, dir)
	}
	src, err := source.NewFS(dir, c.GetHeader(HeaderFsRoutingID), source.FSOptions{
		Root:          h.cfg.FsRoot,
		RouteStrategy: h.cfg.RouteStrategy,
		Cryptor:       h.cryptor,
		MaxBytes:      h.cfg.MaxBytes,
	})
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			err = errors.Join(engine.ErrScriptNotFound, err)
		} else {
			err = &engine.ServerError{Message: "service collection unavailable", Cause: err}
		}
		h.fail(c, err)
		return
	}

	meta := t.requestMeta(c, types.KindService, c.Param("cell"), c.Param("box"), name)
	h.run(c, meta, src, name, t)
}

// System runs an embedded system script.
func (h *Handlers) System(c *gin.Context) {
	h.serveFrom(c, types.KindSystem, c.Param("cell"), c.Param("box"), h.system)
}

// Test runs a test script.
func (h *Handlers) Test(c *gin.Context) {
	h.serveFrom(c, types.KindTest, c.Param("cell"), c.Param("box"), h.test)
}

// Debug runs a test script under the fixed debug cell and box.
func (h *Handlers) Debug(c *gin.Context) {
	for k, vs := range c.Request.Header {
		h.log.Debug("request header", zap.String("name", k), zap.Strings("values", vs))
	}
	h.serveFrom(c, types.KindDebug, DebugCell, DebugBox, h.test)
}

func (h *Handlers) serveFrom(c *gin.Context, kind types.ServiceKind, cell, box string, src source.Manager) {
	name := serviceName(c)
	t, err := parseTarget(c)
	if err != nil {
		h.fail(c, &engine.ServerError{Message: "malformed base url", Cause: err})
		return
	}
	h.run(c, t.requestMeta(c, kind, cell, box, name), src, name, t)
}

// run executes one request in a fresh context and disposes it on every
// path.
func (h *Handlers) run(c *gin.Context, meta types.RequestMeta, src source.Manager, name string, t *target) {
	h.log.Info("request started",
		zap.String("request_id", meta.RequestID),
		zap.String("method", c.Request.Method),
		zap.String("kind", string(meta.Kind)),
		zap.String("cell", meta.Cell),
		zap.String("box", meta.Box),
		zap.String("service", name),
	)

	ec, err := h.engine.NewContext(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	defer ec.Dispose()

	if err := ec.Serve(meta, src, name, t.jsgiRequest(c), c.Writer); err != nil {
		h.fail(c, err)
	}
}

// fail answers with the plain-text failure response unless the status is
// already on the wire.
func (h *Handlers) fail(c *gin.Context, err error) {
	if errors.Is(err, engine.ErrResponseAborted) || c.Writer.Written() {
		h.log.Warn("response aborted", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.Abort()
		return
	}
	if engine.StatusCode(err) == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	writeFailure(c, err)
}
