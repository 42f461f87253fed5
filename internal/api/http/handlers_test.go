package http

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personium/personium-engine/internal/domain/engine"
	"github.com/personium/personium-engine/internal/domain/source"
	"github.com/personium/personium-engine/internal/infrastructure/config"
	"github.com/personium/personium-engine/internal/infrastructure/logging"
)

const baseURL = "https://unit.example/"

var testScripts = map[string]string{
	"hello": `function(request) {
  return {status: 200, headers: {"Content-Type": "text/plain"}, body: ["OK"]};
}`,
	"bad": `function(request) { return {status: 2000, headers: {}, body: ["x"]}; }`,
	"loop": `function(request) { while (true) {} }`,
	"throw": `function(request) { throw new Error("boom"); }`,
	"identity": `function(request) {
  return _p.jsgi.json(200, {
    method: request.method,
    scheme: request.scheme,
    host: request.host,
    port: request.port,
    scriptName: request.scriptName,
    queryString: request.queryString,
    requestUri: request.env.requestUri,
    cellUrl: _p.context.cellUrl,
    boxName: _p.context.boxName,
    boxSchema: _p.context.boxSchema,
    subject: _p.context.serviceSubject,
    requestKey: _p.context.requestKey
  });
}`,
}

type stats int

func (s stats) ExtensionCount() int { return int(s) }

func newRouter(t *testing.T, timeout time.Duration, srcCfg config.SourceConfig, debug bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default().Engine
	cfg.ScriptTimeout = timeout
	cfg.CheckInterval = 5 * time.Millisecond
	eng, err := engine.New(cfg, logging.NewNop(), nil)
	require.NoError(t, err)

	if srcCfg.RouteStrategy == "" {
		srcCfg.RouteStrategy = "template"
	}
	h, err := NewHandlers(eng, srcCfg, logging.NewNop())
	require.NoError(t, err)
	h.WithTestSource(source.NewMemory("handlers", testScripts)).WithStats(stats(2))

	router := gin.New()
	h.Register(router, debug)
	return router
}

func do(router *gin.Engine, method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(HeaderBaseURL, baseURL)
	for k, v := range headers {
		if v == "" {
			req.Header.Del(k)
			continue
		}
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func assertFailure(t *testing.T, w *httptest.ResponseRecorder, status int, body string) {
	t.Helper()
	assert.Equal(t, status, w.Code)
	assert.Equal(t, body, w.Body.String())
	assert.Equal(t, strconv.Itoa(len(body)), w.Header().Get("Content-Length"))
	assert.Equal(t, ContentTypeText, w.Header().Get("Content-Type"))
}

func TestTestRouteOK(t *testing.T) {
	router := newRouter(t, time.Second, config.SourceConfig{}, false)

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			w := do(router, method, "/cell1/box1/test/hello", "", nil)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "OK", w.Body.String())
			assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
		})
	}
}

func TestFailureResponses(t *testing.T) {
	router := newRouter(t, 50*time.Millisecond, config.SourceConfig{}, false)

	tests := []struct {
		name    string
		path    string
		headers map[string]string
		status  int
		body    string
	}{
		{
			name:   "illegal status",
			path:   "/cell1/box1/test/bad",
			status: http.StatusInternalServerError,
			body:   "Server Error : response status illegal type. status: 2000",
		},
		{
			name:   "timeout",
			path:   "/cell1/box1/test/loop",
			status: http.StatusServiceUnavailable,
			body:   "Script TimeOut",
		},
		{
			name:   "not found",
			path:   "/cell1/box1/test/missing",
			status: http.StatusNotFound,
			body:   "404 Not Found",
		},
		{
			name:   "script throws",
			path:   "/cell1/box1/test/throw",
			status: http.StatusInternalServerError,
			body:   "Server Error : boom",
		},
		{
			name:    "missing base url",
			path:    "/cell1/box1/test/hello",
			headers: map[string]string{HeaderBaseURL: ""},
			status:  http.StatusInternalServerError,
			body:    "Server Error : malformed base url",
		},
		{
			name:    "malformed base url",
			path:    "/cell1/box1/test/hello",
			headers: map[string]string{HeaderBaseURL: "::not a url"},
			status:  http.StatusInternalServerError,
			body:    "Server Error : malformed base url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodGet, tt.path, "", tt.headers)
			assertFailure(t, w, tt.status, tt.body)
		})
	}
}

func TestRequestIdentity(t *testing.T) {
	router := newRouter(t, time.Second, config.SourceConfig{}, false)

	tests := []struct {
		name      string
		pathBased string
		wantCell  string
	}{
		{name: "header absent", pathBased: "", wantCell: "https://unit.example/cell1/"},
		{name: "enabled", pathBased: "true", wantCell: "https://unit.example/cell1/"},
		{name: "disabled", pathBased: "false", wantCell: "https://cell1.unit.example/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodPost, "/cell1/box1/test/identity?x=1", "", map[string]string{
				HeaderRequestURI:         "/cell1/box1/col/svc/identity?a=b",
				HeaderBoxSchema:          "https://app.example/",
				HeaderPathBasedCellURL:   tt.pathBased,
				"X-Personium-RequestKey": "rk-1",
			})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var got map[string]string
			require.NoError(t, sonic.UnmarshalString(w.Body.String(), &got))
			assert.Equal(t, "POST", got["method"])
			assert.Equal(t, "https", got["scheme"])
			assert.Equal(t, "unit.example", got["host"])
			assert.Equal(t, "443", got["port"])
			assert.Equal(t, "/cell1/box1/col/svc/identity", got["scriptName"])
			assert.Equal(t, "a=b", got["queryString"])
			assert.Equal(t, "/cell1/box1/col/svc/identity?a=b", got["requestUri"])
			assert.Equal(t, tt.wantCell, got["cellUrl"])
			assert.Equal(t, "box1", got["boxName"])
			assert.Equal(t, "https://app.example/", got["boxSchema"])
			assert.Equal(t, source.TestSubject, got["subject"])
			assert.Equal(t, "rk-1", got["requestKey"])
		})
	}
}

func TestSystemRoute(t *testing.T) {
	router := newRouter(t, time.Second, config.SourceConfig{}, false)

	w := do(router, http.MethodPost, "/cell1/box1/system/ping", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got map[string]string
	require.NoError(t, sonic.UnmarshalString(w.Body.String(), &got))
	assert.Equal(t, "ok", got["status"])
	assert.Equal(t, source.SystemSubject, got["subject"])
	assert.Equal(t, "POST", got["method"])

	w = do(router, http.MethodPut, "/cell1/box1/system/echo", "ping pong", map[string]string{"Content-Type": "text/plain"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ping pong", w.Body.String())

	assertFailure(t, do(router, http.MethodGet, "/cell1/box1/system/nothing", "", nil), http.StatusNotFound, "404 Not Found")
}

func writeMeta(t *testing.T, dir string, m source.Metadata) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data, err := sonic.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, source.MetaFile), data, 0o644))
}

func TestServiceRoute(t *testing.T) {
	root := t.TempDir()
	col := filepath.Join(root, "cell1", "box1", "svc")
	writeMeta(t, col, source.Metadata{ID: "col", Type: "col.svc", Props: map[string]string{
		source.RoutingProperty: `<service language="JavaScript" subject="svcsubject"><path name="items/{id}" src="item.js"/></service>`,
	}})
	script := filepath.Join(col, source.SourceDir, "item.js")
	writeMeta(t, script, source.Metadata{ID: "f1", Type: "dav.file"})
	require.NoError(t, os.WriteFile(filepath.Join(script, source.ContentFile), []byte(`function(request) {
  return _p.jsgi.text(201, _p.context.serviceSubject + " " + request.method);
}`), 0o644))

	router := newRouter(t, time.Second, config.SourceConfig{FsRoot: root}, false)

	w := do(router, http.MethodPost, "/cell1/box1/service/items/42", "", map[string]string{
		HeaderFsPath:      "cell1/box1/svc",
		HeaderFsRoutingID: "routing",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "svcsubject POST", w.Body.String())

	w = do(router, http.MethodGet, "/cell1/box1/service/unknown", "", map[string]string{HeaderFsPath: col})
	assertFailure(t, w, http.StatusNotFound, "404 Not Found")

	w = do(router, http.MethodGet, "/cell1/box1/service/items/1", "", map[string]string{HeaderFsPath: "cell1/nothing"})
	assertFailure(t, w, http.StatusNotFound, "404 Not Found")

	w = do(router, http.MethodGet, "/cell1/box1/service/items/1", "", map[string]string{HeaderFsPath: "/etc"})
	assertFailure(t, w, http.StatusInternalServerError, "Server Error : service collection unavailable")
}

func TestServiceRouteHidesSourceFailures(t *testing.T) {
	root := t.TempDir()
	col := filepath.Join(root, "cell1", "box1", "svc")
	writeMeta(t, col, source.Metadata{ID: "col", Type: "col.svc", Props: map[string]string{
		source.RoutingProperty: `<service language="JavaScript" subject="svcsubject"><path name="big" src="big.js"/></service>`,
	}})
	script := filepath.Join(col, source.SourceDir, "big.js")
	writeMeta(t, script, source.Metadata{ID: "f1", Type: "dav.file"})
	require.NoError(t, os.WriteFile(filepath.Join(script, source.ContentFile),
		[]byte(`function(request) { return _p.jsgi.text(200, "` + strings.Repeat("x", 64) + `"); }`), 0o644))

	router := newRouter(t, time.Second, config.SourceConfig{FsRoot: root, MaxBytes: 16}, false)

	w := do(router, http.MethodGet, "/cell1/box1/service/big", "", map[string]string{HeaderFsPath: "cell1/box1/svc"})
	assertFailure(t, w, http.StatusInternalServerError, "Server Error : "+engine.InternalMessage)
	assert.NotContains(t, w.Body.String(), root)
	assert.NotContains(t, w.Body.String(), "big.js")
}

func TestDebugRoute(t *testing.T) {
	router := newRouter(t, time.Second, config.SourceConfig{}, false)
	w := do(router, http.MethodGet, "/debug/hello", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	router = newRouter(t, time.Second, config.SourceConfig{}, true)
	w = do(router, http.MethodGet, "/debug/identity", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got map[string]string
	require.NoError(t, sonic.UnmarshalString(w.Body.String(), &got))
	assert.Equal(t, "https://unit.example/"+DebugCell+"/", got["cellUrl"])
	assert.Equal(t, DebugBox, got["boxName"])
}

func TestHealth(t *testing.T) {
	router := newRouter(t, time.Second, config.SourceConfig{}, false)
	do(router, http.MethodGet, "/cell1/box1/test/hello", "", nil)

	w := do(router, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		Status     string         `json:"status"`
		Cache      map[string]int `json:"cache"`
		Extensions int            `json:"extensions"`
	}
	require.NoError(t, sonic.UnmarshalString(w.Body.String(), &got))
	assert.Equal(t, "healthy", got.Status)
	assert.Equal(t, len(engine.Libraries), got.Cache["library"])
	assert.Equal(t, 1, got.Cache["user"])
	assert.Equal(t, 2, got.Extensions)
}

func TestRequestHelpers(t *testing.T) {
	assert.True(t, pathBased(""))
	assert.True(t, pathBased(" TRUE "))
	assert.False(t, pathBased("false"))
	assert.False(t, pathBased("yes"))

	assert.Equal(t, "tok", bearer("Bearer tok"))
	assert.Equal(t, "tok", bearer("bearer  tok"))
	assert.Empty(t, bearer("Basic abc"))
	assert.Empty(t, bearer(""))
}
