package jsgi

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dop251/goja"

	"github.com/personium/personium-engine/internal/providers/sandbox"
)

// Version is the JSGI version advertised to scripts.
var Version = []any{0, 3}

// Request is the host-side description of an inbound call.
type Request struct {
	Method      string
	Scheme      string
	Host        string
	Port        string
	ScriptName  string
	PathInfo    string
	QueryString string
	Headers     http.Header
	Body        io.Reader
	Env         map[string]string
}

// FromHTTP fills a Request from r. scriptName is the mount point of the
// service and pathInfo the remainder.
func FromHTTP(r *http.Request, scriptName, pathInfo string) Request {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	host, port := r.Host, ""
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
		host, port = host[:i], host[i+1:]
	}
	if port == "" {
		port = "80"
		if scheme == "https" {
			port = "443"
		}
	}
	return Request{
		Method:      r.Method,
		Scheme:      scheme,
		Host:        host,
		Port:        port,
		ScriptName:  scriptName,
		PathInfo:    pathInfo,
		QueryString: r.URL.RawQuery,
		Headers:     r.Header,
		Body:        r.Body,
		Env:         map[string]string{},
	}
}

// Value builds the script-visible request object.
func (req Request) Value(b *sandbox.Boundary) (goja.Value, error) {
	vm := b.Runtime()
	obj := vm.NewObject()

	set := func(name string, v any) error {
		wrapped, err := b.Wrap(v)
		if err != nil {
			return err
		}
		return obj.Set(name, wrapped)
	}

	headers := vm.NewObject()
	for k, vs := range req.Headers {
		if err := headers.Set(strings.ToLower(k), strings.Join(vs, ", ")); err != nil {
			return nil, err
		}
	}

	query := vm.NewObject()
	if values, err := url.ParseQuery(req.QueryString); err == nil {
		for k, vs := range values {
			if len(vs) > 0 {
				if err := query.Set(k, vs[0]); err != nil {
					return nil, err
				}
			}
		}
	}

	env := vm.NewObject()
	for k, v := range req.Env {
		if err := env.Set(k, v); err != nil {
			return nil, err
		}
	}

	jsgi := vm.NewObject()
	version, err := b.Wrap(Version)
	if err != nil {
		return nil, err
	}
	for k, v := range map[string]any{
		"version":      version,
		"multithread":  false,
		"multiprocess": true,
		"runOnce":      false,
	} {
		if err := jsgi.Set(k, v); err != nil {
			return nil, err
		}
	}

	fields := []struct {
		name string
		v    any
	}{
		{"method", req.Method},
		{"scheme", req.Scheme},
		{"host", req.Host},
		{"port", req.Port},
		{"scriptName", req.ScriptName},
		{"pathInfo", req.PathInfo},
		{"queryString", req.QueryString},
		{"headers", headers},
		{"query", query},
		{"env", env},
		{"jsgi", jsgi},
		{"input", sandbox.NewRequestBody(req.Body)},
	}
	for _, f := range fields {
		if err := set(f.name, f.v); err != nil {
			return nil, err
		}
	}
	return obj, nil
}
