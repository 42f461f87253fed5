package bridge

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/personium/personium-engine/internal/infrastructure/tracing"
	"github.com/personium/personium-engine/internal/providers/sandbox"
)

// Qualified names of the accessor host objects.
const (
	AccessorType = sandbox.AdapterPrefix + "Accessor"
	CellType     = sandbox.ClientPrefix + "Cell"
	BoxType      = sandbox.ClientPrefix + "Box"
	ServiceType  = sandbox.ClientPrefix + "Service"
)

// StatusError is an unexpected response status from the unit.
type StatusError struct {
	Method string
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d", e.Method, e.URL, e.Status)
}

// Accessor performs calls with one token.
type Accessor struct {
	dao   *Dao
	token string
}

func (a *Accessor) QualifiedName() string { return AccessorType }

func (a *Accessor) Methods() map[string]sandbox.Method {
	return map[string]sandbox.Method{
		"cell": func(c sandbox.Call) (any, error) {
			target := c.String(0, "")
			if target == "" {
				target = a.dao.meta.CellURL()
			}
			u, err := url.Parse(target)
			if err != nil || !u.IsAbs() {
				return nil, fmt.Errorf("invalid cell url %q", target)
			}
			return &Cell{acc: a, url: withSlash(target)}, nil
		},
	}
}

func (a *Accessor) do(method, target, body, contentType string, stream bool) (*resty.Response, error) {
	headers := make(map[string]string, len(a.dao.meta.DefaultHeaders)+4)
	for k, v := range a.dao.meta.DefaultHeaders {
		headers[k] = v
	}
	if a.token != "" {
		headers["Authorization"] = "Bearer " + a.token
	}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	if a.dao.meta.PersoniumVersion != "" {
		headers["X-Personium-Version"] = a.dao.meta.PersoniumVersion
	}
	tracing.Inject(a.dao.ctx, headers)

	resp, err := a.dao.client.Do(a.dao.ctx, Request{
		Method:  method,
		URL:     target,
		Headers: headers,
		Body:    body,
		Stream:  stream,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() >= 300 {
		if stream && resp.RawBody() != nil {
			resp.RawBody().Close()
		}
		return nil, &StatusError{Method: method, URL: target, Status: resp.StatusCode()}
	}
	return resp, nil
}

// Cell is a cell seen through an accessor.
type Cell struct {
	acc *Accessor
	url string
}

func (c *Cell) QualifiedName() string { return CellType }

func (c *Cell) Methods() map[string]sandbox.Method {
	return map[string]sandbox.Method{
		"getUrl": func(sandbox.Call) (any, error) { return c.url, nil },
		"box": func(call sandbox.Call) (any, error) {
			name := call.String(0, "")
			if name == "" {
				name = c.acc.dao.meta.Box
			}
			if name == "" || strings.Contains(name, "/") {
				return nil, fmt.Errorf("invalid box name %q", name)
			}
			return &Box{acc: c.acc, name: name, url: c.url + url.PathEscape(name) + "/"}, nil
		},
	}
}

// Box is a box seen through an accessor.
type Box struct {
	acc  *Accessor
	name string
	url  string
}

func (b *Box) QualifiedName() string { return BoxType }

func (b *Box) Methods() map[string]sandbox.Method {
	return map[string]sandbox.Method{
		"getUrl":  func(sandbox.Call) (any, error) { return b.url, nil },
		"getName": func(sandbox.Call) (any, error) { return b.name, nil },
		"getString": func(c sandbox.Call) (any, error) {
			resp, err := b.acc.do(http.MethodGet, b.resource(c.String(0, "")), "", "", false)
			if err != nil {
				return nil, err
			}
			return decode(resp.Body(), c.String(1, "utf-8"))
		},
		"getStream": func(c sandbox.Call) (any, error) {
			resp, err := b.acc.do(http.MethodGet, b.resource(c.String(0, "")), "", "", true)
			if err != nil {
				return nil, err
			}
			return sandbox.NewInputStream(resp.RawBody()), nil
		},
		"put": func(c sandbox.Call) (any, error) {
			resp, err := b.acc.do(http.MethodPut, b.resource(c.String(0, "")), c.String(1, ""), c.String(2, "text/plain"), false)
			if err != nil {
				return nil, err
			}
			return resp.Header().Get("ETag"), nil
		},
		"del": func(c sandbox.Call) (any, error) {
			_, err := b.acc.do(http.MethodDelete, b.resource(c.String(0, "")), "", "", false)
			return nil, err
		},
		"service": func(c sandbox.Call) (any, error) {
			col := strings.Trim(c.String(0, ""), "/")
			if col == "" {
				return nil, fmt.Errorf("service collection is required")
			}
			return &Service{acc: b.acc, url: b.resource(col) + "/"}, nil
		},
	}
}

func (b *Box) resource(path string) string {
	return b.url + escapePath(strings.TrimPrefix(path, "/"))
}

// Service is a service collection seen through an accessor.
type Service struct {
	acc *Accessor
	url string
}

func (s *Service) QualifiedName() string { return ServiceType }

func (s *Service) Methods() map[string]sandbox.Method {
	call := func(c sandbox.Call, stream bool) (*resty.Response, error) {
		method := strings.ToUpper(c.String(0, http.MethodGet))
		switch method {
		case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		default:
			return nil, fmt.Errorf("unsupported method %q", method)
		}
		target := s.url + escapePath(strings.TrimPrefix(c.String(1, ""), "/"))
		return s.acc.do(method, target, c.String(2, ""), c.String(3, ""), stream)
	}
	return map[string]sandbox.Method{
		"getUrl": func(sandbox.Call) (any, error) { return s.url, nil },
		"call": func(c sandbox.Call) (any, error) {
			resp, err := call(c, false)
			if err != nil {
				return nil, err
			}
			return resp.String(), nil
		},
		"callStream": func(c sandbox.Call) (any, error) {
			resp, err := call(c, true)
			if err != nil {
				return nil, err
			}
			return sandbox.NewInputStream(resp.RawBody()), nil
		},
	}
}

func decode(body []byte, label string) (string, error) {
	r, err := sandbox.DecodeReader(bytes.NewReader(body), label)
	if err != nil {
		return "", err
	}
	text, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(text), nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func withSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
