package http

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/personium/personium-engine/internal/domain/jsgi"
	"github.com/personium/personium-engine/internal/infrastructure/tracing"
	"github.com/personium/personium-engine/internal/shared/id"
	"github.com/personium/personium-engine/internal/shared/types"
)

// Headers set by the unit when it relays a service call.
const (
	HeaderBaseURL          = "X-Baseurl"
	HeaderRequestURI       = "X-Request-Uri"
	HeaderAuthorization    = "Authorization"
	HeaderVersion          = "X-Personium-Version"
	HeaderBoxSchema        = "X-Personium-Box-Schema"
	HeaderFsPath           = "X-Personium-Fs-Path"
	HeaderFsRoutingID      = "X-Personium-Fs-Routing-Id"
	HeaderPathBasedCellURL = "X-Personium-Path-Based-Cell-Url-Enabled"
)

// ForwardedHeaders are copied from the inbound request onto every call the
// script makes back into the unit.
var ForwardedHeaders = []string{
	"X-Personium-RequestKey",
	"X-Personium-EventId",
	"X-Personium-RuleChain",
	"X-Personium-Via",
}

// EnvRequestURI is the jsgi env key carrying the original request URI.
const EnvRequestURI = "requestUri"

// target is the parsed addressing information of one inbound call.
type target struct {
	base       *url.URL
	requestURI string
	scriptName string
	query      string
}

// parseTarget reads the base URL and the original request URI. A missing
// or malformed base URL is an error.
func parseTarget(c *gin.Context) (*target, error) {
	raw := c.GetHeader(HeaderBaseURL)
	base, err := url.Parse(raw)
	if err != nil || raw == "" || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("malformed base url %q", raw)
	}

	requestURI := c.GetHeader(HeaderRequestURI)
	if requestURI == "" {
		requestURI = c.Request.URL.RequestURI()
	}
	t := &target{base: base, requestURI: requestURI, scriptName: requestURI}
	if i := strings.IndexByte(requestURI, '?'); i >= 0 {
		t.scriptName, t.query = requestURI[:i], requestURI[i+1:]
	}
	return t, nil
}

// baseURL returns the unit URL with a trailing slash.
func (t *target) baseURL() string {
	u := *t.base
	u.RawQuery, u.Fragment = "", ""
	s := u.String()
	if !strings.HasSuffix(s, "/") {
		s += "/"
	}
	return s
}

func (t *target) port() string {
	if p := t.base.Port(); p != "" {
		return p
	}
	if t.base.Scheme == "https" {
		return "443"
	}
	return "80"
}

// jsgiRequest describes the call as the script sees it: scheme, host and
// port come from the base URL, not from the relay connection.
func (t *target) jsgiRequest(c *gin.Context) jsgi.Request {
	req := jsgi.FromHTTP(c.Request, t.scriptName, "")
	req.Scheme = t.base.Scheme
	req.Host = t.base.Hostname()
	req.Port = t.port()
	req.QueryString = t.query
	req.Env[EnvRequestURI] = t.requestURI
	return req
}

// requestMeta builds the identity of the call from the route and headers.
func (t *target) requestMeta(c *gin.Context, kind types.ServiceKind, cell, box, service string) types.RequestMeta {
	rid := tracing.RequestID(c.Request.Context())
	if rid == "" {
		rid = id.NewRequestID()
	}

	defaults := map[string]string{"Connection": "close"}
	for _, h := range ForwardedHeaders {
		if v := c.GetHeader(h); v != "" {
			defaults[h] = v
		}
	}

	return types.RequestMeta{
		RequestID:        rid.String(),
		Kind:             kind,
		Cell:             cell,
		Box:              box,
		BoxSchema:        c.GetHeader(HeaderBoxSchema),
		Service:          service,
		BaseURL:          t.baseURL(),
		PathBasedCellURL: pathBased(c.GetHeader(HeaderPathBasedCellURL)),
		RequestURI:       t.requestURI,
		Token:            bearer(c.GetHeader(HeaderAuthorization)),
		PersoniumVersion: c.GetHeader(HeaderVersion),
		DefaultHeaders:   defaults,
	}
}

// pathBased treats an absent or empty header as enabled.
func pathBased(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, "true")
}

func bearer(v string) string {
	const scheme = "bearer "
	if len(v) > len(scheme) && strings.EqualFold(v[:len(scheme)], scheme) {
		return strings.TrimSpace(v[len(scheme):])
	}
	return ""
}

// serviceName strips the leading slash gin leaves on a catch-all param.
func serviceName(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("name"), "/")
}
