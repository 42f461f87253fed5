package types

import (
	"net/url"
	"strings"
)

// ServiceKind distinguishes the inbound route families.
type ServiceKind string

const (
	KindService ServiceKind = "service"
	KindSystem  ServiceKind = "system"
	KindTest    ServiceKind = "test"
	KindDebug   ServiceKind = "debug"
)

// RequestMeta is the identity of one service invocation.
type RequestMeta struct {
	RequestID string
	Kind      ServiceKind

	Cell      string
	Box       string
	BoxSchema string
	Service   string

	// BaseURL is the unit URL with a trailing slash.
	BaseURL string
	// PathBasedCellURL selects https://unit/cell/ over https://cell.unit/.
	PathBasedCellURL bool
	RequestURI       string

	// Token is the caller's bearer token, without the scheme.
	Token            string
	PersoniumVersion string
	// Subject is the service subject from the routing document.
	Subject string

	// DefaultHeaders are forwarded on every call the script makes back
	// into the unit.
	DefaultHeaders map[string]string
}

// CellURL returns the URL of the request's cell.
func (m RequestMeta) CellURL() string {
	base := m.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if m.PathBasedCellURL {
		return base + m.Cell + "/"
	}
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return base + m.Cell + "/"
	}
	u.Host = m.Cell + "." + u.Host
	return u.String()
}

// BoxURL returns the URL of the request's box.
func (m RequestMeta) BoxURL() string {
	return m.CellURL() + m.Box + "/"
}
