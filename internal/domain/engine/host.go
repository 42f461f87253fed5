package engine

import (
	"context"
	"errors"

	"github.com/personium/personium-engine/internal/infrastructure/logging"
	"github.com/personium/personium-engine/internal/providers/sandbox"
	"github.com/personium/personium-engine/internal/shared/types"
)

// ErrNoBridge is thrown by accessor methods of the fallback host object.
var ErrNoBridge = errors.New("unit access is not configured")

// HostObjectName is the qualified name of the pjvm host object.
const HostObjectName = sandbox.AdapterPrefix + "EngineDao"

// MetaHost is the fallback HostFactory. Its pjvm exposes the request
// identity and documents but cannot reach the unit.
func MetaHost(_ context.Context, meta types.RequestMeta, _ *logging.Logger) (sandbox.HostObject, error) {
	return &metaHost{meta: meta}, nil
}

type metaHost struct {
	meta types.RequestMeta
}

func (h *metaHost) QualifiedName() string { return HostObjectName }

func (h *metaHost) Methods() map[string]sandbox.Method {
	methods := IdentityMethods(h.meta)
	unavailable := func(sandbox.Call) (any, error) { return nil, ErrNoBridge }
	for _, name := range []string{"asServiceSubject", "withClientToken", "withToken"} {
		methods[name] = unavailable
	}
	return methods
}

// IdentityMethods returns the pjvm methods that only read the request
// identity. Host objects built elsewhere share them.
func IdentityMethods(meta types.RequestMeta) map[string]sandbox.Method {
	value := func(v string) sandbox.Method {
		return func(sandbox.Call) (any, error) { return v, nil }
	}
	return map[string]sandbox.Method{
		"getCellUrl":          value(meta.CellURL()),
		"getCellName":         value(meta.Cell),
		"getBoxName":          value(meta.Box),
		"getBoxUrl":           value(meta.BoxURL()),
		"getBoxSchema":        value(meta.BoxSchema),
		"getBaseUrl":          value(meta.BaseURL),
		"getRequestUri":       value(meta.RequestURI),
		"getServiceSubject":   value(meta.Subject),
		"getRequestKey":       value(meta.DefaultHeaders["X-Personium-RequestKey"]),
		"getPersoniumVersion": value(meta.PersoniumVersion),
		"newDocument": func(c sandbox.Call) (any, error) {
			return sandbox.ParseDocument(c.String(0, "{}"))
		},
	}
}
