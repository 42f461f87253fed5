package bridge

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/personium/personium-engine/internal/domain/engine"
	"github.com/personium/personium-engine/internal/infrastructure/logging"
	"github.com/personium/personium-engine/internal/providers/sandbox"
	"github.com/personium/personium-engine/internal/shared/types"
)

// ErrTokenRequired is thrown by withToken without a token.
var ErrTokenRequired = errors.New("token is required")

// Dao is the pjvm host object of one request.
type Dao struct {
	ctx    context.Context
	meta   types.RequestMeta
	client *Client
	signer *Signer
	log    *logging.Logger
}

// NewFactory returns the engine host factory backed by client and signer.
func NewFactory(client *Client, signer *Signer) engine.HostFactory {
	return func(ctx context.Context, meta types.RequestMeta, log *logging.Logger) (sandbox.HostObject, error) {
		if signer == nil {
			return nil, errors.New("no token signer configured")
		}
		return &Dao{ctx: ctx, meta: meta, client: client, signer: signer, log: log.Named("bridge")}, nil
	}
}

func (d *Dao) QualifiedName() string { return engine.HostObjectName }

func (d *Dao) Methods() map[string]sandbox.Method {
	m := engine.IdentityMethods(d.meta)
	m["asServiceSubject"] = func(sandbox.Call) (any, error) {
		cell := d.meta.CellURL()
		token, err := d.signer.Issue(cell, cell+"#"+d.meta.Subject)
		if err != nil {
			return nil, err
		}
		d.log.Debug("issued service subject token", zap.String("subject", d.meta.Subject))
		return d.accessor(token), nil
	}
	m["withClientToken"] = func(sandbox.Call) (any, error) {
		return d.accessor(d.meta.Token), nil
	}
	m["withToken"] = func(c sandbox.Call) (any, error) {
		token := c.String(0, "")
		if token == "" {
			return nil, ErrTokenRequired
		}
		return d.accessor(token), nil
	}
	return m
}

func (d *Dao) accessor(token string) *Accessor {
	return &Accessor{dao: d, token: token}
}
