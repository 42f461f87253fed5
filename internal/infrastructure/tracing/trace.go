package tracing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/personium/personium-engine/internal/shared/id"
)

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-Id"

// Span records one traced operation.
type Span struct {
	RequestID id.RequestID
	Name      string
	StartTime time.Time
	Duration  time.Duration
	Status    int
	Tags      map[string]string
	Err       error
}

// SetTag adds a tag to the span.
func (s *Span) SetTag(key, value string) {
	if s.Tags == nil {
		s.Tags = make(map[string]string)
	}
	s.Tags[key] = value
}

// Finish records the span duration.
func (s *Span) Finish() {
	s.Duration = time.Since(s.StartTime)
}

// Tracer collects finished spans.
type Tracer struct {
	service string
	logger  *zap.Logger
	spans   chan *Span
	wg      sync.WaitGroup
	once    sync.Once
}

// New creates a tracer and starts its collector.
func New(service string, logger *zap.Logger) *Tracer {
	t := &Tracer{
		service: service,
		logger:  logger,
		spans:   make(chan *Span, 1000),
	}
	t.wg.Add(1)
	go t.collect()
	return t
}

// StartSpan begins a span for the request ID found in ctx, creating one
// when ctx has none.
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	rid := RequestID(ctx)
	if rid == "" {
		rid = id.NewRequestID()
		ctx = WithRequestID(ctx, rid)
	}
	return &Span{RequestID: rid, Name: name, StartTime: time.Now()}, ctx
}

// Submit hands a finished span to the collector without blocking.
func (t *Tracer) Submit(span *Span) {
	select {
	case t.spans <- span:
	default:
		t.logger.Warn("span buffer full, dropping span",
			zap.String("request_id", span.RequestID.String()))
	}
}

// Close stops the collector after draining buffered spans.
func (t *Tracer) Close() {
	t.once.Do(func() {
		close(t.spans)
		t.wg.Wait()
	})
}

func (t *Tracer) collect() {
	defer t.wg.Done()
	for span := range t.spans {
		fields := []zap.Field{
			zap.String("request_id", span.RequestID.String()),
			zap.String("service", t.service),
			zap.String("operation", span.Name),
			zap.Int("status", span.Status),
			zap.Duration("duration", span.Duration),
		}
		for k, v := range span.Tags {
			fields = append(fields, zap.String(k, v))
		}
		if span.Err != nil {
			fields = append(fields, zap.Error(span.Err))
		}
		t.logger.Debug("span completed", fields...)
	}
}

type contextKey struct{}

// WithRequestID stores rid in ctx.
func WithRequestID(ctx context.Context, rid id.RequestID) context.Context {
	return context.WithValue(ctx, contextKey{}, rid)
}

// RequestID returns the request ID stored in ctx, or "".
func RequestID(ctx context.Context) id.RequestID {
	rid, _ := ctx.Value(contextKey{}).(id.RequestID)
	return rid
}

// Inject copies the request ID of ctx into outbound headers.
func Inject(ctx context.Context, headers map[string]string) {
	if rid := RequestID(ctx); rid != "" {
		headers[HeaderRequestID] = rid.String()
	}
}
