package bridge

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/personium/personium-engine/internal/infrastructure/config"
	"github.com/personium/personium-engine/internal/infrastructure/monitoring"
	"github.com/personium/personium-engine/internal/infrastructure/resilience"
)

// Request is one outbound call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	// Stream leaves the response body unread; the caller must close
	// RawBody.
	Stream bool
}

// Client is the HTTP client shared by all accessors.
type Client struct {
	resty    *resty.Client
	limiter  *rate.Limiter
	breakers *resilience.Set
	metrics  *monitoring.Metrics
}

// NewClient creates a client. metrics may be nil.
func NewClient(cfg config.BridgeConfig, metrics *monitoring.Metrics) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil

	r := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", cfg.UserAgent)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		resty:    r,
		limiter:  limiter,
		breakers: resilience.NewSet(resilience.Settings{}),
		metrics:  metrics,
	}
}

// Do performs req. Responses of any status are returned; only transport
// failures, an open breaker or a cancelled context produce an error.
func (c *Client) Do(ctx context.Context, req Request) (*resty.Response, error) {
	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", req.URL)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	done, err := c.breakers.For(u.Host).Allow()
	if err != nil {
		c.record(req.Method, "rejected")
		return nil, fmt.Errorf("%s: %w", u.Host, err)
	}

	r := c.resty.R().
		SetContext(ctx).
		SetHeaders(req.Headers).
		SetDoNotParseResponse(req.Stream)
	if req.Body != "" {
		r.SetBody(req.Body)
	}
	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		done(false)
		c.record(req.Method, "error")
		return nil, err
	}
	done(resp.StatusCode() < 500)
	c.record(req.Method, strconv.Itoa(resp.StatusCode()))
	return resp, nil
}

// Breaker returns the breaker guarding host.
func (c *Client) Breaker(host string) *resilience.Breaker { return c.breakers.For(host) }

func (c *Client) record(method, status string) {
	if c.metrics != nil {
		c.metrics.RecordBridgeCall(method, status)
	}
}
