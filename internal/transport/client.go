package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/yndnr/meshsync/internal/core/domain"
	"github.com/yndnr/meshsync/internal/telemetry/logger"
)

// Observer receives per-request measurements. metric.Registry satisfies it.
type Observer interface {
	ObserveHealth(ok bool)
	ObserveRemote(collection, method string, code int)
}

type nopObserver struct{}

func (nopObserver) ObserveHealth(bool)                 {}
func (nopObserver) ObserveRemote(string, string, int) {}

// Client is the backend client. It is safe for concurrent use.
type Client struct {
	cfg Config

	mu        sync.RWMutex
	endpoints []string

	health  *http.Client
	http    *retryablehttp.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	obs     Observer

	// sleep waits between health attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.obs = o
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client for both health checks
// and remote calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.health = hc
		c.http.HTTPClient = hc
	}
}

// WithTLSConfig sets the TLS settings of the default transports, e.g. a
// private CA for a self-hosted backend. It applies to whichever
// *http.Transport the clients hold when the option runs.
func WithTLSConfig(tc *tls.Config) Option {
	return func(c *Client) {
		for _, hc := range []*http.Client{c.health, c.http.HTTPClient} {
			if t, ok := hc.Transport.(*http.Transport); ok {
				t.TLSClientConfig = tc
			}
		}
	}
}

// New creates a backend client.
func New(cfg Config, log *slog.Logger, opts ...Option) *Client {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.Logger = newHCLogger(log)
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		cfg:       cfg,
		endpoints: normalizeEndpoints(cfg.Endpoints),
		health:    cleanhttp.DefaultPooledClient(),
		http:      rc,
		limiter:   rate.NewLimiter(limit, burst),
		logger:    log,
		obs:       nopObserver{},
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetEndpoints replaces the candidate list, e.g. after a config reload.
func (c *Client) SetEndpoints(endpoints []string) {
	eps := normalizeEndpoints(endpoints)
	c.mu.Lock()
	c.endpoints = eps
	c.mu.Unlock()
	c.logger.Info("backend endpoints updated", "count", len(eps))
}

// Endpoints returns a copy of the candidate list.
func (c *Client) Endpoints() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.endpoints...)
}

// do selects an endpoint and performs one remote call. out may be nil.
func (c *Client) do(ctx context.Context, method, collection, path string, query url.Values, body, out any) error {
	base, err := c.SelectEndpoint(ctx, c.Endpoints())
	if err != nil {
		return err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return contextErr(ctx, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}

	target := base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody any
	if payload != nil {
		reqBody = payload
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.addHeaders(req.Request, payload != nil)
	opID := logger.OperationIDFromContext(ctx)
	if opID != "" {
		req.Header.Set("X-Request-Id", opID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.obs.ObserveRemote(collection, method, 0)
		if cerr := ctx.Err(); cerr != nil {
			return contextErr(ctx, cerr)
		}
		return domain.ErrNetworkUnavailable.WithCause(err)
	}
	c.obs.ObserveRemote(collection, method, resp.StatusCode)
	c.logger.Debug("remote call", "method", method, "collection", collection,
		"status", resp.StatusCode, "operation_id", opID)
	return parseResponse(resp, out)
}

func (c *Client) addHeaders(req *http.Request, hasBody bool) {
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
}

// parseResponse decodes a JSON body into target, mapping error statuses onto
// the domain taxonomy.
func parseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Code    any    `json:"code"`
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		detail := fmt.Sprintf("status %d", resp.StatusCode)
		if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Message != "" {
			detail = fmt.Sprintf("status %d: %s", resp.StatusCode, errResp.Message)
		}

		switch resp.StatusCode {
		case http.StatusNotFound:
			return domain.ErrRecordNotFound.WithDetails(detail)
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.ErrUnauthorized.WithDetails(detail)
		default:
			return domain.ErrRemote.WithDetails(detail)
		}
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return domain.ErrRemote.WithDetails("malformed response").WithCause(err)
		}
	}
	return nil
}

// contextErr maps a context failure to the domain timeout error, or returns
// the cancellation as is.
func contextErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.ErrOperationTimeout.WithCause(err)
	}
	return err
}

func normalizeEndpoints(in []string) []string {
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, "http://") && !strings.HasPrefix(e, "https://") {
			e = "https://" + e
		}
		out = append(out, strings.TrimRight(e, "/"))
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

