package transport

import (
	"context"
	"net/http"

	"github.com/yndnr/meshsync/internal/core/domain"
)

// SelectEndpoint returns the first candidate that answers a health check.
// Each candidate gets up to HealthAttempts checks, each bounded by
// HealthTimeout, with HealthRetryDelay between them. Cancelling ctx aborts
// the search and returns the context's error.
func (c *Client) SelectEndpoint(ctx context.Context, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", domain.ErrNoEndpointReachable.WithDetails("no endpoints configured")
	}

	for _, base := range candidates {
		ok, err := c.probeCandidate(ctx, base)
		if err != nil {
			return "", contextErr(ctx, err)
		}
		if ok {
			return base, nil
		}
		c.logger.Debug("endpoint unreachable", "endpoint", base)
	}

	c.logger.Warn("no backend endpoint reachable", "candidates", len(candidates))
	return "", domain.ErrNoEndpointReachable
}

// probeCandidate runs the bounded attempts against one candidate. A non-nil
// error means ctx was cancelled.
func (c *Client) probeCandidate(ctx context.Context, base string) (bool, error) {
	for attempt := 0; attempt < c.cfg.HealthAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.cfg.HealthRetryDelay); err != nil {
				return false, err
			}
		}
		if c.checkHealth(ctx, base) {
			c.obs.ObserveHealth(true)
			return true, nil
		}
		c.obs.ObserveHealth(false)
		if err := ctx.Err(); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (c *Client) checkHealth(ctx context.Context, base string) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, base+c.cfg.HealthPath, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.health.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 400
}

// CheckNetworkConnectivity sends a single HEAD to ProbeURL. Any HTTP response
// counts as reachable.
func (c *Client) CheckNetworkConnectivity(ctx context.Context) bool {
	if c.cfg.ProbeURL == "" {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.cfg.ProbeURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.health.Do(req)
	if err != nil {
		c.logger.Debug("connectivity probe failed", "error", err)
		return false
	}
	resp.Body.Close()
	return true
}
