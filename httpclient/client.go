// Package httpclient is C1's HttpClient: a bounded, TLS-hardened HTTP
// client shared by every ProviderAdapter, composing per-request deadlines
// from the caller's deadline and the adapter's own configured timeout.
//
// Grounded on internal/tlsutil.SecureHTTPClient/SecureTransport, reused
// directly rather than reimplemented — the teacher's transport hardening
// (TLS1.2+, AEAD-only suites, HTTP/2, bounded idle pool) applies unchanged
// to the gateway's outbound calls.
package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/BaSui01/agentflow/internal/tlsutil"
	"github.com/BaSui01/agentflow/llm/retry"
	"go.uber.org/zap"
)

// HardCap is the spec §5 "5 min hard cap" on any upstream request deadline.
const HardCap = 5 * time.Minute

// Client wraps *http.Client with per-host connection limits and deadline
// composition.
type Client struct {
	http    *http.Client
	retryer retry.Retryer
}

// New builds a Client whose transport enforces maxConnsPerHost (spec §5:
// "HttpClient maintains a bounded per-host connection pool; pool
// exhaustion causes admission to surface Throttle rather than block
// indefinitely" — the bound itself lives here; the Throttle surfacing is
// the adapter's responsibility when Do returns a pool-exhaustion error).
func New(maxConnsPerHost int) *Client {
	transport := tlsutil.SecureTransport()
	if maxConnsPerHost > 0 {
		transport.MaxConnsPerHost = maxConnsPerHost
	}
	return &Client{http: &http.Client{Transport: transport}}
}

// Deadline composes the effective deadline for one upstream call: the
// minimum of the caller's context deadline, the adapter's configured
// timeout, and HardCap (spec §4.2, §5).
func Deadline(ctx context.Context, adapterTimeout time.Duration) (context.Context, context.CancelFunc) {
	d := HardCap
	if adapterTimeout > 0 && adapterTimeout < d {
		d = adapterTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < d {
			d = remaining
		}
	}
	return context.WithTimeout(ctx, d)
}

// WithRetry enables a bounded exponential-backoff retry (llm/retry's
// BackoffRetryer, the same implementation used elsewhere for transient
// upstream failures) for dial/TLS/connection-level errors — never for
// HTTP 4xx/5xx responses, which callers classify themselves via
// providers.MapHTTPErrorGW. Returns c for chaining at construction time.
func (c *Client) WithRetry(policy *retry.RetryPolicy, logger *zap.Logger) *Client {
	c.retryer = retry.NewBackoffRetryer(policy, logger)
	return c
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

// DoWithRetry retries transient network errors by rebuilding the request
// via build on every attempt, since a request body already sent over the
// wire cannot be replayed on the same *http.Request. A no-op single
// attempt if WithRetry was never called. Only safe for requests the
// caller knows were never partially consumed by the peer (i.e. not
// streaming responses already being relayed to a caller).
func (c *Client) DoWithRetry(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	if c.retryer == nil {
		req, err := build()
		if err != nil {
			return nil, err
		}
		return c.http.Do(req)
	}
	result, err := c.retryer.DoWithResult(ctx, func() (any, error) {
		req, berr := build()
		if berr != nil {
			return nil, berr
		}
		return c.http.Do(req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}

// Raw exposes the underlying *http.Client for adapters/SDKs that require
// one directly (e.g. constructing an SDK client around the same pooled
// transport).
func (c *Client) Raw() *http.Client { return c.http }
