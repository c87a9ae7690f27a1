package http

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rescale/s3fetch/internal/cloud/storage"
	"github.com/rescale/s3fetch/internal/constants"
	"github.com/rescale/s3fetch/internal/logging"
	"github.com/rescale/s3fetch/internal/ratelimit"
)

// RetryObserver is told about every retry the fetcher schedules.
type RetryObserver interface {
	ObserveRetry(method string)
}

// Fetcher performs object requests with bounded retry on transport
// failure. HTTP responses of any status are returned to the caller
// unretried. It implements storage.Fetcher and is safe for concurrent use.
type Fetcher struct {
	client      *retryablehttp.Client
	maxAttempts int
}

var _ storage.Fetcher = (*Fetcher)(nil)

// FetcherOption configures a Fetcher.
type FetcherOption func(*retryablehttp.Client)

// WithLogger routes retry diagnostics to l.
func WithLogger(l *logging.Logger) FetcherOption {
	return func(c *retryablehttp.Client) {
		c.Logger = logging.NewRetryLogger(l)
	}
}

// WithRetryObserver reports each scheduled retry to o.
func WithRetryObserver(o RetryObserver) FetcherOption {
	return func(c *retryablehttp.Client) {
		c.RequestLogHook = func(_ retryablehttp.Logger, req *nethttp.Request, attempt int) {
			if attempt > 0 {
				o.ObserveRetry(req.Method)
			}
		}
	}
}

// WithRateLimit makes every attempt, retries included, wait for a token
// from l. A nil l leaves the fetcher unlimited.
func WithRateLimit(l *ratelimit.Limiter) FetcherOption {
	return func(c *retryablehttp.Client) {
		if l == nil {
			return
		}
		hc := *c.HTTPClient
		next := hc.Transport
		if next == nil {
			next = nethttp.DefaultTransport
		}
		hc.Transport = &limitedTransport{next: next, limiter: l}
		c.HTTPClient = &hc
	}
}

type limitedTransport struct {
	next    nethttp.RoundTripper
	limiter *ratelimit.Limiter
}

func (t *limitedTransport) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

type retryNotifyKey struct{}

// WithRetryNotify returns a context whose requests report each retry to fn.
// retry is 1 for the first re-send.
func WithRetryNotify(ctx context.Context, fn func(retry int)) context.Context {
	return context.WithValue(ctx, retryNotifyKey{}, fn)
}

func notifyFromContext(next retryablehttp.RequestLogHook) retryablehttp.RequestLogHook {
	return func(l retryablehttp.Logger, req *nethttp.Request, attempt int) {
		if next != nil {
			next(l, req, attempt)
		}
		if attempt == 0 {
			return
		}
		if fn, ok := req.Context().Value(retryNotifyKey{}).(func(int)); ok {
			fn(attempt)
		}
	}
}

// NewFetcher wraps httpClient. maxAttempts counts the first try; values
// below 1 mean constants.MaxAttempts. The wait after the n-th failed
// attempt (1-based) is n*step.
func NewFetcher(httpClient *nethttp.Client, maxAttempts int, step time.Duration, opts ...FetcherOption) *Fetcher {
	if maxAttempts < 1 {
		maxAttempts = constants.MaxAttempts
	}
	if httpClient == nil {
		httpClient = &nethttp.Client{Timeout: constants.HTTPRequestTimeout}
	}

	c := retryablehttp.NewClient()
	c.HTTPClient = httpClient
	c.Logger = nil
	c.RetryMax = maxAttempts - 1
	c.RetryWaitMin = step
	c.RetryWaitMax = time.Duration(maxAttempts) * step
	c.CheckRetry = retryTransportOnly
	c.Backoff = LinearBackoff(step)
	c.ErrorHandler = wrapTransportError

	for _, opt := range opts {
		opt(c)
	}
	c.RequestLogHook = notifyFromContext(c.RequestLogHook)

	return &Fetcher{client: c, maxAttempts: maxAttempts}
}

// MaxAttempts returns the total number of attempts per request.
func (f *Fetcher) MaxAttempts() int {
	return f.maxAttempts
}

// Do sends one request, retrying only when no HTTP response was received.
func (f *Fetcher) Do(ctx context.Context, method, rawURL string, header nethttp.Header) (*nethttp.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var fe *storage.FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, storage.NewTransportError(err, 1)
	}
	return resp, nil
}

// retryTransportOnly retries when the round trip itself failed. Any
// response, including 5xx, ends the loop.
func retryTransportOnly(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return err != nil, nil
}

// LinearBackoff waits (attemptNum+1)*step, attemptNum being the 0-based
// index of the attempt that just failed.
func LinearBackoff(step time.Duration) retryablehttp.Backoff {
	return func(_, _ time.Duration, attemptNum int, _ *nethttp.Response) time.Duration {
		return time.Duration(attemptNum+1) * step
	}
}

// wrapTransportError runs once every attempt has failed. The last
// transport error is kept as the cause. Do checks for cancellation first.
func wrapTransportError(resp *nethttp.Response, err error, numTries int) (*nethttp.Response, error) {
	if resp != nil {
		return resp, nil
	}
	if err == nil {
		err = errors.New("no response")
	}
	return nil, storage.NewTransportError(err, numTries)
}
