package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/GriffinCanCode/sitepack/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/sitepack/internal/infrastructure/resilience"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ClientConfig tunes the outbound HTTP client.
type ClientConfig struct {
	Timeout           time.Duration
	Retries           int
	RequestsPerSecond float64 // 0 means unlimited
	UserAgent         string
}

// Response is a fully read page or asset.
type Response struct {
	URL         *url.URL
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client wraps resty over a transport that rate limits, trips per-host
// circuit breakers and retries transient failures. The same transport backs
// the recursive collector.
type Client struct {
	resty     *resty.Client
	transport *guardedTransport
	metrics   *monitoring.Metrics
}

// NewClient creates the fetch client. metrics may be nil.
func NewClient(cfg ClientConfig, logger *zap.Logger, metrics *monitoring.Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = 250 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = leveledLogger{logger.Named("retry").Sugar()}
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	breakers := resilience.NewGroup(resilience.Settings{
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("host", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
			if metrics != nil {
				metrics.RecordBreakerTransition(to.String())
			}
		},
	})

	transport := &guardedTransport{
		next:     retryClient.StandardClient().Transport,
		limiter:  limiter,
		breakers: breakers,
	}

	restyClient := resty.NewWithClient(&http.Client{Transport: transport}).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0)
	if cfg.UserAgent != "" {
		restyClient.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Client{
		resty:     restyClient,
		transport: transport,
		metrics:   metrics,
	}
}

// Transport returns the guarded, retrying round tripper.
func (c *Client) Transport() http.RoundTripper {
	return c.transport
}

// Breaker returns the circuit breaker guarding host.
func (c *Client) Breaker(host string) *resilience.Breaker {
	return c.transport.breakers.Get(host)
}

// Get fetches rawURL and reads the whole body. Non-2xx statuses are errors.
// userAgent overrides the client default when non-empty.
func (c *Client) Get(ctx context.Context, rawURL, userAgent string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", rawURL, err)
	}

	req := c.resty.R().SetContext(ctx)
	if userAgent != "" {
		req.SetHeader("User-Agent", userAgent)
	}

	resp, err := req.Get(u.String())
	if err != nil {
		c.record("error")
		return nil, fmt.Errorf("get %s: %w", u, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		c.record("error")
		return nil, &StatusError{URL: u.String(), Code: resp.StatusCode()}
	}

	c.record("ok")
	return &Response{
		URL:         u,
		StatusCode:  resp.StatusCode(),
		ContentType: resp.Header().Get("Content-Type"),
		Body:        resp.Body(),
	}, nil
}

func (c *Client) record(result string) {
	if c.metrics != nil {
		c.metrics.RecordFetch(PolicySelectors, result)
	}
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

var errServerStatus = errors.New("server error status")

// guardedTransport applies the rate limit and per-host breaker around the
// retrying transport.
type guardedTransport struct {
	next     http.RoundTripper
	limiter  *rate.Limiter
	breakers *resilience.Group
}

func (t *guardedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var resp *http.Response
	err := t.breakers.Execute(req.URL.Host, func() error {
		var err error
		resp, err = t.next.RoundTrip(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return errServerStatus
		}
		return nil
	})

	switch {
	case errors.Is(err, errServerStatus):
		// Counted against the breaker; the caller still sees the response
		return resp, nil
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return nil, fmt.Errorf("%s unavailable: %w", req.URL.Host, err)
	case err != nil:
		return nil, err
	}
	return resp, nil
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
