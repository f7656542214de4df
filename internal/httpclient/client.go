package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var ErrCircuitOpen = errors.New("upstream circuit open")

type BreakerConfig struct {
	Name        string
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

type ClientConfig struct {
	Timeout         time.Duration
	RetryMaxElapsed time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
	Breaker         BreakerConfig
}

// StatusError reports a 5xx that exhausted the retry budget.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string { return fmt.Sprintf("upstream status %d", e.Status) }

type Client struct {
	http *http.Client
	cb   *gobreaker.CircuitBreaker
	conf ClientConfig
	log  *zap.SugaredLogger
}

func NewClient(conf ClientConfig, log *zap.SugaredLogger) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if conf.IdleConnTimeout <= 0 {
		conf.IdleConnTimeout = 90 * time.Second
	}
	if conf.Breaker.MaxFailures == 0 {
		conf.Breaker.MaxFailures = 5
	}
	if conf.Breaker.Name == "" {
		conf.Breaker.Name = "api"
	}
	tr := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    conf.MaxIdleConns,
		IdleConnTimeout: conf.IdleConnTimeout,
	}
	st := gobreaker.Settings{
		Name:        conf.Breaker.Name,
		MaxRequests: 1,
		Interval:    conf.Breaker.Interval,
		Timeout:     conf.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= conf.Breaker.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Infow("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Client{
		http: &http.Client{Transport: tr, Timeout: conf.Timeout},
		cb:   gobreaker.NewCircuitBreaker(st),
		conf: conf,
		log:  log,
	}
}

// Do sends req once through the circuit breaker. Transport errors and 5xx
// responses count against the breaker; the response is still returned to
// the caller so it can read the body.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var resp *http.Response
	_, err := c.cb.Execute(func() (interface{}, error) {
		r, err := c.http.Do(req.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		resp = r
		if r.StatusCode >= 500 {
			return nil, &StatusError{Status: r.StatusCode}
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	var se *StatusError
	if errors.As(err, &se) {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// DoWithRetry runs a bodiless request with exponential backoff. Only use it
// for idempotent reads. ctx carries cancellation.
func (c *Client) DoWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var resp *http.Response
	attempt := 0
	operation := func() error {
		attempt++
		r, err := c.Do(ctx, req)
		if err != nil {
			if errors.Is(err, ErrCircuitOpen) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			c.log.Debugf("retrying %s %s after attempt %d: %v", req.Method, req.URL.Path, attempt, err)
			return err
		}
		if r.StatusCode >= 500 {
			_, _ = io.Copy(io.Discard, r.Body)
			r.Body.Close()
			c.log.Debugf("retrying %s %s after attempt %d: status %d", req.Method, req.URL.Path, attempt, r.StatusCode)
			return &StatusError{Status: r.StatusCode}
		}
		resp = r
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = c.conf.RetryMaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}
