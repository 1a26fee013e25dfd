package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	"github.com/rs/dnscache"
	"github.com/rs/zerolog/log"
	circuit "github.com/rubyist/circuitbreaker"
)

var (
	// ErrScannerUnavailable is returned while the remote service is failing
	ErrScannerUnavailable = errors.New("remote scanner unavailable")
	// ErrScannerRejected is returned for client errors from the remote service
	ErrScannerRejected = errors.New("remote scanner rejected the request")
)

var (
	resolverOnce sync.Once
	resolver     *dnscache.Resolver
)

// sharedResolver returns a DNS cache refreshed every five minutes
func sharedResolver() *dnscache.Resolver {
	resolverOnce.Do(func() {
		resolver = &dnscache.Resolver{}
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				resolver.Refresh(true)
			}
		}()
	})
	return resolver
}

func newHTTPClient() *http.Client {
	r := sharedResolver()
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Timeout: 2 * time.Minute,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, err
				}
				ips, err := r.LookupHost(ctx, host)
				if err != nil {
					return nil, err
				}
				for _, ip := range ips {
					conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
					if err == nil {
						return conn, nil
					}
				}
				return nil, fmt.Errorf("failed to dial any resolved IP")
			},
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// remoteResponse is the body returned by the scanning service
type remoteResponse struct {
	Infected bool   `json:"infected"`
	Threat   string `json:"threat"`
}

// RemoteDetector submits content to an HTTP scanning service. Transient
// failures are retried with exponential backoff and repeated failures open a
// circuit breaker.
type RemoteDetector struct {
	endpoint   string
	token      string
	client     *http.Client
	breaker    *circuit.Breaker
	maxRetries int
	baseDelay  time.Duration
	userAgent  string
}

// RemoteOption configures a RemoteDetector
type RemoteOption func(*RemoteDetector)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(d *RemoteDetector) {
		d.client = c
	}
}

// WithMaxRetries sets the number of retries after the first attempt
func WithMaxRetries(n int) RemoteOption {
	return func(d *RemoteDetector) {
		if n >= 0 {
			d.maxRetries = n
		}
	}
}

// WithBaseDelay sets the first retry delay
func WithBaseDelay(delay time.Duration) RemoteOption {
	return func(d *RemoteDetector) {
		d.baseDelay = delay
	}
}

// WithTripThreshold sets how many consecutive failures open the breaker
func WithTripThreshold(n int64) RemoteOption {
	return func(d *RemoteDetector) {
		d.breaker = newBreaker(n)
	}
}

func newBreaker(threshold int64) *circuit.Breaker {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	return circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(threshold),
	})
}

// NewRemoteDetector creates a detector for the service at endpoint
func NewRemoteDetector(endpoint, token string, opts ...RemoteOption) *RemoteDetector {
	d := &RemoteDetector{
		endpoint:   endpoint,
		token:      token,
		maxRetries: 2,
		baseDelay:  500 * time.Millisecond,
		userAgent:  "jarhub-scanner/1.0",
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.client == nil {
		d.client = newHTTPClient()
	}
	if d.breaker == nil {
		d.breaker = newBreaker(5)
	}
	return d
}

// Name implements Detector
func (d *RemoteDetector) Name() string {
	return "remote"
}

// Detect implements Detector
func (d *RemoteDetector) Detect(ctx context.Context, content []byte) (string, error) {
	if !d.breaker.Ready() {
		return "", fmt.Errorf("circuit breaker open for %s: %w", d.host(), ErrScannerUnavailable)
	}

	var threat string
	err := d.breaker.Call(func() error {
		var callErr error
		threat, callErr = d.detectWithRetry(ctx, content)
		return callErr
	}, 0)
	if err != nil {
		return "", err
	}
	return threat, nil
}

func (d *RemoteDetector) detectWithRetry(ctx context.Context, content []byte) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.baseDelay
	b.MaxInterval = 10 * d.baseDelay

	var (
		threat   string
		finalErr error
		attempt  int
	)
	operation := func() error {
		attempt++
		t, err := d.post(ctx, content)
		switch {
		case err == nil:
			threat = t
			return nil
		case errors.Is(err, ErrScannerUnavailable) && ctx.Err() == nil:
			log.Warn().Err(err).Int("attempt", attempt).Str("host", d.host()).Msg("remote scan failed, retrying")
			return err
		default:
			finalErr = err
			return nil
		}
	}

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.maxRetries)), ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", err
	}
	if finalErr != nil {
		return "", finalErr
	}
	return threat, nil
}

func (d *RemoteDetector) post(ctx context.Context, content []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/java-archive")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", d.userAgent)
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrScannerUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: status %d", ErrScannerUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: status %d", ErrScannerRejected, resp.StatusCode)
	}

	var body remoteResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding scanner response: %w", err)
	}
	if !body.Infected {
		return "", nil
	}
	if body.Threat == "" {
		return "Remote.Unnamed", nil
	}
	return body.Threat, nil
}

func (d *RemoteDetector) host() string {
	parsed, err := url.Parse(d.endpoint)
	if err != nil || parsed.Host == "" {
		return d.endpoint
	}
	return parsed.Host
}

// State implements StateReporter
func (d *RemoteDetector) State() map[string]string {
	state := "closed"
	if d.breaker.Tripped() {
		state = "open"
	}
	return map[string]string{d.host(): state}
}
