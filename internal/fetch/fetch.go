// Package fetch retrieves web resources over HTTP.
package fetch

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sriharshay/web-resource-processor/internal/errors"
	"github.com/sriharshay/web-resource-processor/internal/scope"
)

// Every request carries a fixed mobile Safari identity. The referer is
// derived per request from the target's own URL root.
const (
	userAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 13_2_3 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/13.0.3 Mobile/15E148 Safari/604.1"
	secChUA   = `"Google Chrome";v="112", " Not;A Brand";v="99", "Chromium";v="112"`
)

// Config holds HTTP client configuration.
type Config struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	MaxBodyBytes        int64 // Cap on response bodies read into memory
	SkipTLSVerify       bool
}

// DefaultConfig returns tuned defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:             15 * time.Second,
		MaxIdleConns:        500,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     100,
		MaxBodyBytes:        5 * 1024 * 1024,
	}
}

// Client is an HTTP client tuned for fetching many small resources.
type Client struct {
	client  *http.Client
	config  Config
	mu      sync.RWMutex
	retrier *errors.Retrier
}

// NewClient creates a client from config.
func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.SkipTLSVerify,
		},
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		config:  config,
		retrier: errors.NewRetrier(errors.DefaultRetryConfig()),
	}
}

// Response is the outcome of a completed HTTP exchange.
type Response struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Headers     http.Header // Populated only for 200 responses
	Body        []byte      // Populated only when the body was requested
	Duration    time.Duration
}

// Header returns the first value of the named response header. Lookup is
// case-insensitive, so callers may spell the name however they like.
func (r *Response) Header(name string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get(name)
}

// Get fetches targetURL. Any status other than 200 is reported as an
// error; the response still carries the status code and final URL. The
// body is read (up to MaxBodyBytes) only when readBody is set.
func (c *Client) Get(ctx context.Context, targetURL string, readBody bool) (*Response, error) {
	start := time.Now()
	result := &Response{URL: targetURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return result, errors.NewMalformedURL(targetURL)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("sec-ch-ua", secChUA)
	req.Header.Set("Referer", scope.URLRoot(targetURL))

	resp, err := c.client.Do(req)
	if err != nil {
		result.Duration = time.Since(start)
		return result, errors.Categorize(err, targetURL)
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.FinalURL = resp.Request.URL.String()
	result.ContentType = resp.Header.Get("Content-Type")

	if resp.StatusCode != http.StatusOK {
		result.Duration = time.Since(start)
		return result, errors.NewHTTPStatus(targetURL, resp.StatusCode)
	}

	result.Headers = resp.Header

	if readBody {
		body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes))
		if err != nil {
			result.Duration = time.Since(start)
			return result, errors.NewTransport(targetURL, err)
		}
		result.Body = body
	}

	result.Duration = time.Since(start)
	return result, nil
}

// GetWithRetry fetches targetURL through the retry loop. With the default
// config this is a single attempt.
func (c *Client) GetWithRetry(ctx context.Context, targetURL string, readBody bool) (*Response, error) {
	c.mu.RLock()
	retrier := c.retrier
	c.mu.RUnlock()

	return errors.DoValue(ctx, retrier, func(ctx context.Context) (*Response, error) {
		return c.Get(ctx, targetURL, readBody)
	})
}

// SetRetryConfig replaces the retry configuration.
func (c *Client) SetRetryConfig(config errors.RetryConfig) {
	c.mu.Lock()
	c.retrier = errors.NewRetrier(config)
	c.mu.Unlock()
}

// Close releases idle connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}
