package resolver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// HTTPConfig holds the HTTP endpoint configuration.
type HTTPConfig struct {
	// BaseURL is the lookup URL prefix; the number is appended as the last path segment.
	// Format: "https://api-dev.ringer.tel/v1/telique/lrn/"
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// APIKey is sent as a Bearer token when set.
	APIKey string

	// RateLimit caps requests per second per session (0 disables the cap).
	RateLimit float64

	// Burst is the token bucket size when RateLimit is set.
	Burst int

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration

	// IdleConnTimeout is how long idle pooled connections are kept.
	IdleConnTimeout time.Duration
}

// DefaultHTTPConfig returns the default configuration for the Ringer LRN API.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		BaseURL:         "https://api-dev.ringer.tel/v1/telique/lrn/",
		UserAgent:       "NumberAudit/1.0",
		DialTimeout:     5 * time.Second,
		IdleConnTimeout: 90 * time.Second,
	}
}

// HTTPEndpoint is an Endpoint answering plain-text "LRN;SPID" bodies over HTTP.
type HTTPEndpoint struct {
	config HTTPConfig
}

// NewHTTPEndpoint creates an HTTP endpoint.
func NewHTTPEndpoint(cfg HTTPConfig) (*HTTPEndpoint, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %v)", cfg.RateLimit)
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	cfg.BaseURL = base

	def := DefaultHTTPConfig()
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}
	if cfg.RateLimit > 0 && cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	return &HTTPEndpoint{config: cfg}, nil
}

// Open creates a session with its own connection pool capped at maxConns.
func (e *HTTPEndpoint) Open(_ context.Context, maxConns int) (Session, error) {
	if maxConns <= 0 {
		return nil, fmt.Errorf("max connections must be > 0 (got %d)", maxConns)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   e.config.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		MaxConnsPerHost:     maxConns,
		IdleConnTimeout:     e.config.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	client := resty.NewWithClient(&http.Client{Transport: transport})
	client.SetRetryCount(0)
	client.SetHeader("User-Agent", e.config.UserAgent)
	client.SetHeader("Accept", "text/plain")
	if e.config.APIKey != "" {
		client.SetAuthToken(e.config.APIKey)
	}

	s := &httpSession{
		client:    client,
		transport: transport,
		baseURL:   e.config.BaseURL,
	}
	if e.config.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(e.config.RateLimit), e.config.Burst)
	}
	return s, nil
}

type httpSession struct {
	client    *resty.Client
	transport *http.Transport
	limiter   *rate.Limiter
	baseURL   string
	closed    atomic.Bool
}

func (s *httpSession) Resolve(ctx context.Context, number string) (Response, error) {
	if s.closed.Load() {
		return Response{}, ErrSessionClosed
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return Response{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	resp, err := s.client.R().
		SetContext(ctx).
		Get(s.baseURL + url.PathEscape(number))
	if err != nil {
		return Response{}, err
	}

	return Response{
		StatusOK:   resp.StatusCode() == http.StatusOK,
		StatusCode: resp.StatusCode(),
		Body:       string(resp.Body()),
	}, nil
}

func (s *httpSession) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.transport.CloseIdleConnections()
	return nil
}
