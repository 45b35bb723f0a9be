package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dm/dashsync/internal/model"
)

// ClientConfig holds configuration for DefaultClient.
type ClientConfig struct {
	BaseURL            string
	APIKey             string
	InsecureSkipVerify bool
	RequestTimeout     time.Duration
	// Queries overrides the default query of individual collections.
	Queries map[model.Collection]Query
	// Transport is the base round tripper. Defaults to a clone of
	// http.DefaultTransport. It is always wrapped for tracing.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// DefaultClient reads dashboard collections from the backend over net/http.
type DefaultClient struct {
	http   *http.Client
	config ClientConfig
	log    *slog.Logger
	now    func() time.Time
}

// NewDefaultClient constructs a DefaultClient from the given config.
// Returns a KindConfig error if BaseURL is not an absolute http(s) URL or
// APIKey is empty.
func NewDefaultClient(cfg ClientConfig) (*DefaultClient, error) {
	if cfg.BaseURL == "" {
		return nil, configError("BaseURL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, configError("invalid BaseURL %q: %w", cfg.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, configError("unsupported scheme %q (must be http or https)", u.Scheme)
	}
	if u.Host == "" {
		return nil, configError("invalid BaseURL %q: host is required", cfg.BaseURL)
	}
	if cfg.APIKey == "" {
		return nil, configError("APIKey is required")
	}
	for c, q := range cfg.Queries {
		if _, ok := endpoints[c]; !ok {
			return nil, configError("query override for unknown collection %q", c)
		}
		if err := q.validate(); err != nil {
			return nil, configError("query override for %s: %w", c, err)
		}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	base := cfg.Transport
	if base == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec
		}
		base = transport
	}

	return &DefaultClient{
		http: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: otelhttp.NewTransport(base),
		},
		config: cfg,
		log:    cfg.Logger.With("component", "client"),
		now:    time.Now,
	}, nil
}

// BaseURL returns the configured backend base URL.
func (c *DefaultClient) BaseURL() string {
	return c.config.BaseURL
}

// doGet performs an authenticated GET request to path (relative to BaseURL)
// with the given query. Returns the response body bytes or a classified *Error.
func (c *DefaultClient) doGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u, err := url.Parse(strings.TrimRight(c.config.BaseURL, "/") + path)
	if err != nil {
		return nil, configError("build url for %q: %w", path, err)
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, configError("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.config.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	const maxResponseBytes = 32 * 1024 * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) > maxResponseBytes {
		return nil, &Error{Kind: KindDecode, Err: fmt.Errorf("response body exceeds %d MB limit", maxResponseBytes/(1024*1024))}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Kind:       KindServer,
			StatusCode: resp.StatusCode,
			Body:       truncate(body, 512),
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	return body, nil
}

// Ping checks connectivity by fetching a single chameleon inventory row
// with a 1s timeout.
func (c *DefaultClient) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	_, err := c.Fetch(pingCtx, model.CollectionChameleonInventory, Query{Limit: 1})
	return err
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
