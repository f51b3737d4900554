// Package render fetches badge SVGs from a shields.io compatible render service.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
)

const (
	// MaxBodySize caps the SVG accepted from the render service.
	MaxBodySize = 1 << 20

	// DefaultTimeout bounds a single render request.
	DefaultTimeout = 5 * time.Second

	retryInitialInterval = 200 * time.Millisecond
)

// Renderer produces the SVG for one badge.
type Renderer interface {
	Render(ctx context.Context, label, value, color string) ([]byte, error)
}

// Observer receives the outcome of every Render call.
type Observer interface {
	ObserveRender(err error, duration time.Duration)
}

// Config holds the configuration for a Client.
type Config struct {
	// BaseURL of the render service, e.g. https://img.shields.io
	BaseURL string

	// Timeout per request attempt (default: DefaultTimeout)
	Timeout time.Duration

	// Retries after a failed attempt; 4xx responses are never retried
	Retries int

	// HTTPClient overrides the client built from Timeout (optional)
	HTTPClient *http.Client

	Observer Observer
	Logger   *slog.Logger
}

// Client renders badges over HTTP. It does not cache.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	observer   Observer
	logger     *slog.Logger
}

// NewClient validates cfg and creates a Client.
func NewClient(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid render URL %q: %w", cfg.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid render URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid render URL %q: host is required", cfg.BaseURL)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("invalid render retries: %d (must be non-negative)", cfg.Retries)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: httpClient,
		retries:    cfg.Retries,
		observer:   cfg.Observer,
		logger:     logger,
	}, nil
}

// Path returns the render path of a badge: /badge/{label-value-color}.svg with
// the triple form-encoded (space becomes "+", "%" becomes "%25").
func Path(label, value, color string) string {
	return "/badge/" + url.QueryEscape(label+"-"+value+"-"+color) + ".svg"
}

// Render fetches the SVG for label, value and color. Failures are returned as
// *badge.Error of kind upstream_render.
func (c *Client) Render(ctx context.Context, label, value, color string) (data []byte, err error) {
	if c.observer != nil {
		start := time.Now()
		defer func() { c.observer.ObserveRender(err, time.Since(start)) }()
	}

	target := c.baseURL + Path(label, value, color)

	var b backoff.BackOff = backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 0)
	if c.retries > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = retryInitialInterval
		b = backoff.WithMaxRetries(exp, uint64(c.retries))
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("render attempt failed, retrying",
			"url", target,
			"error", err,
			"wait", wait,
		)
	}

	data, err = backoff.RetryNotifyWithData(func() ([]byte, error) {
		return c.fetch(ctx, target)
	}, backoff.WithContext(b, ctx), notify)
	if err != nil {
		var berr *badge.Error
		if errors.As(err, &berr) {
			return nil, berr
		}
		return nil, badge.RenderFailed("render request failed", err)
	}

	return data, nil
}

func (c *Client) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(badge.RenderFailed("failed to build render request", err))
	}
	req.Header.Set("Accept", "image/svg+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(badge.RenderFailed("render request canceled", err))
		}
		return nil, badge.RenderFailed("render request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, MaxBodySize))
		rerr := badge.RenderFailed(fmt.Sprintf("render service returned status %d", resp.StatusCode), nil)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(rerr)
		}
		return nil, rerr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, badge.RenderFailed("failed to read render response", err)
	}
	if len(data) > MaxBodySize {
		return nil, backoff.Permanent(badge.RenderFailed(fmt.Sprintf("render response exceeds %d bytes", MaxBodySize), nil))
	}

	return data, nil
}
