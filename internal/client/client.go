// Package client talks to a badgehouse server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/auth"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/service"
)

// DefaultTimeout bounds a single request to the server.
const DefaultTimeout = 30 * time.Second

// maxResponseSize caps response bodies read from the server.
const maxResponseSize = 1 << 20

// Client pushes badges to a badgehouse server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option is a functional option for configuring Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client for the server at baseURL.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q: host is required", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// BadgeURL returns the public URL of the badge called name.
func (c *Client) BadgeURL(name string) string {
	return c.baseURL + "/v1/badges/" + url.PathEscape(name)
}

// UpdateBadge renders and stores the badge called name.
func (c *Client) UpdateBadge(ctx context.Context, name string, req badge.Request) (*service.UpdateResult, error) {
	body, err := json.Marshal(requestBody(req))
	if err != nil {
		return nil, fmt.Errorf("failed to encode badge request: %w", err)
	}

	var res service.UpdateResult
	if err := c.do(ctx, http.MethodPut, c.BadgeURL(name), body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteBadge removes the badge called name.
func (c *Client) DeleteBadge(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, c.BadgeURL(name), nil, nil)
}

type literalBody struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

type updateBody struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

func requestBody(req badge.Request) updateBody {
	if req.Value.Type == badge.TypeLiteral {
		return updateBody{Label: req.Label, Value: literalBody{Text: req.Value.Text, Color: req.Value.Color}}
	}
	return updateBody{Label: req.Label, Value: req.Value.Percentage}
}

type errorBody struct {
	Error struct {
		Kind    badge.Kind         `json:"kind"`
		Message string             `json:"message"`
		Fields  []badge.FieldError `json:"fields"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(auth.Header, c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError turns an error response into a *badge.Error, falling back to
// the raw status when the body is not the server's error shape.
func decodeError(status int, data []byte) error {
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err != nil || eb.Error.Kind == "" {
		return fmt.Errorf("server returned status %d: %s", status, strings.TrimSpace(string(data)))
	}

	return &badge.Error{
		Kind:    eb.Error.Kind,
		Message: eb.Error.Message,
		Fields:  eb.Error.Fields,
		Err:     errors.New(http.StatusText(status)),
	}
}
