// Package tokens fetches conversation tokens for public agents.
package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io"
	tokenPath      = "/v1/convai/conversation/token"
)

// Error reports a failed token request: a non-2xx response or a body
// without a token. Network failures are wrapped in Cause.
type Error struct {
	StatusCode int
	Body       string
	Cause      error
}

func (e *Error) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("token service: %v", e.Cause)
	case e.StatusCode != 0:
		return fmt.Sprintf("token service: status %d: %s", e.StatusCode, e.Body)
	default:
		return "token service: " + e.Body
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Request identifies the agent and the SDK asking for a token.
type Request struct {
	AgentID string
	Source  string
	Version string
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithAPIKey sends the key in the xi-api-key header, for server-side use
// with private agents.
func WithAPIKey(apiKey string) Option {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns a conversation token for the agent.
func (c *Client) Fetch(ctx context.Context, request Request) (string, error) {
	ctx, span := tracer.Start(ctx, "fetch conversation token",
		trace.WithAttributes(attribute.String("agent.id", request.AgentID)))
	defer span.End()

	token, err := c.fetch(ctx, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return token, nil
}

func (c *Client) fetch(ctx context.Context, request Request) (string, error) {
	query := url.Values{}
	query.Set("agent_id", request.AgentID)
	if request.Source != "" {
		query.Set("source", request.Source)
	}
	if request.Version != "" {
		query.Set("version", request.Version)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokenPath+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("xi-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{StatusCode: resp.StatusCode, Cause: fmt.Errorf("error reading response body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn("token request rejected", "status", resp.StatusCode)
		return "", &Error{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", &Error{StatusCode: resp.StatusCode, Cause: fmt.Errorf("malformed token response: %w", err)}
	}
	if payload.Token == "" {
		return "", &Error{StatusCode: resp.StatusCode, Body: "response has no token"}
	}
	return payload.Token, nil
}
