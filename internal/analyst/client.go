// Package analyst provides the HTTP client for the conversational analytics
// endpoint and the typed response envelope it returns.
package analyst

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	messagePath = "/api/v2/cortex/analyst/message"

	tokenTypeHeader = "X-Snowflake-Authorization-Token-Type"
	tokenType       = "KEYPAIR_JWT"
	traceHeader     = "X-Snowflake-Request-Id"

	defaultTimeout = 30 * time.Second
)

// TokenSource supplies the current bearer credential, renewing it internally
// when needed.
type TokenSource interface {
	Bearer() (string, error)
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (e.g. for instrumentation or
// record/replay in tests). The bounded timeout is preserved unless the custom
// client sets its own.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseURL overrides the https://{host} base derived from the host name.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithTimeout sets the bounded request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// Client sends natural-language questions to the analyst endpoint.
type Client struct {
	baseURL       string
	semanticModel string
	tokens        TokenSource
	httpClient    *http.Client
}

// NewClient creates a client for the given account host. semanticModel is the
// fully-qualified stage path of the semantic model file (see
// SemanticModelRef); it is passed through opaquely.
func NewClient(host, semanticModel string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:       "https://" + host,
		semanticModel: semanticModel,
		tokens:        tokens,
		httpClient:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizeHostURL rewrites underscores to hyphens in the host segment of a
// URL, leaving path and query untouched. The service rejects underscored
// hostnames, which account locators can contain.
func NormalizeHostURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || !strings.Contains(u.Host, "_") {
		return raw
	}
	u.Host = strings.ReplaceAll(u.Host, "_", "-")
	return u.String()
}

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Ask sends a single question and returns the typed response envelope.
// Empty or whitespace-only questions fail with ErrEmptyQuestion before any
// network activity; embedded line breaks are collapsed to single spaces since
// the wire protocol expects single-line text fields.
func (c *Client) Ask(ctx context.Context, question string) (*Envelope, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	question = newlines.Replace(question)

	bearer, err := c.tokens.Bearer()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(askRequest{
		Messages: []askMessage{{
			Role:    "user",
			Content: []askPart{{Type: "text", Text: question}},
		}},
		SemanticModelFile: c.semanticModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := NormalizeHostURL(c.baseURL + messagePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(tokenTypeHeader, tokenType)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyst request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	traceID := resp.Header.Get(traceHeader)
	if resp.StatusCode != http.StatusOK {
		return nil, &RequestError{
			Status:  resp.StatusCode,
			TraceID: traceID,
			Body:    string(respBody),
		}
	}

	var parsed askResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode analyst response: %w", err)
	}

	return &Envelope{
		TraceID: traceID,
		Blocks:  parsed.Message.Content,
	}, nil
}
