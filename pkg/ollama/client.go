// Package ollama provides the HTTP client for an Ollama-compatible
// generation backend: blocking and streaming chat completion plus a
// lightweight health probe.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrorKind categorizes backend failures for fallback selection.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindUnavailable covers connection failures and non-2xx statuses.
	KindUnavailable
	// KindTimeout covers deadline expiry on the request or mid-stream.
	KindTimeout
	// KindProtocol covers unparseable whole-response bodies. Malformed
	// stream lines are skipped, not reported.
	KindProtocol
)

// ClientError is a classified backend failure.
type ClientError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Deterministic user-facing fallback strings. These are what the session
// gateway appends as the assistant turn when a backend call fails, so the
// window stays consistent.
const (
	FallbackUnavailable = "Sorry, I'm having trouble connecting to my AI brain right now."
	FallbackTimeout     = "Sorry, my response took too long to generate. Please try again."
	FallbackError       = "Sorry, I encountered an error while generating a response."
	FallbackEmpty       = "Sorry, I could not generate a response."
)

// FallbackText maps a backend error to its user-facing fallback string.
func FallbackText(err error) string {
	var ce *ClientError
	if errors.As(err, &ce) {
		switch ce.Kind {
		case KindTimeout:
			return FallbackTimeout
		case KindUnavailable:
			return FallbackUnavailable
		}
	}
	return FallbackError
}

// Config holds client options. Zero values fall back to defaults.
type Config struct {
	// Host is the backend base URL. The explicit IPv4 default avoids
	// IPv6 localhost resolution stalls on some hosts.
	Host string

	// Model is sent with every request.
	Model string

	// Timeout bounds a blocking Chat call.
	Timeout time.Duration

	// StreamTimeout bounds a whole ChatStream call, connect included.
	StreamTimeout time.Duration

	// HealthTimeout bounds the CheckRunning probe.
	HealthTimeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:          "http://127.0.0.1:11434",
		Model:         "llama3.2",
		Timeout:       120 * time.Second,
		StreamTimeout: 300 * time.Second,
		HealthTimeout: 5 * time.Second,
	}
}

// Client talks to one Ollama-compatible backend. It is safe for
// concurrent use.
type Client struct {
	config     *Config
	httpClient *http.Client
}

// NewClient creates a client, filling defaults for any zero config value.
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	def := DefaultConfig()
	if config.Host == "" {
		config.Host = def.Host
	}
	if config.Model == "" {
		config.Model = def.Model
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.StreamTimeout == 0 {
		config.StreamTimeout = def.StreamTimeout
	}
	if config.HealthTimeout == 0 {
		config.HealthTimeout = def.HealthTimeout
	}

	// Per-call deadlines come from contexts; a client-wide timeout would
	// cut streams short.
	return &Client{config: config, httpClient: &http.Client{}}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.config.Model
}

// CheckRunning verifies the backend is reachable. Healthy iff the tags
// endpoint answers 2xx within the health deadline.
func (c *Client) CheckRunning(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.Host+"/api/tags", nil)
	if err != nil {
		return &ClientError{Kind: KindUnavailable, Message: "create health request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(err, "health probe failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ClientError{Kind: KindUnavailable, Message: "unexpected status from backend: " + resp.Status}
	}
	return nil
}

// Chat sends the full context and blocks until a single complete
// response. On failure it returns a typed *ClientError; callers map it to
// a fallback string with FallbackText.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.post(ctx, chatRequest{Model: c.config.Model, Messages: messages, Stream: false})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransport(err, "read response")
	}

	var ck chunk
	if err := json.Unmarshal(body, &ck); err != nil {
		return "", &ClientError{Kind: KindProtocol, Message: "unparseable response body", Cause: err}
	}
	return ck.text(), nil
}

// post issues the chat request and validates the status. The response
// body is left open for the caller.
func (c *Client) post(ctx context.Context, reqBody chatRequest) (*http.Response, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ClientError{Kind: KindProtocol, Message: "marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Kind: KindUnavailable, Message: "create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err, "send request")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &ClientError{
			Kind:    KindUnavailable,
			Message: fmt.Sprintf("backend error (status %d)", resp.StatusCode),
		}
	}
	return resp, nil
}

// classifyTransport maps a transport error to a ClientError, separating
// deadline expiry from connectivity failures.
func classifyTransport(err error, msg string) *ClientError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ClientError{Kind: KindTimeout, Message: msg, Cause: err}
	}
	return &ClientError{Kind: KindUnavailable, Message: msg, Cause: err}
}
