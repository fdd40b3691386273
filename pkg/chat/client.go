package chat

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
)

// chatPath is appended to the configured base URL.
const chatPath = "/api/chat/"

// ErrMissingReply is returned when a successful response has no reply string.
var ErrMissingReply = errors.New("chat: response has no reply field")

// Request is the body posted to the chat endpoint.
type Request struct {
	Flow     Flow      `json:"flow"`
	Messages []Message `json:"messages"`
}

// Reply is the decoded backend response. Only Reply is guaranteed; the
// other fields are filled when the backend sends them.
type Reply struct {
	Reply          string    `json:"reply"`
	AssistantChain []Message `json:"assistant_chain,omitempty"`
	Messages       []Message `json:"messages,omitempty"`
}

// replyPayload keeps reply as a pointer so an absent field can be told apart
// from an empty string.
type replyPayload struct {
	Reply          *string   `json:"reply"`
	AssistantChain []Message `json:"assistant_chain"`
	Messages       []Message `json:"messages"`
}

// StatusError is returned for any non-2xx response from the chat endpoint.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat: unexpected status %d from %s", e.StatusCode, e.URL)
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client posts conversations to the backend chat endpoint.
type Client struct {
	baseURL    string
	origin     string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithOrigin sets the origin that a relative endpoint (empty base URL) is
// resolved against.
func WithOrigin(origin string) Option {
	return func(c *Client) {
		c.origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	}
}

// New creates a Client for baseURL. An empty baseURL targets the same origin,
// i.e. the relative path /api/chat/.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL requests are sent to.
func (c *Client) Endpoint() string {
	endpoint := c.baseURL + chatPath
	if c.origin == "" || c.isAbsolute() {
		return endpoint
	}
	return c.origin + endpoint
}

func (c *Client) isAbsolute() bool {
	u, err := url.Parse(c.baseURL)
	return err == nil && u.IsAbs()
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return http.DefaultClient
}

// PostChat sends the conversation and returns the backend's reply text.
func (c *Client) PostChat(ctx context.Context, flow Flow, messages []Message) (string, error) {
	reply, err := c.Send(ctx, flow, messages)
	if err != nil {
		return "", err
	}
	return reply.Reply, nil
}

// Send posts {flow, messages} to the chat endpoint and decodes the response.
// There is no retry; every call issues exactly one request.
func (c *Client) Send(ctx context.Context, flow Flow, messages []Message) (*Reply, error) {
	if messages == nil {
		messages = []Message{}
	}

	body, err := json.Marshal(Request{Flow: flow, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("chat: marshal request: %w", err)
	}

	endpoint := c.Endpoint()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chat: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &StatusError{
			StatusCode: res.StatusCode,
			URL:        endpoint,
			Body:       string(buf),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("chat: read response body: %w", err)
	}

	var payload replyPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("chat: decode response: %w", err)
	}
	if payload.Reply == nil {
		return nil, ErrMissingReply
	}

	return &Reply{
		Reply:          *payload.Reply,
		AssistantChain: payload.AssistantChain,
		Messages:       payload.Messages,
	}, nil
}
