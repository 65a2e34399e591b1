package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ErrMalformedResponse is returned when a response body is not valid JSON.
var ErrMalformedResponse = errors.New("서버 응답 데이터 형식이 올바르지 않습니다.")

// APIError is an envelope failure: a non-2xx status or success=false.
type APIError struct {
	Status   int
	Message  string
	Op       string
	Fallback string
}

// Error returns the server's message, else the operation's fallback text.
func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Fallback != "" {
		return e.Fallback
	}
	return fmt.Sprintf("%s failed (%d)", e.Op, e.Status)
}

// ValidationError is raised before any request is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// UserMessage returns the text to show for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return validation.Message
	}
	if errors.Is(err, ErrMalformedResponse) {
		return ErrMalformedResponse.Error()
	}
	return err.Error()
}

// operation names a call and the Korean texts shown when the server gives none.
type operation struct {
	name     string
	fallback string
	// missing is used when a successful envelope carries no data but data is required.
	missing string
	// byStatus overrides fallback for particular statuses.
	byStatus map[int]string
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Client talks to the inquiry REST API.
type Client struct {
	baseURL string
	authed  *http.Client
	public  *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the base round tripper (tests, proxies).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.public.Transport = rt
		if t, ok := c.authed.Transport.(*oauth2.Transport); ok {
			t.Base = rt
		} else {
			c.authed.Transport = rt
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a client. tokens supplies the bearer credential for
// authenticated calls; a nil source sends them without Authorization.
func NewClient(baseURL string, tokens oauth2.TokenSource, timeout time.Duration, opts ...Option) (*Client, error) {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	c := &Client{
		baseURL: normalized,
		public:  &http.Client{Timeout: timeout},
		authed:  &http.Client{Timeout: timeout},
		logger:  slog.New(slog.DiscardHandler),
	}
	if tokens != nil {
		c.authed.Transport = &oauth2.Transport{Source: tokens, Base: http.DefaultTransport}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized API origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// NormalizeBaseURL normalizes an API origin and ensures it has a scheme.
func NormalizeBaseURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("api url cannot be empty")
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("invalid api url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("api url must include scheme and host (http://host:port)")
	}
	return strings.TrimRight(value, "/"), nil
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	public bool
}

func (c *Client) doJSON(ctx context.Context, op operation, req request, respBody any) error {
	endpoint, err := c.buildURL(req.path, req.query)
	if err != nil {
		return err
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return err
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	client := c.authed
	if req.public {
		client = c.public
	}
	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		c.logger.Debug("api request failed", "op", op.name, "method", req.method, "path", req.path, "err", err)
		return fmt.Errorf("%s: %w", op.name, err)
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op.name, err)
	}
	c.logger.Debug("api request", "op", op.name, "method", req.method, "path", req.path,
		"status", resp.StatusCode, "elapsed", time.Since(start))

	return decodeEnvelope(op, resp.StatusCode, respData, respBody)
}

// decodeEnvelope applies the {success, data, message} rules. A 2xx body
// without a success field is taken to be the data itself.
func decodeEnvelope(op operation, status int, data []byte, out any) error {
	ok := status >= 200 && status < 300
	failure := func(message string) error {
		fallback := op.fallback
		if text, found := op.byStatus[status]; found {
			fallback = text
		}
		return &APIError{Status: status, Message: message, Op: op.name, Fallback: fallback}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return failure("")
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		if !ok {
			return failure("")
		}
		return fmt.Errorf("%s: %w", op.name, ErrMalformedResponse)
	}
	if !ok || (env.Success != nil && !*env.Success) {
		return failure(env.Message)
	}
	if out == nil {
		return nil
	}

	payload := []byte(env.Data)
	if env.Success == nil {
		payload = trimmed
	}
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		if op.missing != "" {
			return &APIError{Status: status, Message: op.missing, Op: op.name}
		}
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: %w", op.name, ErrMalformedResponse)
	}
	return nil
}

func (c *Client) buildURL(path string, query url.Values) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	endpoint := base.ResolveReference(ref)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}
	return endpoint.String(), nil
}
