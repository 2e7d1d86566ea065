package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("vidgate/internal/upstream")

const maxResponseBytes = 4 << 20

// Client fetches responses from the metered video data API. It carries
// the project API key, bounds each request with a timeout, and retries
// transient failures with backoff.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      RetryConfig
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(baseURL, apiKey string, timeout time.Duration, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("upstream base url is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		retry:      DefaultRetryConfig(),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Fetch performs one metered call against the upstream for the given
// endpoint class, forwarding the caller's query parameters. The raw
// response body is returned verbatim so the cache can store it without
// re-encoding.
func (c *Client) Fetch(ctx context.Context, class EndpointClass, params url.Values) (json.RawMessage, error) {
	if !class.Valid() {
		return nil, fmt.Errorf("unknown endpoint class %q", class)
	}

	ctx, span := tracer.Start(ctx, "upstream.Fetch",
		trace.WithAttributes(attribute.String("upstream.class", string(class))))
	defer span.End()

	requestURL, err := c.buildURL(class, params)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var body json.RawMessage
	err = retryWithBackoff(ctx, c.logger, c.retry, class, func() error {
		var attemptErr error
		body, attemptErr = c.doRequest(ctx, requestURL)
		return attemptErr
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return body, nil
}

func (c *Client) buildURL(class EndpointClass, params url.Values) (string, error) {
	u, err := url.Parse(c.baseURL + class.path())
	if err != nil {
		return "", fmt.Errorf("build upstream url: %w", err)
	}

	query := url.Values{}
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	if class == ClassTrending {
		query.Set("chart", "mostPopular")
	}
	if c.apiKey != "" {
		query.Set("key", c.apiKey)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func (c *Client) doRequest(ctx context.Context, requestURL string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, string(body))
	}

	return body, nil
}
