package invoker

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

	"github.com/openfroyo/actuator/pkg/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TransportHomeAssistant is the transport name recorded on call spans.
const TransportHomeAssistant = "homeassistant"

// ErrEntityNotFound is returned by ReadAttributes for unknown entities.
var ErrEntityNotFound = errors.New("entity not found")

// StatusError is returned when Home Assistant answers with a non-2xx status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Client calls services and reads entity states through the Home Assistant
// REST API. One client is shared by all actors.
type Client struct {
	baseURL *url.URL
	token   string
	client  *http.Client
	timeout time.Duration
	tracer  *telemetry.Tracer
	logger  zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client. The client is not
// modified; a timeout set with WithTimeout applies to a copy.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithTracer records a span for every request.
func WithTracer(t *telemetry.Tracer) ClientOption {
	return func(c *Client) {
		c.tracer = t
	}
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.With().Str("component", "homeassistant").Logger()
	}
}

// NewClient creates a client for the instance at baseURL authenticating
// with a long-lived access token.
func NewClient(baseURL, token string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("home assistant url is required")
	}
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid home assistant url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid home assistant url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL: u,
		token:   token,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	switch {
	case c.client == nil:
		timeout := c.timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		c.client = &http.Client{Timeout: timeout}
	case c.timeout > 0:
		hc := *c.client
		hc.Timeout = c.timeout
		c.client = &hc
	}
	return c, nil
}

// Invoke calls service ("<domain>/<service>") with params as the request body.
func (c *Client) Invoke(ctx context.Context, service string, params map[string]interface{}) error {
	domain, name, ok := strings.Cut(service, "/")
	if !ok || domain == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("invalid service %q: expected <domain>/<service>", service)
	}

	ctx, span := c.startSpan(ctx, service)
	defer span.End()

	if params == nil {
		params = map[string]interface{}{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to marshal service data: %w", err)
	}

	path := "/api/services/" + url.PathEscape(domain) + "/" + url.PathEscape(name)
	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Debug().
		Str("service", service).
		Int("status", resp.StatusCode).
		Msg("Service called")

	telemetry.RecordSuccess(span)
	return nil
}

type stateResponse struct {
	EntityID   string                 `json:"entity_id"`
	State      interface{}            `json:"state"`
	Attributes map[string]interface{} `json:"attributes"`
}

// ReadAttributes returns the attributes of entityID. The entity's state is
// included under the "state" key unless an attribute of that name exists.
func (c *Client) ReadAttributes(ctx context.Context, entityID string) (map[string]interface{}, error) {
	if entityID == "" {
		return nil, fmt.Errorf("entity id is required")
	}

	resp, err := c.do(ctx, http.MethodGet, "/api/states/"+url.PathEscape(entityID), nil)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", entityID, ErrEntityNotFound)
		}
		return nil, err
	}
	defer resp.Body.Close()

	var state stateResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode state of %s: %w", entityID, err)
	}

	attrs := make(map[string]interface{}, len(state.Attributes)+1)
	for k, v := range state.Attributes {
		attrs[k] = v
	}
	if _, exists := attrs["state"]; !exists && state.State != nil {
		attrs["state"] = state.State
	}
	return attrs, nil
}

// do performs a request and returns the response for 2xx statuses.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}
	return resp, nil
}

func (c *Client) startSpan(ctx context.Context, service string) (context.Context, trace.Span) {
	if c.tracer == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, "service.call")
	}
	return c.tracer.StartServiceCallSpan(ctx, service, TransportHomeAssistant)
}
