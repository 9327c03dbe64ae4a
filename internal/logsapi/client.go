// Package logsapi is a typed client for the Leave Scheduler application log API.
package logsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"applogs/internal/models"
	"applogs/internal/monitoring"
)

const (
	basePath       = "/api/app-logs"
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

// ErrNotFound is matched by errors.Is for 404 responses.
var ErrNotFound = errors.New("not found")

// Client provides typed access to the application log API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New constructs a Client pointing at the provided server base URL.
// The /api/app-logs prefix is appended.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:8080"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/") + basePath,
		httpClient: &http.Client{Timeout: defaultTimeout},
		tracer:     otel.Tracer("applogs/logsapi"),
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// BaseURL returns the resolved API root including the /api/app-logs prefix.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError represents a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// Is reports 404 responses as ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// ListLogs returns one filtered page of logs.
func (c *Client) ListLogs(ctx context.Context, auth models.AuthContext, q LogQuery) (models.Page, error) {
	return c.page(ctx, "list", "", q.Values(), auth)
}

// Dashboard returns the upstream dashboard summary.
func (c *Client) Dashboard(ctx context.Context, auth models.AuthContext) (models.DashboardSummary, error) {
	var out models.DashboardSummary
	err := c.do(ctx, "dashboard", http.MethodGet, "/dashboard", nil, auth, &out)
	return out, err
}

// Statistics returns the upstream statistics over the whole log table.
func (c *Client) Statistics(ctx context.Context, auth models.AuthContext) (models.Statistics, error) {
	var out models.Statistics
	err := c.do(ctx, "statistics", http.MethodGet, "/statistics", nil, auth, &out)
	return out, err
}

// RecentFailures returns the newest failed operations.
func (c *Client) RecentFailures(ctx context.Context, auth models.AuthContext, page, size int) (models.Page, error) {
	return c.page(ctx, "recent_failures", "/recent-failures", pageValues(page, size), auth)
}

// AuthenticationLogs returns login/logout records.
func (c *Client) AuthenticationLogs(ctx context.Context, auth models.AuthContext, page, size int) (models.Page, error) {
	return c.page(ctx, "authentication", "/authentication", pageValues(page, size), auth)
}

// CriticalOperations returns records of operations the backend flags as critical.
func (c *Client) CriticalOperations(ctx context.Context, auth models.AuthContext, page, size int) (models.Page, error) {
	return c.page(ctx, "critical", "/critical", pageValues(page, size), auth)
}

// SlowOperations returns records whose execution time exceeds thresholdMs.
func (c *Client) SlowOperations(ctx context.Context, auth models.AuthContext, thresholdMs int64, page, size int) (models.Page, error) {
	v := pageValues(page, size)
	v.Set("thresholdMs", strconv.FormatInt(thresholdMs, 10))
	return c.page(ctx, "slow_operations", "/slow-operations", v, auth)
}

// TraceByCorrelationID returns every record sharing a correlation id.
func (c *Client) TraceByCorrelationID(ctx context.Context, auth models.AuthContext, correlationID string) ([]models.LogRecord, error) {
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return nil, fmt.Errorf("correlation id is required")
	}
	var out []models.LogRecord
	if err := c.do(ctx, "trace", http.MethodGet, "/trace/"+url.PathEscape(correlationID), nil, auth, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.LogRecord{}
	}
	return out, nil
}

// GetLog returns a single record by id.
func (c *Client) GetLog(ctx context.Context, auth models.AuthContext, id int64) (models.LogRecord, error) {
	var out models.LogRecord
	err := c.do(ctx, "get", http.MethodGet, "/"+strconv.FormatInt(id, 10), nil, auth, &out)
	return out, err
}

// Cleanup asks the API to delete records older than daysToKeep and returns
// the server's acknowledgement text.
func (c *Client) Cleanup(ctx context.Context, auth models.AuthContext, daysToKeep int) (string, error) {
	if daysToKeep <= 0 {
		return "", fmt.Errorf("days to keep must be positive, got %d", daysToKeep)
	}
	v := url.Values{}
	v.Set("daysToKeep", strconv.Itoa(daysToKeep))
	var raw rawBody
	if err := c.do(ctx, "cleanup", http.MethodDelete, "/cleanup", v, auth, &raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

func (c *Client) page(ctx context.Context, endpoint, path string, query url.Values, auth models.AuthContext) (models.Page, error) {
	var env halPage
	if err := c.do(ctx, endpoint, http.MethodGet, path, query, auth, &env); err != nil {
		return models.Page{}, err
	}
	return env.flatten(), nil
}

// rawBody receives the response body verbatim.
type rawBody []byte

func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, auth models.AuthContext, v any) (err error) {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := c.tracer.Start(ctx, "logsapi."+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("logsapi.endpoint", endpoint),
		),
	)
	start := time.Now()
	status := 0
	defer func() {
		monitoring.UpstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil {
			monitoring.UpstreamErrors.WithLabelValues(endpoint, statusLabel(status)).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	endpointURL := c.baseURL + path
	if len(query) > 0 {
		endpointURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpointURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := strings.TrimSpace(auth.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	status = resp.StatusCode
	span.SetAttributes(attribute.Int("http.status_code", status))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}

	switch out := v.(type) {
	case nil:
		return nil
	case *rawBody:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read %s response: %w", endpoint, err)
		}
		*out = data
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("decode %s response: %w", endpoint, err)
		}
		return nil
	}
}

func statusLabel(status int) string {
	if status == 0 {
		return "transport"
	}
	return strconv.Itoa(status)
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	if payload.Message != "" {
		return strings.TrimSpace(payload.Message)
	}
	return strings.TrimSpace(payload.Error)
}
