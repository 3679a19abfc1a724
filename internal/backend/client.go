package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"ArbusChat/internal/config"
	"ArbusChat/internal/session"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// AnthropicClient sends a conversation to the Anthropic Messages API
// and returns the assistant reply.
type AnthropicClient struct {
	endpoint   string
	model      string
	apiVersion string
	maxTokens  int

	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
	duration   metric.Float64Histogram
}

// Option customizes an AnthropicClient.
type Option func(*AnthropicClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(ac *AnthropicClient) { ac.httpClient = c }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(ac *AnthropicClient) { ac.logger = l }
}

// WithTelemetry sets the tracer and meter the client reports to.
func WithTelemetry(tracer trace.Tracer, meter metric.Meter) Option {
	return func(ac *AnthropicClient) {
		ac.tracer = tracer
		ac.meter = meter
	}
}

// NewAnthropicClient creates a client for the endpoint and model in cfg.
// The HTTP client carries no timeout of its own; deadlines come from the
// context passed to Send.
func NewAnthropicClient(cfg config.Config, opts ...Option) *AnthropicClient {
	c := &AnthropicClient{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		apiVersion: cfg.APIVersion,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{},
		logger:     slog.Default(),
		tracer:     tracenoop.NewTracerProvider().Tracer("anthropic"),
		meter:      metricnoop.NewMeterProvider().Meter("anthropic"),
	}
	if c.apiVersion == "" {
		c.apiVersion = config.DefaultAPIVersion
	}
	for _, opt := range opts {
		opt(c)
	}

	histogram, err := c.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		c.logger.Warn("failed to create duration histogram", "error", err)
	}
	c.duration = histogram

	return c
}

// Send posts history, which already ends with the newest user turn, and
// returns the first text block of the reply.
func (c *AnthropicClient) Send(ctx context.Context, history []session.Entry, credential string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "anthropic_api_call", trace.WithAttributes(
		attribute.String("llm.model", c.model),
		attribute.Int("llm.history.length", len(history)),
	))
	defer span.End()

	text, err := c.send(ctx, span, history, credential)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return text, nil
}

func (c *AnthropicClient) send(ctx context.Context, span trace.Span, history []session.Entry, credential string) (string, error) {
	start := time.Now()

	reqMessages := make([]AnthropicMessage, len(history))
	for i, entry := range history {
		reqMessages[i] = AnthropicMessage{
			Role:    string(entry.Role),
			Content: entry.Content,
		}
	}

	reqBody := AnthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  reqMessages,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-api-key", credential)
	req.Header.Set("anthropic-version", c.apiVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}

	elapsed := time.Since(start)
	if c.duration != nil {
		c.duration.Record(ctx, float64(elapsed.Milliseconds()))
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.logger.Debug("anthropic response received", "status", resp.StatusCode, "duration_ms", elapsed.Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", remoteError(resp.StatusCode, body)
	}

	var apiResp AnthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	c.recordMetrics(ctx, apiResp.Usage)

	text, ok := apiResp.firstText()
	if !ok {
		return "", ErrMalformedResponse
	}
	return text, nil
}

// remoteError builds the error for a non-success status, preferring the
// message the API put in the body.
func remoteError(status int, body []byte) *RemoteServiceError {
	message := GenericRemoteMessage

	var errResp AnthropicErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	return &RemoteServiceError{StatusCode: status, Message: message}
}

func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("request canceled: %w", err)
	}
	return &NetworkError{Err: err}
}

// recordMetrics records OpenTelemetry metrics from usage data
func (c *AnthropicClient) recordMetrics(ctx context.Context, usage map[string]interface{}) {
	if usage == nil {
		return
	}

	for key, value := range usage {
		if intVal, ok := value.(float64); ok {
			counter, err := c.meter.Int64Counter(
				fmt.Sprintf("llm.usage.%s", key),
				metric.WithDescription(fmt.Sprintf("LLM usage metric: %s", key)),
			)
			if err != nil {
				c.logger.Warn("failed to create counter", "key", key, "error", err)
				continue
			}
			counter.Add(ctx, int64(intVal))
		}
	}
}
