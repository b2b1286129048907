package lambda

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/themobileprof/lambdachat/internal/prompt"
	"github.com/themobileprof/lambdachat/pkg/llm"
)

// HTTPClient implements the llm.Client interface against the Lambda chat endpoint
type HTTPClient struct {
	url        string
	headers    http.Header
	model      string
	indexName  string
	builder    *prompt.Builder
	timeout    time.Duration
	retry      retryPolicy
	httpClient *http.Client
	tracer     trace.Tracer
}

// Ensure HTTPClient implements llm.Client
var _ llm.Client = (*HTTPClient)(nil)

// Config holds configuration for the Lambda client
type Config struct {
	APIKey       string
	URL          string
	ContentType  string        // Default: application/json
	Model        string        // Default: gpt-4o-mini
	IndexName    string        // Sent as index_name when set
	Instructions string        // Prepended as a developer message when set
	Timeout      time.Duration // Per attempt. Default: 30s
	MaxAttempts  uint          // Default: 3
	InitialWait  time.Duration // Default: 1s
	MaxWait      time.Duration // Default: 15s
	Tracer       trace.Tracer  // Default: global provider
}

// NewHTTPClient creates a new Lambda HTTP client. It performs no network I/O.
func NewHTTPClient(config Config) *HTTPClient {
	if config.ContentType == "" {
		config.ContentType = "application/json"
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	if config.InitialWait <= 0 {
		config.InitialWait = defaultInitialWait
	}
	if config.MaxWait <= 0 {
		config.MaxWait = defaultMaxWait
	}
	if config.Tracer == nil {
		config.Tracer = otel.Tracer("github.com/themobileprof/lambdachat/pkg/lambda")
	}

	headers := make(http.Header, 2)
	headers.Set("Content-Type", config.ContentType)
	headers.Set("X-Api-Key", config.APIKey)

	// Timeouts are enforced per attempt through the request context, so the
	// http.Client itself has none; streamed bodies may outlive the attempt timeout.
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &HTTPClient{
		url:       config.URL,
		headers:   headers,
		model:     config.Model,
		indexName: config.IndexName,
		builder:   prompt.NewBuilder(config.Instructions),
		timeout:   config.Timeout,
		retry: retryPolicy{
			maxAttempts: config.MaxAttempts,
			initialWait: config.InitialWait,
			maxWait:     config.MaxWait,
		},
		httpClient: &http.Client{Transport: transport},
		tracer:     config.Tracer,
	}
}

// Complete implements llm.Client.Complete
func (c *HTTPClient) Complete(ctx context.Context, history []llm.Message, timeout time.Duration) (string, error) {
	ctx, span := c.tracer.Start(ctx, "lambda.Complete", trace.WithAttributes(
		attribute.String("model", c.model),
		attribute.Int("history.length", len(history)),
	))
	defer span.End()

	body, err := c.encodeRequest(history)
	if err != nil {
		endSpan(span, 0, err)
		return llm.FallbackMessage, err
	}
	timeout = c.attemptTimeout(timeout)

	attempt := 0
	text, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		return c.completeOnce(ctx, body, timeout)
	}, c.retry.options(&attempt, retryEvent(span))...)

	if err != nil {
		err = c.classify(ctx, attempt, err)
		log.Printf("Chat completion failed after %d attempt(s): %v", attempt, err)
		endSpan(span, attempt, err)
		return llm.FallbackMessage, err
	}

	endSpan(span, attempt, nil)
	return text, nil
}

// completeOnce performs a single attempt
func (c *HTTPClient) completeOnce(ctx context.Context, body []byte, timeout time.Duration) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.post(attemptCtx, body)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	text, err := decodeCompletion(data)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	return text, nil
}

// post sends the request and returns a response with a 2xx status.
// Non-2xx responses are drained, closed and reported as *StatusError.
func (c *HTTPClient) post(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header = c.headers.Clone()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return resp, nil
}

// encodeRequest builds a fresh request body for this call
func (c *HTTPClient) encodeRequest(history []llm.Message) ([]byte, error) {
	messages, err := c.builder.BuildMessages(history)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(completionRequest{
		Model:     c.model,
		Messages:  messages,
		IndexName: c.indexName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return body, nil
}

func (c *HTTPClient) attemptTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return c.timeout
	}
	return timeout
}

// classify maps the final retry error onto the package's error kinds
func (c *HTTPClient) classify(ctx context.Context, attempts int, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("chat completion aborted: %w", ctxErr)
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}

	if errors.Is(err, llm.ErrMalformedResponse) || errors.Is(err, llm.ErrEmptyHistory) {
		return err
	}
	return &llm.UnavailableError{Attempts: attempts, Err: err}
}

func retryEvent(span trace.Span) func(int, time.Duration, error) {
	return func(attempt int, wait time.Duration, err error) {
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("wait", wait.String()),
			attribute.String("error", err.Error()),
		))
	}
}

func endSpan(span trace.Span, attempts int, err error) {
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("outcome", "failed"))
		return
	}
	span.SetAttributes(attribute.String("outcome", "ok"))
}
