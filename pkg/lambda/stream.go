package lambda

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/themobileprof/lambdachat/pkg/llm"
)

const maxStreamLine = 1 << 20

// openStream holds an established streaming response
type openStream struct {
	body   io.ReadCloser
	cancel context.CancelFunc
}

func (s *openStream) close() {
	_ = s.body.Close()
	s.cancel()
}

// CompleteStream implements llm.Client.CompleteStream
func (c *HTTPClient) CompleteStream(ctx context.Context, history []llm.Message, timeout time.Duration) (<-chan llm.Chunk, error) {
	spanCtx, span := c.tracer.Start(ctx, "lambda.CompleteStream", trace.WithAttributes(
		attribute.String("model", c.model),
		attribute.Int("history.length", len(history)),
	))

	body, err := c.encodeRequest(history)
	if err != nil {
		endSpan(span, 0, err)
		span.End()
		return nil, err
	}
	timeout = c.attemptTimeout(timeout)

	attempt := 0
	stream, err := backoff.Retry(spanCtx, func() (*openStream, error) {
		attempt++
		return c.openOnce(ctx, body, timeout)
	}, c.retry.options(&attempt, retryEvent(span))...)

	if err != nil {
		err = c.classify(ctx, attempt, err)
		log.Printf("Chat completion stream failed after %d attempt(s): %v", attempt, err)
		endSpan(span, attempt, err)
		span.End()
		return nil, err
	}
	span.SetAttributes(attribute.Int("attempts", attempt))

	// Unbuffered: at most one line is decoded ahead of the consumer.
	ch := make(chan llm.Chunk)

	go func() {
		defer close(ch)
		defer span.End()
		defer stream.close()

		// The attempt timeout also bounds each wait for the next line. Time
		// spent blocked on the consumer does not count.
		var stalled atomic.Bool
		idle := time.AfterFunc(timeout, func() {
			stalled.Store(true)
			stream.cancel()
		})
		defer idle.Stop()

		chunks := 0
		scanner := bufio.NewScanner(stream.body)
		scanner.Buffer(make([]byte, 0, 4096), maxStreamLine)

		for scanner.Scan() {
			idle.Stop()
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				idle.Reset(timeout)
				continue
			}

			chunk, last := decodeStreamLine(line)
			select {
			case ch <- chunk:
			case <-ctx.Done():
				span.SetAttributes(attribute.String("outcome", "canceled"))
				return
			}
			chunks++

			if last {
				span.SetAttributes(attribute.Int("chunks", chunks))
				endSpan(span, attempt, chunk.Err)
				return
			}
			idle.Reset(timeout)
		}
		idle.Stop()

		span.SetAttributes(attribute.Int("chunks", chunks))
		err := scanner.Err()
		switch {
		case stalled.Load():
			err = fmt.Errorf("no data within %s: %w", timeout, context.DeadlineExceeded)
		case err != nil:
			err = fmt.Errorf("failed to read stream: %w", err)
		}
		if err != nil && ctx.Err() == nil {
			endSpan(span, attempt, err)
			select {
			case ch <- llm.Chunk{Err: err}:
			case <-ctx.Done():
			}
			return
		}
		endSpan(span, attempt, nil)
	}()

	return ch, nil
}

// openOnce performs a single attempt at opening the stream. The timeout
// covers connecting and receiving the response headers; the body reader in
// CompleteStream applies it again to every line.
func (c *HTTPClient) openOnce(ctx context.Context, body []byte, timeout time.Duration) (*openStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(timeout, cancel)

	resp, err := c.post(streamCtx, body)
	if !timer.Stop() {
		if err == nil {
			_ = resp.Body.Close()
		}
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("no response within %s: %w", timeout, context.DeadlineExceeded)
	}
	if err != nil {
		cancel()
		return nil, err
	}

	return &openStream{body: resp.Body, cancel: cancel}, nil
}
