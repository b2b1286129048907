package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/themobileprof/lambdachat/internal/circuitbreaker"
	"github.com/themobileprof/lambdachat/internal/fallback"
	"github.com/themobileprof/lambdachat/internal/privacy"
	"github.com/themobileprof/lambdachat/internal/session"
	"github.com/themobileprof/lambdachat/pkg/llm"
)

var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrInputDisabled  = errors.New("a reply is already in progress")
)

// Responder defines the interface for sending responses to any transport
type Responder interface {
	SendThinking() error
	SendMessage(content string) error
	SendError(message string) error
	SendDone() error
}

// ProcessRequest contains all data needed to process a message
type ProcessRequest struct {
	SessionID string
	Message   string
	Stream    bool
	Responder Responder
}

// Reply is the assistant message produced by one turn
type Reply struct {
	Content  string
	Fallback bool  // Content stands in for a reply that could not be obtained
	Err      error // Upstream failure, nil when the reply arrived intact
}

// Options configures an Engine
type Options struct {
	Greeting        string
	Timeout         time.Duration // Per attempt, passed to the client
	MaxInputChars   int
	BreakerFailures int
	BreakerReset    time.Duration
}

// Engine handles core conversation logic independent of transport
type Engine struct {
	store          session.Store
	client         llm.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	greeting       string
	timeout        time.Duration
	maxInputChars  int
}

// NewEngine creates a new transport-agnostic chat engine
func NewEngine(store session.Store, client llm.Client, opts Options) *Engine {
	if opts.Greeting == "" {
		opts.Greeting = "Hello! How can I help you today?"
	}
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = 250
	}
	if opts.BreakerFailures <= 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerReset <= 0 {
		opts.BreakerReset = 5 * time.Minute
	}

	return &Engine{
		store:          store,
		client:         client,
		circuitBreaker: circuitbreaker.NewCircuitBreaker("lambda", opts.BreakerFailures, opts.BreakerReset),
		greeting:       opts.Greeting,
		timeout:        opts.Timeout,
		maxInputChars:  opts.MaxInputChars,
	}
}

// StartSession creates a conversation seeded with the greeting
func (e *Engine) StartSession(ctx context.Context) (*session.Session, error) {
	sess, err := e.store.Create(ctx, e.greeting)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	log.Printf("Started session: %s", sess.ID)
	return sess, nil
}

// ResetSession discards a conversation and starts a new one
func (e *Engine) ResetSession(ctx context.Context, id string) (*session.Session, error) {
	if id != "" {
		if err := e.store.Delete(ctx, id); err != nil {
			log.Printf("Failed to delete session %s: %v", id, err)
		}
	}
	return e.StartSession(ctx)
}

// History returns the conversation for rendering
func (e *Engine) History(ctx context.Context, id string) (*session.Session, error) {
	return e.store.Get(ctx, id)
}

// BreakerStats reports whether calls to the endpoint are currently allowed
// and how many have failed in a row
func (e *Engine) BreakerStats() (circuitbreaker.State, int) {
	state, failures, _ := e.circuitBreaker.Stats()
	return state, failures
}

// MaxInputChars returns the longest accepted message, in characters
func (e *Engine) MaxInputChars() int {
	return e.maxInputChars
}

// ValidateMessage checks a user message before it is processed
func (e *Engine) ValidateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: message is empty", ErrInvalidMessage)
	}
	if n := utf8.RuneCountInString(message); n > e.maxInputChars {
		return fmt.Errorf("%w: %d characters exceeds the limit of %d", ErrInvalidMessage, n, e.maxInputChars)
	}
	return nil
}

// ProcessMessage runs one conversational turn: it records the user message,
// obtains a reply and records exactly one assistant message. Failures of the
// endpoint surface as a fallback Reply, not as an error.
func (e *Engine) ProcessMessage(ctx context.Context, req ProcessRequest) (Reply, error) {
	message := strings.TrimSpace(req.Message)
	if err := e.ValidateMessage(message); err != nil {
		return Reply{}, err
	}

	log.Printf("Processing message: session=%s, length=%d, stream=%t", req.SessionID, len(message), req.Stream)
	if privacy.ContainsPII(message) {
		log.Printf("Warning: Potential PII detected in message for session=%s", req.SessionID)
	}

	ok, err := e.store.DisableInput(ctx, req.SessionID)
	if err != nil {
		return Reply{}, err
	}
	if !ok {
		return Reply{}, ErrInputDisabled
	}

	// Store writes past this point must land even if the caller goes away.
	storeCtx := context.WithoutCancel(ctx)
	defer func() {
		if err := e.store.SetInputEnabled(storeCtx, req.SessionID, true); err != nil {
			log.Printf("Failed to re-enable input for session=%s: %v", req.SessionID, err)
		}
	}()

	if err := e.store.Append(storeCtx, req.SessionID, llm.Message{Role: llm.RoleUser, Content: message}); err != nil {
		return Reply{}, fmt.Errorf("failed to save message: %w", err)
	}

	sess, err := e.store.Get(storeCtx, req.SessionID)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to load session: %w", err)
	}

	if err := req.Responder.SendThinking(); err != nil {
		log.Printf("Failed to send thinking indicator: %v", err)
	}

	var reply Reply
	if req.Stream {
		reply = e.streamReply(ctx, sess.Messages, req.Responder)
	} else {
		reply = e.completeReply(ctx, sess.Messages, req.Responder)
	}

	if reply.Err != nil {
		log.Printf("Reply failed for session=%s: %v", req.SessionID, reply.Err)
	} else {
		log.Printf("Reply received for session=%s: %d bytes", req.SessionID, len(reply.Content))
	}

	if err := e.store.Append(storeCtx, req.SessionID, llm.Message{Role: llm.RoleAssistant, Content: reply.Content}); err != nil {
		return reply, fmt.Errorf("failed to save reply: %w", err)
	}

	return reply, req.Responder.SendDone()
}

func (e *Engine) completeReply(ctx context.Context, history []llm.Message, r Responder) Reply {
	var text string
	err := e.circuitBreaker.Call(func() error {
		var err error
		text, err = e.client.Complete(ctx, history, e.timeout)
		return err
	})
	if err != nil {
		return e.fallbackReply(err, r)
	}

	if err := r.SendMessage(text); err != nil {
		log.Printf("Failed to send message: %v", err)
	}
	return Reply{Content: text}
}

// streamReply relays the stream chunk by chunk. The breaker sees the
// outcome of the whole stream, including errors reported after it opened.
func (e *Engine) streamReply(ctx context.Context, history []llm.Message, r Responder) Reply {
	var content strings.Builder
	err := e.circuitBreaker.Call(func() error {
		stream, err := e.client.CompleteStream(ctx, history, e.timeout)
		if err != nil {
			return err
		}

		var last error
		for chunk := range stream {
			if chunk.Text != "" {
				content.WriteString(chunk.Text)
				if err := r.SendMessage(chunk.Text); err != nil {
					log.Printf("Failed to send chunk: %v", err)
				}
			}
			last = chunk.Err
		}
		if last == nil && ctx.Err() != nil {
			last = fmt.Errorf("chat completion aborted: %w", ctx.Err())
		}
		return last
	})

	var remote *llm.RemoteError
	switch {
	case err == nil:
		return Reply{Content: content.String()}
	case errors.As(err, &remote):
		// The endpoint's message was already delivered as reply text.
		return Reply{Content: content.String(), Err: err}
	case content.Len() > 0:
		if err := r.SendError(fallback.ForError(err).Content); err != nil {
			log.Printf("Failed to send error: %v", err)
		}
		return Reply{Content: content.String(), Err: err}
	default:
		return e.fallbackReply(err, r)
	}
}

func (e *Engine) fallbackReply(err error, r Responder) Reply {
	fb := fallback.ForError(err)
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		log.Printf("Circuit breaker open, using fallback response")
	}
	if sendErr := r.SendError(fb.Content); sendErr != nil {
		log.Printf("Failed to send error: %v", sendErr)
	}
	return Reply{Content: fb.Content, Fallback: true, Err: err}
}
