package llm

import (
	"context"
	"time"
)

// Client interface for chat-completion endpoint interactions
type Client interface {
	// Complete sends the history and returns the assistant reply.
	// On failure the returned text is still displayable (FallbackMessage).
	Complete(ctx context.Context, history []Message, timeout time.Duration) (string, error)

	// CompleteStream sends the history and returns reply chunks as they arrive.
	// The channel is closed at end of stream; a chunk with Err set is always the last one.
	CompleteStream(ctx context.Context, history []Message, timeout time.Duration) (<-chan Chunk, error)
}
