package session

import (
	"context"
	"errors"
	"time"

	"github.com/themobileprof/lambdachat/pkg/llm"
)

var (
	ErrNotFound = errors.New("session not found")
)

// Session is one interactive user's conversation.
// Messages[0] is always the assistant greeting.
type Session struct {
	ID           string        `json:"id"`
	Messages     []llm.Message `json:"messages"`
	InputEnabled bool          `json:"input_enabled"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Store holds sessions for the lifetime of their TTL
type Store interface {
	// Create starts a session whose history holds only the greeting
	Create(ctx context.Context, greeting string) (*Session, error)

	// Get returns a copy of the session or ErrNotFound
	Get(ctx context.Context, id string) (*Session, error)

	// Append adds a message to the end of the history
	Append(ctx context.Context, id string, msg llm.Message) error

	// SetInputEnabled sets the input flag unconditionally
	SetInputEnabled(ctx context.Context, id string, enabled bool) error

	// DisableInput atomically flips input from enabled to disabled.
	// It reports false when input was already disabled.
	DisableInput(ctx context.Context, id string) (bool, error)

	// Delete removes the session
	Delete(ctx context.Context, id string) error
}
