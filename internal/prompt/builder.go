package prompt

import (
	"fmt"

	"github.com/themobileprof/lambdachat/pkg/llm"
)

// Builder turns a session history into the message list sent to the endpoint.
//
// The first history entry is the greeting shown to the user and is never
// sent. When instructions are configured they are prepended as a developer
// message; every later entry follows verbatim and in order.
type Builder struct {
	instructions string
}

// NewBuilder creates a new prompt builder
func NewBuilder(instructions string) *Builder {
	return &Builder{instructions: instructions}
}

// Instructions returns the developer instruction, if any
func (b *Builder) Instructions() string {
	return b.instructions
}

// BuildMessages constructs the outbound message list from the history.
// The result never aliases history.
func (b *Builder) BuildMessages(history []llm.Message) ([]llm.Message, error) {
	if len(history) == 0 {
		return nil, llm.ErrEmptyHistory
	}

	rest := history[1:]
	messages := make([]llm.Message, 0, len(rest)+1)

	if b.instructions != "" {
		messages = append(messages, llm.Message{
			Role:    llm.RoleDeveloper,
			Content: b.instructions,
		})
	}

	for i, msg := range rest {
		if !msg.Role.Valid() {
			return nil, fmt.Errorf("history[%d]: %w: %q", i+1, llm.ErrInvalidRole, msg.Role)
		}
		messages = append(messages, msg)
	}

	if len(messages) == 0 {
		return nil, llm.ErrEmptyHistory
	}

	return messages, nil
}
