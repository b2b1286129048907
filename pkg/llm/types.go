package llm

import "fmt"

// Role identifies the author of a message
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
	RoleDeveloper Role = "developer"
)

// Valid reports whether r is one of the roles the endpoint accepts
func (r Role) Valid() bool {
	switch r {
	case RoleAssistant, RoleUser, RoleDeveloper:
		return true
	default:
		return false
	}
}

// Message represents a message in the conversation
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewMessage builds a message, rejecting unknown roles
func NewMessage(role Role, content string) (Message, error) {
	if !role.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return Message{Role: role, Content: content}, nil
}

// Chunk is one piece of a streamed reply.
// Text may be set together with Err when the endpoint reports an error
// payload; such a chunk terminates the stream.
type Chunk struct {
	Text string
	Err  error
}
