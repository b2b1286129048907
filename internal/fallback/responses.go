package fallback

import (
	"errors"

	"github.com/themobileprof/lambdachat/internal/circuitbreaker"
	"github.com/themobileprof/lambdachat/pkg/llm"
)

// Response represents a fallback response
type Response struct {
	Content string
	Action  string // "retry", "wait"
}

const (
	ActionRetry = "retry"
	ActionWait  = "wait"
)

var circuitOpenResponse = Response{
	Content: "I'm temporarily unavailable due to technical difficulties. Please try again in a little while.",
	Action:  ActionWait,
}

// ForError returns the assistant message shown in place of a reply that
// failed with err
func ForError(err error) Response {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return circuitOpenResponse
	}
	return Response{Content: llm.FallbackMessage, Action: ActionRetry}
}
