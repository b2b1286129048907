package lambda

import (
	"encoding/json"
	"fmt"

	"github.com/themobileprof/lambdachat/pkg/llm"
)

// completionRequest is the JSON body posted to the endpoint
type completionRequest struct {
	Model     string        `json:"model"`
	Messages  []llm.Message `json:"messages"`
	IndexName string        `json:"index_name,omitempty"`
}

// completionResponse is the non-streaming reply body
type completionResponse struct {
	Data *string `json:"data"`
}

// streamError is the object form of a stream line
type streamError struct {
	Error *string `json:"error"`
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// decodeCompletion extracts the reply text from a non-streaming body
func decodeCompletion(body []byte) (string, error) {
	var resp completionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)
	}
	if resp.Data == nil {
		return "", fmt.Errorf("%w: missing data field", llm.ErrMalformedResponse)
	}
	return *resp.Data, nil
}

// decodeStreamLine converts one NDJSON line into a chunk.
// last reports whether the stream must stop after this chunk.
func decodeStreamLine(line []byte) (chunk llm.Chunk, last bool) {
	switch line[0] {
	case '"':
		var text string
		if err := json.Unmarshal(line, &text); err != nil {
			return llm.Chunk{Err: fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)}, true
		}
		return llm.Chunk{Text: text}, false

	case '{':
		var payload streamError
		if err := json.Unmarshal(line, &payload); err != nil {
			return llm.Chunk{Err: fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)}, true
		}
		if payload.Error == nil {
			return llm.Chunk{Err: fmt.Errorf("%w: object chunk without error field", llm.ErrMalformedResponse)}, true
		}
		return llm.Chunk{
			Text: *payload.Error,
			Err:  &llm.RemoteError{Message: *payload.Error},
		}, true
	}

	return llm.Chunk{Err: fmt.Errorf("%w: unexpected stream value %.40q", llm.ErrMalformedResponse, line)}, true
}
