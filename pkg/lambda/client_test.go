package lambda

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/themobileprof/lambdachat/pkg/llm"
)

var testHistory = []llm.Message{
	{Role: llm.RoleAssistant, Content: "Hi! How can I help?"},
	{Role: llm.RoleUser, Content: "Hello"},
}

// newTestClient returns a client with millisecond waits so retry tests stay fast
func newTestClient(url string) *HTTPClient {
	return NewHTTPClient(Config{
		APIKey:      "test-api-key",
		URL:         url,
		Model:       "gpt-4o-mini",
		Timeout:     2 * time.Second,
		InitialWait: time.Millisecond,
		MaxWait:     5 * time.Millisecond,
	})
}

func TestNewHTTPClient(t *testing.T) {
	tests := []struct {
		name            string
		config          Config
		wantContentType string
		wantModel       string
		wantTimeout     time.Duration
		wantAttempts    uint
		wantMaxWait     time.Duration
	}{
		{
			name: "default configuration",
			config: Config{
				APIKey: "test-key",
				URL:    "https://lambda.example.com/chat",
			},
			wantContentType: "application/json",
			wantModel:       "gpt-4o-mini",
			wantTimeout:     30 * time.Second,
			wantAttempts:    3,
			wantMaxWait:     15 * time.Second,
		},
		{
			name: "custom configuration",
			config: Config{
				APIKey:      "test-key",
				URL:         "https://lambda.example.com/chat",
				ContentType: "application/json; charset=utf-8",
				Model:       "gpt-4o",
				Timeout:     60 * time.Second,
				MaxAttempts: 5,
				MaxWait:     10 * time.Second,
			},
			wantContentType: "application/json; charset=utf-8",
			wantModel:       "gpt-4o",
			wantTimeout:     60 * time.Second,
			wantAttempts:    5,
			wantMaxWait:     10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewHTTPClient(tt.config)

			if client == nil {
				t.Fatal("NewHTTPClient() returned nil")
			}
			if got := client.headers.Get("Content-Type"); got != tt.wantContentType {
				t.Errorf("Content-Type = %v, want %v", got, tt.wantContentType)
			}
			if got := client.headers.Get("X-Api-Key"); got != tt.config.APIKey {
				t.Errorf("X-Api-Key = %v, want %v", got, tt.config.APIKey)
			}
			if client.model != tt.wantModel {
				t.Errorf("model = %v, want %v", client.model, tt.wantModel)
			}
			if client.timeout != tt.wantTimeout {
				t.Errorf("timeout = %v, want %v", client.timeout, tt.wantTimeout)
			}
			if client.retry.maxAttempts != tt.wantAttempts {
				t.Errorf("maxAttempts = %v, want %v", client.retry.maxAttempts, tt.wantAttempts)
			}
			if client.retry.maxWait != tt.wantMaxWait {
				t.Errorf("maxWait = %v, want %v", client.retry.maxWait, tt.wantMaxWait)
			}
		})
	}
}

func TestHTTPClient_Complete(t *testing.T) {
	tests := []struct {
		name         string
		failures     int32 // leading attempts answered with 503
		body         string
		wantReply    string
		wantErr      error
		wantAttempts int32
	}{
		{
			name:         "successful completion",
			body:         `{"data": "Hello! How can I help you today?"}`,
			wantReply:    "Hello! How can I help you today?",
			wantAttempts: 1,
		},
		{
			name:         "fails twice then recovers",
			failures:     2,
			body:         `{"data": "recovered"}`,
			wantReply:    "recovered",
			wantAttempts: 3,
		},
		{
			name:         "fails on every attempt",
			failures:     10,
			wantReply:    llm.FallbackMessage,
			wantErr:      llm.ErrUnavailable,
			wantAttempts: 3,
		},
		{
			name:         "malformed JSON is not retried",
			body:         `{invalid json}`,
			wantReply:    llm.FallbackMessage,
			wantErr:      llm.ErrMalformedResponse,
			wantAttempts: 1,
		},
		{
			name:         "missing data field is not retried",
			body:         `{"message": "hi"}`,
			wantReply:    llm.FallbackMessage,
			wantErr:      llm.ErrMalformedResponse,
			wantAttempts: 1,
		},
		{
			name:         "non-string data field",
			body:         `{"data": 42}`,
			wantReply:    llm.FallbackMessage,
			wantErr:      llm.ErrMalformedResponse,
			wantAttempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := attempts.Add(1)
				if n <= tt.failures {
					w.WriteHeader(http.StatusServiceUnavailable)
					w.Write([]byte(`{"message": "Service Unavailable"}`))
					return
				}
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestClient(server.URL)
			reply, err := client.Complete(context.Background(), testHistory, 0)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Complete() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Complete() error = %v", err)
			}

			if reply != tt.wantReply {
				t.Errorf("reply = %q, want %q", reply, tt.wantReply)
			}
			if got := attempts.Load(); got != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", got, tt.wantAttempts)
			}
		})
	}
}

func TestHTTPClient_Complete_ExhaustionCarriesAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	reply, err := client.Complete(context.Background(), testHistory, 0)

	if reply != llm.FallbackMessage {
		t.Errorf("reply = %q, want fallback", reply)
	}

	var unavailable *llm.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("error = %v, want *llm.UnavailableError", err)
	}
	if unavailable.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", unavailable.Attempts)
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Errorf("expected wrapped StatusError with 502, got %v", err)
	}
}

func TestHTTPClient_Complete_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(url)
	reply, err := client.Complete(context.Background(), testHistory, 0)

	if !errors.Is(err, llm.ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
	if reply != llm.FallbackMessage {
		t.Errorf("reply = %q, want fallback", reply)
	}
}

func TestHTTPClient_Complete_AttemptTimeout(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), testHistory, 20*time.Millisecond)

	if !errors.Is(err, llm.ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want wrapped DeadlineExceeded", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestHTTPClient_Complete_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(server.URL)
	reply, err := client.Complete(ctx, testHistory, 0)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if errors.Is(err, llm.ErrUnavailable) {
		t.Error("a canceled call should not be reported as unavailable")
	}
	if reply != llm.FallbackMessage {
		t.Errorf("reply = %q, want fallback", reply)
	}
}

func TestHTTPClient_Complete_EmptyHistory(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), nil, 0)

	if !errors.Is(err, llm.ErrEmptyHistory) {
		t.Errorf("error = %v, want ErrEmptyHistory", err)
	}
	if attempts.Load() != 0 {
		t.Error("no request should be sent for an empty history")
	}
}

type capturedRequest struct {
	method      string
	contentType string
	apiKey      string
	body        map[string]any
}

func TestHTTPClient_Complete_RequestShape(t *testing.T) {
	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		captured = append(captured, capturedRequest{
			method:      r.Method,
			contentType: r.Header.Get("Content-Type"),
			apiKey:      r.Header.Get("x-api-key"),
			body:        body,
		})
		w.Write([]byte(`{"data": "ok"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(Config{
		APIKey:       "secret-key",
		URL:          server.URL,
		Model:        "gpt-4o-mini",
		IndexName:    "docs-index",
		Instructions: "Answer from the docs.",
	})

	for i := 0; i < 2; i++ {
		if _, err := client.Complete(context.Background(), testHistory, 0); err != nil {
			t.Fatalf("Complete() call %d error = %v", i, err)
		}
	}

	if len(captured) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(captured))
	}

	first := captured[0]
	if first.method != http.MethodPost {
		t.Errorf("method = %s, want POST", first.method)
	}
	if first.contentType != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", first.contentType)
	}
	if first.apiKey != "secret-key" {
		t.Errorf("x-api-key = %s, want secret-key", first.apiKey)
	}
	if first.body["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v, want gpt-4o-mini", first.body["model"])
	}
	if first.body["index_name"] != "docs-index" {
		t.Errorf("index_name = %v, want docs-index", first.body["index_name"])
	}

	messages, ok := first.body["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("messages = %v, want 2 entries", first.body["messages"])
	}
	instruction := messages[0].(map[string]any)
	if instruction["role"] != "developer" || instruction["content"] != "Answer from the docs." {
		t.Errorf("first message = %v, want developer instruction", instruction)
	}
	user := messages[1].(map[string]any)
	if user["role"] != "user" || user["content"] != "Hello" {
		t.Errorf("second message = %v, want user Hello", user)
	}

	// Reusing the client yields an identical request
	second := captured[1]
	firstJSON, _ := json.Marshal(first.body)
	secondJSON, _ := json.Marshal(second.body)
	if string(firstJSON) != string(secondJSON) {
		t.Errorf("request bodies differ between calls:\n%s\n%s", firstJSON, secondJSON)
	}
	if first.apiKey != second.apiKey || first.contentType != second.contentType {
		t.Error("request headers differ between calls")
	}
}

func TestHTTPClient_Complete_OmitsEmptyIndexName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["index_name"]; ok {
			t.Errorf("index_name should be omitted, got %v", body["index_name"])
		}
		w.Write([]byte(`{"data": "ok"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if _, err := client.Complete(context.Background(), testHistory, 0); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
}
