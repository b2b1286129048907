package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/themobileprof/lambdachat/pkg/llm"
)

// runStoreTests exercises the Store contract against any implementation
func runStoreTests(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("create starts with greeting", func(t *testing.T) {
		sess, err := store.Create(ctx, "Hi! How can I help?")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if sess.ID == "" {
			t.Fatal("Expected session ID")
		}
		if !sess.InputEnabled {
			t.Error("Expected input enabled on a new session")
		}

		loaded, err := store.Get(ctx, sess.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if len(loaded.Messages) != 1 {
			t.Fatalf("Expected 1 message, got %d", len(loaded.Messages))
		}
		if loaded.Messages[0].Role != llm.RoleAssistant || loaded.Messages[0].Content != "Hi! How can I help?" {
			t.Errorf("Unexpected greeting: %+v", loaded.Messages[0])
		}
	})

	t.Run("append preserves order", func(t *testing.T) {
		sess, _ := store.Create(ctx, "Hello")

		messages := []llm.Message{
			{Role: llm.RoleUser, Content: "Message 1"},
			{Role: llm.RoleAssistant, Content: "Response 1"},
			{Role: llm.RoleUser, Content: "Message 2"},
		}
		for _, msg := range messages {
			if err := store.Append(ctx, sess.ID, msg); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
		}

		loaded, _ := store.Get(ctx, sess.ID)
		if len(loaded.Messages) != 4 {
			t.Fatalf("Expected 4 messages, got %d", len(loaded.Messages))
		}
		for i, msg := range messages {
			if loaded.Messages[i+1] != msg {
				t.Errorf("message[%d] = %+v, want %+v", i+1, loaded.Messages[i+1], msg)
			}
		}
	})

	t.Run("input flag", func(t *testing.T) {
		sess, _ := store.Create(ctx, "Hello")

		ok, err := store.DisableInput(ctx, sess.ID)
		if err != nil || !ok {
			t.Fatalf("DisableInput() = (%v, %v), want (true, nil)", ok, err)
		}

		ok, err = store.DisableInput(ctx, sess.ID)
		if err != nil || ok {
			t.Fatalf("second DisableInput() = (%v, %v), want (false, nil)", ok, err)
		}

		loaded, _ := store.Get(ctx, sess.ID)
		if loaded.InputEnabled {
			t.Error("Expected input disabled")
		}

		if err := store.SetInputEnabled(ctx, sess.ID, true); err != nil {
			t.Fatalf("SetInputEnabled() error = %v", err)
		}
		loaded, _ = store.Get(ctx, sess.ID)
		if !loaded.InputEnabled {
			t.Error("Expected input enabled")
		}
	})

	t.Run("concurrent disable admits one caller", func(t *testing.T) {
		sess, _ := store.Create(ctx, "Hello")

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := store.DisableInput(ctx, sess.ID); ok {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if winners != 1 {
			t.Errorf("Expected exactly 1 caller to disable input, got %d", winners)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		if _, err := store.Get(ctx, "does-not-exist"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
		if err := store.Append(ctx, "does-not-exist", llm.Message{Role: llm.RoleUser}); !errors.Is(err, ErrNotFound) {
			t.Errorf("Append() error = %v, want ErrNotFound", err)
		}
		if _, err := store.DisableInput(ctx, "does-not-exist"); !errors.Is(err, ErrNotFound) {
			t.Errorf("DisableInput() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		sess, _ := store.Create(ctx, "Hello")
		if err := store.Delete(ctx, sess.ID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
		}
	})
}
