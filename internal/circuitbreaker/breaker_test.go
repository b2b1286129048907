package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

func fail() error    { return errUpstream }
func succeed() error { return nil }

func TestCircuitBreaker_TripsAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)

	for i := 0; i < 3; i++ {
		if err := cb.Call(fail); !errors.Is(err, errUpstream) {
			t.Fatalf("call %d error = %v, want upstream error", i, err)
		}
	}

	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	called := false
	err := cb.Call(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Call() on open circuit error = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("function must not run while the circuit is open")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Minute)

	cb.Call(fail)
	cb.Call(fail)
	cb.Call(succeed)
	cb.Call(fail)

	state, failures, _ := cb.Stats()
	if state != StateClosed {
		t.Errorf("state = %v, want closed", state)
	}
	if failures != 1 {
		t.Errorf("failures = %d, want 1", failures)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	tests := []struct {
		name      string
		trial     func() error
		wantState State
	}{
		{name: "successful trial closes", trial: succeed, wantState: StateClosed},
		{name: "failed trial reopens", trial: fail, wantState: StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := NewCircuitBreaker("test", 1, 20*time.Millisecond)
			cb.Call(fail)
			if cb.State() != StateOpen {
				t.Fatalf("State() = %v, want open", cb.State())
			}

			time.Sleep(40 * time.Millisecond)
			if cb.State() != StateHalfOpen {
				t.Fatalf("State() after timeout = %v, want half-open", cb.State())
			}

			cb.Call(tt.trial)
			if cb.State() != tt.wantState {
				t.Errorf("State() = %v, want %v", cb.State(), tt.wantState)
			}
		})
	}
}

func TestCircuitBreaker_CanceledCallsDoNotTrip(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, time.Minute)

	for i := 0; i < 5; i++ {
		err := cb.Call(func() error {
			return fmt.Errorf("chat completion aborted: %w", context.Canceled)
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
	}

	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateHalfOpen, "half-open"},
		{StateOpen, "open"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
