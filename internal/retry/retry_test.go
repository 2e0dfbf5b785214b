package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), Options{Attempts: 3}, func(attempt int) (string, error) {
		calls++
		return "ok", nil
	}, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "ok" {
		t.Errorf("got %q, want %q", v, "ok")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_PermanentError_InvokedExactlyAttemptsTimes(t *testing.T) {
	calls := 0
	boom := errors.New("boom")

	start := time.Now()
	_, err := Do(context.Background(), Options{Attempts: 3, Delay: 100 * time.Millisecond}, func(attempt int) (int, error) {
		calls++
		if attempt != calls {
			t.Errorf("attempt number: got %d, want %d", attempt, calls)
		}
		return 0, boom
	}, nil)
	elapsed := time.Since(start)

	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped boom, got %v", err)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("error should carry attempt count, got %v", err)
	}

	// Linear backoff: 100ms + 200ms between the three attempts.
	if elapsed < 300*time.Millisecond {
		t.Errorf("total wait too short: %v", elapsed)
	}
	if elapsed > 600*time.Millisecond {
		t.Errorf("total wait too long: %v", elapsed)
	}
}

func TestDo_ErrorThenSuccess(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), Options{Attempts: 3, Delay: time.Millisecond}, func(attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", errors.New("transient")
		}
		return "recovered", nil
	}, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "recovered" {
		t.Errorf("got %q, want %q", v, "recovered")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_SoftFailThrough(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), Options{Attempts: 3, Delay: time.Millisecond}, func(attempt int) (string, error) {
		calls++
		return "", nil
	}, func(s string) bool { return s == "" })

	if err != nil {
		t.Fatalf("soft failure must not raise, got %v", err)
	}
	if v != "" {
		t.Errorf("expected the sentinel value back, got %q", v)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_SoftFailThenSuccess(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), Options{Attempts: 3, Delay: time.Millisecond}, func(attempt int) (string, error) {
		calls++
		if attempt == 1 {
			return "", nil
		}
		return "evt-42", nil
	}, func(s string) bool { return s == "" })

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "evt-42" {
		t.Errorf("got %q, want %q", v, "evt-42")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDo_PanicNormalization(t *testing.T) {
	tests := []struct {
		name  string
		panic interface{}
		want  string
	}{
		{"error value", errors.New("bad state"), "bad state"},
		{"string value", "raw message", "raw message"},
		{"struct value", struct {
			Code int `json:"code"`
		}{Code: 7}, `{"code":7}`},
		{"unserializable value", func() {}, "operation failed with unserializable value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Do(context.Background(), Options{Attempts: 1}, func(attempt int) (int, error) {
				panic(tt.panic)
			}, nil)

			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestDo_PanicMidRunIsSwallowed(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), Options{Attempts: 2, Delay: time.Millisecond}, func(attempt int) (string, error) {
		calls++
		if attempt == 1 {
			panic("first attempt blows up")
		}
		return "fine", nil
	}, nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "fine" {
		t.Errorf("got %q, want %q", v, "fine")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDo_ContextCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := Do(ctx, Options{Attempts: 5, Delay: time.Minute}, func(attempt int) (int, error) {
			calls++
			return 0, fmt.Errorf("always failing")
		}, nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel")
	}

	if calls != 1 {
		t.Errorf("expected 1 call before cancel, got %d", calls)
	}
}

func TestDo_DefaultsApplied(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Options{Delay: time.Millisecond}, func(attempt int) (int, error) {
		calls++
		return 0, errors.New("nope")
	}, nil)

	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != DefaultAttempts {
		t.Errorf("expected %d calls with zero Attempts, got %d", DefaultAttempts, calls)
	}
}
