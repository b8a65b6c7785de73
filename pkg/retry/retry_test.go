package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:   maxRetries,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", cfg.MaxRetries)
	}
	if cfg.InitialDelay != 100*time.Millisecond {
		t.Errorf("expected InitialDelay=100ms, got %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 5*time.Second {
		t.Errorf("expected MaxDelay=5s, got %v", cfg.MaxDelay)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("expected Multiplier=2.0, got %f", cfg.Multiplier)
	}
}

func TestDo(t *testing.T) {
	t.Run("first call succeeds", func(t *testing.T) {
		callCount := 0
		err := Do(context.Background(), fastConfig(3), func() error {
			callCount++
			return nil
		})
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		if callCount != 1 {
			t.Errorf("expected 1 call, got %d", callCount)
		}
	})

	t.Run("succeeds after retries", func(t *testing.T) {
		callCount := 0
		err := Do(context.Background(), fastConfig(3), func() error {
			callCount++
			if callCount < 3 {
				return errors.New("transient error")
			}
			return nil
		})
		if err != nil {
			t.Errorf("expected no error after retries, got %v", err)
		}
		if callCount != 3 {
			t.Errorf("expected 3 calls, got %d", callCount)
		}
	})

	t.Run("returns last error when exhausted", func(t *testing.T) {
		expectedErr := errors.New("persistent error")
		callCount := 0
		err := Do(context.Background(), fastConfig(2), func() error {
			callCount++
			return expectedErr
		})
		if err != expectedErr {
			t.Errorf("expected %v, got %v", expectedErr, err)
		}
		// initial attempt + 2 retries
		if callCount != 3 {
			t.Errorf("expected 3 calls, got %d", callCount)
		}
	})

	t.Run("context cancellation stops waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cfg := &Config{MaxRetries: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}

		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		callCount := 0
		start := time.Now()
		err := Do(ctx, cfg, func() error {
			callCount++
			return errors.New("error")
		})

		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if callCount != 1 {
			t.Errorf("expected 1 call, got %d", callCount)
		}
		if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
			t.Errorf("expected quick cancellation, took %v", elapsed)
		}
	})

	t.Run("nil config uses defaults", func(t *testing.T) {
		callCount := 0
		err := Do(context.Background(), nil, func() error {
			callCount++
			return nil
		})
		if err != nil || callCount != 1 {
			t.Errorf("expected 1 clean call, got count=%d err=%v", callCount, err)
		}
	})
}

func TestDo_BackoffProgression(t *testing.T) {
	cfg := &Config{
		MaxRetries:   3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		Multiplier:   2.0,
	}

	var callTimes []time.Time
	err := Do(context.Background(), cfg, func() error {
		callTimes = append(callTimes, time.Now())
		return errors.New("error")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if len(callTimes) != 4 {
		t.Fatalf("expected 4 calls, got %d", len(callTimes))
	}

	// 50ms, 100ms, 200ms with tolerance for scheduler wobble
	wantDelays := []struct{ lo, hi time.Duration }{
		{45 * time.Millisecond, 70 * time.Millisecond},
		{90 * time.Millisecond, 130 * time.Millisecond},
		{180 * time.Millisecond, 240 * time.Millisecond},
	}
	for i, want := range wantDelays {
		got := callTimes[i+1].Sub(callTimes[i])
		if got < want.lo || got > want.hi {
			t.Errorf("delay %d: expected %v..%v, got %v", i+1, want.lo, want.hi, got)
		}
	}
}

func TestDo_MaxDelayRespected(t *testing.T) {
	cfg := &Config{
		MaxRetries:   5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     150 * time.Millisecond,
		Multiplier:   2.0,
	}

	var callTimes []time.Time
	_ = Do(context.Background(), cfg, func() error {
		callTimes = append(callTimes, time.Now())
		return errors.New("error")
	})

	for i := 1; i < len(callTimes); i++ {
		if delay := callTimes[i].Sub(callTimes[i-1]); delay > 200*time.Millisecond {
			t.Errorf("delay %v exceeds MaxDelay (150ms) by too much", delay)
		}
	}
}

func TestDoWithResult(t *testing.T) {
	t.Run("returns value on success", func(t *testing.T) {
		result, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
			return "success", nil
		})
		if err != nil || result != "success" {
			t.Errorf("expected success, got result=%q err=%v", result, err)
		}
	})

	t.Run("returns value after retries", func(t *testing.T) {
		callCount := 0
		result, err := DoWithResult(context.Background(), fastConfig(3), func() (int, error) {
			callCount++
			if callCount < 3 {
				return 0, errors.New("transient error")
			}
			return 42, nil
		})
		if err != nil || result != 42 {
			t.Errorf("expected 42, got result=%d err=%v", result, err)
		}
	})

	t.Run("keeps last result on exhaustion", func(t *testing.T) {
		expectedErr := errors.New("persistent error")
		result, err := DoWithResult(context.Background(), fastConfig(2), func() (string, error) {
			return "partial", expectedErr
		})
		if err != expectedErr {
			t.Errorf("expected %v, got %v", expectedErr, err)
		}
		if result != "partial" {
			t.Errorf("expected partial result, got %q", result)
		}
	})
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("connection refused"), true},
		{"uppercase variant", errors.New("Connection Refused"), true},
		{"connection reset", errors.New("connection reset by peer"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"no such host", errors.New("no such host"), true},
		{"deadline", errors.New("context deadline exceeded: timeout"), true},
		{"io timeout", errors.New("i/o timeout"), true},
		{"network unreachable", errors.New("network is unreachable"), true},
		{"too many connections", errors.New("too many connections"), true},
		{"deadlock", errors.New("deadlock detected"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"http 503", errors.New("unexpected status 503"), true},
		{"auth error", errors.New("authentication failed"), false},
		{"permission denied", errors.New("permission denied"), false},
		{"syntax error", errors.New("syntax error at position 10"), false},
		{"not found", errors.New("table not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

type explicitRetryable struct{ retryable bool }

func (e *explicitRetryable) Error() string     { return "explicit" }
func (e *explicitRetryable) IsRetryable() bool { return e.retryable }

func TestIsRetryable_ExplicitInterface(t *testing.T) {
	if !IsRetryable(&explicitRetryable{retryable: true}) {
		t.Error("expected retryable=true to be honored")
	}
	if IsRetryable(&explicitRetryable{retryable: false}) {
		t.Error("expected retryable=false to be honored")
	}
}

func TestDoIfRetryable(t *testing.T) {
	t.Run("retries transient errors", func(t *testing.T) {
		callCount := 0
		err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
			callCount++
			if callCount < 3 {
				return errors.New("connection timeout")
			}
			return nil
		})
		if err != nil || callCount != 3 {
			t.Errorf("expected success after 3 calls, got count=%d err=%v", callCount, err)
		}
	})

	t.Run("permanent errors return immediately", func(t *testing.T) {
		expectedErr := errors.New("authentication failed")
		callCount := 0
		err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
			callCount++
			return expectedErr
		})
		if err != expectedErr {
			t.Errorf("expected %v, got %v", expectedErr, err)
		}
		if callCount != 1 {
			t.Errorf("expected 1 call, got %d", callCount)
		}
	})

	t.Run("exhausts budget on persistent transient error", func(t *testing.T) {
		expectedErr := errors.New("connection refused")
		callCount := 0
		err := DoIfRetryable(context.Background(), fastConfig(2), func() error {
			callCount++
			return expectedErr
		})
		if err != expectedErr {
			t.Errorf("expected %v, got %v", expectedErr, err)
		}
		if callCount != 3 {
			t.Errorf("expected 3 calls, got %d", callCount)
		}
	})

	t.Run("escalates repeated same-type errors to permanent", func(t *testing.T) {
		cfg := fastConfig(10)
		cfg.MaxSameErrorType = 3

		callCount := 0
		err := DoIfRetryable(context.Background(), cfg, func() error {
			callCount++
			return errors.New("request failed with status 503")
		})
		if err == nil {
			t.Fatal("expected escalated error")
		}
		if callCount != 3 {
			t.Errorf("expected escalation after 3 calls, got %d", callCount)
		}
		if !strings.Contains(err.Error(), "repeated error") {
			t.Errorf("expected escalation message, got %q", err.Error())
		}
	})
}
