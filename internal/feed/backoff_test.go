package feed

import (
	"testing"
	"time"
)

func TestBackoff_Next(t *testing.T) {
	b := DefaultBackoff()

	wantDelays := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		15 * time.Second,
		15 * time.Second,
		15 * time.Second,
		15 * time.Second,
	}
	wantAttempts := []int{1, 2, 3, 4, 5, 6, 6}

	attempts := 0
	for i := range wantDelays {
		var d time.Duration
		attempts, d = b.Next(attempts)
		if attempts != wantAttempts[i] {
			t.Errorf("step %d: attempts = %d, want %d", i, attempts, wantAttempts[i])
		}
		if d != wantDelays[i] {
			t.Errorf("step %d: delay = %v, want %v", i, d, wantDelays[i])
		}
	}

	// Reset on open.
	if n, d := b.Next(0); n != 1 || d != 2*time.Second {
		t.Errorf("Next(0) = %d, %v; want 1, 2s", n, d)
	}
}

func TestBackoff_Delay(t *testing.T) {
	tests := []struct {
		name     string
		b        Backoff
		attempts int
		want     time.Duration
	}{
		{"zero attempts is base", DefaultBackoff(), 0, time.Second},
		{"capped", DefaultBackoff(), 10, 15 * time.Second},
		{"custom base", Backoff{Base: 100 * time.Millisecond, Max: time.Second}, 3, 800 * time.Millisecond},
		{"custom cap", Backoff{Base: 100 * time.Millisecond, Max: time.Second}, 4, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.Delay(tt.attempts); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempts, got, tt.want)
			}
		})
	}
}

func TestBackoff_NoAttemptCap(t *testing.T) {
	b := Backoff{Base: time.Second, Max: time.Minute}
	if n, _ := b.Next(9); n != 10 {
		t.Errorf("Next(9) attempts = %d, want 10", n)
	}
}
