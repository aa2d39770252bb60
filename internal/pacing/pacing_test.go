package pacing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{5, 45 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(2*time.Second, tt.attempt, 45*time.Second); got != tt.want {
			t.Errorf("Backoff(2s, %d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRand_Between(t *testing.T) {
	r := NewRand(42)
	for i := 0; i < 100; i++ {
		d := r.Between(800*time.Millisecond, 2400*time.Millisecond)
		if d < 800*time.Millisecond || d >= 2400*time.Millisecond {
			t.Fatalf("Between = %v, out of range", d)
		}
	}
	if got := r.Between(time.Second, time.Second); got != time.Second {
		t.Errorf("Between(1s, 1s) = %v, want 1s", got)
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() error = %v, want context.Canceled", err)
	}
}
