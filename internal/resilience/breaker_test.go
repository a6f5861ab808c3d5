package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/andrifran123/ellie-call/internal/resilience"
)

var errBoom = errors.New("boom")

func fail() error { return errBoom }
func ok() error   { return nil }

func TestBreakerForwardsWhileClosed(t *testing.T) {
	t.Parallel()

	b := resilience.New(resilience.Config{Name: "test"})
	for i := 0; i < 10; i++ {
		if err := b.Do(ok); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}
	if b.Tripped() {
		t.Error("breaker tripped after successful calls")
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	t.Parallel()

	b := resilience.New(resilience.Config{Threshold: 3, Cooldown: time.Hour})
	for i := 0; i < 3; i++ {
		if err := b.Do(fail); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: got %v, want %v", i, err, errBoom)
		}
	}
	if !b.Tripped() {
		t.Fatal("breaker still closed after threshold failures")
	}

	calls := 0
	err := b.Do(func() error { calls++; return nil })
	if !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("open breaker returned %v, want ErrOpen", err)
	}
	if calls != 0 {
		t.Errorf("open breaker forwarded %d calls, want 0", calls)
	}
}

func TestBreakerFailureCountResetsOnSuccess(t *testing.T) {
	t.Parallel()

	b := resilience.New(resilience.Config{Threshold: 3, Cooldown: time.Hour})
	for i := 0; i < 5; i++ {
		_ = b.Do(fail)
		if err := b.Do(ok); err != nil {
			t.Fatalf("round %d: unexpected error: %v", i, err)
		}
	}
	if b.Tripped() {
		t.Error("interleaved successes should keep the breaker closed")
	}
}

func TestBreakerClosesAfterSuccessfulProbe(t *testing.T) {
	t.Parallel()

	b := resilience.New(resilience.Config{Threshold: 2, Cooldown: 10 * time.Millisecond})
	_ = b.Do(fail)
	_ = b.Do(fail)
	if !b.Tripped() {
		t.Fatal("breaker should be open")
	}

	time.Sleep(20 * time.Millisecond)

	if err := b.Do(ok); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if err := b.Do(ok); err != nil {
		t.Fatalf("call after recovery failed: %v", err)
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	t.Parallel()

	b := resilience.New(resilience.Config{Threshold: 2, Cooldown: 10 * time.Millisecond})
	_ = b.Do(fail)
	_ = b.Do(fail)

	time.Sleep(20 * time.Millisecond)

	if err := b.Do(fail); !errors.Is(err, errBoom) {
		t.Fatalf("probe returned %v, want %v", err, errBoom)
	}
	if err := b.Do(ok); !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("breaker should re-open after failed probe, got %v", err)
	}
}

func TestBreakerReset(t *testing.T) {
	t.Parallel()

	b := resilience.New(resilience.Config{Threshold: 1, Cooldown: time.Hour})
	_ = b.Do(fail)
	if !b.Tripped() {
		t.Fatal("breaker should be open")
	}
	b.Reset()
	if err := b.Do(ok); err != nil {
		t.Errorf("call after Reset failed: %v", err)
	}
}
