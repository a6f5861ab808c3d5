// Package resilience provides a three-state circuit breaker used to guard
// optional backend lookups. When the backend is down the breaker trips after a
// few consecutive failures and callers fail fast instead of waiting out an
// HTTP timeout on every attempt.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] when the breaker is open and the
// cooldown has not yet elapsed.
var ErrOpen = errors.New("resilience: breaker is open")

// Config holds the tuning knobs for a [Breaker]. Zero-value fields are
// replaced with defaults.
type Config struct {
	// Name labels the breaker in log messages.
	Name string

	// Threshold is the number of consecutive failures before the breaker
	// opens. Default: 3.
	Threshold int

	// Cooldown is how long the breaker stays open before allowing a probe
	// call through. Default: 30s.
	Cooldown time.Duration

	// Logger receives state-transition messages. Defaults to slog.Default().
	Logger *slog.Logger
}

// Breaker is a closed/open/half-open circuit breaker. In the closed state
// every call is forwarded. After Threshold consecutive failures it opens and
// rejects calls with [ErrOpen] until Cooldown elapses, then lets a single
// probe through; the probe's outcome decides whether it closes or re-opens.
//
// Safe for concurrent use.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	log       *slog.Logger

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool
}

// New creates a [Breaker] from cfg, filling in defaults for zero fields.
func New(cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Breaker{
		name:      cfg.Name,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		log:       cfg.Logger,
	}
}

// Do runs fn if the breaker allows it, recording the outcome. In the open
// state it returns [ErrOpen] without calling fn, except for a single probe
// call once the cooldown has elapsed.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}
	if err != nil {
		b.failures++
		if b.failures == b.threshold || probe {
			b.openedAt = time.Now()
			b.log.Warn("breaker opened",
				"name", b.name,
				"consecutive_failures", b.failures)
		}
		return err
	}
	if b.failures >= b.threshold {
		b.log.Info("breaker closed after successful probe", "name", b.name)
	}
	b.failures = 0
	return nil
}

// admit decides whether a call may proceed. The returned bool reports whether
// the call is the half-open probe.
func (b *Breaker) admit() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.threshold {
		return false, nil
	}
	if b.probing || time.Since(b.openedAt) < b.cooldown {
		return false, ErrOpen
	}
	b.probing = true
	return true, nil
}

// Tripped reports whether the breaker is currently rejecting calls.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures >= b.threshold && time.Since(b.openedAt) < b.cooldown
}

// Reset forces the breaker back to the closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
}
