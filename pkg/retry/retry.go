// Package retry provides exponential backoff for reconnecting to the daemon.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Config provides backoff configuration
type Config struct {
	MaxAttempts  int           // Maximum number of attempts (0 = unlimited)
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Upper bound of any delay
	Multiplier   float64       // Growth factor between delays
	AddJitter    bool          // Add up to 25% randomness to each delay
}

// DefaultConfig returns the reconnect defaults used for the daemon websocket
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  0,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.InitialDelay < 0 || c.MaxDelay < 0 {
		return errors.New("retry: delays cannot be negative")
	}
	if c.Multiplier < 0 {
		return errors.New("retry: multiplier cannot be negative")
	}
	if c.MaxDelay > 0 && c.MaxDelay < c.InitialDelay {
		return errors.New("retry: max delay must be >= initial delay")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	if c.Multiplier > 1000 {
		c.Multiplier = 1000
	}
	return c
}

// Backoff tracks consecutive failed attempts of a long-lived loop, such as a
// reconnect loop, and hands out the delay to wait before the next attempt.
// It is not safe for concurrent use.
type Backoff struct {
	cfg      Config
	attempts int
	delay    time.Duration
}

// NewBackoff creates a Backoff from cfg
func NewBackoff(cfg Config) *Backoff {
	cfg = cfg.withDefaults()
	return &Backoff{cfg: cfg, delay: cfg.InitialDelay}
}

// Attempts returns the number of failures recorded since the last Reset
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Exhausted reports whether MaxAttempts failures were recorded
func (b *Backoff) Exhausted() bool {
	return b.cfg.MaxAttempts > 0 && b.attempts >= b.cfg.MaxAttempts
}

// Next records a failure and returns the delay to wait before retrying
func (b *Backoff) Next() time.Duration {
	b.attempts++
	current := b.delay

	next := float64(b.delay) * b.cfg.Multiplier
	if next > float64(b.cfg.MaxDelay) {
		b.delay = b.cfg.MaxDelay
	} else {
		b.delay = time.Duration(next)
	}

	if b.cfg.AddJitter && current >= 4 {
		randMu.Lock()
		current += time.Duration(randSource.Int63n(int64(current / 4)))
		randMu.Unlock()
	}
	return current
}

// Reset clears the failure count after a successful attempt
func (b *Backoff) Reset() {
	b.attempts = 0
	b.delay = b.cfg.InitialDelay
}

// Sleep waits for d or until ctx is done, whichever comes first
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do executes fn until it succeeds, ctx is done or the attempts run out
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	b := NewBackoff(cfg)
	var lastErr error
	for {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		delay := b.Next()
		if b.Exhausted() {
			break
		}
		if err := Sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled after %d attempts: %w", b.Attempts(), err)
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", b.Attempts(), lastErr)
}
