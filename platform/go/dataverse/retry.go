package dataverse

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Policy is an explicit retry/backoff value object. Each builder owns the
// policy for its operation class instead of scattering attempt counts and
// delays across call sites.
type Policy struct {
	// MaxAttempts bounds total attempts, including the first one.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps the exponential growth. Zero means uncapped.
	MaxDelay time.Duration
	// Jitter adds up to this fraction of the computed delay at random.
	Jitter float64
}

// Default policies tuned per operation class. Attribute and relationship
// creates hit customization locks more often than entity creates, so they get
// extra attempts.
var (
	EntityCreatePolicy      = Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
	AttributeCreatePolicy   = Policy{MaxAttempts: 4, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
	RelationshipPolicy      = Policy{MaxAttempts: 5, BaseDelay: 3 * time.Second, MaxDelay: time.Minute, Jitter: 0.5}
	ProvisionerLookupPolicy = Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
)

// Do runs fn under the policy, retrying transient errors with exponential
// backoff plus jitter. Non-retryable errors and context cancellation return
// immediately; exhausting attempts returns the last error.
func (p Policy) Do(ctx context.Context, logger *zap.Logger, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt == attempts {
			return lastErr
		}

		delay := p.delay(attempt)
		if logger != nil {
			logger.Warn("transient platform error, retrying",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

func (p Policy) delay(attempt int) time.Duration {
	delay := p.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if p.Jitter > 0 {
		delay += time.Duration(rand.Float64() * p.Jitter * float64(delay))
	}
	return delay
}
