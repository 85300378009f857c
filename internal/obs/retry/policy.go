package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// PublishPolicy is used by the outbox relay when handing events to the
// broker. Cancellation is never retried.
func PublishPolicy(name string, log *zap.Logger) Policy {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("retry", name))
	return Policy{
		Name:     name,
		Attempts: 6,
		Backoff:  ExpoJitter{Base: 200 * time.Millisecond, Max: 30 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
		OnAttempt: func(attempt int, err error) {
			log.Warn("attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
		},
		OnExhaust: func(err error) {
			log.Error("retries exhausted", zap.Error(err))
		},
	}
}
