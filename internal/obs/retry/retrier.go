// Package retry runs an operation under a bounded retry policy and reports
// attempts and outcomes to prometheus and the active span.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns err unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

type Policy struct {
	Name     string
	Attempts int
	Backoff  Backoff
	// Retryable defaults to "any error".
	Retryable func(error) bool
	OnAttempt func(attempt int, err error)
	OnExhaust func(lastErr error)
}

const (
	outcomeOK        = "ok"
	outcomeExhausted = "exhausted"
	outcomePermanent = "permanent"
	outcomeCanceled  = "canceled"
)

var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passport_retry_attempts_total",
		Help: "Calls made under a retry policy, first attempt included.",
	}, []string{"name"})
	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passport_retry_outcomes_total",
		Help: "Finished retry loops by outcome.",
	}, []string{"name", "outcome"})
	loopSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "passport_retry_duration_seconds",
		Help:    "Wall time of a whole retry loop, waits included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"name"})
)

// Do calls fn until it succeeds, fails permanently, runs out of attempts or
// ctx ends during a backoff wait.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) (err error) {
	name := p.Name
	if name == "" {
		name = "default"
	}
	attempts := max(p.Attempts, 1)
	retryable := p.Retryable
	if retryable == nil {
		retryable = func(error) bool { return true }
	}
	span := trace.SpanFromContext(ctx)

	start := time.Now()
	outcome := outcomeOK
	defer func() {
		loopSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
		outcomesTotal.WithLabelValues(name, outcome).Inc()
	}()

	for attempt := 0; ; attempt++ {
		attemptsTotal.WithLabelValues(name).Inc()
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		span.AddEvent("retry.attempt", trace.WithAttributes(
			attribute.String("retry.name", name),
			attribute.Int("retry.attempt", attempt+1),
			attribute.String("retry.error", err.Error()),
		))
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, err)
		}

		var pe permanent
		switch {
		case errors.As(err, &pe):
			outcome = outcomePermanent
			return pe.err
		case !retryable(err):
			outcome = outcomePermanent
			return err
		case attempt+1 >= attempts:
			outcome = outcomeExhausted
			if p.OnExhaust != nil {
				p.OnExhaust(err)
			}
			return err
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff.Next(attempt)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			outcome = outcomeCanceled
			return ctx.Err()
		case <-t.C:
		}
	}
}
