package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NordCoder/Passport/internal/domain/events"
	"github.com/NordCoder/Passport/internal/domain/outbox"
	"github.com/NordCoder/Passport/internal/obs/retry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	handleSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "passport_outbox_handle_seconds",
		Help:    "Time to deliver one outbox message, retries included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	handleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passport_outbox_handle_failures_total",
		Help: "Outbox messages left undelivered after the retry policy gave up.",
	}, []string{"kind"})
)

// withRetry wraps one delivery in a span and the retry policy.
func withRetry(kind outbox.Kind, h outbox.KindHandler, pol retry.Policy) outbox.KindHandler {
	name := kind.String()
	if pol.Name == "" {
		pol.Name = "outbox_" + name
	}
	return func(ctx context.Context, data []byte) error {
		ctx, span := otel.Tracer("passport/outbox").Start(ctx, "outbox.deliver "+name)
		defer span.End()

		start := time.Now()
		attempts := 0
		err := retry.Do(ctx, pol, func(ctx context.Context, attempt int) error {
			attempts = attempt + 1
			return h(ctx, data)
		})
		handleSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.Int("outbox.attempts", attempts))
		if err != nil {
			handleFailures.WithLabelValues(name).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "undelivered")
		}
		return err
	}
}

// NewDispatch maps each outbox kind to the publisher call that delivers it.
func NewDispatch(pub events.AccountEvents, pol retry.Policy) outbox.GlobalHandler {
	handlers := map[outbox.Kind]outbox.KindHandler{
		outbox.KindAccountRegistered: withRetry(outbox.KindAccountRegistered, func(ctx context.Context, data []byte) error {
			var ev events.AccountRegistered
			if err := json.Unmarshal(data, &ev); err != nil {
				return retry.Permanent(fmt.Errorf("decode account registered: %w", err))
			}
			return pub.PublishAccountRegistered(ctx, ev)
		}, pol),
	}

	return func(kind outbox.Kind) (outbox.KindHandler, error) {
		h, ok := handlers[kind]
		if !ok {
			return nil, fmt.Errorf("no handler for outbox %s", kind)
		}
		return h, nil
	}
}
