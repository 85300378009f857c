package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

var publishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "passport_kafka_publish_total",
	Help: "Events written to kafka by event type and result.",
}, []string{"event", "result"})

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is one domain event; Key pins every event of an aggregate to a
// single partition.
type Event struct {
	Key  string
	Type string
	Body proto.Message
}

type Producer struct {
	w     messageWriter
	topic string
	log   *zap.Logger
}

func NewProducer(brokers []string, topic string, log *zap.Logger) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}, topic, log)
}

func newProducer(w messageWriter, topic string, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{
		w:     w,
		topic: topic,
		log:   log.Named("kafka").With(zap.String("topic", topic)),
	}
}

// Publish encodes ev.Body as protobuf and tags the message with the event
// type and the caller's trace context.
func (p *Producer) Publish(ctx context.Context, ev Event) error {
	ctx, span := otel.Tracer("passport/kafka").Start(ctx, "publish "+ev.Type,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingOperationPublish,
		),
	)
	defer span.End()

	value, err := proto.Marshal(ev.Body)
	if err != nil {
		publishTotal.WithLabelValues(ev.Type, "encode_error").Inc()
		span.SetStatus(codes.Error, "encode")
		return fmt.Errorf("encode %s: %w", ev.Type, err)
	}

	hdrs := Headers{
		{Key: HeaderEventType, Value: []byte(ev.Type)},
		{Key: HeaderContentType, Value: []byte(contentTypeProto)},
	}
	otel.GetTextMapPropagator().Inject(ctx, &hdrs)

	if err := p.w.WriteMessages(ctx, kafka.Message{Key: []byte(ev.Key), Value: value, Headers: hdrs}); err != nil {
		publishTotal.WithLabelValues(ev.Type, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "write")
		p.log.Warn("publish failed", zap.String("event", ev.Type), zap.Error(err))
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	publishTotal.WithLabelValues(ev.Type, "ok").Inc()
	p.log.Debug("event published", zap.String("event", ev.Type), zap.Int("bytes", len(value)))
	return nil
}

func (p *Producer) Close() error { return p.w.Close() }
