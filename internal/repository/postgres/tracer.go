package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "passport_db_query_seconds",
	Help:    "Postgres query latency by query name and result.",
	Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
}, []string{"query", "result"})

var tracer = otel.Tracer("passport/postgres")

// queryTracer names each query by its leading "-- name: x" comment.
type queryTracer struct{}

type queryStartKey struct{}

type queryStart struct {
	name  string
	start time.Time
	span  trace.Span
}

func (queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	name := queryName(data.SQL)
	ctx, span := tracer.Start(ctx, "db."+name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation.name", name),
		),
	)
	return context.WithValue(ctx, queryStartKey{}, queryStart{name: name, start: time.Now(), span: span})
}

func (queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qs, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	result := "ok"
	if data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows) {
		result = "error"
		qs.span.RecordError(data.Err)
		qs.span.SetStatus(codes.Error, data.Err.Error())
	}
	qs.span.End()
	queryDuration.WithLabelValues(qs.name, result).Observe(time.Since(qs.start).Seconds())
}

func queryName(sql string) string {
	s := strings.TrimSpace(sql)
	if rest, ok := strings.CutPrefix(s, "-- name:"); ok {
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			rest = rest[:i]
		}
		if n := strings.TrimSpace(rest); n != "" {
			return n
		}
	}
	if i := strings.IndexAny(s, " \n\t"); i > 0 {
		return strings.ToLower(s[:i])
	}
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s)
}
