package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Passport/internal/domain/outbox"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

var _ outbox.Repository = (*OutboxRepo)(nil)

var errBadBatch = errors.New("outbox batch size must be positive")

type OutboxRepo struct{ db *DB }

func NewOutboxRepo(db *DB) *OutboxRepo { return &OutboxRepo{db: db} }

const (
	qOutboxEnqueue = `-- name: outbox_enqueue
INSERT INTO outbox (idempotency_key, kind, data, status, traceparent, tracestate, baggage)
VALUES ($1, $2, $3, 'CREATED', $4, $5, $6)
ON CONFLICT (idempotency_key) DO NOTHING`

	// Stale IN_PROGRESS rows belong to a relay that died mid-batch.
	qOutboxPick = `-- name: outbox_pick
WITH picked AS (
    SELECT idempotency_key
    FROM outbox
    WHERE status = 'CREATED'
       OR (status = 'IN_PROGRESS' AND updated_at < now() - make_interval(secs => $2))
    ORDER BY created_at
    LIMIT $1
    FOR UPDATE SKIP LOCKED
)
UPDATE outbox o
SET status = 'IN_PROGRESS', updated_at = now()
FROM picked
WHERE o.idempotency_key = picked.idempotency_key
RETURNING o.idempotency_key, o.kind, o.data, o.status, o.created_at, o.updated_at,
          o.traceparent, o.tracestate, o.baggage`

	qOutboxDone = `-- name: outbox_done
UPDATE outbox
SET status = 'SUCCESS', updated_at = now()
WHERE idempotency_key = ANY($1)`
)

// Enqueue records the caller's trace context next to the payload so the
// relay continues the same trace. Inside WithTx it joins the transaction.
func (r *OutboxRepo) Enqueue(ctx context.Context, key string, kind outbox.Kind, data []byte) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tc := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, tc)

	if _, err := r.db.querier(ctx).Exec(ctx, qOutboxEnqueue, key, kind, data,
		tc.Get("traceparent"), tc.Get("tracestate"), tc.Get("baggage")); err != nil {
		return fmt.Errorf("outbox enqueue %s: %w", key, err)
	}
	return nil
}

type outboxRow struct {
	Key         string    `db:"idempotency_key"`
	Kind        int       `db:"kind"`
	Data        []byte    `db:"data"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	Traceparent string    `db:"traceparent"`
	Tracestate  string    `db:"tracestate"`
	Baggage     string    `db:"baggage"`
}

func (o outboxRow) message() outbox.Message {
	return outbox.Message{
		IdempotencyKey: o.Key,
		Kind:           outbox.Kind(o.Kind),
		Data:           o.Data,
		Status:         outbox.Status(o.Status),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
		Traceparent:    o.Traceparent,
		Tracestate:     o.Tracestate,
		Baggage:        o.Baggage,
	}
}

// PickBatch claims up to batch messages; concurrent relays never claim the
// same row.
func (r *OutboxRepo) PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]outbox.Message, error) {
	if batch <= 0 {
		return nil, errBadBatch
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.querier(ctx).Query(ctx, qOutboxPick, batch, inProgressTTL.Seconds())
	if err != nil {
		return nil, fmt.Errorf("outbox pick: %w", err)
	}
	picked, err := pgx.CollectRows(rows, pgx.RowToStructByName[outboxRow])
	if err != nil {
		return nil, fmt.Errorf("outbox pick: %w", err)
	}

	out := make([]outbox.Message, 0, len(picked))
	for _, p := range picked {
		out = append(out, p.message())
	}
	return out, nil
}

func (r *OutboxRepo) MarkSuccess(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.querier(ctx).Exec(ctx, qOutboxDone, keys); err != nil {
		return fmt.Errorf("outbox mark success: %w", err)
	}
	return nil
}
