package outbox

import (
	"context"
	"time"
)

type Repository interface {
	// Enqueue ignores a key that already exists.
	Enqueue(ctx context.Context, key string, kind Kind, data []byte) error
	// PickBatch claims CREATED messages and IN_PROGRESS ones older than
	// inProgressTTL.
	PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]Message, error)
	MarkSuccess(ctx context.Context, keys []string) error
}

type KindHandler func(ctx context.Context, data []byte) error

// GlobalHandler resolves the handler for a kind; unknown kinds are an error.
type GlobalHandler func(kind Kind) (KindHandler, error)
