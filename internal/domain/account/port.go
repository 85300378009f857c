package account

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("account not found")
	ErrEmailTaken = errors.New("email already taken")
)

// Store is the durable account repository. Insert must reject a second
// account with the same email with ErrEmailTaken, even under concurrent calls.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	Insert(ctx context.Context, a *Account) error
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}
