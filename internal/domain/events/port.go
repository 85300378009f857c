package events

import (
	"context"
	"time"
)

type AccountRegistered struct {
	AccountID    string    `json:"account_id"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registered_at"`
}

type AccountEvents interface {
	PublishAccountRegistered(ctx context.Context, e AccountRegistered) error
}
