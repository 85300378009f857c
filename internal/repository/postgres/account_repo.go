package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NordCoder/Passport/internal/domain/account"
	"github.com/NordCoder/Passport/internal/domain/events"
	"github.com/NordCoder/Passport/internal/domain/outbox"

	"github.com/jackc/pgx/v5"
)

var (
	_ account.Store         = (*AccountRepo)(nil)
	_ account.HealthChecker = (*AccountRepo)(nil)
)

// AccountRepo relies on the accounts_email_key constraint for uniqueness;
// concurrent inserts of one email leave exactly one row.
type AccountRepo struct {
	db     *DB
	tx     Transactor
	outbox outbox.Repository
}

type AccountRepoOption func(*AccountRepo)

// WithEvents makes Insert enqueue an account-registered outbox message in
// the same transaction as the account row.
func WithEvents(tx Transactor, ob outbox.Repository) AccountRepoOption {
	return func(r *AccountRepo) {
		r.tx = tx
		r.outbox = ob
	}
}

func NewAccountRepo(db *DB, opts ...AccountRepoOption) *AccountRepo {
	r := &AccountRepo{db: db}
	for _, o := range opts {
		o(r)
	}
	return r
}

const (
	qAccountInsert = `-- name: account_insert
INSERT INTO accounts (email, password_hash)
VALUES ($1, $2)
RETURNING id::text, created_at, updated_at`

	qAccountByEmail = `-- name: account_by_email
SELECT id::text, email, password_hash, created_at, updated_at
FROM accounts
WHERE email = $1`

	qAccountExists = `-- name: account_exists
SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1)`
)

func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var a account.Account
	err := r.db.querier(ctx).QueryRow(ctx, qAccountByEmail, email).
		Scan(&a.ID, &a.Email, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, account.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &a, nil
}

// Insert fills a.ID and the timestamps from the database.
func (r *AccountRepo) Insert(ctx context.Context, a *account.Account) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if r.tx == nil || r.outbox == nil {
		return r.insert(ctx, a)
	}
	return r.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := r.insert(ctx, a); err != nil {
			return err
		}
		return r.enqueueRegistered(ctx, a)
	})
}

func (r *AccountRepo) insert(ctx context.Context, a *account.Account) error {
	err := r.db.querier(ctx).QueryRow(ctx, qAccountInsert, a.Email, a.PasswordHash).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return account.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountRepo) enqueueRegistered(ctx context.Context, a *account.Account) error {
	data, err := json.Marshal(events.AccountRegistered{
		AccountID:    a.ID,
		Email:        a.Email,
		RegisteredAt: a.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode account event: %w", err)
	}
	return r.outbox.Enqueue(ctx, registeredKey(a.ID), outbox.KindAccountRegistered, data)
}

func registeredKey(accountID string) string { return "account-registered:" + accountID }

func (r *AccountRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var ok bool
	if err := r.db.querier(ctx).QueryRow(ctx, qAccountExists, email).Scan(&ok); err != nil {
		return false, fmt.Errorf("account exists: %w", err)
	}
	return ok, nil
}

func (r *AccountRepo) Ping(ctx context.Context) error { return r.db.Ping(ctx) }
