// Package memory keeps accounts in process memory. It backs tests and
// local runs with db.driver=memory; nothing survives a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/NordCoder/Passport/internal/domain/account"
	"github.com/google/uuid"
)

var (
	_ account.Store         = (*AccountStore)(nil)
	_ account.HealthChecker = (*AccountStore)(nil)
)

type AccountStore struct {
	mu      sync.RWMutex
	byEmail map[string]account.Account
	now     func() time.Time
}

func NewAccountStore() *AccountStore {
	return &AccountStore{
		byEmail: make(map[string]account.Account),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byEmail[email]
	if !ok {
		return nil, account.ErrNotFound
	}
	return &a, nil
}

func (s *AccountStore) Insert(ctx context.Context, a *account.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[a.Email]; ok {
		return account.ErrEmailTaken
	}
	now := s.now()
	a.ID = uuid.NewString()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.byEmail[a.Email] = *a
	return nil
}

func (s *AccountStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byEmail[email]
	return ok, nil
}

// Delete removes an account. Outstanding tokens for it stop refreshing.
func (s *AccountStore) Delete(_ context.Context, email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; !ok {
		return false
	}
	delete(s.byEmail, email)
	return true
}

func (s *AccountStore) Ping(ctx context.Context) error { return ctx.Err() }
