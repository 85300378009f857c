package identity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NordCoder/Passport/internal/auth"
	"github.com/NordCoder/Passport/internal/domain/account"
	"github.com/NordCoder/Passport/internal/domain/token"
	"github.com/NordCoder/Passport/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	uc    *Usecase
	store *memory.AccountStore
	codec *auth.TokenCodec
	clk   *clock
}

func newHasher(t *testing.T) *auth.Argon2Hasher {
	t.Helper()
	h, err := auth.NewArgon2Hasher(auth.HashConfig{MemoryKB: 8 * 1024, Time: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32})
	require.NoError(t, err)
	return h
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{t: time.Unix(1_700_000_000, 0).UTC()}
	codec, err := auth.NewTokenCodec([]byte("0123456789abcdef0123456789abcdef"), auth.WithClock(clk.Now))
	require.NoError(t, err)
	store := memory.NewAccountStore()

	uc, err := NewUsecase(store, newHasher(t), codec, nil)
	require.NoError(t, err)
	return &fixture{uc: uc, store: store, codec: codec, clk: clk}
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.uc.Register(ctx, "alice@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "alice@example.com", a.Email)
	assert.NotEqual(t, "s3cret-pass", a.PasswordHash)

	stored, err := f.store.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, newHasher(t).Verify("s3cret-pass", stored.PasswordHash))

	_, err = f.uc.Register(ctx, "alice@example.com", "other-pass")
	assert.ErrorIs(t, err, ErrAccountExists)
}

func TestRegister_EmailIsCaseSensitive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.Register(ctx, "bob@example.com", "pw-bob-1234")
	require.NoError(t, err)
	_, err = f.uc.Register(ctx, "Bob@example.com", "pw-bob-1234")
	require.NoError(t, err)
}

func TestRegister_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	var ok, exists atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.uc.Register(ctx, "race@example.com", "pw-race-1234")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrAccountExists):
				exists.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, n-1, exists.Load())
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.uc.Register(ctx, "carol@example.com", "pw-carol-1234")
	require.NoError(t, err)

	toks, err := f.uc.Login(ctx, "carol@example.com", "pw-carol-1234")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", toks.TokenType)
	assert.EqualValues(t, 900, toks.ExpiresIn)

	access, err := f.codec.VerifyKind(toks.AccessToken, token.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", access.Subject)
	assert.Equal(t, AccessTTL, access.ExpiresAt.Sub(access.IssuedAt))

	refresh, err := f.codec.VerifyKind(toks.RefreshToken, token.KindRefresh)
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", refresh.Subject)
	assert.Equal(t, RefreshTTL, refresh.ExpiresAt.Sub(refresh.IssuedAt))
}

func TestLogin_MergedFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.uc.Register(ctx, "dave@example.com", "pw-dave-1234")
	require.NoError(t, err)

	_, wrongPass := f.uc.Login(ctx, "dave@example.com", "nope")
	_, unknown := f.uc.Login(ctx, "nobody@example.com", "pw-dave-1234")

	assert.ErrorIs(t, wrongPass, ErrInvalidCredentials)
	assert.ErrorIs(t, unknown, ErrInvalidCredentials)
	assert.Equal(t, wrongPass.Error(), unknown.Error())
}

func TestLogin_UnknownEmailStillVerifies(t *testing.T) {
	h := &countingHasher{PasswordHasher: newHasher(t)}
	codec, err := auth.NewTokenCodec([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	uc, err := NewUsecase(memory.NewAccountStore(), h, codec, nil)
	require.NoError(t, err)

	_, err = uc.Login(context.Background(), "ghost@example.com", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.EqualValues(t, 1, h.verifies.Load())
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.uc.Register(ctx, "erin@example.com", "pw-erin-1234")
	require.NoError(t, err)
	toks, err := f.uc.Login(ctx, "erin@example.com", "pw-erin-1234")
	require.NoError(t, err)

	c, err := f.uc.Authenticate(ctx, toks.AccessToken)
	require.NoError(t, err)
	id := f.uc.Me(ctx, c)
	assert.Equal(t, "erin@example.com", id.Subject)
	assert.True(t, id.IssuedAt.Equal(f.clk.Now()))
	assert.True(t, id.ExpiresAt.Equal(f.clk.Now().Add(AccessTTL)))

	_, err = f.uc.Authenticate(ctx, toks.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	f.clk.Advance(AccessTTL)
	_, err = f.uc.Authenticate(ctx, toks.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRefresh_NoRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.uc.Register(ctx, "frank@example.com", "pw-frank-1234")
	require.NoError(t, err)
	toks, err := f.uc.Login(ctx, "frank@example.com", "pw-frank-1234")
	require.NoError(t, err)

	f.clk.Advance(time.Hour)
	first, err := f.uc.Refresh(ctx, toks.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", first.TokenType)
	assert.EqualValues(t, 900, first.ExpiresIn)

	f.clk.Advance(time.Hour)
	second, err := f.uc.Refresh(ctx, toks.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)

	c, err := f.uc.Authenticate(ctx, second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "frank@example.com", c.Subject)
	assert.True(t, c.IssuedAt.Equal(f.clk.Now()))
}

func TestRefresh_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.uc.Register(ctx, "gina@example.com", "pw-gina-1234")
	require.NoError(t, err)
	toks, err := f.uc.Login(ctx, "gina@example.com", "pw-gina-1234")
	require.NoError(t, err)

	_, err = f.uc.Refresh(ctx, toks.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.uc.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.uc.Refresh(ctx, toks.RefreshToken+"x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	f.clk.Advance(RefreshTTL)
	_, err = f.uc.Refresh(ctx, toks.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRefresh_AccountRevoked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.uc.Register(ctx, "hank@example.com", "pw-hank-1234")
	require.NoError(t, err)
	toks, err := f.uc.Login(ctx, "hank@example.com", "pw-hank-1234")
	require.NoError(t, err)

	require.True(t, f.store.Delete(ctx, "hank@example.com"))

	_, err = f.uc.Refresh(ctx, toks.RefreshToken)
	assert.ErrorIs(t, err, ErrAccountRevoked)
}

type countingHasher struct {
	auth.PasswordHasher
	verifies atomic.Int32
}

func (h *countingHasher) Verify(plain, stored string) bool {
	h.verifies.Add(1)
	return h.PasswordHasher.Verify(plain, stored)
}

type brokenStore struct {
	findErr   error
	insertErr error
	existsErr error
}

func (s brokenStore) FindByEmail(context.Context, string) (*account.Account, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return nil, account.ErrNotFound
}

func (s brokenStore) Insert(context.Context, *account.Account) error { return s.insertErr }

func (s brokenStore) ExistsByEmail(context.Context, string) (bool, error) {
	return s.existsErr == nil, s.existsErr
}

type brokenHasher struct{ auth.PasswordHasher }

func (brokenHasher) Hash(string) (string, error) { return "", auth.ErrHashingFailed }

type brokenCodec struct{ Codec }

func (brokenCodec) Issue(string, token.Kind, time.Duration) (string, token.Claims, error) {
	return "", token.Claims{}, auth.ErrIssuance
}

func TestUsecase_InternalFailures(t *testing.T) {
	ctx := context.Background()
	hasher := newHasher(t)
	codec, err := auth.NewTokenCodec([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	build := func(s account.Store, h auth.PasswordHasher, c Codec) *Usecase {
		t.Helper()
		uc, err := NewUsecase(s, h, c, nil)
		require.NoError(t, err)
		return uc
	}

	t.Run("register lookup error", func(t *testing.T) {
		uc := build(brokenStore{findErr: context.DeadlineExceeded}, hasher, codec)
		_, err := uc.Register(ctx, "x@example.com", "pw")
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("register insert error", func(t *testing.T) {
		uc := build(brokenStore{insertErr: errors.New("connection reset")}, hasher, codec)
		_, err := uc.Register(ctx, "x@example.com", "pw")
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("register lost race", func(t *testing.T) {
		uc := build(brokenStore{insertErr: account.ErrEmailTaken}, hasher, codec)
		_, err := uc.Register(ctx, "x@example.com", "pw")
		assert.ErrorIs(t, err, ErrAccountExists)
	})

	t.Run("register hash error", func(t *testing.T) {
		uc := build(memory.NewAccountStore(), hasher, codec)
		uc.hasher = brokenHasher{hasher}
		_, err := uc.Register(ctx, "x@example.com", "pw")
		assert.ErrorIs(t, err, ErrHashingFailed)
	})

	t.Run("login lookup error", func(t *testing.T) {
		uc := build(brokenStore{findErr: errors.New("pool exhausted")}, hasher, codec)
		_, err := uc.Login(ctx, "x@example.com", "pw")
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("login issuance error", func(t *testing.T) {
		store := memory.NewAccountStore()
		uc := build(store, hasher, brokenCodec{codec})
		_, err := uc.Register(ctx, "x@example.com", "pw-12345678")
		require.NoError(t, err)
		_, err = uc.Login(ctx, "x@example.com", "pw-12345678")
		assert.ErrorIs(t, err, ErrIssuanceFailed)
	})

	t.Run("refresh existence error", func(t *testing.T) {
		raw, _, err := codec.Issue("x@example.com", token.KindRefresh, RefreshTTL)
		require.NoError(t, err)
		uc := build(brokenStore{existsErr: errors.New("timeout")}, hasher, codec)
		_, err = uc.Refresh(ctx, raw)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})
}

func TestNewUsecase_DecoyHashFailure(t *testing.T) {
	codec, err := auth.NewTokenCodec([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	_, err = NewUsecase(memory.NewAccountStore(), brokenHasher{}, codec, nil)
	assert.Error(t, err)
}
