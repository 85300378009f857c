package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NordCoder/Passport/internal/auth"
	"github.com/NordCoder/Passport/internal/domain/account"
	"github.com/NordCoder/Passport/internal/domain/token"
	"github.com/NordCoder/Passport/internal/repository/memory"
	"github.com/NordCoder/Passport/internal/services/passport/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type env struct {
	h     http.Handler
	store *memory.AccountStore
	clk   *testClock
}

func newEnv(t *testing.T, o Options) *env {
	t.Helper()
	clk := &testClock{t: time.Unix(1_700_000_000, 0).UTC()}
	codec, err := auth.NewTokenCodec([]byte("0123456789abcdef0123456789abcdef"), auth.WithClock(clk.Now))
	require.NoError(t, err)
	hasher, err := auth.NewArgon2Hasher(auth.HashConfig{MemoryKB: 8 * 1024, Time: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32})
	require.NoError(t, err)
	store := memory.NewAccountStore()
	uc, err := identity.NewUsecase(store, hasher, codec, nil)
	require.NoError(t, err)
	if o.Health == nil {
		o.Health = store.Ping
	}
	return &env{h: NewHandler(uc, o), store: store, clk: clk}
}

func (e *env) do(t *testing.T, method, target string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[errorBody](t, rec).Error
}

func creds(email, password string) map[string]string {
	return map[string]string{"email": email, "password": password}
}

func bearerHdr(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func TestRegister(t *testing.T) {
	e := newEnv(t, Options{})

	rec := e.do(t, http.MethodPost, "/api/register", creds("a@example.com", "pw-123456"), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	acc := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "a@example.com", acc["email"])
	assert.NotEmpty(t, acc["id"])
	assert.NotContains(t, acc, "password_hash")
	assert.NotContains(t, rec.Body.String(), "argon2")

	rec = e.do(t, http.MethodPost, "/api/register", creds("a@example.com", "other"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "account_exists", errCode(t, rec))
}

func TestRegister_InvalidInput(t *testing.T) {
	e := newEnv(t, Options{MaxBodyBytes: 256})

	bodies := map[string]any{
		"not json":        "{",
		"empty email":     creds("", "pw"),
		"no at sign":      creds("alice", "pw"),
		"empty password":  creds("a@example.com", ""),
		"long password":   creds("a@example.com", strings.Repeat("x", 2000)),
		"trailing data":   `{"email":"a@example.com","password":"pw"} {}`,
		"wrong type":      `{"email":1,"password":"pw"}`,
		"body over limit": `{"email":"a@example.com","password":"` + strings.Repeat("y", 300) + `"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/register", body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_input", errCode(t, rec))
		})
	}
}

func TestLoginAndMe(t *testing.T) {
	e := newEnv(t, Options{})
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/register", creds("b@example.com", "pw-b-1234"), nil).Code)

	rec := e.do(t, http.MethodPost, "/api/login", creds("b@example.com", "pw-b-1234"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	lr := decodeBody[loginResponse](t, rec)
	assert.NotEmpty(t, lr.AccessToken)
	assert.NotEmpty(t, lr.RefreshToken)
	assert.Equal(t, "Bearer", lr.TokenType)
	assert.EqualValues(t, 900, lr.ExpiresIn)

	rec = e.do(t, http.MethodGet, "/api/me", nil, bearerHdr(lr.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	me := decodeBody[identity.Identity](t, rec)
	assert.Equal(t, "b@example.com", me.Subject)
	assert.True(t, me.IssuedAt.Equal(e.clk.Now()))
	assert.True(t, me.ExpiresAt.Equal(e.clk.Now().Add(identity.AccessTTL)))
}

func TestLogin_MergedFailure(t *testing.T) {
	e := newEnv(t, Options{})
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/register", creds("c@example.com", "pw-c-1234"), nil).Code)

	wrong := e.do(t, http.MethodPost, "/api/login", creds("c@example.com", "bad"), nil)
	unknown := e.do(t, http.MethodPost, "/api/login", creds("zz@example.com", "pw-c-1234"), nil)

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Equal(t, "invalid_credentials", errCode(t, wrong))
}

func TestMe_Unauthorized(t *testing.T) {
	e := newEnv(t, Options{})
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/register", creds("d@example.com", "pw-d-1234"), nil).Code)
	lr := decodeBody[loginResponse](t, e.do(t, http.MethodPost, "/api/login", creds("d@example.com", "pw-d-1234"), nil))

	cases := map[string]map[string]string{
		"no header":     nil,
		"wrong scheme":  {"Authorization": "Basic " + lr.AccessToken},
		"empty bearer":  {"Authorization": "Bearer "},
		"garbage":       bearerHdr("not-a-token"),
		"refresh token": bearerHdr(lr.RefreshToken),
	}
	for name, hdr := range cases {
		t.Run(name, func(t *testing.T) {
			rec := e.do(t, http.MethodGet, "/api/me", nil, hdr)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "invalid_token", errCode(t, rec))
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
		})
	}

	e.clk.Advance(identity.AccessTTL)
	rec := e.do(t, http.MethodGet, "/api/me", nil, bearerHdr(lr.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_expired", errCode(t, rec))
}

func TestRefresh(t *testing.T) {
	e := newEnv(t, Options{})
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/register", creds("f@example.com", "pw-f-1234"), nil).Code)
	lr := decodeBody[loginResponse](t, e.do(t, http.MethodPost, "/api/login", creds("f@example.com", "pw-f-1234"), nil))

	for i := 0; i < 2; i++ {
		e.clk.Advance(time.Hour)
		rec := e.do(t, http.MethodPost, "/api/refresh", map[string]string{"refresh_token": lr.RefreshToken}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		rr := decodeBody[map[string]any](t, rec)
		assert.NotContains(t, rr, "refresh_token")
		assert.Equal(t, "Bearer", rr["token_type"])
		assert.EqualValues(t, 900, rr["expires_in"])

		me := e.do(t, http.MethodGet, "/api/me", nil, bearerHdr(rr["access_token"].(string)))
		assert.Equal(t, http.StatusOK, me.Code)
	}

	rec := e.do(t, http.MethodPost, "/api/refresh", map[string]string{"refresh_token": lr.AccessToken}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_token", errCode(t, rec))

	rec = e.do(t, http.MethodPost, "/api/refresh", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.True(t, e.store.Delete(context.Background(), "f@example.com"))
	rec = e.do(t, http.MethodPost, "/api/refresh", map[string]string{"refresh_token": lr.RefreshToken}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "account_revoked", errCode(t, rec))

	e.clk.Advance(identity.RefreshTTL)
	rec = e.do(t, http.MethodPost, "/api/refresh", map[string]string{"refresh_token": lr.RefreshToken}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_expired", errCode(t, rec))
}

type failingIdentity struct{ Identity }

func (failingIdentity) Register(context.Context, string, string) (*account.Account, error) {
	return nil, identity.ErrStoreUnavailable
}

func (failingIdentity) Login(context.Context, string, string) (*identity.Tokens, error) {
	return nil, errors.New("pq: connection refused to 10.0.0.5")
}

func (failingIdentity) Authenticate(context.Context, string) (token.Claims, error) {
	panic("boom")
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	h := NewHandler(failingIdentity{}, Options{})

	for _, target := range []string{"/api/register", "/api/login"} {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(`{"email":"a@b.c","password":"p"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal", decodeBody[errorBody](t, rec).Error)
		assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer x")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{ErrInvalidInput, 400, "invalid_input"},
		{identity.ErrAccountExists, 409, "account_exists"},
		{identity.ErrInvalidCredentials, 401, "invalid_credentials"},
		{identity.ErrInvalidToken, 401, "invalid_token"},
		{identity.ErrTokenExpired, 401, "token_expired"},
		{identity.ErrAccountRevoked, 401, "account_revoked"},
		{identity.ErrStoreUnavailable, 500, "internal"},
		{identity.ErrHashingFailed, 500, "internal"},
		{identity.ErrIssuanceFailed, 500, "internal"},
	}
	for _, c := range cases {
		m := mapError(c.err)
		assert.Equal(t, c.status, m.status, c.err.Error())
		assert.Equal(t, c.code, m.code, c.err.Error())
	}
}

func TestCORS(t *testing.T) {
	e := newEnv(t, Options{CORSOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	rec = e.do(t, http.MethodPost, "/api/login", creds("x@example.com", "pw"), map[string]string{"Origin": "https://evil.example.com"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	star := newEnv(t, Options{CORSOrigins: []string{"*"}})
	rec = star.do(t, http.MethodPost, "/api/login", creds("x@example.com", "pw"), map[string]string{"Origin": "http://localhost:5173"})
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestOpsEndpoints(t *testing.T) {
	e := newEnv(t, Options{})
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/healthz", nil, nil).Code)

	rec := e.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusMethodNotAllowed, e.do(t, http.MethodGet, "/api/login", nil, nil).Code)

	down := newEnv(t, Options{Health: func(context.Context) error { return errors.New("down") }})
	assert.Equal(t, http.StatusServiceUnavailable, down.do(t, http.MethodGet, "/healthz", nil, nil).Code)
}

func TestStaticFrontend(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>spa</html>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o644))

	e := newEnv(t, Options{StaticDir: dir})

	rec := e.do(t, http.MethodGet, "/assets/app.js", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "console.log")

	rec = e.do(t, http.MethodGet, "/profile", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "spa")

	rec = e.do(t, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "spa")

	rec = e.do(t, http.MethodGet, "/api/unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "spa")
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/", nil, nil).Code)

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/me", nil, nil).Code)
}
