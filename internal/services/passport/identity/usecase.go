package identity

import (
	"context"
	"errors"
	"time"

	"github.com/NordCoder/Passport/internal/auth"
	"github.com/NordCoder/Passport/internal/domain/account"
	"github.com/NordCoder/Passport/internal/domain/token"
	"github.com/NordCoder/Passport/internal/obs"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	AccessTTL  = 900 * time.Second
	RefreshTTL = 604800 * time.Second

	TokenType = "Bearer"
)

// decoyPassword is hashed once at construction. Login verifies against the
// result when the email is unknown so both paths cost one argon2 run.
const decoyPassword = "passport-decoy-password"

type Codec interface {
	Issue(subject string, kind token.Kind, ttl time.Duration) (string, token.Claims, error)
	VerifyKind(raw string, want token.Kind) (token.Claims, error)
}

type Tokens struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
}

type AccessGrant struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
}

type Identity struct {
	Subject   string    `json:"subject"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Usecase struct {
	store  account.Store
	hasher auth.PasswordHasher
	codec  Codec
	log    *zap.Logger
	tracer trace.Tracer
	decoy  string
}

func NewUsecase(store account.Store, hasher auth.PasswordHasher, codec Codec, log *zap.Logger) (*Usecase, error) {
	if log == nil {
		log = zap.NewNop()
	}
	decoy, err := hasher.Hash(decoyPassword)
	if err != nil {
		return nil, err
	}
	return &Usecase{
		store:  store,
		hasher: hasher,
		codec:  codec,
		log:    log.Named("identity"),
		tracer: otel.Tracer("passport/identity"),
		decoy:  decoy,
	}, nil
}

func (u *Usecase) Register(ctx context.Context, email, password string) (_ *account.Account, err error) {
	ctx, span := u.tracer.Start(ctx, "identity.Register")
	defer func() { u.finish(span, opRegister, err) }()
	log := obs.WithTrace(ctx, u.log)

	if _, err := u.store.FindByEmail(ctx, email); err == nil {
		return nil, ErrAccountExists
	} else if !errors.Is(err, account.ErrNotFound) {
		log.Error("register: lookup failed", zap.Error(err))
		return nil, ErrStoreUnavailable
	}

	hash, err := u.hash(password)
	if err != nil {
		log.Error("register: hash failed", zap.Error(err))
		return nil, ErrHashingFailed
	}

	a := &account.Account{Email: email, PasswordHash: hash}
	if err := u.store.Insert(ctx, a); err != nil {
		if errors.Is(err, account.ErrEmailTaken) {
			return nil, ErrAccountExists
		}
		log.Error("register: insert failed", zap.Error(err))
		return nil, ErrStoreUnavailable
	}

	log.Info("account registered", zap.String("account_id", a.ID), obs.Email("email", a.Email))
	return a, nil
}

func (u *Usecase) Login(ctx context.Context, email, password string) (_ *Tokens, err error) {
	ctx, span := u.tracer.Start(ctx, "identity.Login")
	defer func() { u.finish(span, opLogin, err) }()
	log := obs.WithTrace(ctx, u.log)

	a, err := u.store.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, account.ErrNotFound):
		u.verify(password, u.decoy)
		return nil, ErrInvalidCredentials
	case err != nil:
		log.Error("login: lookup failed", zap.Error(err))
		return nil, ErrStoreUnavailable
	}

	if !u.verify(password, a.PasswordHash) {
		log.Info("login rejected", obs.Email("email", email))
		return nil, ErrInvalidCredentials
	}

	access, _, err := u.codec.Issue(a.Email, token.KindAccess, AccessTTL)
	if err != nil {
		log.Error("login: issue access token", zap.Error(err))
		return nil, ErrIssuanceFailed
	}
	refresh, _, err := u.codec.Issue(a.Email, token.KindRefresh, RefreshTTL)
	if err != nil {
		log.Error("login: issue refresh token", zap.Error(err))
		return nil, ErrIssuanceFailed
	}

	return &Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenType,
		ExpiresIn:    int64(AccessTTL / time.Second),
	}, nil
}

// Me reports the identity carried by an access token the caller has
// already verified.
func (u *Usecase) Me(_ context.Context, c token.Claims) Identity {
	observe(opMe, nil)
	return Identity{
		Subject:   c.Subject,
		IssuedAt:  c.IssuedAt,
		ExpiresAt: c.ExpiresAt,
	}
}

// Authenticate verifies a bearer access token.
func (u *Usecase) Authenticate(ctx context.Context, raw string) (token.Claims, error) {
	c, err := u.codec.VerifyKind(raw, token.KindAccess)
	switch {
	case err == nil:
		return c, nil
	case errors.Is(err, auth.ErrTokenExpired):
		return token.Claims{}, ErrTokenExpired
	default:
		obs.WithTrace(ctx, u.log).Warn("rejected access token", zap.Error(err))
		return token.Claims{}, ErrInvalidToken
	}
}

func (u *Usecase) hash(password string) (string, error) {
	start := time.Now()
	defer func() { hashDuration.WithLabelValues("hash").Observe(time.Since(start).Seconds()) }()
	return u.hasher.Hash(password)
}

func (u *Usecase) verify(password, stored string) bool {
	start := time.Now()
	defer func() { hashDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds()) }()
	return u.hasher.Verify(password, stored)
}

func (u *Usecase) finish(span trace.Span, op string, err error) {
	observe(op, err)
	span.SetAttributes(attribute.String("auth.result", resultLabel(err)))
	if err != nil && resultLabel(err) == "internal" {
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
