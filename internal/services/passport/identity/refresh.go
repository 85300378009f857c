package identity

import (
	"context"
	"errors"
	"time"

	"github.com/NordCoder/Passport/internal/auth"
	"github.com/NordCoder/Passport/internal/domain/token"
	"github.com/NordCoder/Passport/internal/obs"

	"go.uber.org/zap"
)

// Refresh trades a valid refresh token for a new access token. The refresh
// token is not rotated; it stays usable until its own expiry.
func (u *Usecase) Refresh(ctx context.Context, raw string) (_ *AccessGrant, err error) {
	ctx, span := u.tracer.Start(ctx, "identity.Refresh")
	defer func() { u.finish(span, opRefresh, err) }()
	log := obs.WithTrace(ctx, u.log)

	c, err := u.codec.VerifyKind(raw, token.KindRefresh)
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		log.Warn("rejected refresh token", zap.Error(err))
		return nil, ErrInvalidToken
	}

	ok, err := u.store.ExistsByEmail(ctx, c.Subject)
	if err != nil {
		log.Error("refresh: existence check failed", zap.Error(err))
		return nil, ErrStoreUnavailable
	}
	if !ok {
		return nil, ErrAccountRevoked
	}

	access, _, err := u.codec.Issue(c.Subject, token.KindAccess, AccessTTL)
	if err != nil {
		log.Error("refresh: issue access token", zap.Error(err))
		return nil, ErrIssuanceFailed
	}

	return &AccessGrant{
		AccessToken: access,
		TokenType:   TokenType,
		ExpiresIn:   int64(AccessTTL / time.Second),
	}, nil
}
