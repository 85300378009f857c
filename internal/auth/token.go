package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Passport/internal/domain/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenInvalid  = errors.New("token invalid")
	ErrTokenExpired  = errors.New("token expired")
	ErrIssuance      = errors.New("token issuance failed")
	ErrSecretMissing = errors.New("signing secret is empty")
)

// maxIssuedAtSkew bounds how far in the future an iat claim may be before the
// token is treated as forged.
const maxIssuedAtSkew = time.Minute

type tokenClaims struct {
	Kind token.Kind `json:"kind"`
	jwt.RegisteredClaims
}

type CodecOption func(*TokenCodec)

func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

func WithIssuer(iss string) CodecOption {
	return func(c *TokenCodec) { c.issuer = iss }
}

// TokenCodec signs and verifies HS256 tokens with a key fixed at construction.
// It is safe for concurrent use.
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

func NewTokenCodec(secret []byte, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, ErrSecretMissing
	}
	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	// Claims are checked by hand in Verify so that expiry can be told apart
	// from every other defect.
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
		jwt.WithStrictDecoding(),
	)
	return c, nil
}

func (c *TokenCodec) Issue(subject string, kind token.Kind, ttl time.Duration) (string, token.Claims, error) {
	if subject == "" {
		return "", token.Claims{}, fmt.Errorf("%w: empty subject", ErrIssuance)
	}
	if !kind.Valid() {
		return "", token.Claims{}, fmt.Errorf("%w: unknown kind %q", ErrIssuance, kind)
	}
	if ttl <= 0 {
		return "", token.Claims{}, fmt.Errorf("%w: non-positive ttl", ErrIssuance)
	}

	now := c.now()
	iat := jwt.NewNumericDate(now)
	exp := jwt.NewNumericDate(now.Add(ttl))

	tc := tokenClaims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  iat,
			ExpiresAt: exp,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(c.secret)
	if err != nil {
		return "", token.Claims{}, fmt.Errorf("%w: %v", ErrIssuance, err)
	}

	return signed, toClaims(tc), nil
}

// Verify returns ErrTokenExpired only for a structurally sound token whose
// signature checks out; the decoded claims are returned alongside it.
// Every other defect is ErrTokenInvalid.
func (c *TokenCodec) Verify(raw string) (token.Claims, error) {
	var tc tokenClaims
	t, err := c.parser.ParseWithClaims(raw, &tc, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !t.Valid {
		return token.Claims{}, ErrTokenInvalid
	}

	if tc.Subject == "" || !tc.Kind.Valid() || tc.IssuedAt == nil || tc.ExpiresAt == nil {
		return token.Claims{}, ErrTokenInvalid
	}
	if c.issuer != "" && tc.Issuer != c.issuer {
		return token.Claims{}, ErrTokenInvalid
	}
	if !tc.IssuedAt.Before(tc.ExpiresAt.Time) {
		return token.Claims{}, ErrTokenInvalid
	}

	now := c.now()
	if tc.IssuedAt.After(now.Add(maxIssuedAtSkew)) {
		return token.Claims{}, ErrTokenInvalid
	}

	claims := toClaims(tc)
	if !now.Before(claims.ExpiresAt) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}

// VerifyKind is Verify plus a kind check. A token of the wrong kind is
// invalid even when it has also expired.
func (c *TokenCodec) VerifyKind(raw string, want token.Kind) (token.Claims, error) {
	claims, err := c.Verify(raw)
	if err != nil && !errors.Is(err, ErrTokenExpired) {
		return token.Claims{}, err
	}
	if claims.Kind != want {
		return token.Claims{}, ErrTokenInvalid
	}
	return claims, err
}

func toClaims(tc tokenClaims) token.Claims {
	return token.Claims{
		ID:        tc.ID,
		Subject:   tc.Subject,
		Kind:      tc.Kind,
		IssuedAt:  tc.IssuedAt.Time,
		ExpiresAt: tc.ExpiresAt.Time,
	}
}
