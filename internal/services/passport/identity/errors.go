package identity

import "errors"

// Every failure leaving the usecase is exactly one of these.
var (
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrStoreUnavailable   = errors.New("credential store unavailable")
	ErrHashingFailed      = errors.New("password hashing failed")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrAccountRevoked     = errors.New("account no longer exists")
	ErrIssuanceFailed     = errors.New("token issuance failed")
)
