package identity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	opRegister = "register"
	opLogin    = "login"
	opRefresh  = "refresh"
	opMe       = "me"
)

var (
	authOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passport_auth_operations_total",
		Help: "Identity operations by outcome.",
	}, []string{"op", "result"})

	hashDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "passport_password_hash_seconds",
		Help:    "Time spent hashing or verifying passwords.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2},
	}, []string{"kind"})
)

func observe(op string, err error) {
	authOps.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch err {
	case nil:
		return "ok"
	case ErrAccountExists:
		return "account_exists"
	case ErrInvalidCredentials:
		return "invalid_credentials"
	case ErrInvalidToken:
		return "invalid_token"
	case ErrTokenExpired:
		return "token_expired"
	case ErrAccountRevoked:
		return "account_revoked"
	default:
		return "internal"
	}
}
