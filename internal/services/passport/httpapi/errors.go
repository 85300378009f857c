package httpapi

import (
	"errors"
	"net/http"

	"github.com/NordCoder/Passport/internal/services/passport/identity"
)

// ErrInvalidInput is raised by the transport before the usecase runs.
var ErrInvalidInput = errors.New("invalid input")

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type mapping struct {
	status  int
	code    string
	message string
}

var errTable = []struct {
	err error
	mapping
}{
	{ErrInvalidInput, mapping{http.StatusBadRequest, "invalid_input", "request body is invalid"}},
	{identity.ErrAccountExists, mapping{http.StatusConflict, "account_exists", "an account with this email already exists"}},
	{identity.ErrInvalidCredentials, mapping{http.StatusUnauthorized, "invalid_credentials", "invalid email or password"}},
	{identity.ErrInvalidToken, mapping{http.StatusUnauthorized, "invalid_token", "token is invalid"}},
	{identity.ErrTokenExpired, mapping{http.StatusUnauthorized, "token_expired", "token has expired"}},
	{identity.ErrAccountRevoked, mapping{http.StatusUnauthorized, "account_revoked", "account no longer exists"}},
}

var internalMapping = mapping{http.StatusInternalServerError, "internal", "internal server error"}

// mapError never echoes err itself; store and crypto causes stay in the logs.
func mapError(err error) mapping {
	for _, e := range errTable {
		if errors.Is(err, e.err) {
			return e.mapping
		}
	}
	return internalMapping
}

func writeError(w http.ResponseWriter, err error) {
	m := mapError(err)
	if m.status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="`+m.code+`"`)
	}
	writeJSON(w, m.status, errorBody{Error: m.code, Message: m.message})
}
