package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/NordCoder/Passport/internal/domain/account"
	"github.com/NordCoder/Passport/internal/domain/token"
	"github.com/NordCoder/Passport/internal/obs"
	"github.com/NordCoder/Passport/internal/services/passport/identity"

	"go.uber.org/zap"
)

const (
	maxEmailLen    = 254
	maxPasswordLen = 1024
)

type Identity interface {
	Register(ctx context.Context, email, password string) (*account.Account, error)
	Login(ctx context.Context, email, password string) (*identity.Tokens, error)
	Refresh(ctx context.Context, raw string) (*identity.AccessGrant, error)
	Authenticate(ctx context.Context, raw string) (token.Claims, error)
	Me(ctx context.Context, c token.Claims) identity.Identity
}

type Controller struct {
	uc      Identity
	log     *zap.Logger
	maxBody int64
}

func NewController(uc Identity, log *zap.Logger, maxBody int64) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Controller{uc: uc, log: log.Named("http"), maxBody: maxBody}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r credentialsRequest) valid() bool {
	return r.Email != "" && len(r.Email) <= maxEmailLen && strings.Contains(r.Email, "@") &&
		utf8.ValidString(r.Email) &&
		r.Password != "" && len(r.Password) <= maxPasswordLen
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type accountResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *Controller) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !c.decode(w, r, &req) || !req.valid() {
		writeError(w, ErrInvalidInput)
		return
	}

	a, err := c.uc.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		c.fail(w, r, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, accountResponse{ID: a.ID, Email: a.Email, CreatedAt: a.CreatedAt})
}

func (c *Controller) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !c.decode(w, r, &req) || !req.valid() {
		writeError(w, ErrInvalidInput)
		return
	}

	toks, err := c.uc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		c.fail(w, r, "login", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  toks.AccessToken,
		RefreshToken: toks.RefreshToken,
		TokenType:    toks.TokenType,
		ExpiresIn:    toks.ExpiresIn,
	})
}

func (c *Controller) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !c.decode(w, r, &req) || req.RefreshToken == "" {
		writeError(w, ErrInvalidInput)
		return
	}

	grant, err := c.uc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		c.fail(w, r, "refresh", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessToken: grant.AccessToken,
		TokenType:   grant.TokenType,
		ExpiresIn:   grant.ExpiresIn,
	})
}

// Me must sit behind RequireAccess.
func (c *Controller) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, identity.ErrInvalidToken)
		return
	}
	writeJSON(w, http.StatusOK, c.uc.Me(r.Context(), claims))
}

func (c *Controller) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, c.maxBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			obs.WithTrace(r.Context(), c.log).Warn("request body too large", zap.Int64("limit", tooLarge.Limit))
		}
		return false
	}
	return !dec.More()
}

func (c *Controller) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if mapError(err).status >= http.StatusInternalServerError {
		obs.WithTrace(r.Context(), c.log).Error(op+" failed", zap.Error(err))
	}
	writeError(w, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
