// Package auth issues and checks wallet-bound sessions. There are no
// passwords: a caller proves control of a wallet by signing a single-use
// login challenge with the same typed-data scheme used for agreement
// attestations, and receives a short-lived bearer token whose subject is
// the recovered wallet.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/btree-dev/xao-ai/pkg/httpx"
	"github.com/btree-dev/xao-ai/pkg/typeddata"
	"github.com/btree-dev/xao-ai/pkg/wallet"
)

var (
	ErrUnauthenticated  = errors.New("auth: unauthenticated")
	ErrChallengeUnknown = errors.New("auth: unknown or expired challenge")
)

const (
	challengeTTL = 5 * time.Minute
	sessionTTL   = 24 * time.Hour
)

// ChallengeSchema is the typed payload a wallet signs to log in. The nonce is
// server-issued and single use, so a captured envelope cannot be replayed.
func ChallengeSchema() typeddata.Schema {
	return typeddata.Schema{
		Name: "LoginChallenge",
		Fields: []typeddata.Field{
			{Name: "nonce", Type: typeddata.TypeText},
		},
	}
}

func ChallengeValues(nonce string) typeddata.Values {
	return typeddata.Values{"nonce": nonce}
}

// Service hands out challenges and mints session tokens.
type Service struct {
	domain typeddata.Domain
	secret []byte
	now    func() time.Time

	mu     sync.Mutex
	nonces map[string]time.Time
}

func NewService(domain typeddata.Domain, secret []byte) *Service {
	return &Service{
		domain: domain,
		secret: secret,
		now:    time.Now,
		nonces: map[string]time.Time{},
	}
}

// Challenge issues a fresh nonce the caller must sign within challengeTTL.
func (s *Service) Challenge() string {
	nonce := "nonce_" + uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for n, exp := range s.nonces {
		if now.After(exp) {
			delete(s.nonces, n)
		}
	}
	s.nonces[nonce] = now.Add(challengeTTL)
	return nonce
}

// Login consumes the nonce, verifies the envelope against it, and returns a
// session token plus the wallet it is bound to.
func (s *Service) Login(nonce string, env typeddata.Envelope) (string, string, error) {
	s.mu.Lock()
	exp, ok := s.nonces[nonce]
	if ok {
		delete(s.nonces, nonce)
	}
	s.mu.Unlock()
	if !ok || s.now().After(exp) {
		return "", "", ErrChallengeUnknown
	}

	caller, err := typeddata.Verify(s.domain, ChallengeSchema(), ChallengeValues(nonce), env)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	now := s.now()
	claims := jwt.MapClaims{
		"sub": caller,
		"iat": now.Unix(),
		"exp": now.Add(sessionTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("auth: sign session token: %w", err)
	}
	return token, caller, nil
}

// VerifyToken returns the wallet a session token is bound to.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrUnauthenticated
	}
	sub, _ := claims["sub"].(string)
	if !wallet.Valid(sub) {
		return "", fmt.Errorf("%w: token subject is not a wallet", ErrUnauthenticated)
	}
	return sub, nil
}

type callerKey struct{}

// Middleware requires a valid Bearer session token and places the caller
// wallet in the request context.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := parseBearerToken(r.Header.Get("Authorization"))
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing bearer token", nil)
			return
		}
		caller, err := s.VerifyToken(token)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid session token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

// CallerFromContext returns the authenticated wallet, if any.
func CallerFromContext(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(callerKey{}).(string)
	return caller, ok
}

func parseBearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}
