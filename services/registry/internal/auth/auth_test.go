package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/btree-dev/xao-ai/pkg/typeddata"
	"github.com/btree-dev/xao-ai/pkg/wallet"
)

func testDomain() typeddata.Domain {
	return typeddata.Domain{
		Name:              "PerformanceAgreement",
		Version:           "1",
		ChainID:           84532,
		VerifyingContract: "0x" + strings.Repeat("3c", 20),
	}
}

func signChallenge(t *testing.T, key ed25519.PrivateKey, nonce string) typeddata.Envelope {
	t.Helper()
	env, err := typeddata.Sign(context.Background(), testDomain(),
		ChallengeSchema(), ChallengeValues(nonce),
		typeddata.NewKeySigner(key), time.Now())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return env
}

func TestLoginRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	want, err := wallet.FromPublicKey(pub)
	if err != nil {
		t.Fatalf("FromPublicKey: %v", err)
	}

	svc := NewService(testDomain(), []byte("test-secret"))
	nonce := svc.Challenge()

	token, caller, err := svc.Login(nonce, signChallenge(t, priv, nonce))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if caller != want {
		t.Fatalf("login bound to %s, want %s", caller, want)
	}

	got, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if got != want {
		t.Fatalf("token subject %s, want %s", got, want)
	}
}

func TestLogin_NonceIsSingleUse(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	svc := NewService(testDomain(), []byte("test-secret"))
	nonce := svc.Challenge()
	env := signChallenge(t, priv, nonce)

	if _, _, err := svc.Login(nonce, env); err != nil {
		t.Fatalf("first login: %v", err)
	}
	if _, _, err := svc.Login(nonce, env); !errors.Is(err, ErrChallengeUnknown) {
		t.Fatalf("expected ErrChallengeUnknown on replay, got %v", err)
	}
}

func TestLogin_UnknownNonce(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	svc := NewService(testDomain(), []byte("test-secret"))
	env := signChallenge(t, priv, "nonce_never-issued")
	if _, _, err := svc.Login("nonce_never-issued", env); !errors.Is(err, ErrChallengeUnknown) {
		t.Fatalf("expected ErrChallengeUnknown, got %v", err)
	}
}

func TestLogin_ExpiredNonce(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	svc := NewService(testDomain(), []byte("test-secret"))
	nonce := svc.Challenge()
	env := signChallenge(t, priv, nonce)

	svc.now = func() time.Time { return time.Now().Add(challengeTTL + time.Minute) }
	if _, _, err := svc.Login(nonce, env); !errors.Is(err, ErrChallengeUnknown) {
		t.Fatalf("expected ErrChallengeUnknown after expiry, got %v", err)
	}
}

func TestLogin_SignatureOverDifferentNonceRejected(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	svc := NewService(testDomain(), []byte("test-secret"))
	nonce := svc.Challenge()
	other := svc.Challenge()

	// Envelope attests to a different nonce than the one being consumed.
	if _, _, err := svc.Login(nonce, signChallenge(t, priv, other)); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	svc := NewService(testDomain(), []byte("test-secret"))
	nonce := svc.Challenge()
	token, _, err := svc.Login(nonce, signChallenge(t, priv, nonce))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	other := NewService(testDomain(), []byte("different-secret"))
	if _, err := other.VerifyToken(token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	svc := NewService(testDomain(), []byte("test-secret"))
	nonce := svc.Challenge()
	token, _, err := svc.Login(nonce, signChallenge(t, priv, nonce))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(sessionTTL + time.Hour) }
	if _, err := svc.VerifyToken(token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after session expiry, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	want, _ := wallet.FromPublicKey(pub)
	svc := NewService(testDomain(), []byte("test-secret"))
	nonce := svc.Challenge()
	token, _, err := svc.Login(nonce, signChallenge(t, priv, nonce))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	var seen string
	h := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/registry/agreements/1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if seen != want {
		t.Fatalf("handler saw caller %s, want %s", seen, want)
	}

	for _, header := range []string{"", "Bearer ", "Bearer not-a-token", "Token " + token} {
		req := httptest.NewRequest(http.MethodGet, "/registry/agreements/1", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rr.Code)
		}
	}
}
