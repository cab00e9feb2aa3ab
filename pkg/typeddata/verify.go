package typeddata

import (
	"crypto/ed25519"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/btree-dev/xao-ai/pkg/wallet"
)

var (
	ErrUnsupportedVersion   = errors.New("unsupported envelope version")
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrInvalidIssuedAt      = errors.New("invalid issued_at")
	ErrInvalidEncoding      = errors.New("invalid encoding")
	ErrDigestMismatch       = errors.New("digest mismatch")
	ErrInvalidSignature     = errors.New("invalid signature")
)

// Verify recomputes the digest for (d, s, v) with the verifier's OWN domain
// and checks the envelope's signature over it. On success it returns the
// wallet address derived from the envelope's public key; the caller must
// compare that address against the identity the payload declares.
func Verify(d Domain, s Schema, v Values, env Envelope) (string, error) {
	if strings.TrimSpace(env.Version) != EnvelopeVersion {
		return "", ErrUnsupportedVersion
	}
	if strings.ToLower(strings.TrimSpace(env.Algorithm)) != "ed25519" {
		return "", ErrUnsupportedAlgorithm
	}
	if err := checkIssuedAt(env.IssuedAt); err != nil {
		return "", err
	}

	expected, err := Digest(d, s, v)
	if err != nil {
		return "", err
	}
	claimed, err := decodeLowerHex32(strings.TrimSpace(env.Digest))
	if err != nil {
		return "", err
	}
	if subtle.ConstantTimeCompare(expected, claimed) != 1 {
		return "", ErrDigestMismatch
	}

	pub, err := base64.StdEncoding.DecodeString(strings.TrimSpace(env.PublicKey))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return "", ErrInvalidEncoding
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(env.Signature))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return "", ErrInvalidEncoding
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), expected, sig) {
		return "", ErrInvalidSignature
	}
	return wallet.FromPublicKey(ed25519.PublicKey(pub))
}

func checkIssuedAt(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return ErrInvalidIssuedAt
	}
	at, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return ErrInvalidIssuedAt
	}
	if !strings.HasSuffix(s, "Z") || !at.Equal(at.UTC()) {
		return ErrInvalidIssuedAt
	}
	return nil
}

func decodeLowerHex32(s string) ([]byte, error) {
	if s == "" || s != strings.ToLower(s) {
		return nil, ErrInvalidEncoding
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return nil, ErrInvalidEncoding
	}
	return b, nil
}
