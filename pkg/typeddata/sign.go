package typeddata

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"
)

// EnvelopeVersion tags the only envelope shape this scheme produces.
const EnvelopeVersion = "agr-v1"

// Envelope carries a detached signature over a typed-data digest. The
// public key travels with the signature; the signer's wallet address is
// derived from it at verification time rather than trusted from the caller.
type Envelope struct {
	Version   string `json:"version"`
	Algorithm string `json:"algorithm"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
	Digest    string `json:"digest"`
	IssuedAt  string `json:"issued_at"`
}

// ErrSigningDeclined is returned when the key holder refuses to sign. It is
// a normal outcome of the off-ledger signing flow, distinct from any
// verification failure.
var ErrSigningDeclined = errors.New("signing declined by key holder")

// Signer produces an ed25519 signature over a digest. Implementations may
// block indefinitely awaiting key-holder action; ctx cancels the wait, and a
// holder refusing surfaces as ErrSigningDeclined.
type Signer interface {
	Sign(ctx context.Context, digest []byte) (ed25519.PublicKey, []byte, error)
}

// KeySigner signs with a locally held private key, immediately.
type KeySigner struct {
	priv ed25519.PrivateKey
}

func NewKeySigner(priv ed25519.PrivateKey) *KeySigner {
	return &KeySigner{priv: priv}
}

func (k *KeySigner) Sign(_ context.Context, digest []byte) (ed25519.PublicKey, []byte, error) {
	if len(k.priv) != ed25519.PrivateKeySize {
		return nil, nil, errors.New("ed25519 private key must be 64 bytes")
	}
	pub, ok := k.priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, nil, errors.New("ed25519 private key has no ed25519 public key")
	}
	return pub, ed25519.Sign(k.priv, digest), nil
}

// Sign computes the domain-bound digest for values and asks signer to sign
// it. ed25519 is deterministic: identical domain, schema, values, and key
// always yield identical signature bytes.
func Sign(ctx context.Context, d Domain, s Schema, v Values, signer Signer, issuedAt time.Time) (Envelope, error) {
	digest, err := Digest(d, s, v)
	if err != nil {
		return Envelope{}, err
	}
	if issuedAt.IsZero() {
		return Envelope{}, errors.New("issued_at is required")
	}
	pub, sig, err := signer.Sign(ctx, digest)
	if err != nil {
		return Envelope{}, err
	}
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return Envelope{}, errors.New("signer returned malformed key or signature")
	}
	return Envelope{
		Version:   EnvelopeVersion,
		Algorithm: "ed25519",
		PublicKey: base64.StdEncoding.EncodeToString(pub),
		Signature: base64.StdEncoding.EncodeToString(sig),
		Digest:    hex.EncodeToString(digest),
		IssuedAt:  issuedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}
