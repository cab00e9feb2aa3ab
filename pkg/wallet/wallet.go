// Package wallet defines the account identifier format used by the
// agreement registry and its derivation from signing keys.
package wallet

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	// Prefix marks the registry's account identifier notation.
	Prefix = "0x"

	addressBytes = 20
	addressLen   = len(Prefix) + 2*addressBytes
)

var ErrInvalidPublicKey = errors.New("ed25519 public key must be 32 bytes")

// FromPublicKey derives the wallet address bound to an ed25519 signing key:
// the first 20 bytes of SHA-256 over the raw public key, lowercase hex.
func FromPublicKey(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", ErrInvalidPublicKey
	}
	sum := sha256.Sum256(pub)
	return Prefix + hex.EncodeToString(sum[:addressBytes]), nil
}

// Valid reports whether s is a well-formed wallet address. It checks syntax
// only; it does not prove a key holder exists for the address.
func Valid(s string) bool {
	if len(s) != addressLen || !strings.HasPrefix(s, Prefix) {
		return false
	}
	body := s[len(Prefix):]
	if body != strings.ToLower(body) {
		return false
	}
	_, err := hex.DecodeString(body)
	return err == nil
}

// Equal compares two addresses after trimming surrounding whitespace.
// Addresses are stored lowercase so no case folding is needed.
func Equal(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b) && strings.TrimSpace(a) != ""
}
