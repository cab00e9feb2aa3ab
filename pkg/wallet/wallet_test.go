package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
)

func TestFromPublicKey_Deterministic(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	a, err := FromPublicKey(pub)
	if err != nil {
		t.Fatalf("FromPublicKey: %v", err)
	}
	b, err := FromPublicKey(pub)
	if err != nil {
		t.Fatalf("FromPublicKey: %v", err)
	}
	if a != b {
		t.Fatalf("expected deterministic address, got %s and %s", a, b)
	}
	if !Valid(a) {
		t.Fatalf("derived address %s should be valid", a)
	}
}

func TestFromPublicKey_RejectsShortKey(t *testing.T) {
	if _, err := FromPublicKey([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for short key")
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"0x" + strings.Repeat("ab", 20), true},
		{"", false},
		{"0x", false},
		{"ab" + strings.Repeat("ab", 20), false},
		{"0x" + strings.Repeat("AB", 20), false},
		{"0x" + strings.Repeat("zz", 20), false},
		{"0x" + strings.Repeat("ab", 19), false},
		{"0x" + strings.Repeat("ab", 21), false},
	}
	for _, c := range cases {
		if got := Valid(c.in); got != c.ok {
			t.Errorf("Valid(%q) = %v, want %v", c.in, got, c.ok)
		}
	}
}
