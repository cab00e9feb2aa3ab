// Package typeddata implements the registry's structured-data signature
// scheme: a payload is signed against an ordered, typed schema and a domain
// (protocol name, version, network id, registry address) so the signature
// cannot be replayed across networks, registry deployments, or payload
// shapes, and any single-field mutation invalidates it.
package typeddata

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/btree-dev/xao-ai/pkg/wallet"
)

const digestPrefix = "xao-typed-data-v1"

type FieldType string

const (
	TypeText    FieldType = "text"
	TypeUint64  FieldType = "uint64"
	TypeUint32  FieldType = "uint32"
	TypeUint    FieldType = "uint"
	TypeAddress FieldType = "address"
)

// Field is one named, typed slot in a schema. Order matters: the digest is
// computed over fields in declaration order.
type Field struct {
	Name string
	Type FieldType
}

// Schema is the ordered field list a signature is bound to.
type Schema struct {
	Name   string
	Fields []Field
}

// TypeString renders the schema's canonical type descriptor, folded into the
// digest so signatures over different shapes never collide.
func (s Schema) TypeString() string {
	parts := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		parts = append(parts, f.Name+" "+string(f.Type))
	}
	return s.Name + "(" + strings.Join(parts, ",") + ")"
}

// Domain identifies the verifying registry. The registry always recomputes
// its own Domain from its configuration; caller-supplied domain fields are
// never trusted at verification time.
type Domain struct {
	Name              string
	Version           string
	ChainID           uint64
	VerifyingContract string
}

// Values maps schema field names to their canonical string encodings:
// decimal for the unsigned types, lowercase 0x hex for addresses, raw text
// for text fields.
type Values map[string]string

var (
	ErrInvalidDomain = errors.New("invalid signing domain")
	ErrInvalidValue  = errors.New("invalid payload value")
)

// Digest computes the domain- and schema-bound SHA-256 digest the signature
// is produced over. Every schema field must be present and well-typed, and
// no extra values may be supplied.
func Digest(d Domain, s Schema, v Values) ([]byte, error) {
	if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.Version) == "" || d.ChainID == 0 {
		return nil, ErrInvalidDomain
	}
	if !wallet.Valid(d.VerifyingContract) {
		return nil, fmt.Errorf("%w: verifying contract address", ErrInvalidDomain)
	}
	if len(v) != len(s.Fields) {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidValue, len(s.Fields), len(v))
	}

	var b strings.Builder
	b.WriteString(digestPrefix)
	b.WriteString("\n")
	b.WriteString("domain:")
	b.WriteString(d.Name)
	b.WriteString("|")
	b.WriteString(d.Version)
	b.WriteString("|")
	b.WriteString(strconv.FormatUint(d.ChainID, 10))
	b.WriteString("|")
	b.WriteString(d.VerifyingContract)
	b.WriteString("\n")
	b.WriteString("schema:")
	b.WriteString(s.TypeString())
	b.WriteString("\n")
	for _, f := range s.Fields {
		raw, ok := v[f.Name]
		if !ok {
			return nil, fmt.Errorf("%w: missing field %q", ErrInvalidValue, f.Name)
		}
		enc, err := encodeValue(f, raw)
		if err != nil {
			return nil, err
		}
		b.WriteString(f.Name)
		b.WriteString("=")
		b.WriteString(enc)
		b.WriteString("\n")
	}
	sum := sha256.Sum256([]byte(b.String()))
	return sum[:], nil
}

// DigestHex is Digest rendered as lowercase hex, the form carried in
// envelopes.
func DigestHex(d Domain, s Schema, v Values) (string, error) {
	sum, err := Digest(d, s, v)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

func encodeValue(f Field, raw string) (string, error) {
	switch f.Type {
	case TypeText:
		// Quoted so text containing separators cannot forge adjacent lines.
		return strconv.Quote(raw), nil
	case TypeUint64, TypeUint:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return "", fmt.Errorf("%w: field %q is not a decimal uint", ErrInvalidValue, f.Name)
		}
		return strconv.FormatUint(n, 10), nil
	case TypeUint32:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || n > math.MaxUint32 {
			return "", fmt.Errorf("%w: field %q is not a decimal uint32", ErrInvalidValue, f.Name)
		}
		return strconv.FormatUint(n, 10), nil
	case TypeAddress:
		if !wallet.Valid(raw) {
			return "", fmt.Errorf("%w: field %q is not a wallet address", ErrInvalidValue, f.Name)
		}
		return raw, nil
	default:
		return "", fmt.Errorf("%w: field %q has unknown type %q", ErrInvalidValue, f.Name, f.Type)
	}
}

// FieldNames returns the schema's field names sorted, for diagnostics.
func (s Schema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}
