// Package tokenmeta renders agreement records as self-contained data-URI
// descriptors so a consumer can display a record without a second lookup.
package tokenmeta

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/btree-dev/xao-ai/pkg/agreement"
)

const uriPrefix = "data:application/json;base64,"

// payload is the descriptor's embedded document: every record field plus the
// numeric status code alongside its name.
type payload struct {
	agreement.Record
	StatusCode int `json:"statusCode"`
}

// Descriptor encodes a record as data:application/json;base64,<payload>.
func Descriptor(rec agreement.Record) (string, error) {
	b, err := json.Marshal(payload{Record: rec, StatusCode: int(rec.Status)})
	if err != nil {
		return "", err
	}
	return uriPrefix + base64.StdEncoding.EncodeToString(b), nil
}

// Parse decodes a descriptor back into a record. This is a best-effort read
// path for display, not a trust boundary: a missing prefix, bad base64, or
// bad JSON yields (zero, false) rather than an error.
func Parse(uri string) (agreement.Record, bool) {
	rest, ok := strings.CutPrefix(uri, uriPrefix)
	if !ok || rest == "" {
		return agreement.Record{}, false
	}
	raw, err := base64.StdEncoding.DecodeString(rest)
	if err != nil {
		return agreement.Record{}, false
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return agreement.Record{}, false
	}
	return p.Record, true
}
