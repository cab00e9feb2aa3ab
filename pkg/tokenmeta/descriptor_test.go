package tokenmeta

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/btree-dev/xao-ai/pkg/agreement"
)

func sampleRecord() agreement.Record {
	return agreement.Record{
		Draft: agreement.Draft{
			VenueName:             "Cool Venue",
			VenueAddress:          "123 Blockchain Ave",
			StartTime:             1767225600,
			DurationMinutes:       120,
			ArtistSocialHandle:    "@artist_handle",
			VenueSocialHandle:     "@venue_handle",
			ArtistWallet:          "0x" + strings.Repeat("ab", 20),
			VenueWallet:           "0x" + strings.Repeat("cd", 20),
			PaymentAmountUsdCents: 25000,
		},
		TokenID:         7,
		Owner:           "0x" + strings.Repeat("cd", 20),
		Status:          agreement.StatusDisputed,
		PaymentRecorded: true,
		CreatedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDescriptor_RoundTrip(t *testing.T) {
	rec := sampleRecord()
	uri, err := Descriptor(rec)
	if err != nil {
		t.Fatalf("Descriptor: %v", err)
	}
	if !strings.HasPrefix(uri, "data:application/json;base64,") {
		t.Fatalf("descriptor missing media-type prefix: %s", uri)
	}
	got, ok := Parse(uri)
	if !ok {
		t.Fatalf("Parse rejected a descriptor it produced")
	}
	if got != rec {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, rec)
	}
}

func TestDescriptor_EmbedsStatusName(t *testing.T) {
	uri, err := Descriptor(sampleRecord())
	if err != nil {
		t.Fatalf("Descriptor: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:application/json;base64,"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	doc := string(raw)
	if !strings.Contains(doc, `"status":"Disputed"`) {
		t.Errorf("expected status name in document, got %s", doc)
	}
	if !strings.Contains(doc, `"statusCode":2`) {
		t.Errorf("expected numeric status code in document, got %s", doc)
	}
}

func TestParse_MalformedInputsReturnAbsent(t *testing.T) {
	cases := []string{
		"",
		"data:application/json;base64,",
		"data:text/plain;base64,aGVsbG8=",
		"data:application/json;base64,!!!not-base64!!!",
		"data:application/json;base64," + base64.StdEncoding.EncodeToString([]byte("not json")),
		"https://example.com/metadata/7",
	}
	for _, uri := range cases {
		if _, ok := Parse(uri); ok {
			t.Errorf("Parse(%q) should report absent", uri)
		}
	}
}
