package agreement

import (
	"fmt"
	"strings"

	"github.com/btree-dev/xao-ai/pkg/wallet"
)

// Validation codes, one per draft rule. Validate reports every violated
// rule, not just the first, so a caller can fix the whole draft in one pass.
const (
	CodeVenueNameRequired    = "VENUE_NAME_REQUIRED"
	CodeVenueAddressRequired = "VENUE_ADDRESS_REQUIRED"
	CodeStartTimeInvalid     = "START_TIME_INVALID"
	CodeDurationInvalid      = "DURATION_INVALID"
	CodeArtistWalletInvalid  = "ARTIST_WALLET_INVALID"
	CodeVenueWalletInvalid   = "VENUE_WALLET_INVALID"
	CodePaymentAmountInvalid = "PAYMENT_AMOUNT_INVALID"
)

const maxDurationMinutes = 1440 // one day

// Validate checks a draft's structural validity. The same function runs on
// the signing side (avoid signing a draft the registry would reject) and on
// the submitting side (avoid wasting a submission). Empty result means the
// draft is admissible.
func Validate(d Draft) []string {
	var codes []string
	if strings.TrimSpace(d.VenueName) == "" {
		codes = append(codes, CodeVenueNameRequired)
	}
	if strings.TrimSpace(d.VenueAddress) == "" {
		codes = append(codes, CodeVenueAddressRequired)
	}
	if d.StartTime <= 0 {
		codes = append(codes, CodeStartTimeInvalid)
	}
	if d.DurationMinutes <= 0 || d.DurationMinutes > maxDurationMinutes {
		codes = append(codes, CodeDurationInvalid)
	}
	if !wallet.Valid(d.ArtistWallet) {
		codes = append(codes, CodeArtistWalletInvalid)
	}
	if !wallet.Valid(d.VenueWallet) {
		codes = append(codes, CodeVenueWalletInvalid)
	}
	if d.PaymentAmountUsdCents == 0 {
		codes = append(codes, CodePaymentAmountInvalid)
	}
	return codes
}

// ValidationError carries the full code list across an error boundary.
type ValidationError struct {
	Codes []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("draft validation failed: %s", strings.Join(e.Codes, ", "))
}

// Check wraps Validate for call sites that want an error instead of a list.
func Check(d Draft) error {
	if codes := Validate(d); len(codes) > 0 {
		return &ValidationError{Codes: codes}
	}
	return nil
}
