package agreement

import (
	"strconv"

	"github.com/btree-dev/xao-ai/pkg/typeddata"
)

// DomainName and DomainVersion identify the attestation protocol inside the
// typed-data domain. Network id and registry address complete the domain and
// come from the verifier's environment, never from the payload.
const (
	DomainName    = "PerformanceAgreement"
	DomainVersion = "1"
)

// Schema returns the typed-data schema an artist presigns a draft against.
// Field order mirrors Draft exactly; changing any field breaks existing
// signatures by construction.
func Schema() typeddata.Schema {
	return typeddata.Schema{
		Name: "Agreement",
		Fields: []typeddata.Field{
			{Name: "venueName", Type: typeddata.TypeText},
			{Name: "venueAddress", Type: typeddata.TypeText},
			{Name: "startTime", Type: typeddata.TypeUint64},
			{Name: "durationMinutes", Type: typeddata.TypeUint32},
			{Name: "artistSocialHandle", Type: typeddata.TypeText},
			{Name: "venueSocialHandle", Type: typeddata.TypeText},
			{Name: "artistWallet", Type: typeddata.TypeAddress},
			{Name: "venueWallet", Type: typeddata.TypeAddress},
			{Name: "paymentAmountUsdCents", Type: typeddata.TypeUint},
		},
	}
}

// Values renders a draft as canonical typed-data values for Schema.
func Values(d Draft) typeddata.Values {
	return typeddata.Values{
		"venueName":             d.VenueName,
		"venueAddress":          d.VenueAddress,
		"startTime":             strconv.FormatInt(d.StartTime, 10),
		"durationMinutes":       strconv.FormatInt(int64(d.DurationMinutes), 10),
		"artistSocialHandle":    d.ArtistSocialHandle,
		"venueSocialHandle":     d.VenueSocialHandle,
		"artistWallet":          d.ArtistWallet,
		"venueWallet":           d.VenueWallet,
		"paymentAmountUsdCents": strconv.FormatUint(d.PaymentAmountUsdCents, 10),
	}
}

// FinalizeSchema is the typed-data schema for the two-phase flow: the artist
// attests to an existing venue token rather than to a fresh draft.
func FinalizeSchema() typeddata.Schema {
	return typeddata.Schema{
		Name: "ArtistFinalize",
		Fields: []typeddata.Field{
			{Name: "venueTokenId", Type: typeddata.TypeUint64},
			{Name: "artistWallet", Type: typeddata.TypeAddress},
		},
	}
}

// FinalizeValues renders the finalize payload for FinalizeSchema.
func FinalizeValues(venueTokenID uint64, artistWallet string) typeddata.Values {
	return typeddata.Values{
		"venueTokenId": strconv.FormatUint(venueTokenID, 10),
		"artistWallet": artistWallet,
	}
}
