// Package agreement holds the draft payload both parties attest to and the
// field validation both sides run before any signature or submission.
package agreement

// Draft is the unsigned agreement payload. It is transient: once validated
// and (optionally) signed it is submitted to the registry, which persists it
// as an immutable record.
type Draft struct {
	VenueName             string `json:"venueName"`
	VenueAddress          string `json:"venueAddress"`
	StartTime             int64  `json:"startTime"` // unix seconds
	DurationMinutes       int32  `json:"durationMinutes"`
	ArtistSocialHandle    string `json:"artistSocialHandle"`
	VenueSocialHandle     string `json:"venueSocialHandle"`
	ArtistWallet          string `json:"artistWallet"`
	VenueWallet           string `json:"venueWallet"`
	PaymentAmountUsdCents uint64 `json:"paymentAmountUsdCents"`
}
