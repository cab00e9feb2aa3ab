// Package registry implements the agreement attestation and lifecycle
// protocol: creation (direct or artist-presigned), role-gated status
// transitions, payment acknowledgment, and descriptor reads. All identity
// decisions are made here against stored record fields; the registry never
// trusts a caller-asserted signer.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btree-dev/xao-ai/pkg/agreement"
	"github.com/btree-dev/xao-ai/pkg/tokenmeta"
	"github.com/btree-dev/xao-ai/pkg/typeddata"
	"github.com/btree-dev/xao-ai/pkg/wallet"
)

// Event is one append-only entry in a record's history. Exactly one event is
// written per successful mutating call, in the same transaction.
type Event struct {
	TokenID uint64         `json:"token_id"`
	Type    string         `json:"type"`
	Actor   string         `json:"actor"`
	Payload map[string]any `json:"payload,omitempty"`
	At      time.Time      `json:"at"`
}

const (
	EventCreated         = "AGREEMENT_CREATED"
	EventFinalized       = "AGREEMENT_FINALIZED"
	EventStatusChanged   = "STATUS_CHANGED"
	EventPaymentRecorded = "PAYMENT_RECORDED"
)

// Store is the append-only, monotonically-identified record table. Mutations
// are atomic units: the record write and its event land together or not at
// all. Token ids are never reused, even when a creation fails partway.
type Store interface {
	// Create assigns the next token id, persists rec, and writes the
	// creation event (plus a finalize event on the venue token when
	// rec.FinalizedFrom is set). Returns the assigned id.
	Create(ctx context.Context, rec agreement.Record, actor string) (uint64, error)
	Get(ctx context.Context, tokenID uint64) (agreement.Record, error)
	TokensOwnedBy(ctx context.Context, owner string) ([]uint64, error)
	// UpdateStatus moves tokenID from exactly `from` to `to`; a record in
	// any other status is left untouched and ErrInvalidTransition returned.
	UpdateStatus(ctx context.Context, tokenID uint64, from, to agreement.Status, actor string) error
	// MarkPaymentRecorded flips the one-way payment flag; already-set
	// records are left untouched and ErrInvalidTransition returned.
	MarkPaymentRecorded(ctx context.Context, tokenID uint64, actor string) error
	// FinalizedTokenFor reports the artist token minted against a venue
	// token, if any.
	FinalizedTokenFor(ctx context.Context, venueTokenID uint64) (uint64, bool, error)
	Events(ctx context.Context, tokenID uint64) ([]Event, error)
}

// Config is the environment-supplied identity of this registry deployment.
// ChainID and Address are folded into every signature domain so attestations
// cannot be replayed against other networks or deployments.
type Config struct {
	ChainID       uint64
	Address       string
	ArbiterWallet string
}

func (c Config) Domain() typeddata.Domain {
	return typeddata.Domain{
		Name:              agreement.DomainName,
		Version:           agreement.DomainVersion,
		ChainID:           c.ChainID,
		VerifyingContract: c.Address,
	}
}

type Registry struct {
	store Store
	cfg   Config
}

func New(store Store, cfg Config) (*Registry, error) {
	if cfg.ChainID == 0 {
		return nil, errors.New("registry: chain id is required")
	}
	if !wallet.Valid(cfg.Address) {
		return nil, errors.New("registry: registry address is not a valid wallet")
	}
	if !wallet.Valid(cfg.ArbiterWallet) {
		return nil, errors.New("registry: arbiter wallet is not valid")
	}
	return &Registry{store: store, cfg: cfg}, nil
}

// CreateAgreement is the direct dual-submission path: either party submits
// the finished draft and receives the new record. No presigned attestation
// is required because the submitting party is authenticated and the other
// party's wallet is fixed in the payload.
func (r *Registry) CreateAgreement(ctx context.Context, caller string, d agreement.Draft) (uint64, error) {
	if err := agreement.Check(d); err != nil {
		return 0, err
	}
	if !wallet.Equal(caller, d.ArtistWallet) && !wallet.Equal(caller, d.VenueWallet) {
		return 0, fmt.Errorf("%w: caller is neither party to the draft", ErrUnauthorizedCaller)
	}
	rec := agreement.Record{
		Draft:     d,
		Owner:     caller,
		Status:    agreement.StatusScheduled,
		CreatedAt: time.Now().UTC(),
	}
	return r.store.Create(ctx, rec, caller)
}

// CreateAgreementWithArtistSig is the presign path: the artist signed the
// exact draft off-chain, the venue submits draft plus envelope. The envelope
// is verified against the registry's own domain, and the recovered signer
// must equal the draft's declared artist wallet exactly.
func (r *Registry) CreateAgreementWithArtistSig(ctx context.Context, caller string, d agreement.Draft, env typeddata.Envelope) (uint64, error) {
	if err := agreement.Check(d); err != nil {
		return 0, err
	}
	if !wallet.Equal(caller, d.VenueWallet) {
		return 0, fmt.Errorf("%w: presigned submission is the venue's", ErrUnauthorizedCaller)
	}
	signer, err := typeddata.Verify(r.cfg.Domain(), agreement.Schema(), agreement.Values(d), env)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}
	if !wallet.Equal(signer, d.ArtistWallet) {
		return 0, fmt.Errorf("%w: recovered %s, declared %s", ErrSignatureMismatch, signer, d.ArtistWallet)
	}
	rec := agreement.Record{
		Draft:     d,
		Owner:     caller,
		Status:    agreement.StatusScheduled,
		CreatedAt: time.Now().UTC(),
	}
	return r.store.Create(ctx, rec, caller)
}

// FinalizeByArtist is the second phase of the venue-first flow: the artist
// attests to an existing venue token and receives a linked counterpart
// record. One finalize per venue token.
func (r *Registry) FinalizeByArtist(ctx context.Context, caller string, venueTokenID uint64, env typeddata.Envelope) (uint64, error) {
	venueRec, err := r.store.Get(ctx, venueTokenID)
	if err != nil {
		return 0, err
	}
	if venueRec.FinalizedFrom != 0 {
		return 0, fmt.Errorf("%w: token %d is already a finalized counterpart", ErrInvalidTransition, venueTokenID)
	}
	if !wallet.Equal(caller, venueRec.ArtistWallet) {
		return 0, fmt.Errorf("%w: only the record's artist may finalize", ErrUnauthorizedCaller)
	}
	if _, exists, err := r.store.FinalizedTokenFor(ctx, venueTokenID); err != nil {
		return 0, err
	} else if exists {
		return 0, fmt.Errorf("%w: token %d already finalized", ErrInvalidTransition, venueTokenID)
	}
	signer, err := typeddata.Verify(
		r.cfg.Domain(),
		agreement.FinalizeSchema(),
		agreement.FinalizeValues(venueTokenID, venueRec.ArtistWallet),
		env,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}
	if !wallet.Equal(signer, venueRec.ArtistWallet) {
		return 0, fmt.Errorf("%w: recovered %s, declared %s", ErrSignatureMismatch, signer, venueRec.ArtistWallet)
	}
	rec := agreement.Record{
		Draft:         venueRec.Draft,
		Owner:         venueRec.ArtistWallet,
		Status:        agreement.StatusScheduled,
		FinalizedFrom: venueTokenID,
		CreatedAt:     time.Now().UTC(),
	}
	return r.store.Create(ctx, rec, caller)
}

func (r *Registry) GetAgreement(ctx context.Context, tokenID uint64) (agreement.Record, error) {
	return r.store.Get(ctx, tokenID)
}

// MarkCompleted is the artist's attestation that the performance happened.
func (r *Registry) MarkCompleted(ctx context.Context, caller string, tokenID uint64) error {
	return r.transition(ctx, caller, tokenID, agreement.StatusCompleted)
}

// RaiseDispute is the venue's challenge to a completed performance.
func (r *Registry) RaiseDispute(ctx context.Context, caller string, tokenID uint64) error {
	return r.transition(ctx, caller, tokenID, agreement.StatusDisputed)
}

// ResolveDispute records the arbiter's judgment. The registry does not see
// or store the evidence behind it; the call itself is the opaque decision.
func (r *Registry) ResolveDispute(ctx context.Context, caller string, tokenID uint64) error {
	return r.transition(ctx, caller, tokenID, agreement.StatusResolved)
}

func (r *Registry) transition(ctx context.Context, caller string, tokenID uint64, target agreement.Status) error {
	rec, err := r.store.Get(ctx, tokenID)
	if err != nil {
		return err
	}
	if err := CheckTransition(rec, caller, r.cfg.ArbiterWallet, target); err != nil {
		return err
	}
	from, _ := TransitionFrom(target)
	return r.store.UpdateStatus(ctx, tokenID, from, target, caller)
}

// RecordPayment flips the one-way payment flag. Venue only, any status,
// exactly once.
func (r *Registry) RecordPayment(ctx context.Context, caller string, tokenID uint64) error {
	rec, err := r.store.Get(ctx, tokenID)
	if err != nil {
		return err
	}
	if !wallet.Equal(caller, rec.VenueWallet) {
		return fmt.Errorf("%w: only the venue records payment", ErrUnauthorizedCaller)
	}
	if rec.PaymentRecorded {
		return fmt.Errorf("%w: payment already recorded", ErrInvalidTransition)
	}
	return r.store.MarkPaymentRecorded(ctx, tokenID, caller)
}

func (r *Registry) TokensOfOwner(ctx context.Context, owner string) ([]uint64, error) {
	return r.store.TokensOwnedBy(ctx, owner)
}

// TokenDescriptor renders the record as a self-contained data URI.
func (r *Registry) TokenDescriptor(ctx context.Context, tokenID uint64) (string, error) {
	rec, err := r.store.Get(ctx, tokenID)
	if err != nil {
		return "", err
	}
	return tokenmeta.Descriptor(rec)
}

func (r *Registry) Events(ctx context.Context, tokenID uint64) ([]Event, error) {
	return r.store.Events(ctx, tokenID)
}
