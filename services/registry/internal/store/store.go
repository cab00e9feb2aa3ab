// Package store persists agreement records in Postgres. Every mutation
// writes its event row in the same transaction, and status updates are
// conditional on the expected prior status so a lost race surfaces as a
// clean rejection instead of a partial write.
package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/btree-dev/xao-ai/pkg/agreement"
	"github.com/btree-dev/xao-ai/services/registry/internal/registry"
)

//go:embed schema.sql
var schemaSQL string

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// Migrate applies the embedded schema. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.DB.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

const recordColumns = `token_id,venue_name,venue_address,start_time,duration_minutes,
artist_social_handle,venue_social_handle,artist_wallet,venue_wallet,
payment_amount_usd_cents,owner_wallet,status,payment_recorded,finalized_from,created_at`

func (s *Store) Create(ctx context.Context, rec agreement.Record, actor string) (uint64, error) {
	// A creation that cannot even get a transaction is a capacity problem,
	// not a protocol rejection.
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: begin create: %v", registry.ErrResourceExhausted, err)
	}
	defer tx.Rollback(ctx)

	// The sequence advances even if this transaction later rolls back, so a
	// failed creation never makes an id reusable.
	var tokenID uint64
	if err := tx.QueryRow(ctx, `SELECT nextval('agreement_token_ids')`).Scan(&tokenID); err != nil {
		return 0, fmt.Errorf("store: assign token id: %w", err)
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO agreements(token_id,venue_name,venue_address,start_time,duration_minutes,
  artist_social_handle,venue_social_handle,artist_wallet,venue_wallet,
  payment_amount_usd_cents,owner_wallet,status,payment_recorded,finalized_from,created_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		tokenID, rec.VenueName, rec.VenueAddress, rec.StartTime, rec.DurationMinutes,
		rec.ArtistSocialHandle, rec.VenueSocialHandle, rec.ArtistWallet, rec.VenueWallet,
		rec.PaymentAmountUsdCents, rec.Owner, int(rec.Status), rec.PaymentRecorded,
		rec.FinalizedFrom, rec.CreatedAt); err != nil {
		return 0, fmt.Errorf("store: insert agreement: %w", err)
	}

	if err := appendEvent(ctx, tx, tokenID, registry.EventCreated, actor, map[string]any{
		"token_id": tokenID,
		"owner":    rec.Owner,
	}); err != nil {
		return 0, err
	}
	if rec.FinalizedFrom != 0 {
		if err := appendEvent(ctx, tx, rec.FinalizedFrom, registry.EventFinalized, actor, map[string]any{
			"venue_token_id":  rec.FinalizedFrom,
			"artist_token_id": tokenID,
		}); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("store: commit create: %w", err)
	}
	return tokenID, nil
}

func (s *Store) Get(ctx context.Context, tokenID uint64) (agreement.Record, error) {
	var rec agreement.Record
	var status int
	err := s.DB.QueryRow(ctx, `SELECT `+recordColumns+` FROM agreements WHERE token_id=$1`, tokenID).Scan(
		&rec.TokenID, &rec.VenueName, &rec.VenueAddress, &rec.StartTime, &rec.DurationMinutes,
		&rec.ArtistSocialHandle, &rec.VenueSocialHandle, &rec.ArtistWallet, &rec.VenueWallet,
		&rec.PaymentAmountUsdCents, &rec.Owner, &status, &rec.PaymentRecorded,
		&rec.FinalizedFrom, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return agreement.Record{}, registry.ErrNotFound
		}
		return agreement.Record{}, fmt.Errorf("store: get agreement: %w", err)
	}
	rec.Status = agreement.Status(status)
	return rec, nil
}

func (s *Store) TokensOwnedBy(ctx context.Context, owner string) ([]uint64, error) {
	rows, err := s.DB.Query(ctx, `SELECT token_id FROM agreements WHERE owner_wallet=$1 ORDER BY token_id ASC`, owner)
	if err != nil {
		return nil, fmt.Errorf("store: tokens owned by: %w", err)
	}
	defer rows.Close()
	var out []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) UpdateStatus(ctx context.Context, tokenID uint64, from, to agreement.Status, actor string) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin status update: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE agreements SET status=$1 WHERE token_id=$2 AND status=$3`,
		int(to), tokenID, int(from))
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.explainZeroRows(ctx, tokenID, fmt.Errorf("%w: expected status %s", registry.ErrInvalidTransition, from))
	}

	if err := appendEvent(ctx, tx, tokenID, registry.EventStatusChanged, actor, map[string]any{
		"previous": from.String(),
		"next":     to.String(),
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit status update: %w", err)
	}
	return nil
}

func (s *Store) MarkPaymentRecorded(ctx context.Context, tokenID uint64, actor string) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin payment update: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE agreements SET payment_recorded=TRUE WHERE token_id=$1 AND payment_recorded=FALSE`, tokenID)
	if err != nil {
		return fmt.Errorf("store: mark payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.explainZeroRows(ctx, tokenID, fmt.Errorf("%w: payment already recorded", registry.ErrInvalidTransition))
	}

	if err := appendEvent(ctx, tx, tokenID, registry.EventPaymentRecorded, actor, nil); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit payment update: %w", err)
	}
	return nil
}

func (s *Store) FinalizedTokenFor(ctx context.Context, venueTokenID uint64) (uint64, bool, error) {
	var id uint64
	err := s.DB.QueryRow(ctx, `SELECT token_id FROM agreements WHERE finalized_from=$1`, venueTokenID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: finalized token for: %w", err)
	}
	return id, true, nil
}

func (s *Store) Events(ctx context.Context, tokenID uint64) ([]registry.Event, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT token_id,type,actor,payload,at FROM agreement_events WHERE token_id=$1 ORDER BY event_id ASC`, tokenID)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()
	var out []registry.Event
	for rows.Next() {
		var ev registry.Event
		var payload []byte
		if err := rows.Scan(&ev.TokenID, &ev.Type, &ev.Actor, &payload, &ev.At); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(payload, &ev.Payload)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// explainZeroRows distinguishes a missing record from a failed precondition
// after a conditional update matched nothing.
func (s *Store) explainZeroRows(ctx context.Context, tokenID uint64, precondition error) error {
	var exists bool
	if err := s.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM agreements WHERE token_id=$1)`, tokenID).Scan(&exists); err != nil {
		return fmt.Errorf("store: explain rejection: %w", err)
	}
	if !exists {
		return registry.ErrNotFound
	}
	return precondition
}

func appendEvent(ctx context.Context, tx pgx.Tx, tokenID uint64, typ, actor string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("store: encode event payload: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO agreement_events(token_id,type,actor,payload) VALUES($1,$2,$3,$4::jsonb)`,
		tokenID, typ, actor, string(b)); err != nil {
		return fmt.Errorf("store: append event: %w", err)
	}
	return nil
}
