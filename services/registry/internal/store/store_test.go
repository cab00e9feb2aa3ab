package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/btree-dev/xao-ai/pkg/agreement"
	"github.com/btree-dev/xao-ai/services/registry/internal/registry"
)

// setupStore boots a throwaway Postgres container. Skipped when Docker is
// not reachable or under -short.
func setupStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed store test in short mode")
	}
	ctx := context.Background()

	pgC, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16"),
		postgres.WithDatabase("registry"),
		postgres.WithUsername("registry"),
		postgres.WithPassword("registry"),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)

	st := New(pool)
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func testRecord(owner string) agreement.Record {
	return agreement.Record{
		Draft: agreement.Draft{
			VenueName:             "Cool Venue",
			VenueAddress:          "123 Blockchain Ave",
			StartTime:             1767225600,
			DurationMinutes:       120,
			ArtistSocialHandle:    "@artist_handle",
			VenueSocialHandle:     "@venue_handle",
			ArtistWallet:          "0x" + strings.Repeat("aa", 20),
			VenueWallet:           "0x" + strings.Repeat("bb", 20),
			PaymentAmountUsdCents: 25000,
		},
		Owner:     owner,
		Status:    agreement.StatusScheduled,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestStore(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	venue := "0x" + strings.Repeat("bb", 20)
	artist := "0x" + strings.Repeat("aa", 20)

	var venueTokenID uint64

	t.Run("create and get round trip", func(t *testing.T) {
		want := testRecord(venue)
		id, err := st.Create(ctx, want, venue)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		venueTokenID = id

		got, err := st.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		want.TokenID = id
		if !got.CreatedAt.Equal(want.CreatedAt) {
			t.Fatalf("created_at: got %v, want %v", got.CreatedAt, want.CreatedAt)
		}
		got.CreatedAt, want.CreatedAt = time.Time{}, time.Time{}
		if got != want {
			t.Fatalf("record mismatch:\n got %+v\nwant %+v", got, want)
		}
	})

	t.Run("get unknown token", func(t *testing.T) {
		if _, err := st.Get(ctx, 9999); !errors.Is(err, registry.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ids survive failed creations", func(t *testing.T) {
		first := testRecord(artist)
		first.FinalizedFrom = venueTokenID
		firstID, err := st.Create(ctx, first, artist)
		if err != nil {
			t.Fatalf("Create counterpart: %v", err)
		}
		if firstID <= venueTokenID {
			t.Fatalf("id %d not greater than %d", firstID, venueTokenID)
		}

		// Second counterpart for the same venue token violates the unique
		// index and rolls back.
		dup := testRecord(artist)
		dup.FinalizedFrom = venueTokenID
		if _, err := st.Create(ctx, dup, artist); err == nil {
			t.Fatalf("expected duplicate finalized_from to fail")
		}

		// The burned id is skipped, never reassigned.
		next, err := st.Create(ctx, testRecord(venue), venue)
		if err != nil {
			t.Fatalf("Create after failure: %v", err)
		}
		if next != firstID+2 {
			t.Fatalf("expected id %d after burned id, got %d", firstID+2, next)
		}
	})

	t.Run("finalized token lookup", func(t *testing.T) {
		id, ok, err := st.FinalizedTokenFor(ctx, venueTokenID)
		if err != nil {
			t.Fatalf("FinalizedTokenFor: %v", err)
		}
		if !ok || id != venueTokenID+1 {
			t.Fatalf("expected counterpart %d, got %d ok=%v", venueTokenID+1, id, ok)
		}
		if _, ok, err := st.FinalizedTokenFor(ctx, 9999); err != nil || ok {
			t.Fatalf("expected no counterpart, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("conditional status update", func(t *testing.T) {
		id, err := st.Create(ctx, testRecord(venue), venue)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := st.UpdateStatus(ctx, id, agreement.StatusScheduled, agreement.StatusCompleted, artist); err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
		rec, _ := st.Get(ctx, id)
		if rec.Status != agreement.StatusCompleted {
			t.Fatalf("expected Completed, got %s", rec.Status)
		}

		// Same precondition again matches zero rows.
		if err := st.UpdateStatus(ctx, id, agreement.StatusScheduled, agreement.StatusCompleted, artist); !errors.Is(err, registry.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
		if err := st.UpdateStatus(ctx, 9999, agreement.StatusScheduled, agreement.StatusCompleted, artist); !errors.Is(err, registry.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("payment flag is one way", func(t *testing.T) {
		id, err := st.Create(ctx, testRecord(venue), venue)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := st.MarkPaymentRecorded(ctx, id, venue); err != nil {
			t.Fatalf("MarkPaymentRecorded: %v", err)
		}
		rec, _ := st.Get(ctx, id)
		if !rec.PaymentRecorded {
			t.Fatalf("expected payment_recorded=true")
		}
		if err := st.MarkPaymentRecorded(ctx, id, venue); !errors.Is(err, registry.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
		if err := st.MarkPaymentRecorded(ctx, 9999, venue); !errors.Is(err, registry.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("events land in order", func(t *testing.T) {
		id, err := st.Create(ctx, testRecord(venue), venue)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := st.UpdateStatus(ctx, id, agreement.StatusScheduled, agreement.StatusCompleted, artist); err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
		if err := st.MarkPaymentRecorded(ctx, id, venue); err != nil {
			t.Fatalf("MarkPaymentRecorded: %v", err)
		}

		events, err := st.Events(ctx, id)
		if err != nil {
			t.Fatalf("Events: %v", err)
		}
		want := []string{registry.EventCreated, registry.EventStatusChanged, registry.EventPaymentRecorded}
		if len(events) != len(want) {
			t.Fatalf("expected %d events, got %d", len(want), len(events))
		}
		for i, typ := range want {
			if events[i].Type != typ {
				t.Errorf("event %d: expected %s, got %s", i, typ, events[i].Type)
			}
		}
		if events[1].Payload["previous"] != "Scheduled" || events[1].Payload["next"] != "Completed" {
			t.Fatalf("status event payload: %v", events[1].Payload)
		}
		if events[1].Actor != artist {
			t.Fatalf("expected actor %s, got %s", artist, events[1].Actor)
		}
	})

	t.Run("tokens owned by", func(t *testing.T) {
		owner := "0x" + strings.Repeat("cd", 20)
		a, _ := st.Create(ctx, testRecord(owner), owner)
		b, _ := st.Create(ctx, testRecord(owner), owner)
		ids, err := st.TokensOwnedBy(ctx, owner)
		if err != nil {
			t.Fatalf("TokensOwnedBy: %v", err)
		}
		if len(ids) != 2 || ids[0] != a || ids[1] != b {
			t.Fatalf("expected [%d %d], got %v", a, b, ids)
		}
		if ids, _ := st.TokensOwnedBy(ctx, "0x"+strings.Repeat("ef", 20)); len(ids) != 0 {
			t.Fatalf("expected no tokens, got %v", ids)
		}
	})
}
