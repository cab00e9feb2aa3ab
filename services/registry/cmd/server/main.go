package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/btree-dev/xao-ai/pkg/agreement"
	"github.com/btree-dev/xao-ai/pkg/db"
	"github.com/btree-dev/xao-ai/pkg/httpx"
	"github.com/btree-dev/xao-ai/pkg/typeddata"
	"github.com/btree-dev/xao-ai/services/registry/internal/auth"
	"github.com/btree-dev/xao-ai/services/registry/internal/registry"
	"github.com/btree-dev/xao-ai/services/registry/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := db.MustConnect(ctx)
	defer pool.Close()
	st := store.New(pool)
	if err := st.Migrate(ctx); err != nil {
		log.Fatalf("registry: migrate: %v", err)
	}

	cfg := registry.Config{
		ChainID:       envUint("NETWORK_ID", 84532),
		Address:       os.Getenv("REGISTRY_ADDRESS"),
		ArbiterWallet: os.Getenv("ARBITER_WALLET"),
	}
	reg, err := registry.New(st, cfg)
	if err != nil {
		log.Fatalf("registry: config: %v", err)
	}

	secret := os.Getenv("SESSION_SECRET")
	if secret == "" {
		log.Fatal("registry: SESSION_SECRET is required")
	}
	sessions := auth.NewService(cfg.Domain(), []byte(secret))

	port := os.Getenv("SERVICE_PORT")
	if port == "" {
		port = "8084"
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Post("/auth/challenge", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "nonce": sessions.Challenge()})
	})
	r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Nonce    string             `json:"nonce"`
			Envelope typeddata.Envelope `json:"envelope"`
		}
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
			return
		}
		token, caller, err := sessions.Login(req.Nonce, req.Envelope)
		if err != nil {
			httpx.WriteError(w, 401, "UNAUTHENTICATED", "challenge verification failed", nil)
			return
		}
		httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "token": token, "wallet": caller})
	})

	r.Route("/registry", func(api chi.Router) {
		api.Use(sessions.Middleware)

		api.Post("/agreements", func(w http.ResponseWriter, r *http.Request) {
			caller, _ := auth.CallerFromContext(r.Context())
			var req struct {
				Agreement agreement.Draft `json:"agreement"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			tokenID, err := reg.CreateAgreement(r.Context(), caller, req.Agreement)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "token_id": tokenID})
		})

		api.Post("/agreements:presigned", func(w http.ResponseWriter, r *http.Request) {
			caller, _ := auth.CallerFromContext(r.Context())
			var req struct {
				Agreement agreement.Draft    `json:"agreement"`
				Envelope  typeddata.Envelope `json:"envelope"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			tokenID, err := reg.CreateAgreementWithArtistSig(r.Context(), caller, req.Agreement, req.Envelope)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			httpx.WriteJSON(w, 201, map[string]any{"request_id": httpx.NewRequestID(), "token_id": tokenID})
		})

		api.Post("/agreements/{token_id}:finalize", func(w http.ResponseWriter, r *http.Request) {
			caller, _ := auth.CallerFromContext(r.Context())
			venueTokenID, ok := tokenParam(w, r)
			if !ok {
				return
			}
			var req struct {
				Envelope typeddata.Envelope `json:"envelope"`
			}
			if err := httpx.ReadJSON(r, &req); err != nil {
				httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
				return
			}
			tokenID, err := reg.FinalizeByArtist(r.Context(), caller, venueTokenID, req.Envelope)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			httpx.WriteJSON(w, 201, map[string]any{
				"request_id": httpx.NewRequestID(), "token_id": tokenID, "venue_token_id": venueTokenID,
			})
		})

		api.Get("/agreements/{token_id}", func(w http.ResponseWriter, r *http.Request) {
			tokenID, ok := tokenParam(w, r)
			if !ok {
				return
			}
			rec, err := reg.GetAgreement(r.Context(), tokenID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "agreement": rec})
		})

		transition := func(fn func(ctx context.Context, caller string, tokenID uint64) error) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				caller, _ := auth.CallerFromContext(r.Context())
				tokenID, ok := tokenParam(w, r)
				if !ok {
					return
				}
				if err := fn(r.Context(), caller, tokenID); err != nil {
					writeServiceError(w, err)
					return
				}
				rec, err := reg.GetAgreement(r.Context(), tokenID)
				if err != nil {
					writeServiceError(w, err)
					return
				}
				httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "agreement": rec})
			}
		}
		api.Post("/agreements/{token_id}:markCompleted", transition(reg.MarkCompleted))
		api.Post("/agreements/{token_id}:raiseDispute", transition(reg.RaiseDispute))
		api.Post("/agreements/{token_id}:resolveDispute", transition(reg.ResolveDispute))
		api.Post("/agreements/{token_id}:recordPayment", transition(reg.RecordPayment))

		api.Get("/agreements/{token_id}/descriptor", func(w http.ResponseWriter, r *http.Request) {
			tokenID, ok := tokenParam(w, r)
			if !ok {
				return
			}
			uri, err := reg.TokenDescriptor(r.Context(), tokenID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "token_uri": uri})
		})

		api.Get("/agreements/{token_id}/events", func(w http.ResponseWriter, r *http.Request) {
			tokenID, ok := tokenParam(w, r)
			if !ok {
				return
			}
			events, err := reg.Events(r.Context(), tokenID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "events": events})
		})

		api.Get("/owners/{wallet}/tokens", func(w http.ResponseWriter, r *http.Request) {
			owner := chi.URLParam(r, "wallet")
			ids, err := reg.TokensOfOwner(r.Context(), owner)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			if ids == nil {
				ids = []uint64{}
			}
			httpx.WriteJSON(w, 200, map[string]any{"request_id": httpx.NewRequestID(), "token_ids": ids})
		})
	})

	srv := &http.Server{Addr: ":" + port, Handler: r}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("registry: listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("registry: %v", err)
	}
}

// writeServiceError maps registry errors onto the wire taxonomy.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *agreement.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.WriteError(w, 400, "VALIDATION_FAILED", "agreement draft is invalid", verr.Codes)
	case errors.Is(err, registry.ErrNotFound):
		httpx.WriteError(w, 404, "NOT_FOUND", "no such agreement", nil)
	case errors.Is(err, registry.ErrUnauthorizedCaller):
		httpx.WriteError(w, 403, "UNAUTHORIZED_CALLER", err.Error(), nil)
	case errors.Is(err, registry.ErrInvalidTransition):
		httpx.WriteError(w, 409, "INVALID_STATE_TRANSITION", err.Error(), nil)
	case errors.Is(err, registry.ErrSignatureMismatch):
		httpx.WriteError(w, 422, "SIGNATURE_MISMATCH", "attestation does not match the submitted payload", nil)
	case errors.Is(err, registry.ErrResourceExhausted):
		httpx.WriteError(w, 503, "RESOURCE_EXHAUSTED", err.Error(), nil)
	default:
		httpx.WriteError(w, 500, "INTERNAL", err.Error(), nil)
	}
}

func tokenParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "token_id"), 10, 64)
	if err != nil || id == 0 {
		httpx.WriteError(w, 400, "BAD_TOKEN_ID", "token_id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func envUint(key string, def uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		log.Fatalf("registry: %s must be an integer: %v", key, err)
	}
	return n
}
