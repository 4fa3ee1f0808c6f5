// Package coordinator is the long-running side of the editing surface. It
// serves the observer pull path, hosts the websocket hub and funnels payment
// confirmations so only one request per session is in flight.
package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/example/clipswift/internal/domain/apperr"
	"github.com/example/clipswift/internal/domain/checkout"
	"github.com/example/clipswift/internal/propagation"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// verifyTimeout bounds a shared verification once no caller's deadline
// applies to it.
const verifyTimeout = 30 * time.Second

// Snapshotter is the read side of the snippet store.
type Snapshotter interface {
	Snapshot() propagation.Snapshot
}

type Coordinator struct {
	snapshots Snapshotter
	verifier  checkout.Verifier
	hub       *propagation.Hub
	logger    *zap.Logger
	inflight  singleflight.Group
}

func New(snapshots Snapshotter, verifier checkout.Verifier, logger *zap.Logger) *Coordinator {
	c := &Coordinator{
		snapshots: snapshots,
		verifier:  verifier,
		logger:    logger,
	}
	c.hub = propagation.NewHub(c, logger.Named("hub"))
	return c
}

// Hub is the broadcast source for connected observers.
func (c *Coordinator) Hub() *propagation.Hub { return c.hub }

func (c *Coordinator) Snapshot() propagation.Snapshot {
	return c.snapshots.Snapshot()
}

// Verify confirms a session. Concurrent calls for the same session share a
// single backend request. The shared request is detached from every caller's
// cancellation; a caller that goes away only stops waiting for it.
func (c *Coordinator) Verify(ctx context.Context, sessionID string) (checkout.Verification, error) {
	ch := c.inflight.DoChan(sessionID, func() (any, error) {
		vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), verifyTimeout)
		defer cancel()
		return c.verifier.Verify(vctx, sessionID)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("verification shared", zap.String("session_id", sessionID))
		}
		if res.Err != nil {
			return checkout.Verification{}, res.Err
		}
		return res.Val.(checkout.Verification), nil
	case <-ctx.Done():
		return checkout.Verification{}, ctx.Err()
	}
}

// VerifyPayment answers the verifyPayment message.
func (c *Coordinator) VerifyPayment(ctx context.Context, sessionID string) propagation.VerifyResult {
	if sessionID == "" {
		return propagation.VerifyResult{Error: "sessionId is required"}
	}
	v, err := c.Verify(ctx, sessionID)
	if err != nil {
		return propagation.VerifyResult{Error: err.Error()}
	}
	return propagation.VerifyResult{Success: v.Paid(), PaymentStatus: v.PaymentStatus}
}

func (c *Coordinator) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", c.handleHealth)
	r.Get("/snippets", c.handleSnippets)
	r.Post("/verify-payment", c.handleVerify)
	r.Get("/observers", c.hub.ServeHTTP)

	return r
}

func (c *Coordinator) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"observers": c.hub.Len(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (c *Coordinator) handleSnippets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, c.Snapshot())
}

func (c *Coordinator) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req propagation.Message
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		respondJSON(w, http.StatusBadRequest, propagation.VerifyResult{Error: "sessionId is required"})
		return
	}

	v, err := c.Verify(r.Context(), req.SessionID)
	if err != nil {
		respondJSON(w, apperr.HTTPStatus(err), propagation.VerifyResult{Error: err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, propagation.VerifyResult{Success: v.Paid(), PaymentStatus: v.PaymentStatus})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
