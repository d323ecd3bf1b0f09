/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package webhook exposes the two inbound endpoints: the code host's
// pull-request webhook (HMAC verified) and the agreement service's lifecycle
// webhook, plus a health endpoint. Payloads are decoded into the normalized
// event union here; no business logic lives in this package.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"chainguard.dev/clabot/events"
	"github.com/chainguard-dev/clog"
	"github.com/go-chi/chi/v5"
	"github.com/google/go-github/v84/github"
)

const maxBodyBytes = 5 << 20 // 5MB

// Core is the reconciliation surface the handlers drive.
type Core interface {
	ReconcilePullRequest(ctx context.Context, ev events.PullRequest) error
	HandleComment(ctx context.Context, ev events.Comment) error
	ReconcileAgreementEvent(ctx context.Context, ev events.Agreement) error
}

// Pinger reports backend readiness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler terminates webhook HTTP traffic.
type Handler struct {
	secret []byte
	core   Core
	pinger Pinger
}

// New constructs a Handler. secret is the shared GitHub webhook secret.
func New(secret []byte, core Core, pinger Pinger) *Handler {
	return &Handler{secret: secret, core: core, pinger: pinger}
}

// Router returns the HTTP routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/webhook/github", h.handleGitHub)
	r.Post("/webhook/agreements", h.handleAgreement)
	r.Get("/healthz", h.handleHealth)
	return r
}

func (h *Handler) handleGitHub(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := clog.FromContext(ctx)
	start := time.Now()

	// ValidatePayload performs the constant-time HMAC-SHA256 check over the
	// raw body; nothing is processed on a mismatch.
	payload, err := github.ValidatePayload(r, h.secret)
	if err != nil {
		log.Warnf("Rejecting webhook with bad signature: %v", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "unauthorized"})
		return
	}

	whType := github.WebHookType(r)
	event, err := github.ParseWebHook(whType, payload)
	if err != nil {
		// Unrecognized event types are acknowledged, never errors.
		log.With("type", whType).Infof("Ignoring unparseable webhook: %v", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	var procErr error
	handled := "ignored"
	switch e := event.(type) {
	case *github.PullRequestEvent:
		if ev, ok := events.FromPullRequestEvent(e); ok {
			handled = "pull_request"
			procErr = h.core.ReconcilePullRequest(ctx, ev)
		}
	case *github.IssueCommentEvent:
		if ev, ok := events.FromIssueCommentEvent(e); ok {
			handled = "issue_comment"
			procErr = h.core.HandleComment(ctx, ev)
		}
	}

	log.With("type", whType, "handled", handled, "duration", time.Since(start)).Info("Processed GitHub webhook")
	if procErr != nil {
		log.Errorf("Processing %s webhook: %v", whType, procErr)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleAgreement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := clog.FromContext(ctx)
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"status": "too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "bad request"})
		return
	}

	ev, err := events.ParseAgreementEvent(body)
	if err != nil {
		log.Warnf("Ignoring malformed agreement event: %v", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	procErr := h.core.ReconcileAgreementEvent(ctx, ev)
	log.With("kind", string(ev.Kind), "duration", time.Since(start)).Info("Processed agreement webhook")
	if procErr != nil {
		log.Errorf("Processing agreement event: %v", procErr)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "clabot"})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
