/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main wires the CLA enforcement bot: config, database, GitHub App
// client, agreement service client, reconcilers, and the webhook server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chainguard.dev/clabot/agreements"
	"chainguard.dev/clabot/forge"
	"chainguard.dev/clabot/reconciler"
	"chainguard.dev/clabot/store"
	"chainguard.dev/clabot/webhook"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
)

type config struct {
	Port int `env:"PORT,default=8080"`

	DatabaseURL string `env:"DATABASE_URL,required"`

	GitHubAppID          int64  `env:"GITHUB_APP_ID,required"`
	GitHubPrivateKeyPath string `env:"GITHUB_APP_PRIVATE_KEY_PATH,required"`
	GitHubWebhookSecret  string `env:"GITHUB_WEBHOOK_SECRET,required"`

	AgreementBaseURL    string `env:"AGREEMENT_API_URL,required"`
	AgreementAPIKey     string `env:"AGREEMENT_API_KEY,required"`
	AgreementTemplateID string `env:"AGREEMENT_TEMPLATE_ID,required"`

	ExemptLogins []string `env:"CLA_EXEMPT_LOGINS"`
	SkipOrgCheck bool     `env:"CLA_SKIP_ORG_CHECK,default=false"`
	CLAVersion   string   `env:"CLA_VERSION,default=1.0"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}

	privateKey, err := os.ReadFile(cfg.GitHubPrivateKeyPath)
	if err != nil {
		clog.FatalContextf(ctx, "reading GitHub App private key: %v", err)
	}

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		clog.FatalContextf(ctx, "opening store: %v", err)
	}
	defer st.Close()

	fg, err := forge.New(cfg.GitHubAppID, privateKey)
	if err != nil {
		clog.FatalContextf(ctx, "creating GitHub client: %v", err)
	}

	ag := agreements.New(cfg.AgreementBaseURL, cfg.AgreementAPIKey, cfg.AgreementTemplateID)

	opts := []reconciler.Option{
		reconciler.WithExemptLogins(cfg.ExemptLogins),
		reconciler.WithCLAVersion(cfg.CLAVersion),
	}
	if cfg.SkipOrgCheck {
		opts = append(opts, reconciler.WithSkipOrgMembershipCheck())
	}
	core := reconciler.New(st, fg, ag, opts...)

	handler := webhook.New([]byte(cfg.GitHubWebhookSecret), core, st)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			clog.ErrorContextf(ctx, "shutting down server: %v", err)
		}
	}()

	clog.InfoContextf(ctx, "Starting CLA bot on port %d", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		clog.FatalContextf(ctx, "server failed: %v", err)
	}
}
