/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package reconciler holds the CLA decision logic. The forward direction
// (ReconcilePullRequest) classifies a contributor on every PR event and
// drives the platform and agreement service to a consistent terminal state.
// The inverse direction (ReconcileAgreementEvent) reacts to signature
// completion and replays the outcome onto every tracked PR for that
// contributor. HandleComment services the "/cla resend" command.
//
// All collaborators are consumed through narrow interfaces so tests can run
// the full decision logic against in-memory fakes.
package reconciler

import (
	"context"
	"strings"
	"time"

	"chainguard.dev/clabot/agreements"
	"chainguard.dev/clabot/forge"
	"chainguard.dev/clabot/store"
	"github.com/google/go-github/v84/github"
)

// RecordStore is the durable state the reconcilers read and mutate.
type RecordStore interface {
	AgreementByUserID(ctx context.Context, userID int64) (*store.ContributorAgreement, error)
	AgreementByRef(ctx context.Context, ref string) (*store.ContributorAgreement, error)
	UpsertAgreement(ctx context.Context, ca *store.ContributorAgreement) error
	UpdateAgreementStatus(ctx context.Context, userID int64, status store.AgreementStatus, signedAt *time.Time) error
	DeleteAgreement(ctx context.Context, userID int64) error

	TrackedPR(ctx context.Context, repo string, number int, userID int64) (*store.TrackedPullRequest, error)
	TrackedPRsForUser(ctx context.Context, userID int64) ([]store.TrackedPullRequest, error)
	UpsertTrackedPR(ctx context.Context, tpr *store.TrackedPullRequest) error
}

// Forge is the code hosting platform capability contract.
type Forge interface {
	PullRequest(ctx context.Context, installationID int64, repo string, number int) (*github.PullRequest, error)
	ListCommits(ctx context.Context, installationID int64, repo string, number int) ([]*github.RepositoryCommit, error)
	EnsureLabel(ctx context.Context, installationID int64, repo string, label forge.Label) error
	AddLabels(ctx context.Context, installationID int64, repo string, number int, labels ...string) error
	RemoveLabel(ctx context.Context, installationID int64, repo string, number int, label string) error
	SetCommitStatus(ctx context.Context, installationID int64, repo, sha, state, description string) error
	CreateComment(ctx context.Context, installationID int64, repo string, number int, body string) (int64, error)
	UpdateComment(ctx context.Context, installationID int64, repo string, commentID int64, body string) error
	IsOrgMember(ctx context.Context, installationID int64, org, user string) (bool, error)
	FindInstallationForRepo(ctx context.Context, repo string) (int64, error)
}

// AgreementService is the e-signature service capability contract.
type AgreementService interface {
	Create(ctx context.Context, req agreements.CreateRequest) (string, error)
	Get(ctx context.Context, ref string) (*agreements.Agreement, error)
	FindCurrentByEmail(ctx context.Context, email string) (*agreements.Agreement, error)
	ResendInvitation(ctx context.Context, ref, email string) error
}

// Commit status states; the bot never reports failure, only pending/success.
const (
	statePending = "pending"
	stateSuccess = "success"
)

// Labels the bot manages on every repository it watches.
var (
	labelPending = forge.Label{Name: "cla: pending", Color: "fbca04", Description: "Waiting for the contributor to sign the CLA"}
	labelSigned  = forge.Label{Name: "cla: signed", Color: "0e8a16", Description: "Contributor License Agreement is signed"}
	labelExempt  = forge.Label{Name: "cla: exempt", Color: "c5def5", Description: "Contributor does not need to sign the CLA"}
)

// Reconciler drives CLA enforcement.
type Reconciler struct {
	store      RecordStore
	forge      Forge
	agreements AgreementService

	exempt       map[string]struct{}
	skipOrgCheck bool
	claVersion   string
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithExemptLogins installs the allow-list of logins that never need to sign.
// Matching is case-insensitive.
func WithExemptLogins(logins []string) Option {
	return func(r *Reconciler) {
		for _, l := range logins {
			l = strings.ToLower(strings.TrimSpace(l))
			if l != "" {
				r.exempt[l] = struct{}{}
			}
		}
	}
}

// WithSkipOrgMembershipCheck disables the organization-member exemption.
func WithSkipOrgMembershipCheck() Option {
	return func(r *Reconciler) {
		r.skipOrgCheck = true
	}
}

// WithCLAVersion sets the CLA version recorded on new agreements.
func WithCLAVersion(v string) Option {
	return func(r *Reconciler) {
		r.claVersion = v
	}
}

// New constructs a Reconciler.
func New(st RecordStore, fg Forge, ag AgreementService, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:      st,
		forge:      fg,
		agreements: ag,
		exempt:     map[string]struct{}{},
		claVersion: "1.0",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) isExempt(login string) bool {
	_, ok := r.exempt[strings.ToLower(login)]
	return ok
}
