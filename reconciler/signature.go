/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chainguard.dev/clabot/agreements"
	"chainguard.dev/clabot/events"
	"chainguard.dev/clabot/store"
	"github.com/chainguard-dev/clog"
)

// ReconcilePullRequest classifies the contributor behind a PR event and
// drives the PR to a consistent terminal state. Classification is evaluated
// in strict order; the first match wins:
//
//  1. allow-listed login            -> exempt
//  2. organization member           -> exempt (unless disabled)
//  3. locally recorded as signed    -> success
//  4. pending and already tracked   -> refresh pending status only
//  5. signed upstream, not recorded -> record, then success
//  6. otherwise                     -> create agreement, track, pend
func (r *Reconciler) ReconcilePullRequest(ctx context.Context, ev events.PullRequest) error {
	log := clog.FromContext(ctx).With(
		"repo", ev.Repo, "pr", ev.Number, "login", ev.Contributor.Login)
	ctx = clog.WithLogger(ctx, log)

	if r.isExempt(ev.Contributor.Login) {
		log.Info("Contributor is on the exemption list")
		return r.markExempt(ctx, ev, "allow-listed")
	}

	org, _, _ := strings.Cut(ev.Repo, "/")
	if !r.skipOrgCheck {
		member, err := r.forge.IsOrgMember(ctx, ev.InstallationID, org, ev.Contributor.Login)
		if err != nil {
			return fmt.Errorf("checking org membership: %w", err)
		}
		if member {
			log.Infof("Contributor is a member of %s", org)
			return r.markExempt(ctx, ev, "organization member")
		}
	}

	rec, err := r.store.AgreementByUserID(ctx, ev.Contributor.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("looking up agreement: %w", err)
	}

	if rec != nil && rec.Status == store.StatusSigned {
		log.Info("CLA already signed")
		return r.markSigned(ctx, ev.InstallationID, ev.Repo, ev.Number, ev.HeadSHA)
	}

	if rec != nil && rec.Status == store.StatusPending {
		tracked, err := r.store.TrackedPR(ctx, ev.Repo, ev.Number, ev.Contributor.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("looking up tracked PR: %w", err)
		}
		if tracked != nil {
			// Already asked on this PR; a new commit status is the only
			// refresh needed. Re-commenting on every push would be noise.
			log.Info("Signature still pending")
			return r.forge.SetCommitStatus(ctx, ev.InstallationID, ev.Repo, ev.HeadSHA, statePending, descPending)
		}
		// Pending agreement but this PR is untracked (or vice versa after a
		// partial failure): fall through and rebuild the full state.
	}

	commits, err := r.forge.ListCommits(ctx, ev.InstallationID, ev.Repo, ev.Number)
	if err != nil {
		return fmt.Errorf("listing PR commits: %w", err)
	}
	email := resolveEmail(ev.Contributor, commits)

	existing, err := r.agreements.FindCurrentByEmail(ctx, email)
	switch {
	case err == nil:
		log.With("agreement", existing.Ref).Info("Found current agreement upstream; recording")
		now := time.Now().UTC()
		if err := r.store.UpsertAgreement(ctx, &store.ContributorAgreement{
			UserID:       ev.Contributor.ID,
			Login:        ev.Contributor.Login,
			Email:        email,
			AgreementRef: existing.Ref,
			Status:       store.StatusSigned,
			CLAVersion:   r.claVersion,
			SignedAt:     &now,
		}); err != nil {
			return fmt.Errorf("recording upstream agreement: %w", err)
		}
		return r.markSigned(ctx, ev.InstallationID, ev.Repo, ev.Number, ev.HeadSHA)
	case errors.Is(err, agreements.ErrNotFound):
		// No current agreement; a new one is needed.
	default:
		return fmt.Errorf("searching for existing agreement: %w", err)
	}

	return r.requestSignature(ctx, ev, email)
}

// requestSignature creates a fresh agreement and pends the PR.
func (r *Reconciler) requestSignature(ctx context.Context, ev events.PullRequest, email string) error {
	log := clog.FromContext(ctx)

	ref, err := r.agreements.Create(ctx, agreements.CreateRequest{
		Name:   ev.Contributor.Name,
		Email:  email,
		Login:  ev.Contributor.Login,
		Origin: fmt.Sprintf("%s#%d", ev.Repo, ev.Number),
	})
	if err != nil {
		log.Errorf("Creating agreement failed: %v", err)
		return r.requestManualFollowUp(ctx, ev)
	}
	log.With("agreement", ref).Info("Created agreement")

	if err := r.store.UpsertAgreement(ctx, &store.ContributorAgreement{
		UserID:       ev.Contributor.ID,
		Login:        ev.Contributor.Login,
		Email:        email,
		AgreementRef: ref,
		Status:       store.StatusPending,
		CLAVersion:   r.claVersion,
	}); err != nil {
		return fmt.Errorf("persisting agreement: %w", err)
	}
	if err := r.store.UpsertTrackedPR(ctx, &store.TrackedPullRequest{
		Repo:         ev.Repo,
		Number:       ev.Number,
		UserID:       ev.Contributor.ID,
		Login:        ev.Contributor.Login,
		AgreementRef: &ref,
	}); err != nil {
		return fmt.Errorf("persisting tracked PR: %w", err)
	}

	if err := r.forge.EnsureLabel(ctx, ev.InstallationID, ev.Repo, labelPending); err != nil {
		return fmt.Errorf("ensuring pending label: %w", err)
	}
	if err := r.forge.AddLabels(ctx, ev.InstallationID, ev.Repo, ev.Number, labelPending.Name); err != nil {
		return fmt.Errorf("adding pending label: %w", err)
	}

	commentID, err := r.forge.CreateComment(ctx, ev.InstallationID, ev.Repo, ev.Number, pendingComment(ev.Contributor.Login))
	if err != nil {
		return fmt.Errorf("posting pending comment: %w", err)
	}
	if err := r.store.UpsertTrackedPR(ctx, &store.TrackedPullRequest{
		Repo:      ev.Repo,
		Number:    ev.Number,
		UserID:    ev.Contributor.ID,
		Login:     ev.Contributor.Login,
		CommentID: &commentID,
	}); err != nil {
		return fmt.Errorf("persisting comment id: %w", err)
	}

	return r.forge.SetCommitStatus(ctx, ev.InstallationID, ev.Repo, ev.HeadSHA, statePending, descPending)
}

// requestManualFollowUp is the degraded path when agreement creation fails:
// the PR still gets the pending label and status plus an explanatory comment,
// but no local state is persisted, so the next event retries from scratch.
func (r *Reconciler) requestManualFollowUp(ctx context.Context, ev events.PullRequest) error {
	log := clog.FromContext(ctx)

	if err := r.forge.EnsureLabel(ctx, ev.InstallationID, ev.Repo, labelPending); err != nil {
		log.Warnf("Ensuring pending label: %v", err)
	}
	if err := r.forge.AddLabels(ctx, ev.InstallationID, ev.Repo, ev.Number, labelPending.Name); err != nil {
		log.Warnf("Adding pending label: %v", err)
	}
	if _, err := r.forge.CreateComment(ctx, ev.InstallationID, ev.Repo, ev.Number, manualFollowUpComment(ev.Contributor.Login)); err != nil {
		log.Warnf("Posting follow-up comment: %v", err)
	}
	if err := r.forge.SetCommitStatus(ctx, ev.InstallationID, ev.Repo, ev.HeadSHA, statePending, descPending); err != nil {
		log.Warnf("Setting pending status: %v", err)
	}
	return nil
}

// markExempt reports success with the exemption reason and labels the PR.
func (r *Reconciler) markExempt(ctx context.Context, ev events.PullRequest, reason string) error {
	if err := r.forge.EnsureLabel(ctx, ev.InstallationID, ev.Repo, labelExempt); err != nil {
		return fmt.Errorf("ensuring exempt label: %w", err)
	}
	if err := r.forge.AddLabels(ctx, ev.InstallationID, ev.Repo, ev.Number, labelExempt.Name); err != nil {
		return fmt.Errorf("adding exempt label: %w", err)
	}
	return r.forge.SetCommitStatus(ctx, ev.InstallationID, ev.Repo, ev.HeadSHA, stateSuccess, descExempt(reason))
}

// markSigned reports success and swaps the pending label for the signed one.
func (r *Reconciler) markSigned(ctx context.Context, installationID int64, repo string, number int, sha string) error {
	if err := r.forge.EnsureLabel(ctx, installationID, repo, labelSigned); err != nil {
		return fmt.Errorf("ensuring signed label: %w", err)
	}
	if err := r.forge.RemoveLabel(ctx, installationID, repo, number, labelPending.Name); err != nil {
		return fmt.Errorf("removing pending label: %w", err)
	}
	if err := r.forge.AddLabels(ctx, installationID, repo, number, labelSigned.Name); err != nil {
		return fmt.Errorf("adding signed label: %w", err)
	}
	return r.forge.SetCommitStatus(ctx, installationID, repo, sha, stateSuccess, descSigned)
}
