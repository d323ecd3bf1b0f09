/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chainguard.dev/clabot/events"
	"chainguard.dev/clabot/store"
	"github.com/chainguard-dev/clog"
)

// ReconcileAgreementEvent reacts to agreement lifecycle events from the
// e-signature service. Signature completion fans out onto every tracked PR
// for the contributor; every other kind is a local state change at most.
func (r *Reconciler) ReconcileAgreementEvent(ctx context.Context, ev events.Agreement) error {
	log := clog.FromContext(ctx).With("agreement", ev.AgreementRef, "kind", string(ev.Kind))
	ctx = clog.WithLogger(ctx, log)

	switch ev.Kind {
	case events.AgreementExecuted, events.AgreementNewSignature:
		// A single-signer CLA is effectively signed as soon as the
		// contributor signs, so both kinds complete the signature.
		return r.completeSignature(ctx, ev)
	case events.AgreementCancelled:
		return r.cancelAgreement(ctx, ev)
	case events.AgreementMovedToSigning:
		log.Info("Agreement moved to signing")
		return nil
	case events.AgreementUnknown:
		log.Debug("Ignoring unrecognized agreement event")
		return nil
	}
	return nil
}

// agreementRecord resolves the local CLA record for an event, falling back
// to the rewritten post-signature reference. A nil record with nil error
// means the agreement is not tracked by this system.
func (r *Reconciler) agreementRecord(ctx context.Context, ev events.Agreement) (*store.ContributorAgreement, error) {
	rec, err := r.store.AgreementByRef(ctx, ev.AgreementRef)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up agreement %s: %w", ev.AgreementRef, err)
	}
	if ev.SignedAgreementRef == "" {
		return nil, nil
	}
	rec, err = r.store.AgreementByRef(ctx, ev.SignedAgreementRef)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up agreement %s: %w", ev.SignedAgreementRef, err)
	}
	return rec, nil
}

func (r *Reconciler) completeSignature(ctx context.Context, ev events.Agreement) error {
	log := clog.FromContext(ctx)

	rec, err := r.agreementRecord(ctx, ev)
	if err != nil {
		return err
	}
	if rec == nil {
		// May be an agreement created outside this system's tracking.
		log.Info("No CLA record for agreement; ignoring")
		return nil
	}
	if rec.Status == store.StatusSigned {
		// executed and new_signature both fire for the same transition.
		log.Debug("Agreement already recorded as signed")
		return nil
	}

	now := time.Now().UTC()
	if err := r.store.UpdateAgreementStatus(ctx, rec.UserID, store.StatusSigned, &now); err != nil {
		return fmt.Errorf("marking agreement signed: %w", err)
	}

	prs, err := r.store.TrackedPRsForUser(ctx, rec.UserID)
	if err != nil {
		return fmt.Errorf("listing tracked PRs: %w", err)
	}
	log.With("login", rec.Login, "tracked", len(prs)).Info("Replaying signature onto tracked PRs")

	// Best effort per PR: one failed update must not abort the siblings.
	for _, tpr := range prs {
		if err := r.completeTrackedPR(ctx, tpr); err != nil {
			log.With("repo", tpr.Repo, "pr", tpr.Number).Errorf("Updating tracked PR: %v", err)
		}
	}
	return nil
}

func (r *Reconciler) completeTrackedPR(ctx context.Context, tpr store.TrackedPullRequest) error {
	installationID, err := r.forge.FindInstallationForRepo(ctx, tpr.Repo)
	if err != nil {
		return fmt.Errorf("resolving installation: %w", err)
	}
	pr, err := r.forge.PullRequest(ctx, installationID, tpr.Repo, tpr.Number)
	if err != nil {
		return fmt.Errorf("fetching PR: %w", err)
	}

	if tpr.CommentID != nil {
		if err := r.forge.UpdateComment(ctx, installationID, tpr.Repo, *tpr.CommentID, signedComment(tpr.Login)); err != nil {
			return fmt.Errorf("updating comment: %w", err)
		}
	} else {
		if _, err := r.forge.CreateComment(ctx, installationID, tpr.Repo, tpr.Number, signedComment(tpr.Login)); err != nil {
			return fmt.Errorf("posting comment: %w", err)
		}
	}

	return r.markSigned(ctx, installationID, tpr.Repo, tpr.Number, pr.GetHead().GetSHA())
}

// cancelAgreement records the cancellation. PRs that already passed stay
// passed: the agreement remains historically signed for them.
func (r *Reconciler) cancelAgreement(ctx context.Context, ev events.Agreement) error {
	log := clog.FromContext(ctx)

	rec, err := r.agreementRecord(ctx, ev)
	if err != nil {
		return err
	}
	if rec == nil {
		log.Info("No CLA record for cancelled agreement; ignoring")
		return nil
	}
	if err := r.store.UpdateAgreementStatus(ctx, rec.UserID, store.StatusCancelled, nil); err != nil {
		return fmt.Errorf("marking agreement cancelled: %w", err)
	}
	log.With("login", rec.Login).Info("Agreement cancelled")
	return nil
}
