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

	"chainguard.dev/clabot/agreements"
	"chainguard.dev/clabot/events"
	"chainguard.dev/clabot/store"
	"github.com/chainguard-dev/clog"
)

// resendCommand is matched exactly after trimming and case folding.
// Deliberately not a command grammar; one command does not warrant one.
const resendCommand = "/cla resend"

// HandleComment services the "/cla resend" command. Any other comment body
// is ignored without side effects.
func (r *Reconciler) HandleComment(ctx context.Context, ev events.Comment) error {
	if !strings.EqualFold(strings.TrimSpace(ev.Body), resendCommand) {
		return nil
	}
	log := clog.FromContext(ctx).With(
		"repo", ev.Repo, "pr", ev.Number,
		"requester", ev.Commenter.Login, "author", ev.PRAuthor.Login)
	ctx = clog.WithLogger(ctx, log)
	log.Info("Handling resend command")

	rec, err := r.store.AgreementByUserID(ctx, ev.PRAuthor.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("looking up agreement: %w", err)
	}

	if rec == nil {
		return r.resendWithNewAgreement(ctx, ev)
	}

	if rec.Status == store.StatusSigned {
		log.Info("Nothing to resend, CLA already signed")
		_, err := r.forge.CreateComment(ctx, ev.InstallationID, ev.Repo, ev.Number, alreadySignedReply(ev.Commenter.Login))
		return err
	}

	if rec.Status == store.StatusPending {
		_, err := r.agreements.Get(ctx, rec.AgreementRef)
		switch {
		case err == nil:
			if err := r.agreements.ResendInvitation(ctx, rec.AgreementRef, rec.Email); err != nil {
				return fmt.Errorf("resending invitation: %w", err)
			}
			log.Info("Invitation re-sent")
			_, err := r.forge.CreateComment(ctx, ev.InstallationID, ev.Repo, ev.Number, resentReply(ev.Commenter.Login, ev.PRAuthor.Login))
			return err
		case errors.Is(err, agreements.ErrNotFound):
			// The agreement was deleted in the service; drop the stale
			// record and start over.
			log.Warn("Agreement deleted upstream; recreating")
			if err := r.store.DeleteAgreement(ctx, ev.PRAuthor.ID); err != nil {
				return fmt.Errorf("deleting stale agreement: %w", err)
			}
		default:
			return fmt.Errorf("fetching agreement %s: %w", rec.AgreementRef, err)
		}
	}

	// No record, deleted upstream, or a terminal non-signed status
	// (cancelled, expired): a fresh agreement is needed either way.
	return r.resendWithNewAgreement(ctx, ev)
}

func (r *Reconciler) resendWithNewAgreement(ctx context.Context, ev events.Comment) error {
	log := clog.FromContext(ctx)

	pr, err := r.forge.PullRequest(ctx, ev.InstallationID, ev.Repo, ev.Number)
	if err != nil {
		return fmt.Errorf("fetching PR: %w", err)
	}
	commits, err := r.forge.ListCommits(ctx, ev.InstallationID, ev.Repo, ev.Number)
	if err != nil {
		return fmt.Errorf("listing PR commits: %w", err)
	}
	email := resolveEmail(ev.PRAuthor, commits)

	ref, err := r.agreements.Create(ctx, agreements.CreateRequest{
		Name:   ev.PRAuthor.Name,
		Email:  email,
		Login:  ev.PRAuthor.Login,
		Origin: fmt.Sprintf("%s#%d", ev.Repo, ev.Number),
	})
	if err != nil {
		log.Errorf("Creating agreement failed: %v", err)
		_, cerr := r.forge.CreateComment(ctx, ev.InstallationID, ev.Repo, ev.Number, resendFailedReply(ev.Commenter.Login))
		return cerr
	}
	log.With("agreement", ref).Info("Created replacement agreement")

	if err := r.store.UpsertAgreement(ctx, &store.ContributorAgreement{
		UserID:       ev.PRAuthor.ID,
		Login:        ev.PRAuthor.Login,
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
		UserID:       ev.PRAuthor.ID,
		Login:        ev.PRAuthor.Login,
		AgreementRef: &ref,
	}); err != nil {
		return fmt.Errorf("persisting tracked PR: %w", err)
	}

	if err := r.forge.SetCommitStatus(ctx, ev.InstallationID, ev.Repo, pr.GetHead().GetSHA(), statePending, descPending); err != nil {
		return fmt.Errorf("setting pending status: %w", err)
	}
	_, err = r.forge.CreateComment(ctx, ev.InstallationID, ev.Repo, ev.Number, newInvitationReply(ev.Commenter.Login, ev.PRAuthor.Login))
	return err
}
