/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package events defines the normalized inbound event types consumed by the
// reconcilers. Webhook payloads are decoded into these types exactly once at
// the transport boundary; everything past the boundary switches over a closed
// set of kinds.
package events

// PRAction is a pull request lifecycle action the bot reacts to.
type PRAction string

const (
	PROpened      PRAction = "opened"
	PRSynchronize PRAction = "synchronize"
	PRReopened    PRAction = "reopened"
)

// Contributor identifies a platform user. ID is the canonical identity;
// Login is a case-insensitive alias.
type Contributor struct {
	ID    int64
	Login string
	Name  string
	Email string
}

// PullRequest is a normalized pull request lifecycle event.
type PullRequest struct {
	Action         PRAction
	Repo           string // "owner/name"
	Number         int
	Contributor    Contributor
	HeadSHA        string
	InstallationID int64
}

// Comment is a normalized new-comment event on a pull request.
type Comment struct {
	Repo           string
	Number         int
	Body           string
	Commenter      Contributor
	PRAuthor       Contributor
	InstallationID int64
}

// AgreementKind is a lifecycle event kind reported by the agreement service.
type AgreementKind string

const (
	// AgreementExecuted fires when the agreement is fully countersigned.
	AgreementExecuted AgreementKind = "executed"
	// AgreementNewSignature fires when a single signer has signed. For a
	// single-signer CLA this is equivalent to AgreementExecuted.
	AgreementNewSignature AgreementKind = "new_signature"
	AgreementCancelled      AgreementKind = "cancelled"
	AgreementMovedToSigning AgreementKind = "moved_to_signing"
	// AgreementUnknown covers event kinds the bot does not act on.
	AgreementUnknown AgreementKind = "unknown"
)

// Agreement is a normalized agreement lifecycle event.
type Agreement struct {
	Kind AgreementKind

	// AgreementRef is the reference assigned when the agreement was created.
	AgreementRef string
	// SignedAgreementRef is the post-signature reference. A negotiation may
	// rewrite the primary reference, so lookups fall back to this one.
	SignedAgreementRef string
	SignerEmail        string
}
