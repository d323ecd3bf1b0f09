/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/go-github/v84/github"
)

// FromPullRequestEvent normalizes a GitHub pull request webhook payload.
// It returns false for actions the bot does not process.
func FromPullRequestEvent(ev *github.PullRequestEvent) (PullRequest, bool) {
	var action PRAction
	switch ev.GetAction() {
	case "opened":
		action = PROpened
	case "synchronize":
		action = PRSynchronize
	case "reopened":
		action = PRReopened
	default:
		return PullRequest{}, false
	}

	pr := ev.GetPullRequest()
	user := pr.GetUser()
	return PullRequest{
		Action: action,
		Repo:   ev.GetRepo().GetFullName(),
		Number: ev.GetNumber(),
		Contributor: Contributor{
			ID:    user.GetID(),
			Login: user.GetLogin(),
			Name:  user.GetName(),
			Email: user.GetEmail(),
		},
		HeadSHA:        pr.GetHead().GetSHA(),
		InstallationID: ev.GetInstallation().GetID(),
	}, true
}

// FromIssueCommentEvent normalizes a newly created comment on a pull request.
// Comments on plain issues and non-"created" actions return false.
func FromIssueCommentEvent(ev *github.IssueCommentEvent) (Comment, bool) {
	if ev.GetAction() != "created" {
		return Comment{}, false
	}
	issue := ev.GetIssue()
	if !issue.IsPullRequest() {
		return Comment{}, false
	}

	commenter := ev.GetComment().GetUser()
	author := issue.GetUser()
	return Comment{
		Repo:   ev.GetRepo().GetFullName(),
		Number: issue.GetNumber(),
		Body:   ev.GetComment().GetBody(),
		Commenter: Contributor{
			ID:    commenter.GetID(),
			Login: commenter.GetLogin(),
		},
		PRAuthor: Contributor{
			ID:    author.GetID(),
			Login: author.GetLogin(),
			Name:  author.GetName(),
			Email: author.GetEmail(),
		},
		InstallationID: ev.GetInstallation().GetID(),
	}, true
}

// agreementPayload is the wire shape posted by the agreement service.
type agreementPayload struct {
	Event              string `json:"event"`
	AgreementRef       string `json:"agreement_ref"`
	SignedAgreementRef string `json:"signed_agreement_ref"`
	SignerEmail        string `json:"signer_email"`
}

// ParseAgreementEvent decodes an agreement service webhook body. Unrecognized
// event kinds decode to AgreementUnknown rather than erroring, so callers can
// acknowledge them without processing.
func ParseAgreementEvent(body []byte) (Agreement, error) {
	var p agreementPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Agreement{}, fmt.Errorf("decoding agreement event: %w", err)
	}

	kind := AgreementUnknown
	switch strings.TrimSpace(p.Event) {
	case "agreement_executed":
		kind = AgreementExecuted
	case "agreement_new_signature":
		kind = AgreementNewSignature
	case "agreement_cancelled":
		kind = AgreementCancelled
	case "agreement_moved_to_signing":
		kind = AgreementMovedToSigning
	}

	return Agreement{
		Kind:               kind,
		AgreementRef:       strings.TrimSpace(p.AgreementRef),
		SignedAgreementRef: strings.TrimSpace(p.SignedAgreementRef),
		SignerEmail:        strings.TrimSpace(p.SignerEmail),
	}, nil
}
