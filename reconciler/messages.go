/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package reconciler

import "fmt"

// Commit status descriptions.
const (
	descPending = "Waiting for the contributor to sign the CLA"
	descSigned  = "Contributor License Agreement is signed"
)

func descExempt(reason string) string {
	return fmt.Sprintf("CLA not required (%s)", reason)
}

func pendingComment(login string) string {
	return fmt.Sprintf(
		"Thanks for the contribution, @%s! :wave:\n\n"+
			"Before we can accept it, we need you to sign our Contributor License Agreement. "+
			"A signature request has been sent to your email address. Once you have signed, "+
			"this pull request will update automatically.\n\n"+
			"If you believe you should not need to sign, or you did not receive the email, "+
			"comment `/cla resend` on this pull request.", login)
}

func manualFollowUpComment(login string) string {
	return fmt.Sprintf(
		"Thanks for the contribution, @%s!\n\n"+
			"You need to sign our Contributor License Agreement before we can accept it, "+
			"but we could not generate a signature request automatically. "+
			"A maintainer will follow up with you directly. You can also retry by "+
			"commenting `/cla resend` on this pull request.", login)
}

func signedComment(login string) string {
	return fmt.Sprintf(
		"Thanks, @%s! Your Contributor License Agreement is signed. :tada:", login)
}

func alreadySignedReply(requester string) string {
	return fmt.Sprintf(
		"@%s the Contributor License Agreement for this pull request's author is "+
			"already signed; there is nothing to resend.", requester)
}

func resentReply(requester, login string) string {
	return fmt.Sprintf(
		"@%s the signature invitation has been re-sent to @%s's email address.",
		requester, login)
}

func newInvitationReply(requester, login string) string {
	return fmt.Sprintf(
		"@%s a fresh signature invitation has been sent to @%s's email address.",
		requester, login)
}

func resendFailedReply(requester string) string {
	return fmt.Sprintf(
		"@%s we could not create a new signature request right now. "+
			"Please try again later or contact a maintainer.", requester)
}
