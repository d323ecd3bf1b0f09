/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package reconciler

import (
	"fmt"
	"strings"

	"chainguard.dev/clabot/events"
	"github.com/google/go-github/v84/github"
)

// relayDomain is the platform's private email relay. Addresses there cannot
// receive signature invitations, so they rank last.
const relayDomain = "users.noreply.github.com"

// resolveEmail deterministically picks the contributor's email: the first
// commit author email outside the relay domain, then the public profile
// email, then a relay-domain commit email, and finally the deterministic
// placeholder derived from the user id and login. The result is stable
// across repeated synchronize events; the function has no side effects.
func resolveEmail(c events.Contributor, commits []*github.RepositoryCommit) string {
	var relay string
	for _, rc := range commits {
		email := rc.GetCommit().GetAuthor().GetEmail()
		if email == "" {
			continue
		}
		if strings.HasSuffix(strings.ToLower(email), "@"+relayDomain) {
			if relay == "" {
				relay = email
			}
			continue
		}
		return email
	}
	if c.Email != "" {
		return c.Email
	}
	if relay != "" {
		return relay
	}
	return fmt.Sprintf("%d+%s@%s", c.ID, c.Login, relayDomain)
}
