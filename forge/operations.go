/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package forge

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v84/github"
)

// StatusContext is the commit status context the bot owns on every PR.
const StatusContext = "license/cla"

// ErrNoInstallation indicates no app installation has access to a repository.
var ErrNoInstallation = errors.New("forge: no installation for repository")

// Label is a label definition ensured before application.
type Label struct {
	Name        string
	Color       string
	Description string
}

// PullRequest fetches current PR metadata.
func (c *Client) PullRequest(ctx context.Context, installationID int64, repo string, number int) (*github.PullRequest, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	gh, err := c.installation(installationID)
	if err != nil {
		return nil, err
	}
	pr, _, err := gh.PullRequests.Get(ctx, owner, name, number)
	if err != nil {
		return nil, fmt.Errorf("fetching %s#%d: %w", repo, number, err)
	}
	return pr, nil
}

// ListCommits returns the commits on a PR in order.
func (c *Client) ListCommits(ctx context.Context, installationID int64, repo string, number int) ([]*github.RepositoryCommit, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	gh, err := c.installation(installationID)
	if err != nil {
		return nil, err
	}

	var out []*github.RepositoryCommit
	opts := &github.ListOptions{PerPage: 100}
	for {
		commits, resp, err := gh.PullRequests.ListCommits(ctx, owner, name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing commits for %s#%d: %w", repo, number, err)
		}
		out = append(out, commits...)
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// EnsureLabel creates the label definition in the repository if it does not
// already exist.
func (c *Client) EnsureLabel(ctx context.Context, installationID int64, repo string, label Label) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	gh, err := c.installation(installationID)
	if err != nil {
		return err
	}
	_, resp, err := gh.Issues.GetLabel(ctx, owner, name, label.Name)
	if err == nil {
		return nil
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("fetching label %q in %s: %w", label.Name, repo, err)
	}
	_, _, err = gh.Issues.CreateLabel(ctx, owner, name, &github.Label{
		Name:        github.Ptr(label.Name),
		Color:       github.Ptr(label.Color),
		Description: github.Ptr(label.Description),
	})
	if err != nil {
		return fmt.Errorf("creating label %q in %s: %w", label.Name, repo, err)
	}
	return nil
}

// AddLabels applies labels to a PR.
func (c *Client) AddLabels(ctx context.Context, installationID int64, repo string, number int, labels ...string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	gh, err := c.installation(installationID)
	if err != nil {
		return err
	}
	if _, _, err := gh.Issues.AddLabelsToIssue(ctx, owner, name, number, labels); err != nil {
		return fmt.Errorf("adding labels to %s#%d: %w", repo, number, err)
	}
	return nil
}

// RemoveLabel removes a label from a PR. Absence of the label is not an
// error.
func (c *Client) RemoveLabel(ctx context.Context, installationID int64, repo string, number int, label string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	gh, err := c.installation(installationID)
	if err != nil {
		return err
	}
	resp, err := gh.Issues.RemoveLabelForIssue(ctx, owner, name, number, label)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("removing label %q from %s#%d: %w", label, repo, number, err)
	}
	return nil
}

// SetCommitStatus creates or updates the bot's commit status on sha.
// state is "pending" or "success".
func (c *Client) SetCommitStatus(ctx context.Context, installationID int64, repo, sha, state, description string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	gh, err := c.installation(installationID)
	if err != nil {
		return err
	}
	_, _, err = gh.Repositories.CreateStatus(ctx, owner, name, sha, github.RepoStatus{
		State:       github.Ptr(state),
		Context:     github.Ptr(StatusContext),
		Description: github.Ptr(description),
	})
	if err != nil {
		return fmt.Errorf("setting %s status on %s@%s: %w", state, repo, sha, err)
	}
	return nil
}

// CreateComment posts a comment on a PR and returns its id.
func (c *Client) CreateComment(ctx context.Context, installationID int64, repo string, number int, body string) (int64, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return 0, err
	}
	gh, err := c.installation(installationID)
	if err != nil {
		return 0, err
	}
	comment, _, err := gh.Issues.CreateComment(ctx, owner, name, number, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return 0, fmt.Errorf("commenting on %s#%d: %w", repo, number, err)
	}
	return comment.GetID(), nil
}

// UpdateComment rewrites an existing comment's body.
func (c *Client) UpdateComment(ctx context.Context, installationID int64, repo string, commentID int64, body string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}
	gh, err := c.installation(installationID)
	if err != nil {
		return err
	}
	_, _, err = gh.Issues.EditComment(ctx, owner, name, commentID, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("updating comment %d in %s: %w", commentID, repo, err)
	}
	return nil
}

// IsOrgMember reports whether user is a member of org.
func (c *Client) IsOrgMember(ctx context.Context, installationID int64, org, user string) (bool, error) {
	gh, err := c.installation(installationID)
	if err != nil {
		return false, err
	}
	member, _, err := gh.Organizations.IsMember(ctx, org, user)
	if err != nil {
		return false, fmt.Errorf("checking %s membership of %s: %w", org, user, err)
	}
	return member, nil
}
