/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package forge wraps the code hosting platform's API behind the capabilities
// the reconcilers need: PR and commit metadata, labels, commit statuses,
// comments, organization membership, and installation resolution.
//
// Authentication is per GitHub App installation. Clients are built lazily via
// ghinstallation transports and held in an explicit cache owned by the Client,
// so concurrent webhooks for the same installation share one token refresher.
package forge

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// Client talks to GitHub as a GitHub App.
type Client struct {
	appID      int64
	privateKey []byte
	transport  http.RoundTripper

	// app is authenticated as the App itself (JWT), used only to enumerate
	// installations.
	app *github.Client

	mu            sync.Mutex
	installations map[int64]*github.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTransport overrides the base HTTP transport. Tests use this to point
// the client at a local server.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// New constructs a Client from GitHub App credentials.
func New(appID int64, privateKey []byte, opts ...Option) (*Client, error) {
	c := &Client{
		appID:         appID,
		privateKey:    privateKey,
		transport:     http.DefaultTransport,
		installations: map[int64]*github.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}

	atr, err := ghinstallation.NewAppsTransport(c.transport, appID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("creating app transport: %w", err)
	}
	c.app = github.NewClient(&http.Client{Transport: atr})
	return c, nil
}

// installation returns (creating and caching on first use) a client
// authenticated as the given installation.
func (c *Client) installation(installationID int64) (*github.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gh, ok := c.installations[installationID]; ok {
		return gh, nil
	}
	itr, err := ghinstallation.New(c.transport, c.appID, installationID, c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("creating installation transport for %d: %w", installationID, err)
	}
	gh := github.NewClient(&http.Client{Transport: itr})
	c.installations[installationID] = gh
	return gh, nil
}

// FindInstallationForRepo resolves the installation that has access to the
// given "owner/name" repository by scanning each installation's accessible
// repositories. Returns ErrNoInstallation when no installation matches.
func (c *Client) FindInstallationForRepo(ctx context.Context, repo string) (int64, error) {
	log := clog.FromContext(ctx)

	instOpts := &github.ListOptions{PerPage: 100}
	for {
		installations, resp, err := c.app.Apps.ListInstallations(ctx, instOpts)
		if err != nil {
			return 0, fmt.Errorf("listing installations: %w", err)
		}
		for _, inst := range installations {
			ok, err := c.installationHasRepo(ctx, inst.GetID(), repo)
			if err != nil {
				log.With("installation", inst.GetID()).Warnf("Skipping installation: %v", err)
				continue
			}
			if ok {
				return inst.GetID(), nil
			}
		}
		if resp.NextPage == 0 {
			break
		}
		instOpts.Page = resp.NextPage
	}
	return 0, fmt.Errorf("%w: %s", ErrNoInstallation, repo)
}

func (c *Client) installationHasRepo(ctx context.Context, installationID int64, repo string) (bool, error) {
	gh, err := c.installation(installationID)
	if err != nil {
		return false, err
	}
	opts := &github.ListOptions{PerPage: 100}
	for {
		repos, resp, err := gh.Apps.ListRepos(ctx, opts)
		if err != nil {
			return false, fmt.Errorf("listing repositories: %w", err)
		}
		for _, r := range repos.Repositories {
			if strings.EqualFold(r.GetFullName(), repo) {
				return true, nil
			}
		}
		if resp.NextPage == 0 {
			return false, nil
		}
		opts.Page = resp.NextPage
	}
}

// splitRepo splits "owner/name" into its components.
func splitRepo(repo string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("malformed repository %q", repo)
	}
	return owner, name, nil
}
