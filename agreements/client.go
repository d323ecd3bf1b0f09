/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package agreements wraps the external e-signature service behind the four
// capabilities the reconcilers need: create an agreement from the configured
// template, fetch one by reference, search for a current agreement by signer
// email, and resend an invitation.
//
// Transient upstream failures are retried here, inside the client wrapper;
// the reconcilers never retry.
package agreements

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

// ErrNotFound indicates the referenced agreement does not exist (for example
// it was deleted in the service's UI).
var ErrNotFound = errors.New("agreements: not found")

// Agreement is the service's view of one document sent for signature.
type Agreement struct {
	Ref         string `json:"ref"`
	Status      string `json:"status"`
	SignerEmail string `json:"signer_email"`
}

// CreateRequest carries the contributor metadata attached to a new agreement.
type CreateRequest struct {
	Name  string
	Email string
	Login string
	// Origin identifies the PR that triggered the request, "owner/repo#7".
	Origin string
}

// Client is an HTTP client for the agreement service.
type Client struct {
	http       *retryablehttp.Client
	baseURL    string
	apiKey     string
	templateID string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying retrying HTTP client.
func WithHTTPClient(hc *retryablehttp.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New constructs a Client for the service at baseURL, creating agreements
// from the named template.
func New(baseURL, apiKey, templateID string, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil

	c := &Client{
		http:       rc,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		templateID: templateID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type createPayload struct {
	TemplateID   string `json:"template_id"`
	SignerName   string `json:"signer_name"`
	SignerEmail  string `json:"signer_email"`
	SignerLogin  string `json:"signer_login"`
	Origin       string `json:"origin"`
	InviteeEmail string `json:"invitee_email"`
}

// Create sends a new agreement for signature and returns its reference.
func (c *Client) Create(ctx context.Context, req CreateRequest) (string, error) {
	payload := createPayload{
		TemplateID:   c.templateID,
		SignerName:   req.Name,
		SignerEmail:  req.Email,
		SignerLogin:  req.Login,
		Origin:       req.Origin,
		InviteeEmail: req.Email,
	}
	var resp struct {
		Ref string `json:"ref"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/agreements", payload, &resp); err != nil {
		return "", fmt.Errorf("creating agreement for %s: %w", req.Login, err)
	}
	if resp.Ref == "" {
		return "", fmt.Errorf("creating agreement for %s: service returned empty reference", req.Login)
	}
	return resp.Ref, nil
}

// Get fetches an agreement by reference. Returns ErrNotFound if it no longer
// exists.
func (c *Client) Get(ctx context.Context, ref string) (*Agreement, error) {
	var ag Agreement
	if err := c.do(ctx, http.MethodGet, "/v1/agreements/"+url.PathEscape(ref), nil, &ag); err != nil {
		return nil, err
	}
	return &ag, nil
}

// FindCurrentByEmail searches for an existing current (valid, in-force)
// agreement signed by email. Returns ErrNotFound when none exists.
func (c *Client) FindCurrentByEmail(ctx context.Context, email string) (*Agreement, error) {
	q := url.Values{}
	q.Set("signer_email", email)
	q.Set("status", "current")

	var resp struct {
		Agreements []Agreement `json:"agreements"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/agreements?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Agreements) == 0 {
		return nil, fmt.Errorf("searching agreements for %s: %w", email, ErrNotFound)
	}
	return &resp.Agreements[0], nil
}

// ResendInvitation asks the service to re-send the signature invitation for
// ref to email.
func (c *Client) ResendInvitation(ctx context.Context, ref, email string) error {
	payload := map[string]string{"invitee_email": email}
	if err := c.do(ctx, http.MethodPost, "/v1/agreements/"+url.PathEscape(ref)+"/resend", payload, nil); err != nil {
		return fmt.Errorf("resending invitation for %s: %w", ref, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling agreement service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("agreement service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
