/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"chainguard.dev/clabot/events"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("it's a secret to everybody")

// fakeCore records which reconciler entry points were invoked.
type fakeCore struct {
	prEvents        []events.PullRequest
	comments        []events.Comment
	agreementEvents []events.Agreement
	err             error
}

func (f *fakeCore) ReconcilePullRequest(_ context.Context, ev events.PullRequest) error {
	f.prEvents = append(f.prEvents, ev)
	return f.err
}

func (f *fakeCore) HandleComment(_ context.Context, ev events.Comment) error {
	f.comments = append(f.comments, ev)
	return f.err
}

func (f *fakeCore) ReconcileAgreementEvent(_ context.Context, ev events.Agreement) error {
	f.agreementEvents = append(f.agreementEvents, ev)
	return f.err
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, testSecret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func githubRequest(t *testing.T, eventType string, body []byte, signature string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	return req
}

const openedPayload = `{
  "action": "opened",
  "number": 7,
  "repository": {"full_name": "org/repo"},
  "pull_request": {
    "user": {"id": 42, "login": "alice"},
    "head": {"sha": "headsha"}
  },
  "installation": {"id": 99}
}`

func TestGitHubWebhookRejectsBadSignature(t *testing.T) {
	core := &fakeCore{}
	h := New(testSecret, core, nil)
	srv := h.Router()

	for name, sig := range map[string]string{
		"missing": "",
		"wrong":   "sha256=" + hex.EncodeToString(bytes.Repeat([]byte{0xab}, 32)),
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, githubRequest(t, "pull_request", []byte(openedPayload), sig))
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Empty(t, core.prEvents)
		})
	}
}

func TestGitHubWebhookDispatchesPullRequest(t *testing.T) {
	core := &fakeCore{}
	h := New(testSecret, core, nil)

	body := []byte(openedPayload)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, githubRequest(t, "pull_request", body, sign(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Len(t, core.prEvents, 1)
	require.Equal(t, "org/repo", core.prEvents[0].Repo)
	require.Equal(t, int64(42), core.prEvents[0].Contributor.ID)
}

func TestGitHubWebhookDispatchesResendComment(t *testing.T) {
	core := &fakeCore{}
	h := New(testSecret, core, nil)

	body := []byte(`{
	  "action": "created",
	  "repository": {"full_name": "org/repo"},
	  "issue": {
	    "number": 7,
	    "user": {"id": 42, "login": "alice"},
	    "pull_request": {"url": "https://api.github.com/repos/org/repo/pulls/7"}
	  },
	  "comment": {"body": "/cla resend", "user": {"id": 7, "login": "maintainer"}},
	  "installation": {"id": 99}
	}`)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, githubRequest(t, "issue_comment", body, sign(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, core.comments, 1)
	require.Equal(t, "/cla resend", core.comments[0].Body)
}

func TestGitHubWebhookAcknowledgesUnrecognizedEvents(t *testing.T) {
	core := &fakeCore{}
	h := New(testSecret, core, nil)

	body := []byte(`{"zen": "Keep it logically awesome."}`)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, githubRequest(t, "frobnicate", body, sign(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, core.prEvents)
	require.Empty(t, core.comments)
}

func TestGitHubWebhookIgnoredActionsAreNotDispatched(t *testing.T) {
	core := &fakeCore{}
	h := New(testSecret, core, nil)

	body := []byte(`{
	  "action": "closed",
	  "number": 7,
	  "repository": {"full_name": "org/repo"},
	  "pull_request": {"user": {"id": 42, "login": "alice"}, "head": {"sha": "headsha"}},
	  "installation": {"id": 99}
	}`)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, githubRequest(t, "pull_request", body, sign(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, core.prEvents)
}

func TestGitHubWebhookPropagatesProcessingErrors(t *testing.T) {
	core := &fakeCore{err: errors.New("boom")}
	h := New(testSecret, core, nil)

	body := []byte(openedPayload)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, githubRequest(t, "pull_request", body, sign(body)))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"status":"error"}`, rec.Body.String())
}

func TestAgreementWebhook(t *testing.T) {
	core := &fakeCore{}
	h := New(testSecret, core, nil)

	body := []byte(`{"event":"agreement_executed","agreement_ref":"AG-1"}`)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/agreements", bytes.NewReader(body))
	h.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, core.agreementEvents, 1)
	require.Equal(t, events.AgreementExecuted, core.agreementEvents[0].Kind)
}

func TestAgreementWebhookToleratesGarbage(t *testing.T) {
	core := &fakeCore{}
	h := New(testSecret, core, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/agreements", bytes.NewReader([]byte("not json")))
	h.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, core.agreementEvents)
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealthEndpoint(t *testing.T) {
	h := New(testSecret, &fakeCore{}, fakePinger{})
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","service":"clabot"}`, rec.Body.String())

	h = New(testSecret, &fakeCore{}, fakePinger{err: errors.New("db down")})
	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
