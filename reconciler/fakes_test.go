/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package reconciler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"chainguard.dev/clabot/agreements"
	"chainguard.dev/clabot/forge"
	"chainguard.dev/clabot/store"
	"github.com/google/go-github/v84/github"
)

// fakeStore is an in-memory RecordStore mirroring the SQL upsert semantics.
type fakeStore struct {
	agreements map[int64]*store.ContributorAgreement
	tracked    map[string]*store.TrackedPullRequest

	statusTransitions int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		agreements: map[int64]*store.ContributorAgreement{},
		tracked:    map[string]*store.TrackedPullRequest{},
	}
}

func trackedKey(repo string, number int, userID int64) string {
	return fmt.Sprintf("%s#%d@%d", repo, number, userID)
}

func (f *fakeStore) AgreementByUserID(_ context.Context, userID int64) (*store.ContributorAgreement, error) {
	if ca, ok := f.agreements[userID]; ok {
		cp := *ca
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) AgreementByRef(_ context.Context, ref string) (*store.ContributorAgreement, error) {
	for _, ca := range f.agreements {
		if ca.AgreementRef == ref {
			cp := *ca
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) UpsertAgreement(_ context.Context, ca *store.ContributorAgreement) error {
	cp := *ca
	f.agreements[ca.UserID] = &cp
	return nil
}

func (f *fakeStore) UpdateAgreementStatus(_ context.Context, userID int64, status store.AgreementStatus, signedAt *time.Time) error {
	ca, ok := f.agreements[userID]
	if !ok {
		return store.ErrNotFound
	}
	ca.Status = status
	if signedAt != nil {
		ca.SignedAt = signedAt
	}
	f.statusTransitions++
	return nil
}

func (f *fakeStore) DeleteAgreement(_ context.Context, userID int64) error {
	delete(f.agreements, userID)
	return nil
}

func (f *fakeStore) TrackedPR(_ context.Context, repo string, number int, userID int64) (*store.TrackedPullRequest, error) {
	if tpr, ok := f.tracked[trackedKey(repo, number, userID)]; ok {
		cp := *tpr
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) TrackedPRsForUser(_ context.Context, userID int64) ([]store.TrackedPullRequest, error) {
	var out []store.TrackedPullRequest
	for _, tpr := range f.tracked {
		if tpr.UserID == userID {
			out = append(out, *tpr)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Repo != out[j].Repo {
			return out[i].Repo < out[j].Repo
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

func (f *fakeStore) UpsertTrackedPR(_ context.Context, tpr *store.TrackedPullRequest) error {
	key := trackedKey(tpr.Repo, tpr.Number, tpr.UserID)
	if existing, ok := f.tracked[key]; ok {
		existing.Login = tpr.Login
		if tpr.CommentID != nil {
			existing.CommentID = tpr.CommentID
		}
		if tpr.AgreementRef != nil {
			existing.AgreementRef = tpr.AgreementRef
		}
		return nil
	}
	cp := *tpr
	f.tracked[key] = &cp
	return nil
}

type statusCall struct {
	Repo  string
	SHA   string
	State string
	Desc  string
}

type commentCall struct {
	Repo   string
	Number int
	Body   string
}

// fakeForge records platform side effects.
type fakeForge struct {
	installations map[string]int64
	prs           map[string]*github.PullRequest
	commits       map[string][]*github.RepositoryCommit
	orgMembers    map[string]bool

	ensured  []string
	added    map[string][]string
	removed  map[string][]string
	statuses []statusCall
	comments []commentCall
	updated  map[int64]string

	nextCommentID int64

	statusErr  map[string]error // repo -> error injected into SetCommitStatus
	commentErr error
}

func newFakeForge() *fakeForge {
	return &fakeForge{
		installations: map[string]int64{},
		prs:           map[string]*github.PullRequest{},
		commits:       map[string][]*github.RepositoryCommit{},
		orgMembers:    map[string]bool{},
		added:         map[string][]string{},
		removed:       map[string][]string{},
		updated:       map[int64]string{},
		statusErr:     map[string]error{},
		nextCommentID: 1000,
	}
}

func prKey(repo string, number int) string {
	return fmt.Sprintf("%s#%d", repo, number)
}

func (f *fakeForge) addPR(repo string, number int, sha string, installationID int64) {
	f.installations[repo] = installationID
	f.prs[prKey(repo, number)] = &github.PullRequest{
		Number: github.Ptr(number),
		Head:   &github.PullRequestBranch{SHA: github.Ptr(sha)},
	}
}

func (f *fakeForge) PullRequest(_ context.Context, _ int64, repo string, number int) (*github.PullRequest, error) {
	pr, ok := f.prs[prKey(repo, number)]
	if !ok {
		return nil, fmt.Errorf("unknown PR %s#%d", repo, number)
	}
	return pr, nil
}

func (f *fakeForge) ListCommits(_ context.Context, _ int64, repo string, number int) ([]*github.RepositoryCommit, error) {
	return f.commits[prKey(repo, number)], nil
}

func (f *fakeForge) EnsureLabel(_ context.Context, _ int64, repo string, label forge.Label) error {
	f.ensured = append(f.ensured, repo+":"+label.Name)
	return nil
}

func (f *fakeForge) AddLabels(_ context.Context, _ int64, repo string, number int, labels ...string) error {
	key := prKey(repo, number)
	f.added[key] = append(f.added[key], labels...)
	return nil
}

func (f *fakeForge) RemoveLabel(_ context.Context, _ int64, repo string, number int, label string) error {
	key := prKey(repo, number)
	f.removed[key] = append(f.removed[key], label)
	return nil
}

func (f *fakeForge) SetCommitStatus(_ context.Context, _ int64, repo, sha, state, description string) error {
	if err := f.statusErr[repo]; err != nil {
		return err
	}
	f.statuses = append(f.statuses, statusCall{Repo: repo, SHA: sha, State: state, Desc: description})
	return nil
}

func (f *fakeForge) CreateComment(_ context.Context, _ int64, repo string, number int, body string) (int64, error) {
	if f.commentErr != nil {
		return 0, f.commentErr
	}
	f.nextCommentID++
	f.comments = append(f.comments, commentCall{Repo: repo, Number: number, Body: body})
	return f.nextCommentID, nil
}

func (f *fakeForge) UpdateComment(_ context.Context, _ int64, _ string, commentID int64, body string) error {
	f.updated[commentID] = body
	return nil
}

func (f *fakeForge) IsOrgMember(_ context.Context, _ int64, org, user string) (bool, error) {
	return f.orgMembers[org+"/"+user], nil
}

func (f *fakeForge) FindInstallationForRepo(_ context.Context, repo string) (int64, error) {
	id, ok := f.installations[repo]
	if !ok {
		return 0, forge.ErrNoInstallation
	}
	return id, nil
}

// successStatuses returns the repos that received a success commit status.
func (f *fakeForge) successStatuses() []string {
	var out []string
	for _, s := range f.statuses {
		if s.State == "success" {
			out = append(out, s.Repo)
		}
	}
	sort.Strings(out)
	return out
}

// fakeAgreements records agreement service calls.
type fakeAgreements struct {
	byRef   map[string]*agreements.Agreement
	byEmail map[string]*agreements.Agreement

	created   []agreements.CreateRequest
	resent    []string
	createErr error
	nextRef   int
}

func newFakeAgreements() *fakeAgreements {
	return &fakeAgreements{
		byRef:   map[string]*agreements.Agreement{},
		byEmail: map[string]*agreements.Agreement{},
	}
}

func (f *fakeAgreements) Create(_ context.Context, req agreements.CreateRequest) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, req)
	f.nextRef++
	ref := fmt.Sprintf("AG-%d", f.nextRef)
	f.byRef[ref] = &agreements.Agreement{Ref: ref, Status: "out_for_signature", SignerEmail: req.Email}
	return ref, nil
}

func (f *fakeAgreements) Get(_ context.Context, ref string) (*agreements.Agreement, error) {
	if ag, ok := f.byRef[ref]; ok {
		return ag, nil
	}
	return nil, agreements.ErrNotFound
}

func (f *fakeAgreements) FindCurrentByEmail(_ context.Context, email string) (*agreements.Agreement, error) {
	if ag, ok := f.byEmail[email]; ok {
		return ag, nil
	}
	return nil, agreements.ErrNotFound
}

func (f *fakeAgreements) ResendInvitation(_ context.Context, ref, email string) error {
	f.resent = append(f.resent, ref+":"+email)
	return nil
}
