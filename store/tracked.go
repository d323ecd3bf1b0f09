/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const (
	selectTrackedQuery = `
SELECT repo, pr_number, user_id, login, comment_id, agreement_ref, created_at, updated_at
FROM tracked_pull_requests
WHERE repo = $1 AND pr_number = $2 AND user_id = $3`

	selectTrackedForUserQuery = `
SELECT repo, pr_number, user_id, login, comment_id, agreement_ref, created_at, updated_at
FROM tracked_pull_requests
WHERE user_id = $1
ORDER BY repo, pr_number`

	upsertTrackedQuery = `
INSERT INTO tracked_pull_requests (repo, pr_number, user_id, login, comment_id, agreement_ref)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (repo, pr_number, user_id) DO UPDATE SET
  login         = EXCLUDED.login,
  comment_id    = COALESCE(EXCLUDED.comment_id, tracked_pull_requests.comment_id),
  agreement_ref = COALESCE(EXCLUDED.agreement_ref, tracked_pull_requests.agreement_ref),
  updated_at    = NOW()`

	deleteTrackedQuery = `
DELETE FROM tracked_pull_requests
WHERE repo = $1 AND pr_number = $2 AND user_id = $3`
)

// TrackedPR looks up the tracking row for (repo, number, userID).
func (s *Store) TrackedPR(ctx context.Context, repo string, number int, userID int64) (*TrackedPullRequest, error) {
	row := s.db.QueryRow(ctx, selectTrackedQuery, repo, number, userID)
	tpr, err := scanTracked(row)
	if err != nil {
		return nil, err
	}
	return tpr, nil
}

// TrackedPRsForUser returns every tracking row for userID across all
// repositories.
func (s *Store) TrackedPRsForUser(ctx context.Context, userID int64) ([]TrackedPullRequest, error) {
	rows, err := s.db.Query(ctx, selectTrackedForUserQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("listing tracked PRs for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []TrackedPullRequest
	for rows.Next() {
		tpr, err := scanTracked(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tpr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tracked PRs: %w", err)
	}
	return out, nil
}

// UpsertTrackedPR creates or updates the tracking row for the
// (repo, number, user) triple. Comment and agreement references coalesce:
// an incoming nil never clears a previously recorded value.
func (s *Store) UpsertTrackedPR(ctx context.Context, tpr *TrackedPullRequest) error {
	_, err := s.db.Exec(ctx, upsertTrackedQuery,
		tpr.Repo, tpr.Number, tpr.UserID, tpr.Login, tpr.CommentID, tpr.AgreementRef)
	if err != nil {
		return fmt.Errorf("upserting tracked PR %s#%d for user %d: %w", tpr.Repo, tpr.Number, tpr.UserID, err)
	}
	return nil
}

// DeleteTrackedPR removes a tracking row.
func (s *Store) DeleteTrackedPR(ctx context.Context, repo string, number int, userID int64) error {
	if _, err := s.db.Exec(ctx, deleteTrackedQuery, repo, number, userID); err != nil {
		return fmt.Errorf("deleting tracked PR %s#%d for user %d: %w", repo, number, userID, err)
	}
	return nil
}

func scanTracked(row pgx.Row) (*TrackedPullRequest, error) {
	var tpr TrackedPullRequest
	err := row.Scan(&tpr.Repo, &tpr.Number, &tpr.UserID, &tpr.Login,
		&tpr.CommentID, &tpr.AgreementRef, &tpr.CreatedAt, &tpr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning tracked PR: %w", err)
	}
	return &tpr, nil
}
