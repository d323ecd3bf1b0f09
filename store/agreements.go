/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	selectAgreementByUserQuery = `
SELECT user_id, login, email, agreement_ref, status, cla_version, signed_at, created_at, updated_at
FROM contributor_agreements
WHERE user_id = $1`

	selectAgreementByRefQuery = `
SELECT user_id, login, email, agreement_ref, status, cla_version, signed_at, created_at, updated_at
FROM contributor_agreements
WHERE agreement_ref = $1`

	upsertAgreementQuery = `
INSERT INTO contributor_agreements (user_id, login, email, agreement_ref, status, cla_version, signed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id) DO UPDATE SET
  login         = EXCLUDED.login,
  email         = EXCLUDED.email,
  agreement_ref = EXCLUDED.agreement_ref,
  status        = EXCLUDED.status,
  cla_version   = EXCLUDED.cla_version,
  signed_at     = EXCLUDED.signed_at,
  updated_at    = NOW()`

	updateAgreementStatusQuery = `
UPDATE contributor_agreements
SET status = $2, signed_at = COALESCE($3, signed_at), updated_at = NOW()
WHERE user_id = $1`

	deleteAgreementQuery = `DELETE FROM contributor_agreements WHERE user_id = $1`
)

// AgreementByUserID looks up a contributor's agreement by platform user id.
func (s *Store) AgreementByUserID(ctx context.Context, userID int64) (*ContributorAgreement, error) {
	return scanAgreement(s.db.QueryRow(ctx, selectAgreementByUserQuery, userID))
}

// AgreementByRef looks up a contributor's agreement by its external reference.
func (s *Store) AgreementByRef(ctx context.Context, ref string) (*ContributorAgreement, error) {
	return scanAgreement(s.db.QueryRow(ctx, selectAgreementByRefQuery, ref))
}

// UpsertAgreement creates or replaces the agreement row for ca.UserID.
// Last write wins on conflict.
func (s *Store) UpsertAgreement(ctx context.Context, ca *ContributorAgreement) error {
	_, err := s.db.Exec(ctx, upsertAgreementQuery,
		ca.UserID, ca.Login, ca.Email, ca.AgreementRef, ca.Status, ca.CLAVersion, ca.SignedAt)
	if err != nil {
		return fmt.Errorf("upserting agreement for user %d: %w", ca.UserID, err)
	}
	return nil
}

// UpdateAgreementStatus transitions the agreement for userID to status.
// signedAt is recorded only when non-nil (the transition into signed).
func (s *Store) UpdateAgreementStatus(ctx context.Context, userID int64, status AgreementStatus, signedAt *time.Time) error {
	tag, err := s.db.Exec(ctx, updateAgreementStatusQuery, userID, status, signedAt)
	if err != nil {
		return fmt.Errorf("updating agreement status for user %d: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAgreement removes the agreement row for userID, if any.
func (s *Store) DeleteAgreement(ctx context.Context, userID int64) error {
	if _, err := s.db.Exec(ctx, deleteAgreementQuery, userID); err != nil {
		return fmt.Errorf("deleting agreement for user %d: %w", userID, err)
	}
	return nil
}

func scanAgreement(row pgx.Row) (*ContributorAgreement, error) {
	var ca ContributorAgreement
	err := row.Scan(&ca.UserID, &ca.Login, &ca.Email, &ca.AgreementRef,
		&ca.Status, &ca.CLAVersion, &ca.SignedAt, &ca.CreatedAt, &ca.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning agreement: %w", err)
	}
	return &ca, nil
}
