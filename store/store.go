/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package store implements the durable record store for contributor
// agreements and tracked pull requests on PostgreSQL.
//
// The store is the serialization point for concurrent webhook handling:
// uniqueness constraints (one agreement per platform user, one tracking row
// per repo/PR/user triple) make interleaved upserts converge instead of
// duplicating rows.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// AgreementStatus is the lifecycle state of a contributor agreement.
type AgreementStatus string

const (
	StatusPending   AgreementStatus = "pending"
	StatusSigned    AgreementStatus = "signed"
	StatusExpired   AgreementStatus = "expired"
	StatusCancelled AgreementStatus = "cancelled"
)

// ContributorAgreement records one contributor's CLA state. There is at most
// one row per platform user id.
type ContributorAgreement struct {
	UserID       int64
	Login        string
	Email        string
	AgreementRef string
	Status       AgreementStatus
	CLAVersion   string
	SignedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TrackedPullRequest records a pull request awaiting (or having required) a
// CLA decision. Many rows may reference the same contributor; that link is
// what the completion fan-out walks.
type TrackedPullRequest struct {
	Repo         string // "owner/name"
	Number       int
	UserID       int64
	Login        string
	CommentID    *int64
	AgreementRef *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store wraps a pgx connection pool.
type Store struct {
	db *pgxpool.Pool
}

// New wraps an existing pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Open connects to the database, applies migrations, and returns a ready
// Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := Migrate(ctx, dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}
	return New(pool), nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.db.Close()
}
