// Package postgres provides a PostgreSQL-backed implementation of
// [baseline.Store]. A single vocal_baselines table holds both the active
// baseline per user (active = TRUE) and the archived history (active = FALSE
// with archived_at and replaced_by set).
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlVocalBaselines = `
CREATE TABLE IF NOT EXISTS vocal_baselines (
    id                  TEXT         PRIMARY KEY,
    user_id             TEXT         NOT NULL,
    established_at      TIMESTAMPTZ  NOT NULL,
    demographic         TEXT         NOT NULL,
    recording_context   TEXT         NOT NULL,
    accepted            BOOLEAN      NOT NULL,
    confidence          DOUBLE PRECISION NOT NULL DEFAULT 0,
    failed_checks       TEXT[]       NOT NULL DEFAULT '{}',
    reason              TEXT         NOT NULL DEFAULT '',
    biomarkers          JSONB        NOT NULL,
    analysis_version    TEXT         NOT NULL,
    replacement_history JSONB        NOT NULL DEFAULT '[]',
    active              BOOLEAN      NOT NULL DEFAULT TRUE,
    archived_at         TIMESTAMPTZ,
    replaced_by         TEXT         NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_vocal_baselines_active_user
    ON vocal_baselines (user_id) WHERE active;

CREATE INDEX IF NOT EXISTS idx_vocal_baselines_user_archived
    ON vocal_baselines (user_id, archived_at DESC) WHERE NOT active;
`

// Migrate creates or ensures the vocal_baselines table and its indexes exist.
// It is idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlVocalBaselines); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
