package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PoisonIvory/sagevoice/internal/baseline"
	"github.com/PoisonIvory/sagevoice/pkg/voice"
)

var _ baseline.Store = (*Store)(nil)

// Store is a PostgreSQL-backed [baseline.Store]. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, and runs [Migrate] to ensure the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("baseline store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("baseline store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("baseline store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("baseline store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the database connection. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const baselineColumns = `
	id, user_id, established_at, demographic, recording_context,
	accepted, confidence, failed_checks, reason,
	biomarkers, analysis_version, replacement_history`

// Active implements [baseline.Store].
func (s *Store) Active(ctx context.Context, userID string) (baseline.Baseline, error) {
	const q = `
		SELECT ` + baselineColumns + `
		FROM   vocal_baselines
		WHERE  user_id = $1 AND active`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return baseline.Baseline{}, fmt.Errorf("baseline store: active: %w", err)
	}
	b, err := pgx.CollectOneRow(rows, scanBaseline)
	if errors.Is(err, pgx.ErrNoRows) {
		return baseline.Baseline{}, baseline.ErrNoActiveBaseline
	}
	if err != nil {
		return baseline.Baseline{}, fmt.Errorf("baseline store: active: %w", err)
	}
	return b, nil
}

// Install implements [baseline.Store]. The archive of the previous active
// baseline and the insert of the new one happen in a single transaction; a
// reader never observes a user with zero or two active baselines.
func (s *Store) Install(ctx context.Context, b baseline.Baseline, archivedAt time.Time) error {
	biomarkers, err := json.Marshal(b.Biomarkers)
	if err != nil {
		return fmt.Errorf("baseline store: encode biomarkers: %w", err)
	}
	history, err := json.Marshal(replacementHistory(b.ReplacementHistory))
	if err != nil {
		return fmt.Errorf("baseline store: encode replacement history: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("baseline store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const archive = `
		UPDATE vocal_baselines
		SET    active = FALSE, archived_at = $2, replaced_by = $3
		WHERE  user_id = $1 AND active`
	if _, err := tx.Exec(ctx, archive, b.UserID, archivedAt, b.ID); err != nil {
		return fmt.Errorf("baseline store: archive previous: %w", err)
	}

	const insert = `
		INSERT INTO vocal_baselines (` + baselineColumns + `, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, TRUE)`
	_, err = tx.Exec(ctx, insert,
		b.ID,
		b.UserID,
		b.EstablishedAt,
		string(b.Demographic),
		string(b.Context),
		b.Status.Accepted,
		b.Status.Confidence,
		b.Status.FailedChecks,
		b.Status.Reason,
		biomarkers,
		b.AnalysisVersion,
		history,
	)
	if err != nil {
		return fmt.Errorf("baseline store: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("baseline store: commit: %w", err)
	}
	return nil
}

// History implements [baseline.Store]. Archived baselines are returned most
// recently archived first.
func (s *Store) History(ctx context.Context, userID string) ([]baseline.Archived, error) {
	const q = `
		SELECT ` + baselineColumns + `, archived_at, replaced_by
		FROM   vocal_baselines
		WHERE  user_id = $1 AND NOT active
		ORDER  BY archived_at DESC`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("baseline store: history: %w", err)
	}
	archived, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (baseline.Archived, error) {
		var (
			a              baseline.Archived
			biomarkersJSON []byte
			historyJSON    []byte
		)
		if err := row.Scan(
			&a.ID,
			&a.UserID,
			&a.EstablishedAt,
			&a.Demographic,
			&a.Context,
			&a.Status.Accepted,
			&a.Status.Confidence,
			&a.Status.FailedChecks,
			&a.Status.Reason,
			&biomarkersJSON,
			&a.AnalysisVersion,
			&historyJSON,
			&a.ArchivedAt,
			&a.ReplacedBy,
		); err != nil {
			return baseline.Archived{}, err
		}
		if err := decodeBaselineJSON(biomarkersJSON, historyJSON, &a.Baseline); err != nil {
			return baseline.Archived{}, err
		}
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("baseline store: history: %w", err)
	}
	return archived, nil
}

// scanBaseline scans one active-baseline row.
func scanBaseline(row pgx.CollectableRow) (baseline.Baseline, error) {
	var (
		b              baseline.Baseline
		biomarkersJSON []byte
		historyJSON    []byte
	)
	if err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.EstablishedAt,
		&b.Demographic,
		&b.Context,
		&b.Status.Accepted,
		&b.Status.Confidence,
		&b.Status.FailedChecks,
		&b.Status.Reason,
		&biomarkersJSON,
		&b.AnalysisVersion,
		&historyJSON,
	); err != nil {
		return baseline.Baseline{}, err
	}
	if err := decodeBaselineJSON(biomarkersJSON, historyJSON, &b); err != nil {
		return baseline.Baseline{}, err
	}
	return b, nil
}

func decodeBaselineJSON(biomarkersJSON, historyJSON []byte, b *baseline.Baseline) error {
	var biomarkers voice.VocalBiomarkers
	if err := json.Unmarshal(biomarkersJSON, &biomarkers); err != nil {
		return fmt.Errorf("decode biomarkers: %w", err)
	}
	b.Biomarkers = biomarkers

	var history []baseline.Replacement
	if err := json.Unmarshal(historyJSON, &history); err != nil {
		return fmt.Errorf("decode replacement history: %w", err)
	}
	b.ReplacementHistory = history
	return nil
}

// replacementHistory normalises a nil slice to an empty one so the JSONB
// column always holds an array.
func replacementHistory(h []baseline.Replacement) []baseline.Replacement {
	if h == nil {
		return []baseline.Replacement{}
	}
	return h
}
