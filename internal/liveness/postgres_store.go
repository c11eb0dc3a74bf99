package liveness

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/durinhq/durin/internal/idgen"
)

// PostgresStore persists liveness checks in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed liveness store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Compile-time interface check
var _ Store = (*PostgresStore)(nil)

// Migrate creates the liveness_checks table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS liveness_checks (
			id                 VARCHAR(36) PRIMARY KEY,
			user_id            VARCHAR(128) NOT NULL,
			device_fingerprint VARCHAR(256) NOT NULL,
			pass               BOOLEAN NOT NULL,
			score              DOUBLE PRECISION NOT NULL,
			replay_detected    BOOLEAN NOT NULL,
			sanctions_pass     BOOLEAN NOT NULL,
			device_risk        DOUBLE PRECISION NOT NULL,
			flags              JSONB NOT NULL DEFAULT '[]',
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_liveness_checks_user
			ON liveness_checks (user_id, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_liveness_checks_device
			ON liveness_checks (device_fingerprint);
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, result *CheckResult) error {
	if result.ID == "" {
		result.ID = idgen.WithPrefix("lv_")
	}
	if result.CheckedAt.IsZero() {
		result.CheckedAt = time.Now()
	}

	flagsJSON, err := json.Marshal(result.Flags)
	if err != nil {
		return fmt.Errorf("failed to marshal flags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO liveness_checks
			(id, user_id, device_fingerprint, pass, score, replay_detected, sanctions_pass, device_risk, flags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		result.ID,
		result.UserID,
		result.DeviceFingerprint,
		result.Pass,
		result.Score,
		result.ReplayDetected,
		result.SanctionsPass,
		result.DeviceRisk,
		flagsJSON,
		result.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create liveness check: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]CheckResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, device_fingerprint, pass, score, replay_detected, sanctions_pass, device_risk, flags, created_at
		FROM liveness_checks
		WHERE user_id = $1
		ORDER BY created_at DESC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list liveness checks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var checks []CheckResult
	for rows.Next() {
		check, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		checks = append(checks, *check)
	}
	return checks, rows.Err()
}

func (s *PostgresStore) Latest(ctx context.Context, userID string) (*CheckResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, device_fingerprint, pass, score, replay_detected, sanctions_pass, device_risk, flags, created_at
		FROM liveness_checks
		WHERE user_id = $1
		ORDER BY created_at DESC, id ASC
		LIMIT 1
	`, userID)
	return scanCheck(row)
}

func (s *PostgresStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM liveness_checks WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count liveness checks: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) DeviceUsers(ctx context.Context, deviceFingerprint string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT user_id
		FROM liveness_checks
		WHERE device_fingerprint = $1
		ORDER BY user_id ASC
	`, deviceFingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to list device users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCheck(row rowScanner) (*CheckResult, error) {
	var check CheckResult
	var flagsJSON []byte

	err := row.Scan(&check.ID, &check.UserID, &check.DeviceFingerprint, &check.Pass,
		&check.Score, &check.ReplayDetected, &check.SanctionsPass, &check.DeviceRisk,
		&flagsJSON, &check.CheckedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan liveness check: %w", err)
	}

	if err := json.Unmarshal(flagsJSON, &check.Flags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flags: %w", err)
	}
	return &check, nil
}
