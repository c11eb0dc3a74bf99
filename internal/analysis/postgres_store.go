package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/durinhq/durin/internal/engine"
	"github.com/durinhq/durin/internal/idgen"
)

// PostgresStore persists analysis records in PostgreSQL. The graph result is
// stored as a JSONB document; runs are immutable so there is no update path.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed analysis store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Compile-time interface check
var _ Store = (*PostgresStore)(nil)

// Migrate creates the analyses table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS analyses (
			id                VARCHAR(36) PRIMARY KEY,
			status            VARCHAR(16) NOT NULL CHECK (status IN ('completed', 'degraded')),
			account_count     INT NOT NULL,
			transaction_count INT NOT NULL,
			result            JSONB NOT NULL,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_analyses_created_at
			ON analyses (created_at DESC);
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = idgen.WithPrefix("an_")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (id, status, account_count, transaction_count, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		rec.ID,
		string(rec.Status),
		rec.AccountCount,
		rec.TransactionCount,
		resultJSON,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create analysis: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, account_count, transaction_count, result, created_at
		FROM analyses
		WHERE id = $1
	`, id)
	return scanRecord(row)
}

func (s *PostgresStore) Latest(ctx context.Context) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, account_count, transaction_count, result, created_at
		FROM analyses
		ORDER BY created_at DESC, id ASC
		LIMIT 1
	`)
	rec, err := scanRecord(row)
	if err == ErrNotFound {
		return nil, ErrNoAnalyses
	}
	return rec, err
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, account_count, transaction_count, result, created_at
		FROM analyses
		ORDER BY created_at DESC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var status string
	var resultJSON []byte

	err := row.Scan(&rec.ID, &status, &rec.AccountCount, &rec.TransactionCount, &resultJSON, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan analysis: %w", err)
	}

	rec.Status = Status(status)
	rec.Result = &engine.Result{}
	if err := json.Unmarshal(resultJSON, rec.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &rec, nil
}
