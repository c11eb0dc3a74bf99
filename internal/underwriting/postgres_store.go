package underwriting

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/durinhq/durin/internal/idgen"
)

// PostgresStore persists underwriting data in PostgreSQL. Decisions carry
// their explanation payloads (metrics, reasons, counterfactuals) as JSONB.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed underwriting store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Compile-time interface check
var _ Store = (*PostgresStore)(nil)

// Migrate creates the underwriting tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS applicants (
			user_id           VARCHAR(128) PRIMARY KEY,
			full_name         VARCHAR(256) NOT NULL,
			address           TEXT NOT NULL,
			country           VARCHAR(64) NOT NULL,
			employment_status VARCHAR(32) NOT NULL,
			monthly_income    DOUBLE PRECISION NOT NULL,
			tenure_months     INT NOT NULL,
			email_hash        VARCHAR(128),
			phone_hash        VARCHAR(128),
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS bank_transactions (
			txn_id           VARCHAR(128) NOT NULL,
			user_id          VARCHAR(128) NOT NULL REFERENCES applicants(user_id) ON DELETE CASCADE,
			account_id       VARCHAR(128) NOT NULL,
			ts               TIMESTAMPTZ NOT NULL,
			amount           DOUBLE PRECISION NOT NULL,
			currency         VARCHAR(8) NOT NULL,
			merchant         VARCHAR(256),
			counterparty     VARCHAR(256),
			transaction_type VARCHAR(16) NOT NULL,
			mcc              VARCHAR(8),
			PRIMARY KEY (user_id, txn_id)
		);

		CREATE INDEX IF NOT EXISTS idx_bank_transactions_user_ts
			ON bank_transactions (user_id, ts);

		CREATE TABLE IF NOT EXISTS underwriting_decisions (
			id                   VARCHAR(36) PRIMARY KEY,
			user_id              VARCHAR(128) NOT NULL REFERENCES applicants(user_id) ON DELETE CASCADE,
			jurisdiction         VARCHAR(8) NOT NULL,
			fraud_gate_passed    BOOLEAN NOT NULL,
			fraud_decline_reason TEXT,
			cashflow_metrics     JSONB,
			pd_12m               DOUBLE PRECISION NOT NULL,
			lgd                  DOUBLE PRECISION NOT NULL,
			expected_loss        DOUBLE PRECISION NOT NULL,
			approved             BOOLEAN NOT NULL,
			credit_limit         DOUBLE PRECISION NOT NULL,
			apr                  DOUBLE PRECISION,
			reasons              JSONB NOT NULL DEFAULT '[]',
			counterfactuals      JSONB NOT NULL DEFAULT '[]',
			created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_underwriting_decisions_user
			ON underwriting_decisions (user_id, created_at DESC);
	`)
	return err
}

func (s *PostgresStore) UpsertApplicant(ctx context.Context, a *Applicant) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO applicants
			(user_id, full_name, address, country, employment_status, monthly_income, tenure_months, email_hash, phone_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10)
		ON CONFLICT (user_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			address = EXCLUDED.address,
			country = EXCLUDED.country,
			employment_status = EXCLUDED.employment_status,
			monthly_income = EXCLUDED.monthly_income,
			tenure_months = EXCLUDED.tenure_months,
			email_hash = EXCLUDED.email_hash,
			phone_hash = EXCLUDED.phone_hash
	`,
		a.UserID, a.FullName, a.Address, a.Country, string(a.EmploymentStatus),
		a.MonthlyIncome, a.TenureMonths, a.EmailHash, a.PhoneHash, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert applicant: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetApplicant(ctx context.Context, userID string) (*Applicant, error) {
	var a Applicant
	var status string
	var emailHash, phoneHash sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, full_name, address, country, employment_status, monthly_income, tenure_months, email_hash, phone_hash, created_at
		FROM applicants
		WHERE user_id = $1
	`, userID).Scan(&a.UserID, &a.FullName, &a.Address, &a.Country, &status,
		&a.MonthlyIncome, &a.TenureMonths, &emailHash, &phoneHash, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get applicant: %w", err)
	}

	a.EmploymentStatus = EmploymentStatus(status)
	a.EmailHash = emailHash.String
	a.PhoneHash = phoneHash.String
	return &a, nil
}

func (s *PostgresStore) ReplaceTransactions(ctx context.Context, userID string, txns []BankTransaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bank_transactions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear transactions: %w", err)
	}

	for _, t := range txns {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bank_transactions
				(txn_id, user_id, account_id, ts, amount, currency, merchant, counterparty, transaction_type, mcc)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, NULLIF($10, ''))
		`, t.ID, userID, t.AccountID, t.Timestamp, t.Amount, t.Currency,
			t.Merchant, t.Counterparty, string(t.Type), t.MCC)
		if err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) ListTransactions(ctx context.Context, userID string) ([]BankTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT txn_id, account_id, ts, amount, currency, merchant, counterparty, transaction_type, mcc
		FROM bank_transactions
		WHERE user_id = $1
		ORDER BY ts ASC, txn_id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []BankTransaction
	for rows.Next() {
		var t BankTransaction
		var txnType string
		var merchant, counterparty, mcc sql.NullString

		err := rows.Scan(&t.ID, &t.AccountID, &t.Timestamp, &t.Amount, &t.Currency,
			&merchant, &counterparty, &txnType, &mcc)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Merchant = merchant.String
		t.Counterparty = counterparty.String
		t.MCC = mcc.String
		t.Type = TransactionType(txnType)
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (s *PostgresStore) CountTransactions(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bank_transactions WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CreateDecision(ctx context.Context, d *Decision) error {
	if d.ID == "" {
		d.ID = idgen.WithPrefix("dec_")
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	var cashflowJSON []byte
	if d.Cashflow != nil {
		var err error
		cashflowJSON, err = json.Marshal(d.Cashflow)
		if err != nil {
			return fmt.Errorf("failed to marshal cashflow metrics: %w", err)
		}
	}
	reasonsJSON, err := json.Marshal(d.Reasons)
	if err != nil {
		return fmt.Errorf("failed to marshal reasons: %w", err)
	}
	counterfactualsJSON, err := json.Marshal(d.Counterfactuals)
	if err != nil {
		return fmt.Errorf("failed to marshal counterfactuals: %w", err)
	}

	var apr sql.NullFloat64
	if d.APR != nil {
		apr = sql.NullFloat64{Float64: *d.APR, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO underwriting_decisions
			(id, user_id, jurisdiction, fraud_gate_passed, fraud_decline_reason, cashflow_metrics,
			 pd_12m, lgd, expected_loss, approved, credit_limit, apr, reasons, counterfactuals, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		d.ID, d.UserID, d.Jurisdiction, d.FraudGatePassed, d.FraudDeclineReason, cashflowJSON,
		d.PD12M, d.LGD, d.ExpectedLoss, d.Approved, d.CreditLimit, apr, reasonsJSON, counterfactualsJSON, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create decision: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestDecision(ctx context.Context, userID string) (*Decision, error) {
	var d Decision
	var declineReason sql.NullString
	var cashflowJSON []byte
	var apr sql.NullFloat64
	var reasonsJSON, counterfactualsJSON []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, jurisdiction, fraud_gate_passed, fraud_decline_reason, cashflow_metrics,
		       pd_12m, lgd, expected_loss, approved, credit_limit, apr, reasons, counterfactuals, created_at
		FROM underwriting_decisions
		WHERE user_id = $1
		ORDER BY created_at DESC, id ASC
		LIMIT 1
	`, userID).Scan(&d.ID, &d.UserID, &d.Jurisdiction, &d.FraudGatePassed, &declineReason, &cashflowJSON,
		&d.PD12M, &d.LGD, &d.ExpectedLoss, &d.Approved, &d.CreditLimit, &apr, &reasonsJSON, &counterfactualsJSON, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}

	d.FraudDeclineReason = declineReason.String
	if len(cashflowJSON) > 0 {
		d.Cashflow = &CashflowMetrics{}
		if err := json.Unmarshal(cashflowJSON, d.Cashflow); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cashflow metrics: %w", err)
		}
	}
	if apr.Valid {
		d.APR = &apr.Float64
	}
	if err := json.Unmarshal(reasonsJSON, &d.Reasons); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reasons: %w", err)
	}
	if err := json.Unmarshal(counterfactualsJSON, &d.Counterfactuals); err != nil {
		return nil, fmt.Errorf("failed to unmarshal counterfactuals: %w", err)
	}
	return &d, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) (*Removed, error) {
	removed := &Removed{}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bank_transactions WHERE user_id = $1`, userID).Scan(&removed.Transactions)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM underwriting_decisions WHERE user_id = $1`, userID).Scan(&removed.Decisions)
	if err != nil {
		return nil, fmt.Errorf("failed to count decisions: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM applicants WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete applicant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	removed.Applicant = true
	return removed, nil
}
