package underwriting

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ErrMissingColumn marks a CSV whose header lacks a required column.
var ErrMissingColumn = errors.New("underwriting: missing required column")

// maxCSVRows caps the number of data rows per uploaded statement.
const maxCSVRows = 100000

var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseBankTransactions reads a bank statement CSV. Required columns:
// txn_id, account_id, timestamp, amount, transaction_type. Optional:
// currency (defaults to USD), merchant, counterparty, mcc.
func ParseBankTransactions(r io.Reader) ([]BankTransaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("underwriting: malformed csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("underwriting: empty file")
	}
	if len(records)-1 > maxCSVRows {
		return nil, fmt.Errorf("underwriting: too many rows (%d > %d)", len(records)-1, maxCSVRows)
	}

	header := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range []string{"txn_id", "account_id", "timestamp", "amount", "transaction_type"} {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	cell := func(row []string, name string) string {
		col, ok := header[name]
		if !ok || col >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[col])
	}

	txns := make([]BankTransaction, 0, len(records)-1)
	for i, row := range records[1:] {
		id := cell(row, "txn_id")
		account := cell(row, "account_id")
		if id == "" || account == "" {
			return nil, fmt.Errorf("%w: row %d: empty txn_id/account_id", ErrInvalidRecord, i+1)
		}

		amount, err := strconv.ParseFloat(cell(row, "amount"), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: unparseable amount %q", ErrInvalidRecord, i+1, cell(row, "amount"))
		}
		if amount == 0 {
			return nil, fmt.Errorf("%w: row %d: zero amount", ErrInvalidRecord, i+1)
		}

		ts, err := parseCSVTimestamp(cell(row, "timestamp"))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrInvalidRecord, i+1, err)
		}

		txnType := TransactionType(strings.ToLower(cell(row, "transaction_type")))
		switch txnType {
		case TypeIncome, TypeExpense, TypeTransfer, TypeFee:
		default:
			return nil, fmt.Errorf("%w: row %d: unknown transaction_type %q", ErrInvalidRecord, i+1, txnType)
		}

		currency := cell(row, "currency")
		if currency == "" {
			currency = "USD"
		}

		txns = append(txns, BankTransaction{
			ID:           id,
			AccountID:    account,
			Timestamp:    ts,
			Amount:       amount,
			Currency:     currency,
			Merchant:     cell(row, "merchant"),
			Counterparty: cell(row, "counterparty"),
			Type:         txnType,
			MCC:          cell(row, "mcc"),
		})
	}
	return txns, nil
}

func parseCSVTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	for _, layout := range csvTimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}
