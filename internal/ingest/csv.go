// Package ingest parses uploaded CSV record sets into the engine's typed
// ingestion contract. Validation happens here, at the boundary: malformed
// rows abort the whole parse so the graph builder never sees a partial or
// loosely-typed record set.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/durinhq/durin/internal/engine"
)

// ErrMissingColumn marks a CSV whose header lacks a required column.
var ErrMissingColumn = errors.New("ingest: missing required column")

// MaxRows caps the number of data rows per uploaded file.
const MaxRows = 100000

// Accepted timestamp layouts, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseAccounts reads a KYC CSV. Required column: user_id (or id).
// Optional: name, device_id, ip, country.
func ParseAccounts(r io.Reader) ([]engine.Account, error) {
	rows, header, err := readAll(r)
	if err != nil {
		return nil, err
	}

	idCol, ok := header["user_id"]
	if !ok {
		if idCol, ok = header["id"]; !ok {
			return nil, fmt.Errorf("%w: user_id", ErrMissingColumn)
		}
	}

	accounts := make([]engine.Account, 0, len(rows))
	for i, row := range rows {
		id := field(row, idCol)
		if id == "" {
			return nil, fmt.Errorf("%w: accounts row %d: empty user_id", engine.ErrInvalidRecord, i+1)
		}
		accounts = append(accounts, engine.Account{
			ID:       id,
			Name:     optional(row, header, "name"),
			DeviceID: optional(row, header, "device_id"),
			IP:       optional(row, header, "ip"),
			Country:  optional(row, header, "country"),
		})
	}
	return accounts, nil
}

// ParseTransactions reads a transactions CSV. Required columns: from, to,
// amount, timestamp. Optional: txn_id, device_id, ip. Rows with a missing
// txn_id get a deterministic id from their position, so repeated uploads of
// the same file produce identical analyses.
func ParseTransactions(r io.Reader) ([]engine.Transaction, error) {
	rows, header, err := readAll(r)
	if err != nil {
		return nil, err
	}

	for _, col := range []string{"from", "to", "amount", "timestamp"} {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	txns := make([]engine.Transaction, 0, len(rows))
	for i, row := range rows {
		from := field(row, header["from"])
		to := field(row, header["to"])
		if from == "" || to == "" {
			return nil, fmt.Errorf("%w: transactions row %d: empty from/to", engine.ErrInvalidRecord, i+1)
		}

		amount, err := strconv.ParseFloat(field(row, header["amount"]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: transactions row %d: unparseable amount %q",
				engine.ErrInvalidRecord, i+1, field(row, header["amount"]))
		}
		if amount < 0 {
			return nil, fmt.Errorf("%w: transactions row %d: negative amount %v",
				engine.ErrInvalidRecord, i+1, amount)
		}

		ts, err := parseTimestamp(field(row, header["timestamp"]))
		if err != nil {
			return nil, fmt.Errorf("%w: transactions row %d: %v", engine.ErrInvalidRecord, i+1, err)
		}

		id := optional(row, header, "txn_id")
		if id == "" {
			id = fmt.Sprintf("txn-%06d", i+1)
		}

		txns = append(txns, engine.Transaction{
			ID:        id,
			From:      from,
			To:        to,
			Amount:    amount,
			Timestamp: ts,
			DeviceID:  optional(row, header, "device_id"),
			IP:        optional(row, header, "ip"),
		})
	}
	return txns, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

// readAll consumes the CSV and returns its data rows plus a header index.
// Header names are case-insensitive and trimmed.
func readAll(r io.Reader) ([][]string, map[string]int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // ragged rows are tolerated; missing cells read as empty
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: malformed csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, errors.New("ingest: empty file")
	}
	if len(records)-1 > MaxRows {
		return nil, nil, fmt.Errorf("ingest: too many rows (%d > %d)", len(records)-1, MaxRows)
	}

	header := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return records[1:], header, nil
}

// field returns the trimmed cell at col, tolerating short rows.
func field(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// optional reads a column that may be absent from the header.
func optional(row []string, header map[string]int, name string) string {
	col, ok := header[name]
	if !ok {
		return ""
	}
	return field(row, col)
}
