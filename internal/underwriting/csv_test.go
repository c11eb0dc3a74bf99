package underwriting

import (
	"errors"
	"strings"
	"testing"
)

const statementCSV = `txn_id,account_id,timestamp,amount,currency,merchant,counterparty,transaction_type,mcc
t1,acct-1,2024-01-15,4000,USD,ACME Payroll,,income,
t2,acct-1,2024-01-16,-120.50,USD,Grocery Store,,expense,5411
t3,acct-1,2024-01-17,-35,,Bank Fee,ACME Bank,fee,
`

func TestParseBankTransactions(t *testing.T) {
	txns, err := ParseBankTransactions(strings.NewReader(statementCSV))
	if err != nil {
		t.Fatalf("ParseBankTransactions failed: %v", err)
	}
	if len(txns) != 3 {
		t.Fatalf("got %d transactions, want 3", len(txns))
	}

	if txns[0].ID != "t1" || txns[0].Amount != 4000 || txns[0].Type != TypeIncome {
		t.Errorf("txns[0] = %+v", txns[0])
	}
	if txns[1].MCC != "5411" || txns[1].Amount != -120.50 {
		t.Errorf("txns[1] = %+v", txns[1])
	}
	// Missing currency defaults to USD.
	if txns[2].Currency != "USD" || txns[2].Counterparty != "ACME Bank" {
		t.Errorf("txns[2] = %+v", txns[2])
	}
}

func TestParseBankTransactionsMissingColumn(t *testing.T) {
	csv := "txn_id,timestamp,amount\nt1,2024-01-15,100\n"
	_, err := ParseBankTransactions(strings.NewReader(csv))
	if !errors.Is(err, ErrMissingColumn) {
		t.Errorf("err = %v, want ErrMissingColumn", err)
	}
}

func TestParseBankTransactionsBadRows(t *testing.T) {
	header := "txn_id,account_id,timestamp,amount,transaction_type\n"
	tests := []struct {
		name string
		row  string
	}{
		{"zero amount", "t1,a,2024-01-15,0,expense"},
		{"bad amount", "t1,a,2024-01-15,lots,expense"},
		{"bad timestamp", "t1,a,someday,100,income"},
		{"unknown type", "t1,a,2024-01-15,100,gift"},
		{"empty txn id", ",a,2024-01-15,100,income"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseBankTransactions(strings.NewReader(header + tc.row + "\n"))
			if !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("err = %v, want ErrInvalidRecord", err)
			}
		})
	}
}

func TestParseBankTransactionsCaseInsensitiveHeader(t *testing.T) {
	csv := "Txn_ID,Account_ID,Timestamp,Amount,Transaction_Type\nt1,a,2024-01-15,100,Income\n"
	txns, err := ParseBankTransactions(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseBankTransactions failed: %v", err)
	}
	if len(txns) != 1 || txns[0].Type != TypeIncome {
		t.Errorf("txns = %+v", txns)
	}
}
