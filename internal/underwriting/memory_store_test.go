package underwriting

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreTransactionsSortedByTimestamp(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	txns := []BankTransaction{
		{ID: "t2", AccountID: "a", Timestamp: date("2024-02-01"), Amount: -50, Currency: "USD", Type: TypeExpense},
		{ID: "t1", AccountID: "a", Timestamp: date("2024-01-01"), Amount: 100, Currency: "USD", Type: TypeIncome},
		{ID: "t3", AccountID: "a", Timestamp: date("2024-03-01"), Amount: -20, Currency: "USD", Type: TypeFee},
	}
	if err := store.ReplaceTransactions(ctx, "alice", txns); err != nil {
		t.Fatalf("ReplaceTransactions failed: %v", err)
	}

	got, err := store.ListTransactions(ctx, "alice")
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(got) != 3 || got[0].ID != "t1" || got[1].ID != "t2" || got[2].ID != "t3" {
		t.Errorf("order = %v", got)
	}

	// A second upload replaces, never appends.
	if err := store.ReplaceTransactions(ctx, "alice", txns[:1]); err != nil {
		t.Fatalf("ReplaceTransactions failed: %v", err)
	}
	count, err := store.CountTransactions(ctx, "alice")
	if err != nil {
		t.Fatalf("CountTransactions failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count after replace = %d, want 1", count)
	}
}

func TestMemoryStoreLatestDecision(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.LatestDecision(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	first := &Decision{ID: "dec_1", UserID: "alice", Jurisdiction: "US", CreatedAt: time.Now().UTC()}
	second := &Decision{ID: "dec_2", UserID: "alice", Jurisdiction: "US", CreatedAt: time.Now().UTC()}
	if err := store.CreateDecision(ctx, first); err != nil {
		t.Fatalf("CreateDecision failed: %v", err)
	}
	if err := store.CreateDecision(ctx, second); err != nil {
		t.Fatalf("CreateDecision failed: %v", err)
	}

	latest, err := store.LatestDecision(ctx, "alice")
	if err != nil {
		t.Fatalf("LatestDecision failed: %v", err)
	}
	if latest.ID != "dec_2" {
		t.Errorf("latest = %s, want dec_2", latest.ID)
	}
}
