package underwriting

import (
	"context"
	"sort"
	"sync"

	"github.com/durinhq/durin/internal/idgen"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	applicants map[string]Applicant
	txns       map[string][]BankTransaction
	decisions  map[string][]Decision // per user, append order
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		applicants: make(map[string]Applicant),
		txns:       make(map[string][]BankTransaction),
		decisions:  make(map[string][]Decision),
	}
}

func (s *MemoryStore) UpsertApplicant(ctx context.Context, a *Applicant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applicants[a.UserID] = *a
	return nil
}

func (s *MemoryStore) GetApplicant(ctx context.Context, userID string) (*Applicant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.applicants[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) ReplaceTransactions(ctx context.Context, userID string, txns []BankTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]BankTransaction, len(txns))
	copy(copied, txns)
	sort.Slice(copied, func(i, j int) bool {
		return copied[i].Timestamp.Before(copied[j].Timestamp)
	})
	s.txns[userID] = copied
	return nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, userID string) ([]BankTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]BankTransaction, len(s.txns[userID]))
	copy(out, s.txns[userID])
	return out, nil
}

func (s *MemoryStore) CountTransactions(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txns[userID]), nil
}

func (s *MemoryStore) CreateDecision(ctx context.Context, d *Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = idgen.WithPrefix("dec_")
	}
	s.decisions[d.UserID] = append(s.decisions[d.UserID], *d)
	return nil
}

func (s *MemoryStore) LatestDecision(ctx context.Context, userID string) (*Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.decisions[userID]
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	latest := list[len(list)-1]
	return &latest, nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, userID string) (*Removed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.applicants[userID]; !ok {
		return nil, ErrNotFound
	}

	removed := &Removed{
		Applicant:    true,
		Transactions: len(s.txns[userID]),
		Decisions:    len(s.decisions[userID]),
	}
	delete(s.applicants, userID)
	delete(s.txns, userID)
	delete(s.decisions, userID)
	return removed, nil
}
