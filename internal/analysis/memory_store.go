package analysis

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/durinhq/durin/internal/idgen"
)

// MemoryStore is an in-memory implementation of Store for testing and
// single-node deployments without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates a new in-memory analysis store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

// Create stores a new analysis record
func (m *MemoryStore) Create(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = idgen.WithPrefix("an_")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.records[rec.ID] = rec
	return nil
}

// Get retrieves an analysis by ID
func (m *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *rec
	return &copy, nil
}

// Latest returns the most recently created analysis
func (m *MemoryStore) Latest(ctx context.Context) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *Record
	for _, rec := range m.records {
		if latest == nil || rec.CreatedAt.After(latest.CreatedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, ErrNoAnalyses
	}
	copy := *latest
	return &copy, nil
}

// List returns analyses sorted by creation time descending
func (m *MemoryStore) List(ctx context.Context, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		copy := *rec
		records = append(records, &copy)
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Delete removes an analysis by ID
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}
