package liveness

import (
	"context"
	"sort"
	"sync"

	"github.com/durinhq/durin/internal/idgen"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	checks map[string]CheckResult
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checks: make(map[string]CheckResult)}
}

// Create stores a check result, assigning an id if missing.
func (s *MemoryStore) Create(ctx context.Context, result *CheckResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result.ID == "" {
		result.ID = idgen.WithPrefix("lv_")
	}
	s.checks[result.ID] = *result
	return nil
}

// ListByUser returns a user's checks, newest first.
func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]CheckResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []CheckResult
	for _, c := range s.checks {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CheckedAt.Equal(out[j].CheckedAt) {
			return out[i].CheckedAt.After(out[j].CheckedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Latest returns a user's most recent check.
func (s *MemoryStore) Latest(ctx context.Context, userID string) (*CheckResult, error) {
	checks, err := s.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(checks) == 0 {
		return nil, ErrNotFound
	}
	latest := checks[0]
	return &latest, nil
}

// CountByUser returns how many checks a user has run.
func (s *MemoryStore) CountByUser(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, c := range s.checks {
		if c.UserID == userID {
			count++
		}
	}
	return count, nil
}

// DeviceUsers returns the distinct user ids seen on a device, sorted.
func (s *MemoryStore) DeviceUsers(ctx context.Context, deviceFingerprint string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for _, c := range s.checks {
		if c.DeviceFingerprint == deviceFingerprint {
			seen[c.UserID] = true
		}
	}
	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}
