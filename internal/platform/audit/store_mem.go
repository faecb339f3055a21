package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by tests across packages.
type MemStore struct {
	mu      sync.Mutex
	entries []*Entry
	// FailInsert makes Insert return this error, for exercising the
	// never-propagate contract.
	FailInsert error
}

func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) Insert(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsert != nil {
		return s.FailInsert
	}
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

// Entries returns a copy of everything recorded, oldest first.
func (s *MemStore) Entries() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *MemStore) ListByIntervention(_ context.Context, tenantID, interventionID string, from, to *time.Time, limit, offset int) ([]*Entry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*Entry
	for _, e := range s.entries {
		if e.TenantID != tenantID || e.InterventionID != interventionID {
			continue
		}
		if from != nil && e.Timestamp.Before(*from) {
			continue
		}
		if to != nil && e.Timestamp.After(*to) {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })

	total := len(matched)
	if limit > 0 {
		if offset >= len(matched) {
			matched = nil
		} else {
			end := offset + limit
			if end > len(matched) {
				end = len(matched)
			}
			matched = matched[offset:end]
		}
	}
	return matched, total, nil
}

func (s *MemStore) ListByTenant(_ context.Context, tenantID string, from, to time.Time) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*Entry
	for _, e := range s.entries {
		if e.TenantID != tenantID || e.Timestamp.Before(from) || e.Timestamp.After(to) {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.Before(matched[j].Timestamp) })
	return matched, nil
}
