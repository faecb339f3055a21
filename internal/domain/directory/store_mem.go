package directory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemPatientStore is an in-memory PatientStore used by tests.
type MemPatientStore struct {
	mu       sync.RWMutex
	patients map[uuid.UUID]*Patient
}

func NewMemPatientStore() *MemPatientStore {
	return &MemPatientStore{patients: make(map[uuid.UUID]*Patient)}
}

func (s *MemPatientStore) Add(p *Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.patients[p.ID] = p
}

func (s *MemPatientStore) FindByID(_ context.Context, tenantID string, id uuid.UUID) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok || p.TenantID != tenantID {
		return nil, nil
	}
	return p, nil
}

func (s *MemPatientStore) Search(_ context.Context, tenantID, query string, limit int) ([]*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(query)
	var matched []*Patient
	for _, p := range s.patients {
		if p.TenantID != tenantID {
			continue
		}
		if strings.Contains(strings.ToLower(p.FirstName), q) ||
			strings.Contains(strings.ToLower(p.LastName), q) ||
			strings.Contains(strings.ToLower(p.MRN), q) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].LastName < matched[j].LastName })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// MemUserStore is an in-memory UserStore used by tests.
type MemUserStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*User
}

func NewMemUserStore() *MemUserStore {
	return &MemUserStore{users: make(map[uuid.UUID]*User)}
}

func (s *MemUserStore) Add(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	s.users[u.ID] = u
}

func (s *MemUserStore) FindByID(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return u, nil
}
