package domainindex

import (
	"context"
	"sync"

	"pixelgate/pkg/platform/sentinel"
)

// MemoryStore keeps both index representations in process memory under one
// mutex, which trivially gives the both-or-neither write guarantee.
type MemoryStore struct {
	mu       sync.RWMutex
	owners   map[string]string            // domain -> client id
	byClient map[string]map[string]Record // client id -> domain -> record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		owners:   make(map[string]string),
		byClient: make(map[string]map[string]Record),
	}
}

func (s *MemoryStore) Insert(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, bound := s.owners[rec.Domain]; bound {
		return sentinel.ErrConflict
	}

	domains := s.byClient[rec.ClientID]
	if domains == nil {
		domains = make(map[string]Record)
		s.byClient[rec.ClientID] = domains
	}
	if rec.IsPrimary {
		for d, existing := range domains {
			if existing.IsPrimary {
				existing.IsPrimary = false
				domains[d] = existing
			}
		}
	}
	domains[rec.Domain] = rec
	s.owners[rec.Domain] = rec.ClientID
	return nil
}

func (s *MemoryStore) Owner(_ context.Context, domain string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if owner, ok := s.owners[domain]; ok {
		return owner, nil
	}
	return "", sentinel.ErrNotFound
}

func (s *MemoryStore) Remove(_ context.Context, clientID, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	domains := s.byClient[clientID]
	if _, ok := domains[domain]; !ok {
		return sentinel.ErrNotFound
	}
	delete(domains, domain)
	if len(domains) == 0 {
		delete(s.byClient, clientID)
	}
	delete(s.owners, domain)
	return nil
}

func (s *MemoryStore) ListByClient(_ context.Context, clientID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]Record, 0, len(s.byClient[clientID]))
	for _, rec := range s.byClient[clientID] {
		records = append(records, rec)
	}
	return records, nil
}

func (s *MemoryStore) SetPrimary(_ context.Context, clientID, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	domains := s.byClient[clientID]
	target, ok := domains[domain]
	if !ok {
		return sentinel.ErrNotFound
	}
	for d, existing := range domains {
		if existing.IsPrimary {
			existing.IsPrimary = false
			domains[d] = existing
		}
	}
	target.IsPrimary = true
	domains[domain] = target
	return nil
}
