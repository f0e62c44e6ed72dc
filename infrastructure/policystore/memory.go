package policystore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agentwa/wabridge/domains/policy"
)

// ErrGroupNotFound is returned by UpdateGroup for unknown groups.
var ErrGroupNotFound = errors.New("policystore: group not found")

// MemoryStore is an in-process policy.Store used by tests and by
// deployments that run without persistence.
type MemoryStore struct {
	mu        sync.RWMutex
	allowlist map[string]policy.AllowlistEntry // keyed by phone
	pairings  map[string]policy.PairingEntry   // keyed by code
	groups    map[string]policy.GroupEntry     // keyed by group id
	config    map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		allowlist: make(map[string]policy.AllowlistEntry),
		pairings:  make(map[string]policy.PairingEntry),
		groups:    make(map[string]policy.GroupEntry),
		config:    make(map[string]string),
	}
}

func (s *MemoryStore) IsAllowed(ctx context.Context, rawID, phone string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.allowlist[phone]; ok {
		return true
	}
	for _, e := range s.allowlist {
		if e.RawID != "" && e.RawID == rawID {
			return true
		}
	}
	return false
}

func (s *MemoryStore) GetAllowlistEntry(ctx context.Context, phone string) (*policy.AllowlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.allowlist[phone]; ok {
		copy := e
		return &copy, nil
	}
	return nil, nil
}

func (s *MemoryStore) AddToAllowlist(ctx context.Context, entry policy.AllowlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.allowlist[entry.Phone]; ok {
		entry.CreatedAt = existing.CreatedAt
	} else if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.allowlist[entry.Phone] = entry
	return nil
}

func (s *MemoryStore) RemoveFromAllowlist(ctx context.Context, phoneOrRawID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for phone, e := range s.allowlist {
		if phone == phoneOrRawID || e.RawID == phoneOrRawID {
			delete(s.allowlist, phone)
		}
	}
	return nil
}

func (s *MemoryStore) ListAllowlist(ctx context.Context) ([]policy.AllowlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]policy.AllowlistEntry, 0, len(s.allowlist))
	for _, e := range s.allowlist {
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *MemoryStore) FindActivePairing(ctx context.Context, rawID string) (*policy.PairingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	for _, p := range s.pairings {
		if p.RawID == rawID && !p.Expired(now) {
			copy := p
			return &copy, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) CreatePairing(ctx context.Context, entry policy.PairingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.pairings[entry.Code] = entry
	return nil
}

func (s *MemoryStore) CleanExpiredPairings(ctx context.Context, rawID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for code, p := range s.pairings {
		if p.RawID == rawID && p.Expired(now) {
			delete(s.pairings, code)
		}
	}
	return nil
}

func (s *MemoryStore) GetPairing(ctx context.Context, code string) (*policy.PairingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.pairings[code]; ok {
		copy := p
		return &copy, nil
	}
	return nil, nil
}

func (s *MemoryStore) DeletePairing(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pairings, code)
	return nil
}

func (s *MemoryStore) GetGroupConfig(ctx context.Context, groupID string) policy.GroupConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok || !g.Allowed {
		return policy.GroupConfig{Allowed: false, Mode: policy.ModeMentions}
	}
	mode := g.Mode
	if !mode.Valid() {
		mode = policy.ModeMentions
	}
	return policy.GroupConfig{Allowed: true, Mode: mode}
}

func (s *MemoryStore) ListGroups(ctx context.Context) ([]policy.GroupEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]policy.GroupEntry, 0, len(s.groups))
	for _, g := range s.groups {
		entries = append(entries, g)
	}
	return entries, nil
}

func (s *MemoryStore) AddGroup(ctx context.Context, entry policy.GroupEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.groups[entry.GroupID] = entry
	return nil
}

func (s *MemoryStore) UpdateGroup(ctx context.Context, entry policy.GroupEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.groups[entry.GroupID]
	if !ok {
		return ErrGroupNotFound
	}
	entry.CreatedAt = existing.CreatedAt
	s.groups[entry.GroupID] = entry
	return nil
}

func (s *MemoryStore) RemoveGroup(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, groupID)
	return nil
}

func (s *MemoryStore) GetConfig(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config[key], nil
}

func (s *MemoryStore) SetConfig(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[key] = value
	return nil
}
