package admission

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
)

var ErrConflict = errors.New("admission: concurrent update")

// Store persists caller profiles and the origin blacklist.
//
// Versions implement optimistic concurrency: Get returns the current
// version (0 when the caller is unknown) and CompareAndSwap only applies
// when the stored version still matches. A nil profile deletes the entry.
type Store interface {
	Get(ctx context.Context, callerID string) (*models.CallerProfile, uint64, error)
	Put(ctx context.Context, p *models.CallerProfile) error
	CompareAndSwap(ctx context.Context, callerID string, version uint64, p *models.CallerProfile) (bool, error)
	Keys(ctx context.Context) ([]string, error)

	IsBlacklisted(ctx context.Context, ip string) (bool, error)
	Blacklist(ctx context.Context, ip string) error
	Unblacklist(ctx context.Context, ip string) error
}

type memEntry struct {
	version uint64
	profile *models.CallerProfile
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu        sync.RWMutex
	profiles  map[string]memEntry
	blacklist map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:  make(map[string]memEntry),
		blacklist: make(map[string]struct{}),
	}
}

func (s *MemoryStore) Get(_ context.Context, callerID string) (*models.CallerProfile, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.profiles[callerID]
	if !ok {
		return nil, 0, nil
	}
	return e.profile.Clone(), e.version, nil
}

func (s *MemoryStore) Put(_ context.Context, p *models.CallerProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.profiles[p.CallerID]
	s.profiles[p.CallerID] = memEntry{version: e.version + 1, profile: p.Clone()}
	return nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, callerID string, version uint64, p *models.CallerProfile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.profiles[callerID]
	if !ok && version != 0 || ok && e.version != version {
		return false, nil
	}
	if p == nil {
		delete(s.profiles, callerID)
		return true, nil
	}
	s.profiles[callerID] = memEntry{version: version + 1, profile: p.Clone()}
	return true, nil
}

func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.profiles))
	for k := range s.profiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) IsBlacklisted(_ context.Context, ip string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blacklist[ip]
	return ok, nil
}

func (s *MemoryStore) Blacklist(_ context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist[ip] = struct{}{}
	return nil
}

func (s *MemoryStore) Unblacklist(_ context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blacklist, ip)
	return nil
}
