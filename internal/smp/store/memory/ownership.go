package memory

import (
	"context"
	"sort"
	"sync"

	"smpserver/pkg/identifier"
)

// OwnershipStore records (owner, participant) pairs.
type OwnershipStore struct {
	mu    sync.RWMutex
	pairs map[string]map[string]identifier.ParticipantIdentifier
}

func NewOwnershipStore() *OwnershipStore {
	return &OwnershipStore{pairs: make(map[string]map[string]identifier.ParticipantIdentifier)}
}

func (s *OwnershipStore) Assign(_ context.Context, owner string, participant identifier.ParticipantIdentifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.pairs[owner]
	if !ok {
		m = make(map[string]identifier.ParticipantIdentifier)
		s.pairs[owner] = m
	}
	m[participant.String()] = participant
	return nil
}

func (s *OwnershipStore) Remove(_ context.Context, owner string, participant identifier.ParticipantIdentifier) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.pairs[owner]
	if !ok {
		return false, nil
	}
	key := participant.String()
	if _, ok := m[key]; !ok {
		return false, nil
	}
	delete(m, key)
	return true, nil
}

func (s *OwnershipStore) RemoveOfParticipant(_ context.Context, participant identifier.ParticipantIdentifier) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participant.String()
	n := 0
	for _, m := range s.pairs {
		if _, ok := m[key]; ok {
			delete(m, key)
			n++
		}
	}
	return n, nil
}

func (s *OwnershipStore) IsOwner(_ context.Context, owner string, participant identifier.ParticipantIdentifier) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pairs[owner][participant.String()]
	return ok, nil
}

func (s *OwnershipStore) ListOwned(_ context.Context, owner string) ([]identifier.ParticipantIdentifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identifier.ParticipantIdentifier, 0, len(s.pairs[owner]))
	for _, p := range s.pairs[owner] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}
