package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"smpserver/internal/smp/models"
	"smpserver/pkg/identifier"
	"smpserver/pkg/platform/sentinel"
)

// ServiceGroupStore keeps service groups keyed by canonical participant id.
type ServiceGroupStore struct {
	mu     sync.RWMutex
	groups map[string]*models.ServiceGroup
}

func NewServiceGroupStore() *ServiceGroupStore {
	return &ServiceGroupStore{groups: make(map[string]*models.ServiceGroup)}
}

func (s *ServiceGroupStore) Create(_ context.Context, sg *models.ServiceGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sg.Participant.String()
	if _, ok := s.groups[key]; ok {
		return fmt.Errorf("service group %s: %w", key, sentinel.ErrConflict)
	}
	cp := *sg
	s.groups[key] = &cp
	return nil
}

func (s *ServiceGroupStore) Update(_ context.Context, sg *models.ServiceGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sg.Participant.String()
	if _, ok := s.groups[key]; !ok {
		return fmt.Errorf("service group %s: %w", key, sentinel.ErrNotFound)
	}
	cp := *sg
	s.groups[key] = &cp
	return nil
}

func (s *ServiceGroupStore) Delete(_ context.Context, participant identifier.ParticipantIdentifier) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participant.String()
	if _, ok := s.groups[key]; !ok {
		return false, nil
	}
	delete(s.groups, key)
	return true, nil
}

func (s *ServiceGroupStore) Find(_ context.Context, participant identifier.ParticipantIdentifier) (*models.ServiceGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sg, ok := s.groups[participant.String()]
	if !ok {
		return nil, fmt.Errorf("service group %s: %w", participant, sentinel.ErrNotFound)
	}
	cp := *sg
	return &cp, nil
}

func (s *ServiceGroupStore) ListParticipants(_ context.Context) ([]identifier.ParticipantIdentifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identifier.ParticipantIdentifier, 0, len(s.groups))
	for _, sg := range s.groups {
		out = append(out, sg.Participant)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *ServiceGroupStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.groups), nil
}
