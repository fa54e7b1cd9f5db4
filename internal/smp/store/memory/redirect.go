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

// RedirectStore keeps redirects indexed by participant, then document type.
type RedirectStore struct {
	mu        sync.RWMutex
	redirects map[string]map[string]*models.Redirect
}

func NewRedirectStore() *RedirectStore {
	return &RedirectStore{redirects: make(map[string]map[string]*models.Redirect)}
}

func (s *RedirectStore) Upsert(_ context.Context, r *models.Redirect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk := r.Participant.String()
	m, ok := s.redirects[pk]
	if !ok {
		m = make(map[string]*models.Redirect)
		s.redirects[pk] = m
	}
	cp := *r
	m[r.DocumentType.String()] = &cp
	return nil
}

func (s *RedirectStore) Delete(_ context.Context, participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.redirects[participant.String()]
	if !ok {
		return false, nil
	}
	dk := docType.String()
	if _, ok := m[dk]; !ok {
		return false, nil
	}
	delete(m, dk)
	return true, nil
}

func (s *RedirectStore) DeleteOfParticipant(_ context.Context, participant identifier.ParticipantIdentifier) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk := participant.String()
	n := len(s.redirects[pk])
	delete(s.redirects, pk)
	return n, nil
}

func (s *RedirectStore) Find(_ context.Context, participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) (*models.Redirect, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.redirects[participant.String()][docType.String()]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, fmt.Errorf("redirect %s / %s: %w", participant, docType, sentinel.ErrNotFound)
}

func (s *RedirectStore) ListOfParticipant(_ context.Context, participant identifier.ParticipantIdentifier) ([]models.Redirect, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.redirects[participant.String()]
	out := make([]models.Redirect, 0, len(m))
	for _, r := range m {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DocumentType.String() < out[j].DocumentType.String()
	})
	return out, nil
}

func (s *RedirectStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.redirects {
		n += len(m)
	}
	return n, nil
}
