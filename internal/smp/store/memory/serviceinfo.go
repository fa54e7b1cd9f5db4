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

// ServiceInformationStore keeps document-type registrations indexed by
// participant, then by document type.
type ServiceInformationStore struct {
	mu    sync.RWMutex
	infos map[string]map[string]*models.ServiceInformation
}

func NewServiceInformationStore() *ServiceInformationStore {
	return &ServiceInformationStore{infos: make(map[string]map[string]*models.ServiceInformation)}
}

func (s *ServiceInformationStore) Upsert(_ context.Context, si *models.ServiceInformation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk := si.Participant.String()
	m, ok := s.infos[pk]
	if !ok {
		m = make(map[string]*models.ServiceInformation)
		s.infos[pk] = m
	}
	m[si.DocumentType.String()] = copyServiceInformation(si)
	return nil
}

func (s *ServiceInformationStore) Delete(_ context.Context, participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.infos[participant.String()]
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

func (s *ServiceInformationStore) DeleteOfParticipant(_ context.Context, participant identifier.ParticipantIdentifier) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk := participant.String()
	n := len(s.infos[pk])
	delete(s.infos, pk)
	return n, nil
}

func (s *ServiceInformationStore) Find(_ context.Context, participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) (*models.ServiceInformation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if si, ok := s.infos[participant.String()][docType.String()]; ok {
		return copyServiceInformation(si), nil
	}
	return nil, fmt.Errorf("service information %s / %s: %w", participant, docType, sentinel.ErrNotFound)
}

func (s *ServiceInformationStore) ListOfParticipant(_ context.Context, participant identifier.ParticipantIdentifier) ([]models.ServiceInformation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.infos[participant.String()]
	out := make([]models.ServiceInformation, 0, len(m))
	for _, si := range m {
		out = append(out, *copyServiceInformation(si))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DocumentType.String() < out[j].DocumentType.String()
	})
	return out, nil
}

func (s *ServiceInformationStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.infos {
		n += len(m)
	}
	return n, nil
}

// copyServiceInformation deep-copies the process/endpoint slices so callers
// cannot mutate stored state.
func copyServiceInformation(si *models.ServiceInformation) *models.ServiceInformation {
	cp := *si
	cp.Processes = make([]models.Process, len(si.Processes))
	for i, p := range si.Processes {
		cp.Processes[i] = p
		cp.Processes[i].Endpoints = append([]models.Endpoint(nil), p.Endpoints...)
	}
	return &cp
}
