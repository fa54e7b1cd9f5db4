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

// BusinessCardStore keeps the 1:1 business cards keyed by participant.
type BusinessCardStore struct {
	mu    sync.RWMutex
	cards map[string]*models.BusinessCard
}

func NewBusinessCardStore() *BusinessCardStore {
	return &BusinessCardStore{cards: make(map[string]*models.BusinessCard)}
}

func (s *BusinessCardStore) Upsert(_ context.Context, bc *models.BusinessCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[bc.Participant.String()] = copyBusinessCard(bc)
	return nil
}

func (s *BusinessCardStore) Delete(_ context.Context, participant identifier.ParticipantIdentifier) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participant.String()
	if _, ok := s.cards[key]; !ok {
		return false, nil
	}
	delete(s.cards, key)
	return true, nil
}

func (s *BusinessCardStore) Find(_ context.Context, participant identifier.ParticipantIdentifier) (*models.BusinessCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if bc, ok := s.cards[participant.String()]; ok {
		return copyBusinessCard(bc), nil
	}
	return nil, fmt.Errorf("business card %s: %w", participant, sentinel.ErrNotFound)
}

func (s *BusinessCardStore) ListParticipants(_ context.Context) ([]identifier.ParticipantIdentifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identifier.ParticipantIdentifier, 0, len(s.cards))
	for _, bc := range s.cards {
		out = append(out, bc.Participant)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *BusinessCardStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cards), nil
}

func copyBusinessCard(bc *models.BusinessCard) *models.BusinessCard {
	cp := *bc
	cp.Entities = make([]models.BusinessEntity, len(bc.Entities))
	for i, e := range bc.Entities {
		cp.Entities[i] = e
		cp.Entities[i].Identifiers = append([]models.BusinessIdentifier(nil), e.Identifiers...)
		cp.Entities[i].Websites = append([]string(nil), e.Websites...)
		cp.Entities[i].Contacts = append([]models.BusinessContact(nil), e.Contacts...)
	}
	return &cp
}
