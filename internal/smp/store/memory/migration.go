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

// MigrationStore keeps participant migrations keyed by migration id.
type MigrationStore struct {
	mu         sync.RWMutex
	migrations map[string]*models.Migration
}

func NewMigrationStore() *MigrationStore {
	return &MigrationStore{migrations: make(map[string]*models.Migration)}
}

func (s *MigrationStore) Create(_ context.Context, m *models.Migration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.migrations[m.ID]; ok {
		return fmt.Errorf("migration %s: %w", m.ID, sentinel.ErrConflict)
	}
	// One active migration per (participant, direction).
	for _, existing := range s.migrations {
		if existing.Direction == m.Direction &&
			existing.Participant == m.Participant &&
			!existing.State.IsTerminal() {
			return fmt.Errorf("active %s migration for %s: %w",
				m.Direction, m.Participant, sentinel.ErrConflict)
		}
	}
	cp := *m
	s.migrations[m.ID] = &cp
	return nil
}

func (s *MigrationStore) Update(_ context.Context, m *models.Migration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.migrations[m.ID]; !ok {
		return fmt.Errorf("migration %s: %w", m.ID, sentinel.ErrNotFound)
	}
	cp := *m
	s.migrations[m.ID] = &cp
	return nil
}

func (s *MigrationStore) Find(_ context.Context, id string) (*models.Migration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.migrations[id]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, fmt.Errorf("migration %s: %w", id, sentinel.ErrNotFound)
}

func (s *MigrationStore) FindActive(_ context.Context, direction models.MigrationDirection, participant identifier.ParticipantIdentifier) (*models.Migration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.migrations {
		if m.Direction == direction && m.Participant == participant && !m.State.IsTerminal() {
			cp := *m
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("active %s migration for %s: %w", direction, participant, sentinel.ErrNotFound)
}

func (s *MigrationStore) List(_ context.Context, direction models.MigrationDirection) ([]models.Migration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Migration
	for _, m := range s.migrations {
		if m.Direction == direction {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InitiatedAt.Before(out[j].InitiatedAt) })
	return out, nil
}

func (s *MigrationStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.migrations[id]; !ok {
		return false, nil
	}
	delete(s.migrations, id)
	return true, nil
}
