package service

import (
	"context"
	"errors"
	"log/slog"

	"smpserver/internal/audit"
	"smpserver/internal/smp/models"
	"smpserver/internal/smp/store"
	dErrors "smpserver/pkg/domain-errors"
	"smpserver/pkg/identifier"
	"smpserver/pkg/platform/sentinel"
)

// BusinessCardService manages the optional human-readable metadata attached
// 1:1 to a service group. Its lifecycle is independent of the technical
// registrations.
type BusinessCardService struct {
	backend *store.Backend
	auditor *audit.Publisher
	logger  *slog.Logger
}

func NewBusinessCardService(backend *store.Backend, auditor *audit.Publisher, logger *slog.Logger) *BusinessCardService {
	return &BusinessCardService{backend: backend, auditor: auditor, logger: logger}
}

// Put creates or replaces the business card of a service group.
func (s *BusinessCardService) Put(ctx context.Context, caller Caller, bc models.BusinessCard) (*models.BusinessCard, error) {
	if len(bc.Entities) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "business card requires at least one entity")
	}
	if err := requireServiceGroup(ctx, s.backend.ServiceGroups, bc.Participant); err != nil {
		return nil, err
	}
	if err := requireOwner(ctx, s.backend.Ownership, caller, bc.Participant); err != nil {
		return nil, err
	}
	if err := s.backend.BusinessCards.Upsert(ctx, &bc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "business card write failed")
	}

	s.auditor.Emit(ctx, audit.Event{
		Actor:       caller.ID,
		Action:      audit.ActionBusinessCardPut,
		Participant: bc.Participant.String(),
	})
	return &bc, nil
}

// Delete removes the business card of a service group.
func (s *BusinessCardService) Delete(ctx context.Context, caller Caller, participant identifier.ParticipantIdentifier) (bool, error) {
	if err := requireServiceGroup(ctx, s.backend.ServiceGroups, participant); err != nil {
		return false, err
	}
	if err := requireOwner(ctx, s.backend.Ownership, caller, participant); err != nil {
		return false, err
	}
	changed, err := s.backend.BusinessCards.Delete(ctx, participant)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "business card deletion failed")
	}
	if changed {
		s.auditor.Emit(ctx, audit.Event{
			Actor:       caller.ID,
			Action:      audit.ActionBusinessCardDelete,
			Participant: participant.String(),
		})
	}
	return changed, nil
}

// Get resolves the business card of a service group.
func (s *BusinessCardService) Get(ctx context.Context, participant identifier.ParticipantIdentifier) (*models.BusinessCard, error) {
	bc, err := s.backend.BusinessCards.Find(ctx, participant)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "no business card for %s", participant)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "business card lookup failed")
	}
	return bc, nil
}

// ListParticipants returns the participants that carry a business card.
func (s *BusinessCardService) ListParticipants(ctx context.Context) ([]identifier.ParticipantIdentifier, error) {
	ids, err := s.backend.BusinessCards.ListParticipants(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "business card listing failed")
	}
	return ids, nil
}
