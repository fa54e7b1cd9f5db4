package service

import (
	"context"
	"errors"
	"log/slog"

	"smpserver/internal/audit"
	smpmetrics "smpserver/internal/smp/metrics"
	"smpserver/internal/smp/models"
	"smpserver/internal/smp/store"
	dErrors "smpserver/pkg/domain-errors"
	"smpserver/pkg/identifier"
	"smpserver/pkg/platform/sentinel"
)

// ServiceInformationService manages document-type registrations. A
// (participant, document type) key holds either service information or a
// redirect, never both.
type ServiceInformationService struct {
	backend *store.Backend
	auditor *audit.Publisher
	metrics *smpmetrics.Metrics
	logger  *slog.Logger
	locks   *Locks
}

func NewServiceInformationService(backend *store.Backend, locks *Locks, auditor *audit.Publisher, m *smpmetrics.Metrics, logger *slog.Logger) *ServiceInformationService {
	return &ServiceInformationService{backend: backend, auditor: auditor, metrics: m, logger: logger, locks: locks}
}

// CreateOrUpdate fully replaces the process and endpoint set for the given
// (participant, document type); it is not a merge. When the key currently
// holds a redirect the call fails with a conflict unless overwrite is
// requested, in which case the redirect is deleted first.
func (s *ServiceInformationService) CreateOrUpdate(ctx context.Context, caller Caller, si models.ServiceInformation, overwrite bool) (*models.ServiceInformation, error) {
	if err := validateProcesses(si.Processes); err != nil {
		return nil, err
	}
	if err := requireServiceGroup(ctx, s.backend.ServiceGroups, si.Participant); err != nil {
		return nil, err
	}
	if err := requireOwner(ctx, s.backend.Ownership, caller, si.Participant); err != nil {
		return nil, err
	}

	// The redirect check and the write must not interleave with a redirect
	// write for the same registration.
	unlock := s.locks.Lock(registrationKey(si.Participant, si.DocumentType))
	defer unlock()

	err := s.backend.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		_, err := s.backend.Redirects.Find(txCtx, si.Participant, si.DocumentType)
		switch {
		case err == nil && !overwrite:
			return dErrors.Newf(dErrors.CodeConflict,
				"document type %s of %s is registered as a redirect", si.DocumentType, si.Participant)
		case err == nil:
			if _, err := s.backend.Redirects.Delete(txCtx, si.Participant, si.DocumentType); err != nil {
				return err
			}
		case !errors.Is(err, sentinel.ErrNotFound):
			return err
		}
		return s.backend.ServiceInformation.Upsert(txCtx, &si)
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "service information write failed")
	}

	s.auditor.Emit(ctx, audit.Event{
		Actor:       caller.ID,
		Action:      audit.ActionServiceMetadataPut,
		Participant: si.Participant.String(),
		Detail:      si.DocumentType.String(),
	})
	s.metrics.ServiceMetadataWrites.Inc()
	return &si, nil
}

// Delete removes the registration for one document type. Reports false when
// there was nothing to delete.
func (s *ServiceInformationService) Delete(ctx context.Context, caller Caller, participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) (bool, error) {
	if err := requireServiceGroup(ctx, s.backend.ServiceGroups, participant); err != nil {
		return false, err
	}
	if err := requireOwner(ctx, s.backend.Ownership, caller, participant); err != nil {
		return false, err
	}
	unlock := s.locks.Lock(registrationKey(participant, docType))
	defer unlock()
	changed, err := s.backend.ServiceInformation.Delete(ctx, participant, docType)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "service information deletion failed")
	}
	if changed {
		s.auditor.Emit(ctx, audit.Event{
			Actor:       caller.ID,
			Action:      audit.ActionServiceMetadataDelete,
			Participant: participant.String(),
			Detail:      docType.String(),
		})
	}
	return changed, nil
}

// GetOfServiceGroup returns all document-type registrations of a service
// group.
func (s *ServiceInformationService) GetOfServiceGroup(ctx context.Context, participant identifier.ParticipantIdentifier) ([]models.ServiceInformation, error) {
	if err := requireServiceGroup(ctx, s.backend.ServiceGroups, participant); err != nil {
		return nil, err
	}
	list, err := s.backend.ServiceInformation.ListOfParticipant(ctx, participant)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "service information listing failed")
	}
	return list, nil
}

// Get resolves a single registration.
func (s *ServiceInformationService) Get(ctx context.Context, participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) (*models.ServiceInformation, error) {
	si, err := s.backend.ServiceInformation.Find(ctx, participant, docType)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound,
				"no service information for %s under %s", docType, participant)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "service information lookup failed")
	}
	return si, nil
}

func validateProcesses(processes []models.Process) error {
	if len(processes) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "service information requires at least one process")
	}
	for _, p := range processes {
		if len(p.Endpoints) == 0 {
			return dErrors.Newf(dErrors.CodeBadRequest, "process %s has no endpoints", p.ID)
		}
		for _, ep := range p.Endpoints {
			if ep.TransportProfile == "" {
				return dErrors.Newf(dErrors.CodeBadRequest, "process %s has an endpoint without a transport profile", p.ID)
			}
			if ep.Address == "" {
				return dErrors.Newf(dErrors.CodeBadRequest, "process %s has an endpoint without an address", p.ID)
			}
		}
	}
	return nil
}
