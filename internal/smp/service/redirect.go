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

// RedirectService manages redirect registrations; the mutual-exclusion rule
// against service information is symmetric to ServiceInformationService.
type RedirectService struct {
	backend *store.Backend
	auditor *audit.Publisher
	metrics *smpmetrics.Metrics
	logger  *slog.Logger
	locks   *Locks
}

func NewRedirectService(backend *store.Backend, locks *Locks, auditor *audit.Publisher, m *smpmetrics.Metrics, logger *slog.Logger) *RedirectService {
	return &RedirectService{backend: backend, auditor: auditor, metrics: m, logger: logger, locks: locks}
}

// CreateOrUpdate registers a redirect for one document type. When the key
// currently holds service information the call fails with a conflict unless
// overwrite is requested, in which case the service information is deleted
// first.
func (s *RedirectService) CreateOrUpdate(ctx context.Context, caller Caller, r models.Redirect, overwrite bool) (*models.Redirect, error) {
	if r.TargetURL == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "redirect target URL is required")
	}
	if err := requireServiceGroup(ctx, s.backend.ServiceGroups, r.Participant); err != nil {
		return nil, err
	}
	if err := requireOwner(ctx, s.backend.Ownership, caller, r.Participant); err != nil {
		return nil, err
	}

	// Contends on the same key as service information writes so the
	// mutual-exclusion check cannot race a concurrent registration.
	unlock := s.locks.Lock(registrationKey(r.Participant, r.DocumentType))
	defer unlock()

	err := s.backend.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		_, err := s.backend.ServiceInformation.Find(txCtx, r.Participant, r.DocumentType)
		switch {
		case err == nil && !overwrite:
			return dErrors.Newf(dErrors.CodeConflict,
				"document type %s of %s is registered as service information", r.DocumentType, r.Participant)
		case err == nil:
			if _, err := s.backend.ServiceInformation.Delete(txCtx, r.Participant, r.DocumentType); err != nil {
				return err
			}
		case !errors.Is(err, sentinel.ErrNotFound):
			return err
		}
		return s.backend.Redirects.Upsert(txCtx, &r)
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "redirect write failed")
	}

	s.auditor.Emit(ctx, audit.Event{
		Actor:       caller.ID,
		Action:      audit.ActionRedirectPut,
		Participant: r.Participant.String(),
		Detail:      r.DocumentType.String(),
	})
	s.metrics.RedirectWrites.Inc()
	return &r, nil
}

// Delete removes the redirect for one document type.
func (s *RedirectService) Delete(ctx context.Context, caller Caller, participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) (bool, error) {
	if err := requireServiceGroup(ctx, s.backend.ServiceGroups, participant); err != nil {
		return false, err
	}
	if err := requireOwner(ctx, s.backend.Ownership, caller, participant); err != nil {
		return false, err
	}
	unlock := s.locks.Lock(registrationKey(participant, docType))
	defer unlock()
	changed, err := s.backend.Redirects.Delete(ctx, participant, docType)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "redirect deletion failed")
	}
	if changed {
		s.auditor.Emit(ctx, audit.Event{
			Actor:       caller.ID,
			Action:      audit.ActionRedirectDelete,
			Participant: participant.String(),
			Detail:      docType.String(),
		})
	}
	return changed, nil
}

// GetOfServiceGroup returns all redirects of a service group.
func (s *RedirectService) GetOfServiceGroup(ctx context.Context, participant identifier.ParticipantIdentifier) ([]models.Redirect, error) {
	if err := requireServiceGroup(ctx, s.backend.ServiceGroups, participant); err != nil {
		return nil, err
	}
	list, err := s.backend.Redirects.ListOfParticipant(ctx, participant)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "redirect listing failed")
	}
	return list, nil
}

// CountAll returns the number of redirects across all service groups.
func (s *RedirectService) CountAll(ctx context.Context) (int, error) {
	n, err := s.backend.Redirects.Count(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "redirect count failed")
	}
	return n, nil
}
