package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"smpserver/internal/audit"
	smpmetrics "smpserver/internal/smp/metrics"
	"smpserver/internal/smp/models"
	"smpserver/internal/smp/store"
	"smpserver/internal/sml"
	dErrors "smpserver/pkg/domain-errors"
	"smpserver/pkg/identifier"
	"smpserver/pkg/platform/sentinel"
)

// ServiceGroupService orchestrates the service group lifecycle, including
// the locator hook on create and delete and the cascade delete of children.
type ServiceGroupService struct {
	backend *store.Backend
	hook    sml.Hook
	auditor *audit.Publisher
	metrics *smpmetrics.Metrics
	logger  *slog.Logger
	locks   *Locks
}

func NewServiceGroupService(backend *store.Backend, hook sml.Hook, locks *Locks, auditor *audit.Publisher, m *smpmetrics.Metrics, logger *slog.Logger) *ServiceGroupService {
	return &ServiceGroupService{
		backend: backend,
		hook:    hook,
		auditor: auditor,
		metrics: m,
		logger:  logger,
		locks:   locks,
	}
}

// Create registers a new service group owned by ownerID. The locator is
// notified before the local record is persisted; when local persistence then
// fails, the locator registration is compensated so neither side keeps a
// half-created participant.
func (s *ServiceGroupService) Create(ctx context.Context, caller Caller, participant identifier.ParticipantIdentifier, ownerID, extension string) (*models.ServiceGroup, error) {
	start := time.Now()
	if ownerID == "" {
		ownerID = caller.ID
	}
	if ownerID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "service group owner is required")
	}
	if !caller.Admin && ownerID != caller.ID {
		return nil, dErrors.New(dErrors.CodeForbidden, "only admins may create service groups for other owners")
	}

	unlock := s.locks.Lock(participant.String())
	defer unlock()

	if _, err := s.backend.ServiceGroups.Find(ctx, participant); err == nil {
		return nil, dErrors.Newf(dErrors.CodeConflict, "service group %s already exists", participant)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "service group lookup failed")
	}

	if err := s.hook.Create(ctx, participant); err != nil {
		s.metrics.LocatorErrors.Inc()
		return nil, dErrors.Wrap(err, dErrors.CodeExternalDirectory, "directory registration failed")
	}

	now := time.Now()
	sg := &models.ServiceGroup{
		Participant: participant,
		OwnerID:     ownerID,
		Extension:   extension,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.backend.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.backend.ServiceGroups.Create(txCtx, sg); err != nil {
			return err
		}
		return s.backend.Ownership.Assign(txCtx, ownerID, participant)
	})
	if err != nil {
		return nil, s.compensateCreate(ctx, participant, err)
	}

	s.auditor.Emit(ctx, audit.Event{
		Actor:       caller.ID,
		Action:      audit.ActionServiceGroupCreate,
		Participant: participant.String(),
	})
	s.metrics.ServiceGroupCreated.Inc()
	s.metrics.ObserveServiceGroupCreate(start)
	return sg, nil
}

// compensateCreate undoes the locator registration after local persistence
// failed. A failed compensation leaves the directory pointing at a
// participant this SMP does not serve; that state needs an operator, so it
// is reported as unrecoverable and never retried here.
func (s *ServiceGroupService) compensateCreate(ctx context.Context, participant identifier.ParticipantIdentifier, cause error) error {
	if hookErr := s.hook.Delete(ctx, participant); hookErr != nil {
		s.metrics.LocatorErrors.Inc()
		s.logger.Error("fatal inconsistency: service group not persisted and directory de-registration failed",
			"participant", participant.String(),
			"persist_error", cause,
			"directory_error", hookErr)
		return dErrors.Wrap(cause, dErrors.CodeCompensationFailed,
			"service group creation failed and directory compensation failed")
	}
	if errors.Is(cause, sentinel.ErrConflict) {
		return dErrors.Newf(dErrors.CodeConflict, "service group %s already exists", participant)
	}
	return dErrors.Wrap(cause, dErrors.CodeInternal, "service group creation failed")
}

// Delete removes a service group and cascades to its service information,
// redirects, business card, and ownership records. With deregister set, the
// locator is notified first; a locator failure aborts the local delete.
func (s *ServiceGroupService) Delete(ctx context.Context, caller Caller, participant identifier.ParticipantIdentifier, deregister bool) (bool, error) {
	start := time.Now()

	unlock := s.locks.Lock(participant.String())
	defer unlock()

	if _, err := s.backend.ServiceGroups.Find(ctx, participant); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "service group lookup failed")
	}
	if err := requireOwner(ctx, s.backend.Ownership, caller, participant); err != nil {
		return false, err
	}

	if deregister {
		if err := s.hook.Delete(ctx, participant); err != nil {
			s.metrics.LocatorErrors.Inc()
			return false, dErrors.Wrap(err, dErrors.CodeExternalDirectory, "directory de-registration failed")
		}
	}

	err := s.backend.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.backend.ServiceInformation.DeleteOfParticipant(txCtx, participant); err != nil {
			return err
		}
		if _, err := s.backend.Redirects.DeleteOfParticipant(txCtx, participant); err != nil {
			return err
		}
		if _, err := s.backend.BusinessCards.Delete(txCtx, participant); err != nil {
			return err
		}
		if _, err := s.backend.Ownership.RemoveOfParticipant(txCtx, participant); err != nil {
			return err
		}
		_, err := s.backend.ServiceGroups.Delete(txCtx, participant)
		return err
	})
	if err != nil {
		if deregister {
			return false, s.compensateDelete(ctx, participant, err)
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "service group deletion failed")
	}

	s.auditor.Emit(ctx, audit.Event{
		Actor:       caller.ID,
		Action:      audit.ActionServiceGroupDelete,
		Participant: participant.String(),
	})
	s.metrics.ServiceGroupDeleted.Inc()
	s.metrics.ObserveServiceGroupDelete(start)
	return true, nil
}

// compensateDelete re-registers the participant after the local cascade
// delete failed, so the directory keeps pointing at a service group that
// still exists locally.
func (s *ServiceGroupService) compensateDelete(ctx context.Context, participant identifier.ParticipantIdentifier, cause error) error {
	if hookErr := s.hook.Create(ctx, participant); hookErr != nil {
		s.metrics.LocatorErrors.Inc()
		s.logger.Error("fatal inconsistency: local delete failed after directory de-registration and re-registration failed",
			"participant", participant.String(),
			"delete_error", cause,
			"directory_error", hookErr)
		return dErrors.Wrap(cause, dErrors.CodeCompensationFailed,
			"service group deletion failed and directory compensation failed")
	}
	return dErrors.Wrap(cause, dErrors.CodeInternal, "service group deletion failed")
}

// Get resolves a service group by participant.
func (s *ServiceGroupService) Get(ctx context.Context, participant identifier.ParticipantIdentifier) (*models.ServiceGroup, error) {
	sg, err := s.backend.ServiceGroups.Find(ctx, participant)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "service group %s does not exist", participant)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "service group lookup failed")
	}
	return sg, nil
}

// ListParticipants returns every registered participant identifier.
func (s *ServiceGroupService) ListParticipants(ctx context.Context) ([]identifier.ParticipantIdentifier, error) {
	ids, err := s.backend.ServiceGroups.ListParticipants(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "service group listing failed")
	}
	return ids, nil
}

// Count returns the number of registered service groups.
func (s *ServiceGroupService) Count(ctx context.Context) (int, error) {
	n, err := s.backend.ServiceGroups.Count(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "service group count failed")
	}
	return n, nil
}
