package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"smpserver/internal/audit"
	smpmetrics "smpserver/internal/smp/metrics"
	"smpserver/internal/smp/models"
	"smpserver/internal/smp/store"
	dErrors "smpserver/pkg/domain-errors"
	"smpserver/pkg/identifier"
	"smpserver/pkg/platform/sentinel"
)

// MigrationService drives the participant migration state machine. Outbound
// migrations move a participant away from this SMP; inbound migrations move
// one onto it. At most one non-terminal migration exists per (participant,
// direction).
type MigrationService struct {
	backend *store.Backend
	groups  *ServiceGroupService
	auditor *audit.Publisher
	metrics *smpmetrics.Metrics
	logger  *slog.Logger
}

func NewMigrationService(backend *store.Backend, groups *ServiceGroupService, auditor *audit.Publisher, m *smpmetrics.Metrics, logger *slog.Logger) *MigrationService {
	return &MigrationService{backend: backend, groups: groups, auditor: auditor, metrics: m, logger: logger}
}

// CreateOutbound opens an outbound migration for a locally served
// participant and generates the migration key handed to the receiving SMP.
func (s *MigrationService) CreateOutbound(ctx context.Context, caller Caller, participant identifier.ParticipantIdentifier) (*models.Migration, error) {
	if err := requireServiceGroup(ctx, s.backend.ServiceGroups, participant); err != nil {
		return nil, err
	}
	if err := requireOwner(ctx, s.backend.Ownership, caller, participant); err != nil {
		return nil, err
	}
	return s.create(ctx, caller, models.MigrationOutbound, participant, uuid.NewString())
}

// CreateInbound records a migration key received from another SMP for a
// participant this SMP does not serve yet.
func (s *MigrationService) CreateInbound(ctx context.Context, caller Caller, participant identifier.ParticipantIdentifier, migrationKey string) (*models.Migration, error) {
	if migrationKey == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "migration key is required")
	}
	if _, err := s.backend.ServiceGroups.Find(ctx, participant); err == nil {
		return nil, dErrors.Newf(dErrors.CodeConflict,
			"service group %s already exists on this SMP", participant)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "service group lookup failed")
	}
	return s.create(ctx, caller, models.MigrationInbound, participant, migrationKey)
}

func (s *MigrationService) create(ctx context.Context, caller Caller, direction models.MigrationDirection, participant identifier.ParticipantIdentifier, migrationKey string) (*models.Migration, error) {
	now := time.Now()
	m := &models.Migration{
		ID:           uuid.NewString(),
		Direction:    direction,
		Participant:  participant,
		State:        models.MigrationInProgress,
		MigrationKey: migrationKey,
		InitiatedAt:  now,
		UpdatedAt:    now,
	}
	if err := s.backend.Migrations.Create(ctx, m); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict,
				"an active %s migration already exists for %s", direction, participant)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "migration creation failed")
	}

	s.auditor.Emit(ctx, audit.Event{
		Actor:       caller.ID,
		Action:      audit.ActionMigrationCreate,
		Participant: participant.String(),
		Detail:      string(direction),
	})
	return m, nil
}

// SetState applies one state-machine transition. It reports false without
// mutating when the migration does not exist, the new state equals the
// current one, or the transition is not allowed; callers that already acted
// on the assumption of a successful transition must treat false as a hard
// failure and roll back.
func (s *MigrationService) SetState(ctx context.Context, migrationID string, next models.MigrationState) (bool, error) {
	m, err := s.backend.Migrations.Find(ctx, migrationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "migration lookup failed")
	}
	if !m.State.CanTransitionTo(next) {
		return false, nil
	}
	m.State = next
	m.UpdatedAt = time.Now()
	if err := s.backend.Migrations.Update(ctx, m); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "migration update failed")
	}
	return true, nil
}

// Cancel aborts an in-progress migration.
func (s *MigrationService) Cancel(ctx context.Context, caller Caller, migrationID string) error {
	m, err := s.get(ctx, migrationID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, caller, m); err != nil {
		return err
	}
	changed, err := s.SetState(ctx, migrationID, models.MigrationCancelled)
	if err != nil {
		return err
	}
	if !changed {
		return dErrors.Newf(dErrors.CodeStateTransition,
			"migration %s cannot be cancelled from state %s", migrationID, m.State)
	}

	s.auditor.Emit(ctx, audit.Event{
		Actor:       caller.ID,
		Action:      audit.ActionMigrationCancel,
		Participant: m.Participant.String(),
		Detail:      string(m.Direction),
	})
	return nil
}

// FinalizeOutbound completes an outbound migration in two steps: record
// MIGRATED, then delete the local service group without notifying the
// directory (the receiving SMP is the registrant now). A failed delete is
// compensated by reverting the migration state; when the compensation itself
// fails the inconsistency is reported as unrecoverable and never retried.
func (s *MigrationService) FinalizeOutbound(ctx context.Context, caller Caller, migrationID string) error {
	m, err := s.get(ctx, migrationID)
	if err != nil {
		return err
	}
	if m.Direction != models.MigrationOutbound {
		return dErrors.Newf(dErrors.CodeStateTransition, "migration %s is not outbound", migrationID)
	}
	if err := requireOwner(ctx, s.backend.Ownership, caller, m.Participant); err != nil {
		return err
	}

	changed, err := s.SetState(ctx, migrationID, models.MigrationMigrated)
	if err != nil {
		return err
	}
	if !changed {
		return dErrors.Newf(dErrors.CodeStateTransition,
			"migration %s cannot be finalized from state %s", migrationID, m.State)
	}

	deleted, err := s.groups.Delete(ctx, caller, m.Participant, false)
	if err != nil {
		return s.revertFinalize(ctx, m, err)
	}
	if !deleted {
		s.logger.Warn("outbound migration finalized for a participant with no local service group",
			"migration_id", migrationID,
			"participant", m.Participant.String())
	}

	s.auditor.Emit(ctx, audit.Event{
		Actor:       caller.ID,
		Action:      audit.ActionMigrationFinalize,
		Participant: m.Participant.String(),
		Detail:      string(models.MigrationOutbound),
	})
	s.metrics.MigrationsFinalized.Inc()
	return nil
}

// FinalizeInbound completes an inbound migration: record MIGRATED, then
// activate the participant locally by creating its service group with
// directory registration. Compensation mirrors FinalizeOutbound.
func (s *MigrationService) FinalizeInbound(ctx context.Context, caller Caller, migrationID, extension string) error {
	m, err := s.get(ctx, migrationID)
	if err != nil {
		return err
	}
	if m.Direction != models.MigrationInbound {
		return dErrors.Newf(dErrors.CodeStateTransition, "migration %s is not inbound", migrationID)
	}

	changed, err := s.SetState(ctx, migrationID, models.MigrationMigrated)
	if err != nil {
		return err
	}
	if !changed {
		return dErrors.Newf(dErrors.CodeStateTransition,
			"migration %s cannot be finalized from state %s", migrationID, m.State)
	}

	if _, err := s.groups.Create(ctx, caller, m.Participant, caller.ID, extension); err != nil {
		return s.revertFinalize(ctx, m, err)
	}

	s.auditor.Emit(ctx, audit.Event{
		Actor:       caller.ID,
		Action:      audit.ActionMigrationFinalize,
		Participant: m.Participant.String(),
		Detail:      string(models.MigrationInbound),
	})
	s.metrics.MigrationsFinalized.Inc()
	return nil
}

// revertFinalize restores the pre-finalize migration state after the second
// finalize step failed.
func (s *MigrationService) revertFinalize(ctx context.Context, prior *models.Migration, cause error) error {
	restore := *prior
	restore.UpdatedAt = time.Now()
	if revertErr := s.backend.Migrations.Update(ctx, &restore); revertErr != nil {
		s.logger.Error("fatal inconsistency: migration recorded as MIGRATED but finalize step failed and state revert failed",
			"migration_id", prior.ID,
			"participant", prior.Participant.String(),
			"finalize_error", cause,
			"revert_error", revertErr)
		return dErrors.Wrap(cause, dErrors.CodeCompensationFailed,
			"migration finalize failed and state revert failed")
	}
	if dErrors.HasCode(cause, dErrors.CodeExternalDirectory) {
		return cause
	}
	return dErrors.Wrap(cause, dErrors.CodeInternal, "migration finalize failed, state reverted")
}

// FindActive resolves the non-terminal migration for (direction,
// participant).
func (s *MigrationService) FindActive(ctx context.Context, direction models.MigrationDirection, participant identifier.ParticipantIdentifier) (*models.Migration, error) {
	m, err := s.backend.Migrations.FindActive(ctx, direction, participant)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound,
				"no active %s migration for %s", direction, participant)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "migration lookup failed")
	}
	return m, nil
}

// List returns all migrations of one direction, oldest first.
func (s *MigrationService) List(ctx context.Context, direction models.MigrationDirection) ([]models.Migration, error) {
	if !direction.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown migration direction %q", direction)
	}
	list, err := s.backend.Migrations.List(ctx, direction)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "migration listing failed")
	}
	return list, nil
}

func (s *MigrationService) get(ctx context.Context, migrationID string) (*models.Migration, error) {
	m, err := s.backend.Migrations.Find(ctx, migrationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "migration %s does not exist", migrationID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "migration lookup failed")
	}
	return m, nil
}

// authorize allows admins always; outbound migrations additionally allow the
// owner of the participant's service group. Inbound migrations have no local
// service group yet, so any authenticated caller may act on them.
func (s *MigrationService) authorize(ctx context.Context, caller Caller, m *models.Migration) error {
	if m.Direction == models.MigrationOutbound {
		return requireOwner(ctx, s.backend.Ownership, caller, m.Participant)
	}
	if caller.ID == "" && !caller.Admin {
		return dErrors.New(dErrors.CodeForbidden, "caller identity is required")
	}
	return nil
}
