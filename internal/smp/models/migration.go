package models

import (
	"time"

	"smpserver/pkg/identifier"
)

// MigrationDirection is fixed at creation and never changes.
type MigrationDirection string

const (
	// MigrationOutbound moves a participant away from this SMP.
	MigrationOutbound MigrationDirection = "OUTBOUND"
	// MigrationInbound moves a participant onto this SMP.
	MigrationInbound MigrationDirection = "INBOUND"
)

// IsValid reports whether the direction is one of the two known values.
func (d MigrationDirection) IsValid() bool {
	return d == MigrationOutbound || d == MigrationInbound
}

// MigrationState is the lifecycle state of a participant migration.
// Transitions: IN_PROGRESS -> MIGRATED or CANCELLED; both are terminal.
type MigrationState string

const (
	MigrationInProgress MigrationState = "IN_PROGRESS"
	MigrationMigrated   MigrationState = "MIGRATED"
	MigrationCancelled  MigrationState = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed.
func (s MigrationState) IsTerminal() bool {
	return s == MigrationMigrated || s == MigrationCancelled
}

// CanTransitionTo reports whether moving to next is an allowed transition.
// Self-transitions and transitions out of a terminal state are rejected.
func (s MigrationState) CanTransitionTo(next MigrationState) bool {
	if s.IsTerminal() || s == next {
		return false
	}
	return s == MigrationInProgress &&
		(next == MigrationMigrated || next == MigrationCancelled)
}

// Migration tracks one participant migration. At most one non-terminal
// migration exists per (participant, direction).
type Migration struct {
	ID           string
	Direction    MigrationDirection
	Participant  identifier.ParticipantIdentifier
	State        MigrationState
	MigrationKey string
	InitiatedAt  time.Time
	UpdatedAt    time.Time
}
