package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action names for registry mutations.
const (
	ActionServiceGroupCreate    = "service_group.create"
	ActionServiceGroupDelete    = "service_group.delete"
	ActionServiceMetadataPut    = "service_metadata.put"
	ActionServiceMetadataDelete = "service_metadata.delete"
	ActionRedirectPut           = "redirect.put"
	ActionRedirectDelete        = "redirect.delete"
	ActionBusinessCardPut       = "business_card.put"
	ActionBusinessCardDelete    = "business_card.delete"
	ActionMigrationCreate       = "migration.create"
	ActionMigrationCancel       = "migration.cancel"
	ActionMigrationFinalize     = "migration.finalize"
	ActionImport                = "registry.import"
)

// Event is emitted from domain logic to capture registry mutations. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID          uuid.UUID
	Timestamp   time.Time
	Actor       string
	Action      string
	Participant string
	Detail      string
}
