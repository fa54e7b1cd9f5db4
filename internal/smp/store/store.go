// Package store defines the backend contracts of the registry. One store
// interface exists per entity family; backends (memory, xmlfile, postgres)
// implement all of them and are selected once at process startup.
//
// Error contract, shared by every implementation:
//   - Find* returns sentinel.ErrNotFound (possibly wrapped) when absent
//   - Create returns sentinel.ErrConflict when the key already exists
//   - Delete reports (false, nil) when there was nothing to delete
//   - infrastructure failures are returned wrapped with context
package store

import (
	"context"

	"smpserver/internal/smp/models"
	"smpserver/pkg/identifier"
	"smpserver/pkg/platform/tx"
)

// ServiceGroupStore persists the root registry records.
type ServiceGroupStore interface {
	Create(ctx context.Context, sg *models.ServiceGroup) error
	Update(ctx context.Context, sg *models.ServiceGroup) error
	Delete(ctx context.Context, participant identifier.ParticipantIdentifier) (changed bool, err error)
	Find(ctx context.Context, participant identifier.ParticipantIdentifier) (*models.ServiceGroup, error)
	ListParticipants(ctx context.Context) ([]identifier.ParticipantIdentifier, error)
	Count(ctx context.Context) (int, error)
}

// ServiceInformationStore persists document-type registrations and their
// process/endpoint sets. Upsert replaces the whole record for its key.
type ServiceInformationStore interface {
	Upsert(ctx context.Context, si *models.ServiceInformation) error
	Delete(ctx context.Context, participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) (changed bool, err error)
	DeleteOfParticipant(ctx context.Context, participant identifier.ParticipantIdentifier) (deleted int, err error)
	Find(ctx context.Context, participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) (*models.ServiceInformation, error)
	ListOfParticipant(ctx context.Context, participant identifier.ParticipantIdentifier) ([]models.ServiceInformation, error)
	Count(ctx context.Context) (int, error)
}

// RedirectStore persists redirect registrations; symmetric to
// ServiceInformationStore.
type RedirectStore interface {
	Upsert(ctx context.Context, r *models.Redirect) error
	Delete(ctx context.Context, participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) (changed bool, err error)
	DeleteOfParticipant(ctx context.Context, participant identifier.ParticipantIdentifier) (deleted int, err error)
	Find(ctx context.Context, participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) (*models.Redirect, error)
	ListOfParticipant(ctx context.Context, participant identifier.ParticipantIdentifier) ([]models.Redirect, error)
	Count(ctx context.Context) (int, error)
}

// BusinessCardStore persists the optional 1:1 business card of a service
// group.
type BusinessCardStore interface {
	Upsert(ctx context.Context, bc *models.BusinessCard) error
	Delete(ctx context.Context, participant identifier.ParticipantIdentifier) (changed bool, err error)
	Find(ctx context.Context, participant identifier.ParticipantIdentifier) (*models.BusinessCard, error)
	ListParticipants(ctx context.Context) ([]identifier.ParticipantIdentifier, error)
	Count(ctx context.Context) (int, error)
}

// MigrationStore persists participant migrations. Create enforces the
// one-active-migration-per-(participant, direction) uniqueness rule.
type MigrationStore interface {
	Create(ctx context.Context, m *models.Migration) error
	Update(ctx context.Context, m *models.Migration) error
	Find(ctx context.Context, id string) (*models.Migration, error)
	FindActive(ctx context.Context, direction models.MigrationDirection, participant identifier.ParticipantIdentifier) (*models.Migration, error)
	List(ctx context.Context, direction models.MigrationDirection) ([]models.Migration, error)
	Delete(ctx context.Context, id string) (changed bool, err error)
}

// OwnershipStore records which accounts own which service groups.
type OwnershipStore interface {
	Assign(ctx context.Context, owner string, participant identifier.ParticipantIdentifier) error
	Remove(ctx context.Context, owner string, participant identifier.ParticipantIdentifier) (changed bool, err error)
	RemoveOfParticipant(ctx context.Context, participant identifier.ParticipantIdentifier) (removed int, err error)
	IsOwner(ctx context.Context, owner string, participant identifier.ParticipantIdentifier) (bool, error)
	ListOwned(ctx context.Context, owner string) ([]identifier.ParticipantIdentifier, error)
}

// Backend bundles one store per entity family plus the transaction runner
// that brackets multi-store mutations. It is constructed once in main and
// injected into the services; there is no ambient global backend.
type Backend struct {
	ServiceGroups      ServiceGroupStore
	ServiceInformation ServiceInformationStore
	Redirects          RedirectStore
	BusinessCards      BusinessCardStore
	Migrations         MigrationStore
	Ownership          OwnershipStore
	Tx                 tx.Runner
}
