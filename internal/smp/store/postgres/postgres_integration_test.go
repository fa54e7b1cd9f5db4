//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"smpserver/internal/smp/models"
	"smpserver/internal/smp/store"
	"smpserver/internal/smp/store/postgres"
	"smpserver/pkg/identifier"
	"smpserver/pkg/platform/sentinel"
	"smpserver/pkg/testutil/containers"
)

type PostgresBackendSuite struct {
	suite.Suite
	pg      *containers.PostgresContainer
	backend *store.Backend
}

func TestPostgresBackendSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresBackendSuite))
}

func (s *PostgresBackendSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(postgres.MigrateSchema(context.Background(), s.pg.DB))
	s.backend = postgres.NewBackend(s.pg.DB)
}

func (s *PostgresBackendSuite) SetupTest() {
	err := s.pg.TruncateTables(context.Background(),
		"smp_endpoint", "smp_process", "smp_service_information",
		"smp_redirect", "smp_business_card", "smp_pmigration",
		"smp_ownership", "smp_audit_outbox", "smp_service_group")
	s.Require().NoError(err)
}

var (
	participantA = identifier.MustParticipant("iso6523-actorid-upis::9915:alpha")
	docInvoice   = identifier.MustDocumentType("busdox-docid-qns::invoice")
)

func (s *PostgresBackendSuite) createServiceGroup(p identifier.ParticipantIdentifier) {
	now := time.Now().UTC()
	s.Require().NoError(s.backend.ServiceGroups.Create(context.Background(), &models.ServiceGroup{
		Participant: p,
		OwnerID:     "owner@unit.test",
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
}

func (s *PostgresBackendSuite) TestServiceGroupRoundTrip() {
	ctx := context.Background()
	s.createServiceGroup(participantA)

	found, err := s.backend.ServiceGroups.Find(ctx, participantA)
	s.Require().NoError(err)
	s.Equal("owner@unit.test", found.OwnerID)

	err = s.backend.ServiceGroups.Create(ctx, &models.ServiceGroup{
		Participant: participantA,
		OwnerID:     "other@unit.test",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	})
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	changed, err := s.backend.ServiceGroups.Delete(ctx, participantA)
	s.Require().NoError(err)
	s.True(changed)

	_, err = s.backend.ServiceGroups.Find(ctx, participantA)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresBackendSuite) TestServiceInformationPreservesEndpointOrder() {
	ctx := context.Background()
	s.createServiceGroup(participantA)

	si := &models.ServiceInformation{
		Participant:  participantA,
		DocumentType: docInvoice,
		Processes: []models.Process{{
			ID: identifier.MustProcess("cenbii-procid-ubl::bii04"),
			Endpoints: []models.Endpoint{
				{TransportProfile: "peppol-transport-as4-v2_0", Address: "https://a.unit.test"},
				{TransportProfile: "busdox-transport-as2-ver1p0", Address: "https://b.unit.test"},
			},
		}},
	}
	s.Require().NoError(s.backend.ServiceInformation.Upsert(ctx, si))

	found, err := s.backend.ServiceInformation.Find(ctx, participantA, docInvoice)
	s.Require().NoError(err)
	s.Require().Len(found.Processes, 1)
	s.Require().Len(found.Processes[0].Endpoints, 2)
	s.Equal("https://a.unit.test", found.Processes[0].Endpoints[0].Address)
	s.Equal("https://b.unit.test", found.Processes[0].Endpoints[1].Address)
}

func (s *PostgresBackendSuite) TestTransactionRollsBackAllStores() {
	ctx := context.Background()

	err := s.backend.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := time.Now()
		if err := s.backend.ServiceGroups.Create(txCtx, &models.ServiceGroup{
			Participant: participantA,
			OwnerID:     "owner@unit.test",
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return err
		}
		if err := s.backend.Ownership.Assign(txCtx, "owner@unit.test", participantA); err != nil {
			return err
		}
		return context.Canceled // forces the rollback
	})
	s.Require().Error(err)

	_, err = s.backend.ServiceGroups.Find(ctx, participantA)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	owns, err := s.backend.Ownership.IsOwner(ctx, "owner@unit.test", participantA)
	s.Require().NoError(err)
	s.False(owns)
}

// TestConcurrentActiveMigrationUniqueness verifies the partial unique index:
// many concurrent attempts to open a migration for the same participant and
// direction yield exactly one success.
func (s *PostgresBackendSuite) TestConcurrentActiveMigrationUniqueness() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			now := time.Now()
			err := s.backend.Migrations.Create(ctx, &models.Migration{
				ID:           uuid.NewString(),
				Direction:    models.MigrationOutbound,
				Participant:  participantA,
				State:        models.MigrationInProgress,
				MigrationKey: uuid.NewString(),
				InitiatedAt:  now,
				UpdatedAt:    now,
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load())
	s.Equal(int32(goroutines-1), conflictCount.Load())
}

func (s *PostgresBackendSuite) TestBusinessCardJSONRoundTrip() {
	ctx := context.Background()
	s.createServiceGroup(participantA)

	reg := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
	card := &models.BusinessCard{
		Participant: participantA,
		Entities: []models.BusinessEntity{{
			Name:             "Alpha Corp",
			CountryCode:      "NO",
			GeographicalInfo: "Oslo",
			Identifiers:      []models.BusinessIdentifier{{Scheme: "GLN", Value: "7080000000000"}},
			Websites:         []string{"https://alpha.unit.test"},
			Contacts:         []models.BusinessContact{{Type: "support", Email: "support@alpha.unit.test"}},
			RegistrationDate: &reg,
		}},
	}
	s.Require().NoError(s.backend.BusinessCards.Upsert(ctx, card))

	found, err := s.backend.BusinessCards.Find(ctx, participantA)
	s.Require().NoError(err)
	s.Require().Len(found.Entities, 1)
	entity := found.Entities[0]
	s.Equal("Alpha Corp", entity.Name)
	s.Require().Len(entity.Identifiers, 1)
	s.Equal("7080000000000", entity.Identifiers[0].Value)
	s.Require().NotNil(entity.RegistrationDate)
	s.True(entity.RegistrationDate.Equal(reg))
}
