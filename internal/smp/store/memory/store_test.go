package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"smpserver/internal/smp/models"
	"smpserver/internal/smp/store"
	"smpserver/pkg/identifier"
	"smpserver/pkg/platform/sentinel"
)

type MemoryBackendSuite struct {
	suite.Suite
	backend *store.Backend
	ctx     context.Context
}

func (s *MemoryBackendSuite) SetupTest() {
	s.backend = NewBackend()
	s.ctx = context.Background()
}

func TestMemoryBackendSuite(t *testing.T) {
	suite.Run(t, new(MemoryBackendSuite))
}

var (
	participantA = identifier.MustParticipant("iso6523-actorid-upis::9915:alpha")
	participantB = identifier.MustParticipant("iso6523-actorid-upis::9915:beta")
	docInvoice   = identifier.MustDocumentType("busdox-docid-qns::invoice")
	docOrder     = identifier.MustDocumentType("busdox-docid-qns::order")
	procBii04    = identifier.MustProcess("cenbii-procid-ubl::bii04")
)

func newServiceGroup(p identifier.ParticipantIdentifier) *models.ServiceGroup {
	now := time.Now()
	return &models.ServiceGroup{
		Participant: p,
		OwnerID:     "owner@unit.test",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func newServiceInformation(p identifier.ParticipantIdentifier, d identifier.DocumentTypeIdentifier) *models.ServiceInformation {
	return &models.ServiceInformation{
		Participant:  p,
		DocumentType: d,
		Processes: []models.Process{{
			ID: procBii04,
			Endpoints: []models.Endpoint{{
				TransportProfile: "peppol-transport-as4-v2_0",
				Address:          "https://ap.unit.test/as4",
			}},
		}},
	}
}

func (s *MemoryBackendSuite) TestServiceGroups() {
	s.Run("creates and finds", func() {
		s.Require().NoError(s.backend.ServiceGroups.Create(s.ctx, newServiceGroup(participantA)))

		found, err := s.backend.ServiceGroups.Find(s.ctx, participantA)
		s.Require().NoError(err)
		s.Equal("owner@unit.test", found.OwnerID)
	})

	s.Run("rejects duplicate participant", func() {
		err := s.backend.ServiceGroups.Create(s.ctx, newServiceGroup(participantA))
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("returns ErrNotFound for unknown participant", func() {
		_, err := s.backend.ServiceGroups.Find(s.ctx, participantB)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned records are copies", func() {
		found, err := s.backend.ServiceGroups.Find(s.ctx, participantA)
		s.Require().NoError(err)
		found.OwnerID = "mutated@unit.test"

		again, err := s.backend.ServiceGroups.Find(s.ctx, participantA)
		s.Require().NoError(err)
		s.Equal("owner@unit.test", again.OwnerID)
	})

	s.Run("lists and counts", func() {
		s.Require().NoError(s.backend.ServiceGroups.Create(s.ctx, newServiceGroup(participantB)))

		participants, err := s.backend.ServiceGroups.ListParticipants(s.ctx)
		s.Require().NoError(err)
		s.Len(participants, 2)

		n, err := s.backend.ServiceGroups.Count(s.ctx)
		s.Require().NoError(err)
		s.Equal(2, n)
	})

	s.Run("delete reports absence as unchanged", func() {
		changed, err := s.backend.ServiceGroups.Delete(s.ctx, participantA)
		s.Require().NoError(err)
		s.True(changed)

		changed, err = s.backend.ServiceGroups.Delete(s.ctx, participantA)
		s.Require().NoError(err)
		s.False(changed)
	})
}

func (s *MemoryBackendSuite) TestServiceInformation() {
	s.Run("upsert replaces the whole record", func() {
		si := newServiceInformation(participantA, docInvoice)
		s.Require().NoError(s.backend.ServiceInformation.Upsert(s.ctx, si))

		si2 := newServiceInformation(participantA, docInvoice)
		si2.Processes[0].Endpoints[0].Address = "https://ap2.unit.test/as4"
		s.Require().NoError(s.backend.ServiceInformation.Upsert(s.ctx, si2))

		found, err := s.backend.ServiceInformation.Find(s.ctx, participantA, docInvoice)
		s.Require().NoError(err)
		s.Require().Len(found.Processes, 1)
		s.Equal("https://ap2.unit.test/as4", found.Processes[0].Endpoints[0].Address)
	})

	s.Run("keys on participant and document type", func() {
		s.Require().NoError(s.backend.ServiceInformation.Upsert(s.ctx, newServiceInformation(participantA, docOrder)))
		s.Require().NoError(s.backend.ServiceInformation.Upsert(s.ctx, newServiceInformation(participantB, docInvoice)))

		list, err := s.backend.ServiceInformation.ListOfParticipant(s.ctx, participantA)
		s.Require().NoError(err)
		s.Len(list, 2)
	})

	s.Run("deletes all records of one participant", func() {
		deleted, err := s.backend.ServiceInformation.DeleteOfParticipant(s.ctx, participantA)
		s.Require().NoError(err)
		s.Equal(2, deleted)

		list, err := s.backend.ServiceInformation.ListOfParticipant(s.ctx, participantA)
		s.Require().NoError(err)
		s.Empty(list)

		_, err = s.backend.ServiceInformation.Find(s.ctx, participantB, docInvoice)
		s.Require().NoError(err, "other participants must be untouched")
	})
}

func (s *MemoryBackendSuite) TestRedirects() {
	redirect := &models.Redirect{
		Participant:  participantA,
		DocumentType: docInvoice,
		TargetURL:    "https://other-smp.unit.test",
	}
	s.Require().NoError(s.backend.Redirects.Upsert(s.ctx, redirect))

	found, err := s.backend.Redirects.Find(s.ctx, participantA, docInvoice)
	s.Require().NoError(err)
	s.Equal("https://other-smp.unit.test", found.TargetURL)

	changed, err := s.backend.Redirects.Delete(s.ctx, participantA, docInvoice)
	s.Require().NoError(err)
	s.True(changed)

	_, err = s.backend.Redirects.Find(s.ctx, participantA, docInvoice)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryBackendSuite) TestBusinessCards() {
	card := &models.BusinessCard{
		Participant: participantA,
		Entities:    []models.BusinessEntity{{Name: "Alpha Corp", CountryCode: "NO"}},
	}
	s.Require().NoError(s.backend.BusinessCards.Upsert(s.ctx, card))

	found, err := s.backend.BusinessCards.Find(s.ctx, participantA)
	s.Require().NoError(err)
	s.Require().Len(found.Entities, 1)
	s.Equal("Alpha Corp", found.Entities[0].Name)

	participants, err := s.backend.BusinessCards.ListParticipants(s.ctx)
	s.Require().NoError(err)
	s.Len(participants, 1)

	changed, err := s.backend.BusinessCards.Delete(s.ctx, participantA)
	s.Require().NoError(err)
	s.True(changed)

	changed, err = s.backend.BusinessCards.Delete(s.ctx, participantA)
	s.Require().NoError(err)
	s.False(changed)
}

func (s *MemoryBackendSuite) newMigration(direction models.MigrationDirection, p identifier.ParticipantIdentifier) *models.Migration {
	now := time.Now()
	return &models.Migration{
		ID:           uuid.NewString(),
		Direction:    direction,
		Participant:  p,
		State:        models.MigrationInProgress,
		MigrationKey: uuid.NewString(),
		InitiatedAt:  now,
		UpdatedAt:    now,
	}
}

func (s *MemoryBackendSuite) TestMigrations() {
	s.Run("enforces one active migration per participant and direction", func() {
		first := s.newMigration(models.MigrationOutbound, participantA)
		s.Require().NoError(s.backend.Migrations.Create(s.ctx, first))

		err := s.backend.Migrations.Create(s.ctx, s.newMigration(models.MigrationOutbound, participantA))
		s.Require().ErrorIs(err, sentinel.ErrConflict)

		// The opposite direction is independent.
		s.Require().NoError(s.backend.Migrations.Create(s.ctx, s.newMigration(models.MigrationInbound, participantA)))
	})

	s.Run("terminal migrations free the active slot", func() {
		active, err := s.backend.Migrations.FindActive(s.ctx, models.MigrationOutbound, participantA)
		s.Require().NoError(err)

		active.State = models.MigrationCancelled
		s.Require().NoError(s.backend.Migrations.Update(s.ctx, active))

		_, err = s.backend.Migrations.FindActive(s.ctx, models.MigrationOutbound, participantA)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)

		s.Require().NoError(s.backend.Migrations.Create(s.ctx, s.newMigration(models.MigrationOutbound, participantA)))
	})

	s.Run("lists by direction", func() {
		outbound, err := s.backend.Migrations.List(s.ctx, models.MigrationOutbound)
		s.Require().NoError(err)
		s.Len(outbound, 2)

		inbound, err := s.backend.Migrations.List(s.ctx, models.MigrationInbound)
		s.Require().NoError(err)
		s.Len(inbound, 1)
	})

	s.Run("updating an unknown migration fails", func() {
		err := s.backend.Migrations.Update(s.ctx, s.newMigration(models.MigrationOutbound, participantB))
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryBackendSuite) TestOwnership() {
	s.Require().NoError(s.backend.Ownership.Assign(s.ctx, "owner@unit.test", participantA))

	ok, err := s.backend.Ownership.IsOwner(s.ctx, "owner@unit.test", participantA)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.backend.Ownership.IsOwner(s.ctx, "other@unit.test", participantA)
	s.Require().NoError(err)
	s.False(ok)

	owned, err := s.backend.Ownership.ListOwned(s.ctx, "owner@unit.test")
	s.Require().NoError(err)
	s.Len(owned, 1)

	removed, err := s.backend.Ownership.RemoveOfParticipant(s.ctx, participantA)
	s.Require().NoError(err)
	s.Equal(1, removed)

	ok, err = s.backend.Ownership.IsOwner(s.ctx, "owner@unit.test", participantA)
	s.Require().NoError(err)
	s.False(ok)
}
