package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smpserver/internal/audit"
	smpmetrics "smpserver/internal/smp/metrics"
	"smpserver/internal/smp/models"
	"smpserver/internal/smp/store"
	"smpserver/internal/smp/store/memory"
	dErrors "smpserver/pkg/domain-errors"
	"smpserver/pkg/identifier"
	"smpserver/pkg/platform/sentinel"
)

type fakeHook struct {
	mu        sync.Mutex
	createErr error
	deleteErr error
	creates   []string
	deletes   []string
}

func (h *fakeHook) Create(_ context.Context, p identifier.ParticipantIdentifier) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.createErr != nil {
		return h.createErr
	}
	h.creates = append(h.creates, p.String())
	return nil
}

func (h *fakeHook) Delete(_ context.Context, p identifier.ParticipantIdentifier) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.deleteErr != nil {
		return h.deleteErr
	}
	h.deletes = append(h.deletes, p.String())
	return nil
}

type testEnv struct {
	backend *store.Backend
	hook    *fakeHook
	audits  *audit.InMemoryStore
	groups  *ServiceGroupService
	infos   *ServiceInformationService
	redirs  *RedirectService
	cards   *BusinessCardService
	migs    *MigrationService
}

var testMetrics = smpmetrics.New()

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	backend := memory.NewBackend()
	hook := &fakeHook{}
	audits := audit.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := audit.NewPublisher(audits, logger)

	locks := NewLocks()
	groups := NewServiceGroupService(backend, hook, locks, publisher, testMetrics, logger)
	return &testEnv{
		backend: backend,
		hook:    hook,
		audits:  audits,
		groups:  groups,
		infos:   NewServiceInformationService(backend, locks, publisher, testMetrics, logger),
		redirs:  NewRedirectService(backend, locks, publisher, testMetrics, logger),
		cards:   NewBusinessCardService(backend, publisher, logger),
		migs:    NewMigrationService(backend, groups, publisher, testMetrics, logger),
	}
}

var (
	testParticipant = identifier.MustParticipant("iso6523-actorid-upis::9915:test")
	testDocType     = identifier.MustDocumentType("busdox-docid-qns::invoice")
	testOwner       = Caller{ID: "owner@example.org"}
	testAdmin       = Caller{ID: "admin@example.org", Admin: true}
)

func testServiceInfo() models.ServiceInformation {
	return models.ServiceInformation{
		Participant:  testParticipant,
		DocumentType: testDocType,
		Processes: []models.Process{{
			ID: identifier.MustProcess("cenbii-procid-ubl::bii04"),
			Endpoints: []models.Endpoint{{
				TransportProfile: "peppol-transport-as4-v2_0",
				Address:          "https://ap.example.org/as4",
				Certificate:      "cert",
			}},
		}},
	}
}

func TestServiceGroupCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		env := newTestEnv(t)
		sg, err := env.groups.Create(ctx, testOwner, testParticipant, "", "<ext/>")
		require.NoError(t, err)
		assert.Equal(t, testOwner.ID, sg.OwnerID)

		got, err := env.groups.Get(ctx, testParticipant)
		require.NoError(t, err)
		assert.Equal(t, testParticipant, got.Participant)
		assert.Equal(t, "<ext/>", got.Extension)
		assert.Equal(t, []string{testParticipant.String()}, env.hook.creates)
	})

	t.Run("duplicate create conflicts", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.groups.Create(ctx, testOwner, testParticipant, "", "")
		require.NoError(t, err)
		_, err = env.groups.Create(ctx, testOwner, testParticipant, "", "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("directory failure leaves no partial state", func(t *testing.T) {
		env := newTestEnv(t)
		env.hook.createErr = errors.New("locator down")

		_, err := env.groups.Create(ctx, testOwner, testParticipant, "", "")
		require.True(t, dErrors.HasCode(err, dErrors.CodeExternalDirectory))

		_, err = env.groups.Get(ctx, testParticipant)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("non-admin cannot create for other owners", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.groups.Create(ctx, testOwner, testParticipant, "someone-else", "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

		_, err = env.groups.Create(ctx, testAdmin, testParticipant, "someone-else", "")
		assert.NoError(t, err)
	})

	t.Run("concurrent create of the same participant", func(t *testing.T) {
		env := newTestEnv(t)
		results := make(chan error, 2)
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := env.groups.Create(ctx, testOwner, testParticipant, "", "")
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		var succeeded, conflicted int
		for err := range results {
			switch {
			case err == nil:
				succeeded++
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicted++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, conflicted)
	})
}

func TestServiceGroupDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("delete of absent group reports unchanged", func(t *testing.T) {
		env := newTestEnv(t)
		changed, err := env.groups.Delete(ctx, testOwner, testParticipant, true)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("delete cascades to children", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.groups.Create(ctx, testOwner, testParticipant, "", "")
		require.NoError(t, err)
		_, err = env.infos.CreateOrUpdate(ctx, testOwner, testServiceInfo(), false)
		require.NoError(t, err)
		_, err = env.cards.Put(ctx, testOwner, models.BusinessCard{
			Participant: testParticipant,
			Entities:    []models.BusinessEntity{{Name: "Test Corp", CountryCode: "NO"}},
		})
		require.NoError(t, err)

		changed, err := env.groups.Delete(ctx, testOwner, testParticipant, true)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, []string{testParticipant.String()}, env.hook.deletes)

		_, err = env.backend.ServiceInformation.Find(ctx, testParticipant, testDocType)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		_, err = env.backend.BusinessCards.Find(ctx, testParticipant)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		owns, err := env.backend.Ownership.IsOwner(ctx, testOwner.ID, testParticipant)
		require.NoError(t, err)
		assert.False(t, owns)
	})

	t.Run("directory failure aborts delete", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.groups.Create(ctx, testOwner, testParticipant, "", "")
		require.NoError(t, err)
		env.hook.deleteErr = errors.New("locator down")

		changed, err := env.groups.Delete(ctx, testOwner, testParticipant, true)
		require.True(t, dErrors.HasCode(err, dErrors.CodeExternalDirectory))
		assert.False(t, changed)

		_, err = env.groups.Get(ctx, testParticipant)
		assert.NoError(t, err)
	})

	t.Run("delete without deregister skips the directory", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.groups.Create(ctx, testOwner, testParticipant, "", "")
		require.NoError(t, err)

		changed, err := env.groups.Delete(ctx, testOwner, testParticipant, false)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Empty(t, env.hook.deletes)
	})

	t.Run("non-owner cannot delete", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.groups.Create(ctx, testOwner, testParticipant, "", "")
		require.NoError(t, err)

		_, err = env.groups.Delete(ctx, Caller{ID: "intruder"}, testParticipant, true)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

		changed, err := env.groups.Delete(ctx, testAdmin, testParticipant, true)
		require.NoError(t, err)
		assert.True(t, changed)
	})
}

func TestServiceGroupListAndCount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	other := identifier.MustParticipant("iso6523-actorid-upis::9915:other")
	_, err := env.groups.Create(ctx, testOwner, testParticipant, "", "")
	require.NoError(t, err)
	_, err = env.groups.Create(ctx, testOwner, other, "", "")
	require.NoError(t, err)

	ids, err := env.groups.ListParticipants(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	n, err := env.groups.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
