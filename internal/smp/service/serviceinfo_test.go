package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smpserver/internal/smp/models"
	dErrors "smpserver/pkg/domain-errors"
)

func testRedirect() models.Redirect {
	return models.Redirect{
		Participant:     testParticipant,
		DocumentType:    testDocType,
		TargetURL:       "https://other-smp.example.org",
		SubjectUniqueID: "CN=other-smp",
	}
}

func TestRegistrationMutualExclusion(t *testing.T) {
	ctx := context.Background()

	t.Run("redirect blocked by service information", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.groups.Create(ctx, testOwner, testParticipant, "", "")
		require.NoError(t, err)
		_, err = env.infos.CreateOrUpdate(ctx, testOwner, testServiceInfo(), false)
		require.NoError(t, err)

		_, err = env.redirs.CreateOrUpdate(ctx, testOwner, testRedirect(), false)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("service information blocked by redirect", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.groups.Create(ctx, testOwner, testParticipant, "", "")
		require.NoError(t, err)
		_, err = env.redirs.CreateOrUpdate(ctx, testOwner, testRedirect(), false)
		require.NoError(t, err)

		_, err = env.infos.CreateOrUpdate(ctx, testOwner, testServiceInfo(), false)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("overwrite replaces the redirect", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.groups.Create(ctx, testOwner, testParticipant, "", "")
		require.NoError(t, err)
		_, err = env.redirs.CreateOrUpdate(ctx, testOwner, testRedirect(), false)
		require.NoError(t, err)

		_, err = env.infos.CreateOrUpdate(ctx, testOwner, testServiceInfo(), true)
		require.NoError(t, err)

		redirects, err := env.redirs.GetOfServiceGroup(ctx, testParticipant)
		require.NoError(t, err)
		assert.Empty(t, redirects)
		infos, err := env.infos.GetOfServiceGroup(ctx, testParticipant)
		require.NoError(t, err)
		assert.Len(t, infos, 1)
	})

	t.Run("overwrite replaces the service information", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.groups.Create(ctx, testOwner, testParticipant, "", "")
		require.NoError(t, err)
		_, err = env.infos.CreateOrUpdate(ctx, testOwner, testServiceInfo(), false)
		require.NoError(t, err)

		_, err = env.redirs.CreateOrUpdate(ctx, testOwner, testRedirect(), true)
		require.NoError(t, err)

		infos, err := env.infos.GetOfServiceGroup(ctx, testParticipant)
		require.NoError(t, err)
		assert.Empty(t, infos)
	})
}

func TestRegistrationWritesDoNotRace(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		env := newTestEnv(t)
		_, err := env.groups.Create(ctx, testOwner, testParticipant, "", "")
		require.NoError(t, err)

		var wg sync.WaitGroup
		var siErr, redErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, siErr = env.infos.CreateOrUpdate(ctx, testOwner, testServiceInfo(), false)
		}()
		go func() {
			defer wg.Done()
			_, redErr = env.redirs.CreateOrUpdate(ctx, testOwner, testRedirect(), false)
		}()
		wg.Wait()

		// Exactly one registration wins, regardless of scheduling.
		if siErr == nil {
			assert.True(t, dErrors.HasCode(redErr, dErrors.CodeConflict))
		} else {
			require.NoError(t, redErr)
			assert.True(t, dErrors.HasCode(siErr, dErrors.CodeConflict))
		}

		infos, err := env.infos.GetOfServiceGroup(ctx, testParticipant)
		require.NoError(t, err)
		redirects, err := env.redirs.GetOfServiceGroup(ctx, testParticipant)
		require.NoError(t, err)
		assert.Equal(t, 1, len(infos)+len(redirects))
	}
}

func TestServiceInformationCreateOrUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("requires an existing service group", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.infos.CreateOrUpdate(ctx, testOwner, testServiceInfo(), false)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("update fully replaces the process set", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.groups.Create(ctx, testOwner, testParticipant, "", "")
		require.NoError(t, err)
		_, err = env.infos.CreateOrUpdate(ctx, testOwner, testServiceInfo(), false)
		require.NoError(t, err)

		replacement := testServiceInfo()
		replacement.Processes[0].Endpoints[0].Address = "https://ap2.example.org/as4"
		_, err = env.infos.CreateOrUpdate(ctx, testOwner, replacement, false)
		require.NoError(t, err)

		got, err := env.infos.Get(ctx, testParticipant, testDocType)
		require.NoError(t, err)
		require.Len(t, got.Processes, 1)
		require.Len(t, got.Processes[0].Endpoints, 1)
		assert.Equal(t, "https://ap2.example.org/as4", got.Processes[0].Endpoints[0].Address)
	})

	t.Run("rejects processes without endpoints", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.groups.Create(ctx, testOwner, testParticipant, "", "")
		require.NoError(t, err)

		bad := testServiceInfo()
		bad.Processes[0].Endpoints = nil
		_, err = env.infos.CreateOrUpdate(ctx, testOwner, bad, false)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("non-owner cannot register", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.groups.Create(ctx, testOwner, testParticipant, "", "")
		require.NoError(t, err)

		_, err = env.infos.CreateOrUpdate(ctx, Caller{ID: "intruder"}, testServiceInfo(), false)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("delete of absent registration reports unchanged", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.groups.Create(ctx, testOwner, testParticipant, "", "")
		require.NoError(t, err)

		changed, err := env.infos.Delete(ctx, testOwner, testParticipant, testDocType)
		require.NoError(t, err)
		assert.False(t, changed)
	})
}
