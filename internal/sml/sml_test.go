package sml

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smpserver/pkg/identifier"
)

func TestClient(t *testing.T) {
	participant := identifier.MustParticipant("iso6523-actorid-upis::9915:test")

	t.Run("create registers participant", func(t *testing.T) {
		var gotMethod, gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotPath = r.URL.Path
			w.WriteHeader(http.StatusCreated)
		}))
		defer srv.Close()

		c := NewClient(ClientConfig{BaseURL: srv.URL})
		require.NoError(t, c.Create(context.Background(), participant))
		assert.Equal(t, http.MethodPut, gotMethod)
		assert.Equal(t, "/participants/iso6523-actorid-upis::9915:test", gotPath)
	})

	t.Run("delete removes participant", func(t *testing.T) {
		var gotMethod string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		c := NewClient(ClientConfig{BaseURL: srv.URL})
		require.NoError(t, c.Delete(context.Background(), participant))
		assert.Equal(t, http.MethodDelete, gotMethod)
	})

	t.Run("server error is transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		c := NewClient(ClientConfig{BaseURL: srv.URL})
		err := c.Create(context.Background(), participant)
		require.Error(t, err)
		assert.True(t, IsTransient(err))
	})

	t.Run("rejection is not transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))
		defer srv.Close()

		c := NewClient(ClientConfig{BaseURL: srv.URL})
		err := c.Create(context.Background(), participant)
		require.Error(t, err)
		assert.False(t, IsTransient(err))
	})

	t.Run("unreachable locator is transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		c := NewClient(ClientConfig{BaseURL: srv.URL})
		err := c.Delete(context.Background(), participant)
		require.Error(t, err)
		assert.True(t, IsTransient(err))
	})
}

func TestNoop(t *testing.T) {
	participant := identifier.MustParticipant("iso6523-actorid-upis::9915:test")
	var h Hook = Noop{}
	assert.NoError(t, h.Create(context.Background(), participant))
	assert.NoError(t, h.Delete(context.Background(), participant))
}
