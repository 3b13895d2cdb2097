package syncapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sonicx161/aiomanager/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Get(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/sync/dev1", r.URL.Path)

		switch r.Header.Get(common.SyncTokenHeaderName) {
		case "good":
			_, _ = w.Write([]byte(`{"data":"Y2lwaGVydGV4dA==","isEncrypted":true}`))
		case "legacy":
			_, _ = w.Write([]byte(`{"accounts":[],"library":[]}`))
		case "":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, nil)
	ctx := context.Background()

	env, err := c.Get(ctx, "dev1", "good")
	require.NoError(t, err)
	assert.True(t, env.IsEncrypted)
	assert.Equal(t, "Y2lwaGVydGV4dA==", env.Data)

	env, err = c.Get(ctx, "dev1", "legacy")
	require.NoError(t, err)
	assert.False(t, env.IsEncrypted, "plaintext legacy payload accepted")

	_, err = c.Get(ctx, "dev1", "")
	assert.ErrorIs(t, err, common.ErrBadCredential)

	_, err = c.Get(ctx, "dev1", "unknown")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestHTTPClient_Put_ReturnsServerTimestamp(t *testing.T) {
	serverTime := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"syncedAt":"` + serverTime.Format(time.RFC3339) + `"}`))
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, nil)

	syncedAt, err := c.Put(context.Background(), "dev1", "tok", Envelope{Data: "abc", IsEncrypted: true})
	require.NoError(t, err)
	assert.True(t, syncedAt.Equal(serverTime))
}

func TestHTTPClient_Delete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, nil)
	require.NoError(t, c.Delete(context.Background(), "dev1", "tok"))
}

func TestMapStatus(t *testing.T) {
	assert.ErrorIs(t, mapStatus(404), common.ErrNotFound)
	assert.ErrorIs(t, mapStatus(401), common.ErrBadCredential)
	assert.ErrorIs(t, mapStatus(503), common.ErrUnavailable)
	assert.Error(t, mapStatus(418))
	assert.NoError(t, mapStatus(200))
}
