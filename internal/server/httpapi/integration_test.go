package httpapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sonicx161/aiomanager/internal/client/syncapi"
	"github.com/Sonicx161/aiomanager/internal/common"
)

// The sync store client and the server are developed together; this checks
// the two sides agree on the envelope shape and the status code mapping.
func TestSyncClientAgainstServer(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	client := syncapi.NewHTTPClient(ts.URL, nil)

	_, err := client.Get(ctx, "u1", "tok")
	assert.ErrorIs(t, err, common.ErrNotFound)

	syncedAt, err := client.Put(ctx, "u1", "tok", syncapi.Envelope{
		Data:        "ciphertext",
		IsEncrypted: true,
		Salt:        "c2FsdA==",
	})
	require.NoError(t, err)
	assert.False(t, syncedAt.IsZero())

	env, err := client.Get(ctx, "u1", "tok")
	require.NoError(t, err)
	assert.Equal(t, "ciphertext", env.Data)
	assert.True(t, env.IsEncrypted)
	assert.Equal(t, "c2FsdA==", env.Salt)

	_, err = client.Get(ctx, "u1", "wrong")
	assert.ErrorIs(t, err, common.ErrBadCredential)

	require.NoError(t, client.Delete(ctx, "u1", "tok"))
	_, err = client.Get(ctx, "u1", "tok")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
