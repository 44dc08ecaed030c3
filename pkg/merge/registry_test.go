package merge

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timoknapp/gulfer/pkg/logger"
	"github.com/timoknapp/gulfer/pkg/models"
	"github.com/timoknapp/gulfer/pkg/storage"
)

func newTestRegistry() *Registry {
	backend := storage.NewMemoryBackend(storage.AllBuckets...)
	r := New(backend, storage.RetryPolicy{Attempts: 2, Delay: time.Millisecond})
	r.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return r
}

func TestMapAndLookup(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	_, found, err := r.GetLocalIDForForeign(ctx, "remote", "c1", models.EntityCourse)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, r.MapForeignToLocal(ctx, "remote", "c1", "local-c1", models.EntityCourse))

	id, found, err := r.GetLocalIDForForeign(ctx, "remote", "c1", models.EntityCourse)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "local-c1", id)

	// same foreign id under another type is a different entity
	_, found, err = r.GetLocalIDForForeign(ctx, "remote", "c1", models.EntityPlayer)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMapIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	require.NoError(t, r.MapForeignToLocal(ctx, "remote", "p1", "u1", models.EntityPlayer))
	require.NoError(t, r.MapForeignToLocal(ctx, "remote", "p1", "u1", models.EntityPlayer))

	entries, err := r.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1700000000000), entries[0].UpdatedAt)
}

func TestRemapOverwritesAndWarns(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stdout) })

	require.NoError(t, r.MapForeignToLocal(ctx, "remote", "p1", "u1", models.EntityPlayer))
	require.NoError(t, r.MapForeignToLocal(ctx, "remote", "p1", "u2", models.EntityPlayer))

	id, _, err := r.GetLocalIDForForeign(ctx, "remote", "p1", models.EntityPlayer)
	require.NoError(t, err)
	assert.Equal(t, "u2", id)
	assert.Contains(t, buf.String(), "Overwriting merge mapping")
}

func TestUnsupportedEntity(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	_, _, err := r.GetLocalIDForForeign(ctx, "remote", "x", models.EntityType("round"))
	assert.ErrorIs(t, err, ErrUnsupportedEntity)
	err = r.MapForeignToLocal(ctx, "remote", "x", "y", models.EntityType("round"))
	assert.ErrorIs(t, err, ErrUnsupportedEntity)
	assert.ErrorIs(t, r.RemoveLocal(ctx, "hole", "y"), ErrUnsupportedEntity)
}

func TestRemoveLocal(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	require.NoError(t, r.MapForeignToLocal(ctx, "a", "c1", "local", models.EntityCourse))
	require.NoError(t, r.MapForeignToLocal(ctx, "b", "c9", "local", models.EntityCourse))
	require.NoError(t, r.MapForeignToLocal(ctx, "a", "p1", "local", models.EntityPlayer))

	require.NoError(t, r.RemoveLocal(ctx, models.EntityCourse, "local"))

	entries, err := r.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.EntityPlayer, entries[0].EntityType)
}

func TestSeparatorInIdsDoesNotCollide(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()

	require.NoError(t, r.MapForeignToLocal(ctx, "a", "x|player|y", "u1", models.EntityPlayer))
	require.NoError(t, r.MapForeignToLocal(ctx, "a|player|x", "y", "u2", models.EntityPlayer))
	require.NoError(t, r.MapForeignToLocal(ctx, "a%7Cb", "z", "u3", models.EntityPlayer))
	require.NoError(t, r.MapForeignToLocal(ctx, "a|b", "z", "u4", models.EntityPlayer))

	for _, tt := range []struct {
		storageID, foreignID, want string
	}{
		{"a", "x|player|y", "u1"},
		{"a|player|x", "y", "u2"},
		{"a%7Cb", "z", "u3"},
		{"a|b", "z", "u4"},
	} {
		id, found, err := r.GetLocalIDForForeign(ctx, tt.storageID, tt.foreignID, models.EntityPlayer)
		require.NoError(t, err)
		require.True(t, found, tt.storageID)
		assert.Equal(t, tt.want, id, tt.storageID)
	}

	entries, err := r.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	require.NoError(t, r.RemoveLocal(ctx, models.EntityPlayer, "u2"))
	_, found, err := r.GetLocalIDForForeign(ctx, "a|player|x", "y", models.EntityPlayer)
	require.NoError(t, err)
	assert.False(t, found)
	id, found, err := r.GetLocalIDForForeign(ctx, "a", "x|player|y", models.EntityPlayer)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "u1", id)
}
