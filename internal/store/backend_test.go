package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	file, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	lite, err := OpenSQLite(filepath.Join(t.TempDir(), "larder.db"))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	all := map[string]Backend{
		"memory": NewMemoryBackend(),
		"file":   file,
		"sqlite": lite,
		"redis":  NewRedisBackend(client),
	}
	t.Cleanup(func() {
		for _, b := range all {
			_ = b.Close()
		}
	})
	return all
}

func TestBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Get(ctx, KeyCart)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, b.Set(ctx, KeyCart, []byte(`{"a":1}`), 0))
			got, err := b.Get(ctx, KeyCart)
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":1}`, string(got))

			require.NoError(t, b.Set(ctx, KeyCart, []byte(`{"a":2}`), 0))
			got, err = b.Get(ctx, KeyCart)
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":2}`, string(got))

			// Keys are independent.
			_, err = b.Get(ctx, KeySession)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, b.Delete(ctx, KeyCart))
			_, err = b.Get(ctx, KeyCart)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, b.Delete(ctx, KeyCart), "deleting a missing key")
		})
	}
}

func TestMemoryBackendTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	b := NewMemoryBackend()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set(ctx, KeyBackup, []byte(`1`), time.Minute))
	_, err := b.Get(ctx, KeyBackup)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = b.Get(ctx, KeyBackup)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteBackendTTL(t *testing.T) {
	ctx := context.Background()
	b, err := OpenSQLite(filepath.Join(t.TempDir(), "ttl.db"))
	require.NoError(t, err)
	defer b.Close()

	now := time.Now()
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set(ctx, KeyBackup, []byte(`1`), time.Minute))
	_, err = b.Get(ctx, KeyBackup)
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = b.Get(ctx, KeyBackup)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisBackendTTLAndPrefix(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewRedisBackend(client)
	defer b.Close()

	require.NoError(t, b.Set(ctx, KeyBackup, []byte(`"x"`), time.Minute))
	assert.True(t, mr.Exists("larder:cart_backup"))
	assert.Equal(t, time.Minute, mr.TTL("larder:cart_backup"))

	mr.FastForward(2 * time.Minute)
	_, err := b.Get(ctx, KeyBackup)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConnectRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := ConnectRedis(ctx, addr, 0)
	assert.Error(t, err)
}

func TestFileBackendRequiresDir(t *testing.T) {
	_, err := NewFileBackend("  ")
	assert.Error(t, err)
}
