package repository

import (
	"context"
	"testing"
	"time"

	"bookingsync/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisKVStore(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()

	repo := NewRedisKVStore(client, "bookingsync:")
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		err := repo.Set(ctx, "offline_queue", `[{"id":"m1"}]`)
		require.NoError(t, err)

		got, found, err := repo.Get(ctx, "offline_queue")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `[{"id":"m1"}]`, got)

		raw, err := s.Get("bookingsync:offline_queue")
		require.NoError(t, err)
		assert.Equal(t, `[{"id":"m1"}]`, raw)
	})

	t.Run("NoExpiry", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "durable", "x"))
		s.FastForward(365 * 24 * time.Hour)

		_, found, err := repo.Get(ctx, "durable")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("GetNonExistent", func(t *testing.T) {
		_, found, err := repo.Get(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisKVStore(nil, "")
		_, _, err := repo.Get(ctx, "k")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis client is nil")
		assert.Error(t, repo.Set(ctx, "k", "v"))
	})

	t.Run("ServerDown", func(t *testing.T) {
		down, err := miniredis.Run()
		require.NoError(t, err)
		downClient := redis.NewClient(&redis.Options{Addr: down.Addr(), MaxRetries: -1})
		defer downClient.Close()
		down.Close()

		repo := NewRedisKVStore(downClient, "")
		assert.Error(t, repo.Set(ctx, "k", "v"))
		assert.Error(t, Ping(ctx, downClient))
	})

	t.Run("Ping", func(t *testing.T) {
		err := Ping(ctx, client)
		assert.NoError(t, err)
	})

	t.Run("Close", func(t *testing.T) {
		err := Close(client)
		assert.NoError(t, err)
	})
}
