package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/codegate/internal/session"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, time.Minute, "codegate:session:")
}

func TestStore_AddGetCleanup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ph, err := s.AddMapping(ctx, "sess1", session.KindSecret, "my-secret")
	require.NoError(t, err)

	v, ok, err := s.GetMapping(ctx, "sess1", ph)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "my-secret", v)

	require.NoError(t, s.CleanupSession(ctx, "sess1"))

	_, ok, err = s.GetMapping(ctx, "sess1", ph)
	require.NoError(t, err)
	require.False(t, ok)
}
