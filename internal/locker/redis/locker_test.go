//go:build redis
// +build redis

package redislocker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var addr = "127.0.0.1:6379"

func TestMain(m *testing.M) {
	if a := os.Getenv("REDIS_ADDR"); a != "" {
		addr = a
	}
	os.Exit(m.Run())
}

func TestLocker(t *testing.T) {
	ctx := context.Background()
	l := New(Config{Addr: addr, TTL: 2 * time.Second})
	t.Cleanup(func() { _ = l.Close() })
	require.NoError(t, l.Ping(ctx))

	unlock, err := l.Lock(ctx, "primary")
	require.NoError(t, err)

	cctx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = l.Lock(cctx, "primary")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	unlock, err = l.Lock(ctx, "primary")
	require.NoError(t, err)
	unlock()

	t.Run("expires without release", func(t *testing.T) {
		short := New(Config{Addr: addr, TTL: 200 * time.Millisecond})
		defer short.Close()
		_, err := short.Lock(ctx, "expiring")
		require.NoError(t, err)
		unlock, err := short.Lock(ctx, "expiring")
		require.NoError(t, err)
		unlock()
	})

	_, err = l.Lock(ctx, "")
	require.ErrorIs(t, err, ErrEmptyKey)
}
