package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCacheRoundTrip(t *testing.T) {
	c := NewInMemoryCache(time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "alpha", "one"))

	value, err := c.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "one", value)
}

func TestInMemoryCacheReplace(t *testing.T) {
	c := NewInMemoryCache(time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "alpha", "one"))
	require.NoError(t, c.Set(ctx, "alpha", "two"))

	value, err := c.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "two", value)
}

func TestInMemoryCacheMiss(t *testing.T) {
	c := NewInMemoryCache(time.Minute, nil)

	_, err := c.Get(context.Background(), "absent")
	require.Error(t, err)
}

func TestInMemoryCacheExpiry(t *testing.T) {
	c := NewInMemoryCache(10*time.Millisecond, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "alpha", "one"))
	time.Sleep(30 * time.Millisecond)

	_, err := c.Get(ctx, "alpha")
	require.Error(t, err)
}

func TestInMemoryCacheCancelledContext(t *testing.T) {
	c := NewInMemoryCache(time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, c.Set(ctx, "alpha", "one"))
	_, err := c.Get(ctx, "alpha")
	assert.Error(t, err)
}

func TestInMemoryCacheConcurrentAccess(t *testing.T) {
	c := NewInMemoryCache(time.Minute, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, c.Set(ctx, "shared", "value"))
			_, _ = c.Get(ctx, "shared")
		}()
	}
	wg.Wait()

	value, err := c.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, "value", value)
}
