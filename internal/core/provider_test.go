package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closingAI struct {
	fakeAI
	closed bool
}

func (c *closingAI) Close() error {
	c.closed = true
	return nil
}

func TestProviderCache_MissingKey(t *testing.T) {
	called := false
	cache := NewProviderCache("", func(ctx context.Context, apiKey string) (AIClient, error) {
		called = true
		return &fakeAI{}, nil
	})

	assert.False(t, cache.Configured())
	_, err := cache.AIClient(context.Background())
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "API_KEY")
	assert.False(t, called)
}

func TestProviderCache_ConstructsOnce(t *testing.T) {
	var builds atomic.Int32
	cache := NewProviderCache("key", func(ctx context.Context, apiKey string) (AIClient, error) {
		builds.Add(1)
		return &fakeAI{}, nil
	})

	var wg sync.WaitGroup
	clients := make([]AIClient, 16)
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := cache.AIClient(context.Background())
			assert.NoError(t, err)
			clients[i] = c
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for _, c := range clients {
		assert.Same(t, clients[0], c)
	}
}

func TestProviderCache_FactoryErrorIsUnavailable(t *testing.T) {
	cache := NewProviderCache("key", func(ctx context.Context, apiKey string) (AIClient, error) {
		return nil, errors.New("dial failed")
	})
	_, err := cache.AIClient(context.Background())
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "dial failed")
}

func TestProviderCache_CloseReleasesClient(t *testing.T) {
	client := &closingAI{}
	builds := 0
	cache := NewProviderCache("key", func(ctx context.Context, apiKey string) (AIClient, error) {
		builds++
		return client, nil
	})

	_, err := cache.AIClient(context.Background())
	require.NoError(t, err)
	cache.Close()
	assert.True(t, client.closed)

	_, err = cache.AIClient(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, builds, "a closed cache rebuilds on next use")
}

func TestImageFormat(t *testing.T) {
	assert.Equal(t, "jpeg", imageFormat("image/jpeg"))
	assert.Equal(t, "jpeg", imageFormat("image/jpg"))
	assert.Equal(t, "png", imageFormat("image/png"))
	assert.Equal(t, "png", imageFormat(""))
}
