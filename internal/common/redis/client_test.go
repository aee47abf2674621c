package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/embedworks/monocle/internal/common/configtypes"
)

func setupTestClient(t *testing.T) *Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := NewClient(&configtypes.RedisConfig{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name        string
		config      *configtypes.RedisConfig
		expectError bool
		errorText   string
	}{
		{
			name:        "nil config",
			config:      nil,
			expectError: true,
			errorText:   "redis config is required",
		},
		{
			name: "invalid Redis address",
			config: &configtypes.RedisConfig{
				Addr: "invalid:99999",
			},
			expectError: true,
			errorText:   "failed to connect to Redis",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.config, zap.NewNop())

			if tt.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorText)
				assert.Nil(t, client)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, client)
			}
		})
	}
}

func TestNewClientNilLogger(t *testing.T) {
	client, err := NewClient(&configtypes.RedisConfig{Addr: "localhost:6379"}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logger is required")
	assert.Nil(t, client)
}

func TestClientBasicOperations(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()

	// Missing key reads as empty without error
	value, err := client.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, "", value)

	data, found, err := client.GetBytes(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, data)

	require.NoError(t, client.Set(ctx, "key", "value", time.Minute))

	value, err = client.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", value)

	data, found, err = client.GetBytes(ctx, "key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("value"), data)

	require.NoError(t, client.Del(ctx, "key"))
	_, found, err = client.GetBytes(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClientSetNX(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()

	added, err := client.SetNX(ctx, "primed", "first", time.Minute)
	require.NoError(t, err)
	assert.True(t, added)

	// Second add loses
	added, err = client.SetNX(ctx, "primed", "second", time.Minute)
	require.NoError(t, err)
	assert.False(t, added)

	value, err := client.Get(ctx, "primed")
	require.NoError(t, err)
	assert.Equal(t, "first", value)
}

func TestClientSortedSetOperations(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.ZAdd(ctx, "queue", 100, "a"))
	require.NoError(t, client.ZAdd(ctx, "queue", 200, "b"))
	require.NoError(t, client.ZAdd(ctx, "queue", 300, "c"))

	count, err := client.ZCard(ctx, "queue")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = client.ZCount(ctx, "queue", "-inf", "200")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	due, err := client.ZRangeByScoreWithScores(ctx, "queue", "-inf", "200")
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "a", due[0].Member)
	assert.Equal(t, "b", due[1].Member)

	removed, err := client.ZRem(ctx, "queue", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	// Removing a missing member is reported, not an error
	removed, err = client.ZRem(ctx, "queue", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	popped, err := client.ZPopMin(ctx, "queue", 1)
	require.NoError(t, err)
	require.Len(t, popped, 1)
	assert.Equal(t, "c", popped[0].Member)
}

func TestClientEval(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()

	result, err := client.Eval(ctx, "return redis.call('SET', KEYS[1], ARGV[1])", []string{"k"}, "v")
	require.NoError(t, err)
	assert.NotNil(t, result)

	value, err := client.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "MONOCLE:resource:abc", ResourceKey("MONOCLE", "abc"))
	assert.Equal(t, "MONOCLE:refreshq:monocle", QueueKey("MONOCLE", "monocle"))
	assert.Equal(t, "P:a:b:c", MakeKey("P", "a", "b", "c"))
}
