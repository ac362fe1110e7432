package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCmdable struct {
	values  map[string]string
	scripts []string
}

func (m *mockCmdable) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	if _, ok := m.values[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	m.values[key] = value.(string)
	cmd.SetVal(true)
	return cmd
}

// Eval emulates the compare-and-delete script server side.
func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	m.scripts = append(m.scripts, script)
	cmd := redis.NewCmd(ctx)
	if v, ok := m.values[keys[0]]; ok && v == args[0] {
		delete(m.values, keys[0])
		cmd.SetVal(int64(1))
		return cmd
	}
	cmd.SetVal(int64(0))
	return cmd
}

func TestClientSetNXAndCompareAndDelete(t *testing.T) {
	store := &mockCmdable{values: map[string]string{}}
	c := &Client{store: store}
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "k", "owner", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.SetNX(ctx, "k", "other", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := c.CompareAndDelete(ctx, "k", "other")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, "owner", store.values["k"])

	deleted, err = c.CompareAndDelete(ctx, "k", "owner")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, store.values)

	require.Len(t, store.scripts, 2)
	assert.Contains(t, store.scripts[0], `redis.call("GET", KEYS[1]) == ARGV[1]`)
	assert.NoError(t, c.Ping(ctx))
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(context.Background(), "")
	assert.Error(t, err)
	_, err = New(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestUninitializedClient(t *testing.T) {
	c := &Client{}
	_, err := c.CompareAndDelete(context.Background(), "k", "v")
	assert.Error(t, err)
	assert.NoError(t, c.Close())
}
