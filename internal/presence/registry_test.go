package presence_test

import (
	"context"
	"testing"

	"gorandom/backend/internal/models"
	"gorandom/backend/internal/presence"
	"gorandom/backend/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkOnlineOffline(t *testing.T) {
	store := realtime.NewMemoryStore()
	reg := presence.NewRegistry(store)
	ctx := context.Background()

	require.NoError(t, reg.MarkOnline(ctx, "user_a"))
	raw, _ := store.Get(ctx, realtime.UserOnlineKey("user_a"))
	assert.Equal(t, "true", string(raw))

	require.NoError(t, reg.MarkOffline(ctx, "user_a"))
	raw, _ = store.Get(ctx, realtime.UserOnlineKey("user_a"))
	assert.Equal(t, "false", string(raw))
}

func TestFire_AppliesArmedSwitchesOnce(t *testing.T) {
	store := realtime.NewMemoryStore()
	reg := presence.NewRegistry(store)
	ctx := context.Background()

	reg.ArmOffline("conn1", "k1", realtime.Set([]byte(`"a"`)))
	reg.ArmOffline("conn1", "k2", realtime.Set([]byte(`"b"`)))
	assert.True(t, reg.Armed("conn1", "k1"))
	assert.True(t, reg.Armed("conn1", "k2"))

	require.NoError(t, reg.Fire(ctx, "conn1"))
	raw, _ := store.Get(ctx, "k1")
	assert.Equal(t, `"a"`, string(raw))
	raw, _ = store.Get(ctx, "k2")
	assert.Equal(t, `"b"`, string(raw))

	// Firing cleared the table; a second fire writes nothing.
	assert.False(t, reg.Armed("conn1", "k1"))
	_, err := store.CompareAndSwap(ctx, "k1", realtime.Set([]byte(`"manual"`)))
	require.NoError(t, err)
	require.NoError(t, reg.Fire(ctx, "conn1"))
	raw, _ = store.Get(ctx, "k1")
	assert.Equal(t, `"manual"`, string(raw))
}

func TestArmOffline_ReplacesSwitchForSameKey(t *testing.T) {
	store := realtime.NewMemoryStore()
	reg := presence.NewRegistry(store)
	ctx := context.Background()

	reg.ArmOffline("conn1", "k", realtime.Set([]byte(`"stale"`)))
	reg.ArmOffline("conn1", "k", realtime.Set([]byte(`"fresh"`)))

	require.NoError(t, reg.Fire(ctx, "conn1"))
	raw, _ := store.Get(ctx, "k")
	assert.Equal(t, `"fresh"`, string(raw))
}

func TestCancelOffline_DisarmsSingleSwitch(t *testing.T) {
	store := realtime.NewMemoryStore()
	reg := presence.NewRegistry(store)
	ctx := context.Background()

	reg.ArmOffline("conn1", "k1", realtime.Set([]byte(`"a"`)))
	reg.ArmOffline("conn1", "k2", realtime.Set([]byte(`"b"`)))
	reg.CancelOffline("conn1", "k1")

	require.NoError(t, reg.Fire(ctx, "conn1"))
	raw, _ := store.Get(ctx, "k1")
	assert.Nil(t, raw)
	raw, _ = store.Get(ctx, "k2")
	assert.Equal(t, `"b"`, string(raw))
}

func TestCancelAll_DisarmsEverything(t *testing.T) {
	store := realtime.NewMemoryStore()
	reg := presence.NewRegistry(store)
	ctx := context.Background()

	reg.ArmOffline("conn1", "k1", realtime.Set([]byte(`"a"`)))
	reg.ArmOffline("conn1", "k2", realtime.Set([]byte(`"b"`)))
	reg.CancelAll("conn1")

	require.NoError(t, reg.Fire(ctx, "conn1"))
	raw, _ := store.Get(ctx, "k1")
	assert.Nil(t, raw)
	raw, _ = store.Get(ctx, "k2")
	assert.Nil(t, raw)
}

func TestOfflineStatusFallback_PreservesChatting(t *testing.T) {
	fallback := presence.OfflineStatusFallback(func() int64 { return 1234 })

	chatting := models.Chatting("sess-1", "user_b").Encode()
	next, err := fallback(chatting)
	require.NoError(t, err)
	assert.Equal(t, chatting, next)
}

func TestOfflineStatusFallback_WritesOfflineOtherwise(t *testing.T) {
	fallback := presence.OfflineStatusFallback(func() int64 { return 1234 })

	for _, cur := range [][]byte{nil, models.Idle().Encode(), models.Searching().Encode()} {
		next, err := fallback(cur)
		require.NoError(t, err)
		status, err := models.DecodeStatus(next)
		require.NoError(t, err)
		assert.Equal(t, models.StateOffline, status.State)
		assert.Equal(t, int64(1234), status.LastChanged)
	}
}
