// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseBus(t *testing.T, b Bus) {
	ctx := context.Background()
	channel := "bus-test-" + t.Name()
	require.NoError(t, b.Delete(ctx, channel))

	require.NoError(t, b.Push(ctx, channel, []byte("first")))
	require.NoError(t, b.Push(ctx, channel, []byte("second")))

	payload, err := b.Pop(ctx, channel, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first", string(payload))

	require.NoError(t, b.Delete(ctx, channel))
	_, err = b.Pop(ctx, channel, time.Second)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestMemoryBus(t *testing.T) {
	exerciseBus(t, NewMemoryBus())
}

func TestMemoryBus_PopWakesOnPush(t *testing.T) {
	b := NewMemoryBus()
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = b.Push(context.Background(), "c", []byte("late"))
	}()

	payload, err := b.Pop(context.Background(), "c", 5*time.Second)

	require.NoError(t, err)
	assert.Equal(t, "late", string(payload))
	assert.Zero(t, b.Len("c"))
}

func TestMemoryBus_PopHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryBus().Pop(ctx, "c", time.Minute)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisBus(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	exerciseBus(t, NewRedisBus(client))
}
