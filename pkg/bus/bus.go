// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bus

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTimeout is returned by Pop when nothing arrived in time.
var ErrTimeout = errors.New("timed out waiting for a message")

// Bus is a set of named FIFO lists. A message pushed to a channel is
// delivered to exactly one Pop.
type Bus interface {
	Push(ctx context.Context, channel string, payload []byte) error
	Pop(ctx context.Context, channel string, timeout time.Duration) ([]byte, error)
	// Delete discards everything queued on channels.
	Delete(ctx context.Context, channels ...string) error
}

// RedisBus keeps each channel in a redis list: RPUSH to send, BLPOP to receive.
type RedisBus struct {
	Client redis.Cmdable
}

func NewRedisBus(client redis.Cmdable) *RedisBus {
	return &RedisBus{Client: client}
}

func (b *RedisBus) Push(ctx context.Context, channel string, payload []byte) error {
	return b.Client.RPush(ctx, channel, payload).Err()
}

func (b *RedisBus) Pop(ctx context.Context, channel string, timeout time.Duration) ([]byte, error) {
	if timeout < time.Second {
		// BLPOP takes whole seconds; zero would block forever
		timeout = time.Second
	}

	result, err := b.Client.BLPop(ctx, timeout, channel).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTimeout
	}
	if err != nil {
		return nil, err
	}
	if len(result) != 2 {
		return nil, errors.New("unexpected BLPOP reply")
	}

	return []byte(result[1]), nil
}

func (b *RedisBus) Delete(ctx context.Context, channels ...string) error {
	if len(channels) == 0 {
		return nil
	}
	return b.Client.Del(ctx, channels...).Err()
}
