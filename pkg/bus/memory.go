// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bus

import (
	"context"
	"sync"
	"time"
)

// MemoryBus is an in-process Bus for tests and single-binary setups.
type MemoryBus struct {
	mu     sync.Mutex
	queues map[string][][]byte
	// notify is replaced, after being closed, whenever something is pushed
	notify chan struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		queues: map[string][][]byte{},
		notify: make(chan struct{}),
	}
}

func (b *MemoryBus) Push(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.queues[channel] = append(b.queues[channel], append([]byte(nil), payload...))
	close(b.notify)
	b.notify = make(chan struct{})

	return nil
}

func (b *MemoryBus) Pop(ctx context.Context, channel string, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		b.mu.Lock()
		if queue := b.queues[channel]; len(queue) > 0 {
			payload := queue[0]
			b.queues[channel] = queue[1:]
			b.mu.Unlock()
			return payload, nil
		}
		notify := b.notify
		b.mu.Unlock()

		select {
		case <-notify:
		case <-timer.C:
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (b *MemoryBus) Delete(ctx context.Context, channels ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, channel := range channels {
		delete(b.queues, channel)
	}
	return nil
}

// Len reports how many messages are queued on channel.
func (b *MemoryBus) Len(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[channel])
}
