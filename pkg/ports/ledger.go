// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package ports

import (
	"sort"
	"sync"
)

// Ledger records which special ports each running match holds, so that
// allocation and reservation happen as one step for every queue sharing a pool.
type Ledger struct {
	allocator *Allocator

	mu       sync.Mutex
	reserved map[string][]int
}

func NewLedger(allocator *Allocator) *Ledger {
	return &Ledger{allocator: allocator, reserved: map[string][]int{}}
}

func (l *Ledger) Allocator() *Allocator {
	return l.allocator
}

// Reserve allocates ports for matchID and records the special ones.
// Ports already held by matchID are given back first.
func (l *Ledger) Reserve(matchID string, requirements []bool) ([]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.reserved, matchID)
	ports, err := l.allocator.Allocate(requirements, l.inUse())
	if err != nil {
		return nil, err
	}
	if special := l.allocator.Special(ports); len(special) > 0 {
		l.reserved[matchID] = special
	}

	return ports, nil
}

// Restore records ports a match already holds, e.g. after a restart.
func (l *Ledger) Restore(matchID string, ports []int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if special := l.allocator.Special(ports); len(special) > 0 {
		l.reserved[matchID] = special
	}
}

func (l *Ledger) Release(matchID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.reserved, matchID)
}

func (l *Ledger) InUse() []int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.inUse()
}

func (l *Ledger) Held(matchID string) []int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]int(nil), l.reserved[matchID]...)
}

func (l *Ledger) inUse() []int {
	var ports []int
	for _, held := range l.reserved {
		ports = append(ports, held...)
	}
	sort.Ints(ports)

	return ports
}
