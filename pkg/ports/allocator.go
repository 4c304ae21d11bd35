// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package ports

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"gopkg.in/typ.v4/slices"
)

var (
	// ErrNoPortAvailable is retryable: a port may free up once another match ends.
	ErrNoPortAvailable = errors.New("no special port available")
	// ErrTooManySpecialPorts is permanent: the match needs more special ports than are configured.
	ErrTooManySpecialPorts = errors.New("match requires more special ports than configured")
)

// Probe checks that nothing outside the table manager holds a port.
type Probe interface {
	Free(port int) bool
}

// ListenProbe binds the port briefly on host to see whether it is free.
type ListenProbe struct {
	Host string
}

func (p ListenProbe) Free(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort(p.Host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = l.Close()

	return true
}

// Allocator hands out the configured special ports. It holds no state of its
// own; callers pass the ports held by running matches on every call.
type Allocator struct {
	pool  []int
	probe Probe
}

func NewAllocator(pool []int, probe Probe) *Allocator {
	return &Allocator{pool: append([]int(nil), pool...), probe: probe}
}

func (a *Allocator) PoolSize() int {
	return len(a.pool)
}

// Available returns the pool minus inUse, in pool order.
func (a *Allocator) Available(inUse []int) []int {
	return slices.Filter(a.pool, func(port int) bool {
		return !slices.Contains(inUse, port)
	})
}

// Allocate returns one port per requirement flag. Seats that do not need a
// special port get 0 so the dealer picks one. Candidates are taken from the
// end of the available list and skipped when the OS reports them taken.
func (a *Allocator) Allocate(requirements []bool, inUse []int) ([]int, error) {
	required := 0
	for _, r := range requirements {
		if r {
			required++
		}
	}
	if required > len(a.pool) {
		return nil, fmt.Errorf("%w: %d required, pool of %d", ErrTooManySpecialPorts, required, len(a.pool))
	}

	candidates := a.Available(inUse)
	ports := make([]int, len(requirements))
	for seat, r := range requirements {
		if !r {
			continue
		}

		port, rest, ok := a.pop(candidates)
		if !ok {
			return nil, fmt.Errorf("%w: pool %v, in use %v", ErrNoPortAvailable, a.pool, inUse)
		}
		ports[seat] = port
		candidates = rest
	}

	return ports, nil
}

func (a *Allocator) pop(candidates []int) (int, []int, bool) {
	for len(candidates) > 0 {
		port := candidates[len(candidates)-1]
		candidates = candidates[:len(candidates)-1]
		if a.probe == nil || a.probe.Free(port) {
			return port, candidates, true
		}
	}

	return 0, candidates, false
}

// Special returns the ports in ports that belong to the pool.
func (a *Allocator) Special(ports []int) []int {
	return slices.Filter(ports, func(port int) bool {
		return port > 0 && slices.Contains(a.pool, port)
	})
}
