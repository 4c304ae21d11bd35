// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package testsetup

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/elliotchance/pie/v2"

	"github.com/AccelByte/extend-table-manager/pkg/envelope"
	"github.com/AccelByte/extend-table-manager/pkg/process"
)

const firstEphemeralPort = 40000

// FakeSupervisor keeps a pid table instead of running processes. Dealers
// report the ports passed with -p, zeros replaced by ephemeral ports.
type FakeSupervisor struct {
	mu        sync.Mutex
	nextPID   int
	nextPort  int
	alive     map[int]bool
	kinds     map[int]string
	spawned   []process.Command
	killed    []int
	failSpawn map[string]int
	stubborn  map[int]bool
	onSpawn   map[string]func(pid int)
}

func NewFakeSupervisor() *FakeSupervisor {
	return &FakeSupervisor{
		nextPID:   1000,
		nextPort:  firstEphemeralPort,
		alive:     map[int]bool{},
		kinds:     map[int]string{},
		failSpawn: map[string]int{},
		stubborn:  map[int]bool{},
		onSpawn:   map[string]func(pid int){},
	}
}

// OnSpawn runs fn after every successful spawn of kind, outside the lock.
func (f *FakeSupervisor) OnSpawn(kind string, fn func(pid int)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSpawn[kind] = fn
}

// FailSpawns makes the next n spawns of kind time out.
func (f *FakeSupervisor) FailSpawns(kind string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSpawn[kind] += n
}

// Stubborn makes pid survive every kill.
func (f *FakeSupervisor) Stubborn(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubborn[pid] = true
}

// Crash marks pid dead without a kill.
func (f *FakeSupervisor) Crash(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive[pid] = false
}

func (f *FakeSupervisor) Spawn(scope *envelope.Scope, cmd process.Command) (process.Spawned, error) {
	spawned, err := f.spawn(cmd)
	if err != nil {
		return spawned, err
	}

	f.mu.Lock()
	hook := f.onSpawn[cmd.Kind]
	f.mu.Unlock()
	if hook != nil {
		hook(spawned.PID)
	}

	return spawned, nil
}

func (f *FakeSupervisor) spawn(cmd process.Command) (process.Spawned, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSpawn[cmd.Kind] > 0 {
		f.failSpawn[cmd.Kind]--
		return process.Spawned{}, fmt.Errorf("%w: %s", process.ErrSpawnTimeout, cmd.Path)
	}

	f.nextPID++
	pid := f.nextPID
	f.alive[pid] = true
	f.kinds[pid] = cmd.Kind
	f.spawned = append(f.spawned, cmd)

	spawned := process.Spawned{PID: pid}
	if cmd.ReadBanner {
		spawned.Banner = f.banner(cmd.Args)
	}

	return spawned, nil
}

func (f *FakeSupervisor) banner(args []string) string {
	i := pie.FindFirstUsing(args, func(arg string) bool { return arg == "-p" })
	if i < 0 || i+1 >= len(args) {
		return ""
	}

	ports := strings.Split(args[i+1], ",")
	for j, port := range ports {
		if port == "0" {
			f.nextPort++
			ports[j] = strconv.Itoa(f.nextPort)
		}
	}

	return strings.Join(ports, " ")
}

func (f *FakeSupervisor) Kill(scope *envelope.Scope, pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if pid <= 0 || !f.alive[pid] {
		return nil
	}
	f.killed = append(f.killed, pid)
	if f.stubborn[pid] {
		return fmt.Errorf("%w: pid %d", process.ErrUnkillable, pid)
	}
	f.alive[pid] = false

	return nil
}

func (f *FakeSupervisor) IsAlive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

// Alive lists the live pids of kind, or of every kind when kind is empty.
func (f *FakeSupervisor) Alive(kind string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	var pids []int
	for pid, alive := range f.alive {
		if alive && (kind == "" || f.kinds[pid] == kind) {
			pids = append(pids, pid)
		}
	}
	return pids
}

func (f *FakeSupervisor) Spawned(kind string) []process.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return pie.Filter(f.spawned, func(cmd process.Command) bool { return kind == "" || cmd.Kind == kind })
}

func (f *FakeSupervisor) Killed() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.killed...)
}

// FakePortProbe reports the ports in Taken as held by some other program.
type FakePortProbe struct {
	mu    sync.Mutex
	Taken map[int]bool
}

func (p *FakePortProbe) Free(port int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.Taken[port]
}
