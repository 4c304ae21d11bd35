// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package process_test

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/AccelByte/extend-table-manager/pkg/process"
	"github.com/AccelByte/extend-table-manager/pkg/testsetup"
)

func TestOSSupervisor_SpawnReadsBannerAndKills(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	supervisor := process.NewOSSupervisor(3*time.Second, 200*time.Millisecond, testsetup.NewMetrics())

	spawned, err := supervisor.Spawn(g.TestScope, process.Command{
		Kind:       process.KindDealer,
		Path:       "sh",
		Args:       []string{"-c", "echo 18791 18792; sleep 30"},
		LogFile:    filepath.Join(t.TempDir(), "dealer.log"),
		ReadBanner: true,
	})

	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(spawned.Banner).To(Equal("18791 18792"))
	g.Expect(supervisor.IsAlive(spawned.PID)).To(BeTrue())

	g.Expect(supervisor.Kill(g.TestScope, spawned.PID)).To(Succeed())
	g.Expect(supervisor.IsAlive(spawned.PID)).To(BeFalse())
}

func TestOSSupervisor_KillEscalatesToSIGKILL(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	stub := testsetup.NewStubMetrics()
	supervisor := process.NewOSSupervisor(3*time.Second, 200*time.Millisecond, stub)

	spawned, err := supervisor.Spawn(g.TestScope, process.Command{
		Kind:       process.KindOpponent,
		Path:       "sh",
		Args:       []string{"-c", `trap "" TERM; echo ready; while true; do sleep 1; done`},
		ReadBanner: true,
	})
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(spawned.Banner).To(Equal("ready"))

	g.Expect(supervisor.Kill(g.TestScope, spawned.PID)).To(Succeed())
	g.Expect(supervisor.IsAlive(spawned.PID)).To(BeFalse())
	g.Expect(stub.KillEscalations).To(Equal(1))
}

// exited reports whether pid is gone or only a zombie waiting for its reaper.
func exited(pid int) bool {
	stat, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return true
	}
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) > 0 && fields[0] == "Z"
}

func TestOSSupervisor_KillTakesTheWholeProcessGroup(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	supervisor := process.NewOSSupervisor(3*time.Second, 200*time.Millisecond, testsetup.NewMetrics())

	spawned, err := supervisor.Spawn(g.TestScope, process.Command{
		Kind:       process.KindOpponent,
		Path:       "sh",
		Args:       []string{"-c", "sleep 30 & echo $!; wait"},
		ReadBanner: true,
	})
	g.Expect(err).ToNot(HaveOccurred())
	bot, err := strconv.Atoi(spawned.Banner)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(exited(bot)).To(BeFalse())

	g.Expect(supervisor.Kill(g.TestScope, spawned.PID)).To(Succeed())

	g.Eventually(func() bool { return exited(bot) }, 2*time.Second, 20*time.Millisecond).Should(BeTrue())
}

func TestOSSupervisor_KillIsNoopForDeadOrUnknownPIDs(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	supervisor := process.NewOSSupervisor(time.Second, 100*time.Millisecond, testsetup.NewMetrics())

	spawned, err := supervisor.Spawn(g.TestScope, process.Command{Kind: process.KindOpponent, Path: "true"})
	g.Expect(err).ToNot(HaveOccurred())
	g.Eventually(func() bool { return supervisor.IsAlive(spawned.PID) }, time.Second).Should(BeFalse())

	g.Expect(supervisor.Kill(g.TestScope, spawned.PID)).To(Succeed())
	g.Expect(supervisor.Kill(g.TestScope, spawned.PID)).To(Succeed())
	g.Expect(supervisor.Kill(g.TestScope, 0)).To(Succeed())
	g.Expect(supervisor.IsAlive(-1)).To(BeFalse())
}

func TestOSSupervisor_SpawnFailsForMissingExecutable(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	supervisor := process.NewOSSupervisor(time.Second, 100*time.Millisecond, testsetup.NewMetrics())

	_, err := supervisor.Spawn(g.TestScope, process.Command{Kind: process.KindProxy, Path: "/nonexistent/acpcproxy"})

	g.Expect(err).To(HaveOccurred())
}

func TestOSSupervisor_BannerTimeoutKillsProcess(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	supervisor := process.NewOSSupervisor(200*time.Millisecond, 100*time.Millisecond, testsetup.NewMetrics())

	_, err := supervisor.Spawn(g.TestScope, process.Command{
		Kind:       process.KindDealer,
		Path:       "sleep",
		Args:       []string{"30"},
		ReadBanner: true,
	})

	g.Expect(err).To(MatchError(process.ErrSpawnTimeout))
}
