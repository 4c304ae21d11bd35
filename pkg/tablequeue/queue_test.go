// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package tablequeue_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/AccelByte/extend-table-manager/pkg/config"
	"github.com/AccelByte/extend-table-manager/pkg/envelope"
	"github.com/AccelByte/extend-table-manager/pkg/models"
	"github.com/AccelByte/extend-table-manager/pkg/ports"
	"github.com/AccelByte/extend-table-manager/pkg/process"
	"github.com/AccelByte/extend-table-manager/pkg/store"
	"github.com/AccelByte/extend-table-manager/pkg/tablequeue"
	"github.com/AccelByte/extend-table-manager/pkg/testsetup"
)

const gameType = "two_player_limit"

func game(maxNumMatches, numPlayers int) config.Game {
	return config.Game{
		File:             "/games/holdem.limit.2p.game",
		NumHandsPerMatch: 10,
		NumPlayers:       numPlayers,
		MaxNumMatches:    maxNumMatches,
		Opponents: map[string]config.Opponent{
			"Tester":     {Runner: []string{"/bots/tester"}},
			"SpecialBot": {Runner: []string{"/bots/special"}, RequiresSpecialPort: true},
		},
	}
}

type fixture struct {
	testsetup.GomegaWithScope
	t          *testing.T
	game       config.Game
	store      *store.MemoryStore
	// matchStore, when set, is what the queue sees instead of store.
	matchStore store.MatchStore
	supervisor *testsetup.FakeSupervisor
	ledger     *ports.Ledger
	metrics    *testsetup.StubMetrics
	stateFile  *store.QueueStateFile
	now        time.Time
	lifespan   time.Duration
}

func newFixture(t *testing.T, g config.Game, pool ...int) *fixture {
	return &fixture{
		GomegaWithScope: testsetup.ParallelWithGomega(t),
		t:               t,
		game:            g,
		store:           store.NewMemoryStore(),
		supervisor:      testsetup.NewFakeSupervisor(),
		ledger:          ports.NewLedger(ports.NewAllocator(pool, &testsetup.FakePortProbe{})),
		metrics:         testsetup.NewStubMetrics(),
		now:             time.Now(),
	}
}

func (f *fixture) queue() *tablequeue.TableQueue {
	var matchStore store.MatchStore = f.store
	if f.matchStore != nil {
		matchStore = f.matchStore
	}
	q, err := tablequeue.New(f.TestScope, tablequeue.Options{
		GameType: gameType,
		Game:     f.game,
		Store:    matchStore,
		Ledger:   f.ledger,
		Launcher: tablequeue.Launcher{
			Supervisor:        f.supervisor,
			DealerCommand:     "dealer",
			ProxyCommand:      "acpcproxy",
			ConfigReference:   "exhibition.yml",
			DealerHost:        "localhost",
			LogDirectory:      f.t.TempDir(),
			MatchLogDirectory: f.t.TempDir(),
		},
		StateFile: f.stateFile,
		Metrics:   f.metrics,
		Lifespan:  f.lifespan,
		Now:       func() time.Time { return f.now },
	})
	f.Expect(err).ToNot(HaveOccurred())
	f.t.Cleanup(q.Close)

	return q
}

func (f *fixture) match(id string, opponents ...string) *models.Match {
	match := models.NewMatch("Alice", gameType)
	match.ID = id
	match.Seat = 1
	match.OpponentNames = opponents
	f.Expect(match.Finalize(f.game)).To(Succeed())
	f.Expect(f.store.Save(f.TestScope, match)).To(Succeed())

	return match
}

func (f *fixture) find(id string) *models.Match {
	match, err := f.store.Find(f.TestScope, id)
	f.Expect(err).ToNot(HaveOccurred())
	return match
}

func running(q *tablequeue.TableQueue) []string {
	state, _ := q.Snapshot()
	ids := make([]string, 0, len(state.Running))
	for _, entry := range state.Running {
		ids = append(ids, entry.MatchID)
	}
	return ids
}

func waiting(q *tablequeue.TableQueue) []string {
	state, _ := q.Snapshot()
	ids := make([]string, 0, len(state.Waiting))
	for _, entry := range state.Waiting {
		ids = append(ids, entry.MatchID)
	}
	return ids
}

func TestTableQueue_AdmitsUpToMaxAndStartsWaitingAfterKill(t *testing.T) {
	f := newFixture(t, game(2, 2))
	q := f.queue()
	for _, id := range []string{"a", "b", "c"} {
		f.match(id, "Tester")
		_, err := q.Enqueue(f.TestScope, id, "")
		f.Expect(err).ToNot(HaveOccurred())
	}

	_, err := q.Check(f.TestScope)
	f.Expect(err).ToNot(HaveOccurred())
	f.Expect(running(q)).To(Equal([]string{"a", "b"}))
	f.Expect(waiting(q)).To(Equal([]string{"c"}))

	f.Expect(q.Kill(f.TestScope, "a")).To(Succeed())
	_, err = q.Check(f.TestScope)
	f.Expect(err).ToNot(HaveOccurred())

	f.Expect(running(q)).To(Equal([]string{"b", "c"}))
	f.Expect(waiting(q)).To(BeEmpty())
	f.Expect(f.metrics.Count(f.metrics.Started, gameType)).To(Equal(3))
}

func TestTableQueue_StartsOldestFirst(t *testing.T) {
	f := newFixture(t, game(1, 2))
	q := f.queue()
	for _, id := range []string{"first", "second", "third"} {
		f.match(id, "Tester")
		_, err := q.Enqueue(f.TestScope, id, "")
		f.Expect(err).ToNot(HaveOccurred())
	}
	f.Expect(running(q)).To(Equal([]string{"first"}))

	f.Expect(q.Kill(f.TestScope, "first")).To(Succeed())
	f.Expect(running(q)).To(Equal([]string{"second"}))
	f.Expect(waiting(q)).To(Equal([]string{"third"}))
}

func TestTableQueue_NeverExceedsMaxUnderConcurrentRequests(t *testing.T) {
	f := newFixture(t, game(3, 2))
	q := f.queue()
	const numMatches = 12
	for i := 0; i < numMatches; i++ {
		f.match(fmt.Sprintf("m%02d", i), "Tester")
	}

	var wg sync.WaitGroup
	for i := 0; i < numMatches; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = q.Enqueue(f.TestScope, id, "")
			_, _ = q.Check(f.TestScope)
			if len(running(q)) > 3 {
				t.Errorf("more than 3 matches running")
			}
			_ = q.Kill(f.TestScope, id)
		}(fmt.Sprintf("m%02d", i))
	}
	wg.Wait()

	f.Expect(len(running(q))).To(BeNumerically("<=", 3))
}

func TestTableQueue_EnqueueRejectsRunningMatch(t *testing.T) {
	f := newFixture(t, game(2, 2))
	q := f.queue()
	f.match("a", "Tester")

	_, err := q.Enqueue(f.TestScope, "a", "")
	f.Expect(err).ToNot(HaveOccurred())
	_, err = q.Enqueue(f.TestScope, "a", "")

	f.Expect(err).To(MatchError(tablequeue.ErrAlreadyRunning))
}

func TestTableQueue_StartSpawnsDealerPlayersAndRecordsPids(t *testing.T) {
	f := newFixture(t, game(0, 2))
	q := f.queue()
	f.match("a", "Tester")

	started, err := q.Enqueue(f.TestScope, "a", "--t_response 1000")
	f.Expect(err).ToNot(HaveOccurred())
	f.Expect(started).To(Equal([]string{"a"}))

	match := f.find("a")
	f.Expect(match.ReadyToStart).To(BeFalse())
	f.Expect(match.DealerOptions).To(Equal("--t_response 1000"))
	f.Expect(match.PortNumbers).To(HaveLen(2))
	f.Expect(f.supervisor.IsAlive(match.DealerPID)).To(BeTrue())
	f.Expect(f.supervisor.IsAlive(match.ProxyPID)).To(BeTrue())
	f.Expect(match.PlayerPIDs[0]).To(Equal(match.ProxyPID))
	f.Expect(match.Running(f.supervisor.IsAlive)).To(BeTrue())

	f.Expect(f.supervisor.Spawned(process.KindDealer)).To(HaveLen(1))
	opponents := f.supervisor.Spawned(process.KindOpponent)
	f.Expect(opponents).To(HaveLen(1))
	f.Expect(opponents[0].Path).To(Equal("/bots/tester"))
	f.Expect(opponents[0].Args).To(Equal([]string{"localhost", fmt.Sprint(match.PortNumbers[1])}))
	proxies := f.supervisor.Spawned(process.KindProxy)
	f.Expect(proxies).To(HaveLen(1))
	f.Expect(proxies[0].Args).To(Equal([]string{"-t", "exhibition.yml", "-i", "a.1", "-p", fmt.Sprint(match.PortNumbers[0]), "-s", "1"}))
}

func TestTableQueue_KeepsSlicesRecordedWhilePlayersStart(t *testing.T) {
	f := newFixture(t, game(0, 2))
	q := f.queue()
	f.match("a", "Tester")
	f.supervisor.OnSpawn(process.KindProxy, func(int) {
		err := f.store.AppendSlice(f.TestScope, "a", models.MatchSlice{StateString: "MATCHSTATE:0:0::Ah2c|"}, false)
		f.Expect(err).ToNot(HaveOccurred())
	})

	_, err := q.Enqueue(f.TestScope, "a", "")
	f.Expect(err).ToNot(HaveOccurred())

	match := f.find("a")
	f.Expect(match.Slices).To(HaveLen(1))
	f.Expect(match.Slices[0].StateString).To(Equal("MATCHSTATE:0:0::Ah2c|"))
	f.Expect(match.DealerPID).ToNot(BeZero())
	f.Expect(match.ProxyPID).ToNot(BeZero())
}

func TestTableQueue_StartDoesNotRecreateDeletedRecord(t *testing.T) {
	f := newFixture(t, game(0, 2))
	q := f.queue()
	f.match("a", "Tester")
	f.supervisor.OnSpawn(process.KindDealer, func(int) {
		f.Expect(f.store.Delete(f.TestScope, "a")).To(Succeed())
	})

	_, err := q.Enqueue(f.TestScope, "a", "")

	f.Expect(err).To(MatchError(store.ErrMatchNotFound))
	_, err = f.store.Find(f.TestScope, "a")
	f.Expect(err).To(MatchError(store.ErrMatchNotFound))
	f.Expect(running(q)).To(BeEmpty())
	f.Expect(f.supervisor.Alive("")).To(BeEmpty())
}

// lockedStore fails every lookup once locked, like a busy database.
type lockedStore struct {
	store.MatchStore
	mu  sync.Mutex
	err error
}

func (s *lockedStore) lock(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *lockedStore) Find(scope *envelope.Scope, id string) (*models.Match, error) {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MatchStore.Find(scope, id)
}

func TestTableQueue_KillTearsDownWhenRecordLookupFails(t *testing.T) {
	f := newFixture(t, game(0, 2))
	locked := &lockedStore{MatchStore: f.store}
	f.matchStore = locked
	q := f.queue()
	f.match("a", "Tester")
	_, err := q.Enqueue(f.TestScope, "a", "")
	f.Expect(err).ToNot(HaveOccurred())
	f.Expect(f.supervisor.Alive("")).To(HaveLen(3))

	busy := errors.New("database is locked")
	locked.lock(busy)
	err = q.Kill(f.TestScope, "a")

	f.Expect(err).To(MatchError(busy))
	f.Expect(f.supervisor.Alive("")).To(BeEmpty())
	f.Expect(running(q)).To(BeEmpty())
	f.Expect(f.ledger.InUse()).To(BeEmpty())
}

func TestTableQueue_WaitsForBusySpecialPort(t *testing.T) {
	f := newFixture(t, game(0, 2), 19001)
	q := f.queue()
	f.match("a", "SpecialBot")
	f.match("b", "SpecialBot")

	_, err := q.Enqueue(f.TestScope, "a", "")
	f.Expect(err).ToNot(HaveOccurred())
	f.Expect(f.find("a").PortNumbers[1]).To(Equal(19001))

	_, err = q.Enqueue(f.TestScope, "b", "")
	f.Expect(err).ToNot(HaveOccurred())
	_, err = q.Check(f.TestScope)
	f.Expect(err).ToNot(HaveOccurred())

	f.Expect(running(q)).To(Equal([]string{"a"}))
	f.Expect(waiting(q)).To(Equal([]string{"b"}))
	f.Expect(f.find("b").UnableToStartDealer).To(BeFalse())

	f.Expect(q.Kill(f.TestScope, "a")).To(Succeed())

	f.Expect(running(q)).To(Equal([]string{"b"}))
	f.Expect(f.find("b").PortNumbers[1]).To(Equal(19001))
}

func TestTableQueue_TooManySpecialPortsIsPermanentlyUnschedulable(t *testing.T) {
	f := newFixture(t, game(0, 3), 19001)
	q := f.queue()
	f.match("greedy", "SpecialBot", "SpecialBot")
	f.match("next", "Tester", "Tester")

	_, err := q.Enqueue(f.TestScope, "greedy", "")
	f.Expect(err).ToNot(HaveOccurred())
	_, err = q.Enqueue(f.TestScope, "next", "")
	f.Expect(err).ToNot(HaveOccurred())

	greedy := f.find("greedy")
	f.Expect(greedy.UnableToStartDealer).To(BeTrue())
	f.Expect(greedy.ReadyToStart).To(BeFalse())
	f.Expect(waiting(q)).To(BeEmpty())
	f.Expect(running(q)).To(Equal([]string{"next"}))
	f.Expect(f.supervisor.Spawned(process.KindDealer)).To(HaveLen(1))
}

func TestTableQueue_RetriesDealerSpawnOnce(t *testing.T) {
	f := newFixture(t, game(0, 2))
	q := f.queue()
	f.match("a", "Tester")
	f.supervisor.FailSpawns(process.KindDealer, 1)

	started, err := q.Enqueue(f.TestScope, "a", "")

	f.Expect(err).ToNot(HaveOccurred())
	f.Expect(started).To(Equal([]string{"a"}))
}

func TestTableQueue_SecondSpawnFailureMarksMatchAndSurfacesError(t *testing.T) {
	f := newFixture(t, game(0, 2), 19001)
	q := f.queue()
	f.match("a", "SpecialBot")
	f.match("b", "Tester")
	f.supervisor.FailSpawns(process.KindDealer, 2)

	_, err := q.Enqueue(f.TestScope, "a", "")

	f.Expect(err).To(MatchError(tablequeue.ErrUnableToStart))
	f.Expect(err).To(MatchError(process.ErrSpawnTimeout))
	f.Expect(f.find("a").UnableToStartDealer).To(BeTrue())
	f.Expect(waiting(q)).To(BeEmpty())
	f.Expect(f.ledger.InUse()).To(BeEmpty())

	started, err := q.Enqueue(f.TestScope, "b", "")
	f.Expect(err).ToNot(HaveOccurred())
	f.Expect(started).To(Equal([]string{"b"}))
}

func TestTableQueue_PlayerSpawnFailureTearsDownDealer(t *testing.T) {
	f := newFixture(t, game(0, 2))
	q := f.queue()
	f.match("a", "Tester")
	f.supervisor.FailSpawns(process.KindOpponent, 2)

	_, err := q.Enqueue(f.TestScope, "a", "")

	f.Expect(err).To(MatchError(tablequeue.ErrUnableToStart))
	f.Expect(f.supervisor.Alive("")).To(BeEmpty())
	match := f.find("a")
	f.Expect(match.UnableToStartDealer).To(BeTrue())
	f.Expect(match.ProcessIDs()).To(BeEmpty())
	f.Expect(running(q)).To(BeEmpty())
}

func TestTableQueue_KillIsIdempotentAndComplete(t *testing.T) {
	f := newFixture(t, game(0, 2), 19001)
	q := f.queue()
	f.match("a", "SpecialBot")
	_, err := q.Enqueue(f.TestScope, "a", "")
	f.Expect(err).ToNot(HaveOccurred())
	pids := f.find("a").ProcessIDs()
	f.Expect(pids).To(HaveLen(3))

	f.Expect(q.Kill(f.TestScope, "a")).To(Succeed())

	for _, pid := range pids {
		f.Expect(f.supervisor.IsAlive(pid)).To(BeFalse())
	}
	f.Expect(f.find("a").ProcessIDs()).To(BeEmpty())
	f.Expect(f.ledger.InUse()).To(BeEmpty())
	f.Expect(running(q)).To(BeEmpty())

	f.Expect(q.Kill(f.TestScope, "a")).To(Succeed())
	f.Expect(q.Kill(f.TestScope, "never-enqueued")).To(Succeed())
}

func TestTableQueue_KillRemovesWaitingMatch(t *testing.T) {
	f := newFixture(t, game(1, 2))
	q := f.queue()
	f.match("a", "Tester")
	f.match("b", "Tester")
	_, _ = q.Enqueue(f.TestScope, "a", "")
	_, _ = q.Enqueue(f.TestScope, "b", "")

	f.Expect(q.Kill(f.TestScope, "b")).To(Succeed())

	f.Expect(waiting(q)).To(BeEmpty())
	f.Expect(running(q)).To(Equal([]string{"a"}))
}

func TestTableQueue_UnkillableProcessKeepsMatchRunning(t *testing.T) {
	f := newFixture(t, game(0, 2))
	q := f.queue()
	f.match("a", "Tester")
	_, _ = q.Enqueue(f.TestScope, "a", "")
	match := f.find("a")
	f.supervisor.Stubborn(match.DealerPID)

	err := q.Kill(f.TestScope, "a")

	f.Expect(err).To(MatchError(process.ErrUnkillable))
	f.Expect(running(q)).To(Equal([]string{"a"}))
	f.Expect(f.find("a").DealerPID).To(Equal(match.DealerPID))
	f.Expect(f.supervisor.IsAlive(match.ProxyPID)).To(BeFalse())
}

func TestTableQueue_ReapsDeadDealersAndMissingRecords(t *testing.T) {
	f := newFixture(t, game(0, 2))
	q := f.queue()
	f.match("crashed", "Tester")
	f.match("deleted", "Tester")
	f.match("healthy", "Tester")
	for _, id := range []string{"crashed", "deleted", "healthy"} {
		_, err := q.Enqueue(f.TestScope, id, "")
		f.Expect(err).ToNot(HaveOccurred())
	}
	crashed := f.find("crashed")
	deleted := f.find("deleted")
	f.supervisor.Crash(crashed.DealerPID)
	f.Expect(f.store.Delete(f.TestScope, "deleted")).To(Succeed())

	_, err := q.Check(f.TestScope)

	f.Expect(err).ToNot(HaveOccurred())
	f.Expect(running(q)).To(Equal([]string{"healthy"}))
	f.Expect(f.supervisor.IsAlive(crashed.ProxyPID)).To(BeFalse())
	f.Expect(f.supervisor.IsAlive(deleted.DealerPID)).To(BeFalse())
}

func TestTableQueue_ReapsMatchesOlderThanLifespan(t *testing.T) {
	f := newFixture(t, game(0, 2))
	f.lifespan = time.Hour
	q := f.queue()
	f.match("a", "Tester")
	_, _ = q.Enqueue(f.TestScope, "a", "")

	f.now = f.now.Add(2 * time.Hour)
	_, err := q.Check(f.TestScope)

	f.Expect(err).ToNot(HaveOccurred())
	f.Expect(running(q)).To(BeEmpty())
}

func TestTableQueue_DropsWaitingMatchWithoutRecord(t *testing.T) {
	f := newFixture(t, game(1, 2))
	q := f.queue()
	f.match("a", "Tester")
	_, _ = q.Enqueue(f.TestScope, "a", "")
	_, _ = q.Enqueue(f.TestScope, "ghost", "")
	f.Expect(waiting(q)).To(Equal([]string{"ghost"}))

	f.Expect(q.Kill(f.TestScope, "a")).To(Succeed())

	f.Expect(waiting(q)).To(BeEmpty())
	f.Expect(running(q)).To(BeEmpty())
}

func TestTableQueue_RestoresPersistedState(t *testing.T) {
	f := newFixture(t, game(1, 2), 19001)
	f.stateFile = &store.QueueStateFile{Directory: t.TempDir()}
	q := f.queue()
	f.match("a", "SpecialBot")
	f.match("b", "Tester")
	_, _ = q.Enqueue(f.TestScope, "a", "")
	_, _ = q.Enqueue(f.TestScope, "b", "")
	q.Close()

	f.ledger = ports.NewLedger(f.ledger.Allocator())
	restored := f.queue()

	f.Expect(running(restored)).To(Equal([]string{"a"}))
	f.Expect(waiting(restored)).To(Equal([]string{"b"}))
	f.Expect(f.ledger.InUse()).To(Equal([]int{19001}))
}

func TestTableQueue_ClosedQueueRejectsCommands(t *testing.T) {
	f := newFixture(t, game(1, 2))
	q := f.queue()
	q.Close()

	_, err := q.Check(f.TestScope)

	f.Expect(err).To(MatchError(tablequeue.ErrClosed))
}
