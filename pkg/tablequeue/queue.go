// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package tablequeue

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-table-manager/pkg/config"
	"github.com/AccelByte/extend-table-manager/pkg/constants"
	"github.com/AccelByte/extend-table-manager/pkg/envelope"
	"github.com/AccelByte/extend-table-manager/pkg/metrics"
	"github.com/AccelByte/extend-table-manager/pkg/models"
	"github.com/AccelByte/extend-table-manager/pkg/ports"
	"github.com/AccelByte/extend-table-manager/pkg/store"
	"github.com/AccelByte/extend-table-manager/pkg/utils"
)

const startAttempts = 2

var (
	ErrAlreadyRunning = errors.New("match is already running")
	ErrUnableToStart  = errors.New("unable to start match")
	ErrClosed         = errors.New("table queue is closed")
)

type Options struct {
	GameType  string
	Game      config.Game
	Store     store.MatchStore
	Ledger    *ports.Ledger
	Launcher  Launcher
	StateFile *store.QueueStateFile
	Metrics   metrics.TableManagerMetrics
	// RetryDelay separates the two start attempts.
	RetryDelay time.Duration
	// Lifespan bounds how long a match may run; zero means forever.
	Lifespan time.Duration
	Now      func() time.Time
}

// TableQueue admits the matches of one game type. All state is owned by one
// goroutine; every exported method is a command sent to it, so enqueue,
// check and kill never interleave.
type TableQueue struct {
	opts     Options
	commands chan func()
	closed   chan struct{}

	waiting []store.QueueEntry
	running []store.RunningEntry
}

// New restores any persisted state and starts the queue's goroutine.
func New(scope *envelope.Scope, opts Options) (*TableQueue, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	q := &TableQueue{
		opts:     opts,
		commands: make(chan func()),
		closed:   make(chan struct{}),
	}

	if opts.StateFile != nil {
		state, err := opts.StateFile.Load(opts.GameType)
		if err != nil {
			return nil, fmt.Errorf("restore %s queue: %w", opts.GameType, err)
		}
		q.waiting = state.Waiting
		q.running = state.Running
		for _, entry := range q.running {
			opts.Ledger.Restore(entry.MatchID, entry.PortNumbers)
		}
		scope.Log.WithFields(logrus.Fields{
			envelope.GameTypeLogField: opts.GameType,
			"waiting":                 len(q.waiting),
			"running":                 len(q.running),
		}).Info("table queue restored")
	}

	go q.loop()

	return q, nil
}

func (q *TableQueue) loop() {
	for {
		select {
		case command := <-q.commands:
			command()
		case <-q.closed:
			return
		}
	}
}

// do runs fn on the queue goroutine and waits for it.
func (q *TableQueue) do(fn func() error) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}

	result := make(chan error, 1)
	select {
	case q.commands <- func() { result <- fn() }:
	case <-q.closed:
		return ErrClosed
	}

	return <-result
}

func (q *TableQueue) Close() {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
}

func (q *TableQueue) GameType() string {
	return q.opts.GameType
}

// Enqueue appends matchID to the waiting list and checks the queue.
// Enqueueing a match that is already waiting keeps its place.
func (q *TableQueue) Enqueue(rootScope *envelope.Scope, matchID string, options string) ([]string, error) {
	scope := rootScope.WithMatch("tablequeue.Enqueue", matchID, q.opts.GameType)
	defer scope.Finish()

	var started []string
	err := q.do(func() error {
		if q.runningIndex(matchID) >= 0 {
			return fmt.Errorf("%w: %s", ErrAlreadyRunning, matchID)
		}
		if q.waitingIndex(matchID) < 0 {
			q.waiting = append(q.waiting, store.QueueEntry{MatchID: matchID, Options: options})
			scope.Log.WithField("position", len(q.waiting)).Info("match enqueued")
		}

		var err error
		started, err = q.check(scope)
		return err
	})

	return started, err
}

// Check reaps dead matches and admits waiting ones, oldest first, while
// there is room. It returns the ids of the matches started.
func (q *TableQueue) Check(rootScope *envelope.Scope) ([]string, error) {
	scope := rootScope.NewChildScope("tablequeue.Check")
	defer scope.Finish()
	scope.SetAttributes(envelope.GameTypeLogField, q.opts.GameType)

	var started []string
	err := q.do(func() error {
		var err error
		started, err = q.check(scope)
		return err
	})

	return started, err
}

// Kill removes matchID from the queue and tears down its processes. It is
// safe to call for matches that never started or were already killed.
func (q *TableQueue) Kill(rootScope *envelope.Scope, matchID string) error {
	scope := rootScope.WithMatch("tablequeue.Kill", matchID, q.opts.GameType)
	defer scope.Finish()

	return q.do(func() error {
		killErr := q.kill(scope, matchID)
		_, checkErr := q.check(scope)
		return errors.Join(killErr, checkErr)
	})
}

// StartProxy replaces the user's proxy of a running match.
func (q *TableQueue) StartProxy(rootScope *envelope.Scope, matchID string) error {
	scope := rootScope.WithMatch("tablequeue.StartProxy", matchID, q.opts.GameType)
	defer scope.Finish()

	return q.do(func() error {
		i := q.runningIndex(matchID)
		if i < 0 {
			return fmt.Errorf("match %s is not running", matchID)
		}
		match, err := q.opts.Store.Find(scope, matchID)
		if err != nil {
			return err
		}
		seatIndex := match.Seat - 1
		if seatIndex >= len(match.PortNumbers) {
			return fmt.Errorf("match %s has no port for seat %d", matchID, match.Seat)
		}

		if err := q.opts.Launcher.Kill(scope, match.ProxyPID); err != nil {
			return err
		}
		pid, err := q.opts.Launcher.StartPlayer(scope, match, seatIndex, match.PortNumbers[seatIndex])
		if err != nil {
			return err
		}

		match.ProxyPID = pid
		match.PlayerPIDs[seatIndex] = pid
		q.running[i].PlayerPIDs = slices.Clone(match.PlayerPIDs)
		q.persist(scope)

		return q.recordProcesses(scope, match)
	})
}

// Snapshot returns a copy of the waiting and running lists.
func (q *TableQueue) Snapshot() (store.QueueState, error) {
	var state store.QueueState
	err := q.do(func() error {
		state = q.state()
		return nil
	})

	return state, err
}

func (q *TableQueue) check(scope *envelope.Scope) ([]string, error) {
	errs := []error{q.reap(scope)}

	var started []string
	for q.hasRoom() && len(q.waiting) > 0 {
		head := q.waiting[0]
		log := scope.Log.WithField(envelope.MatchIDLogField, head.MatchID)

		match, err := q.opts.Store.Find(scope, head.MatchID)
		if errors.Is(err, store.ErrMatchNotFound) {
			log.Info("dropping waiting match without a record")
			q.waiting = q.waiting[1:]
			q.recordFailure(constants.ReasonMatchMissing)
			continue
		}
		if err != nil {
			errs = append(errs, err)
			break
		}
		if !match.ReadyToStart || match.Started() {
			log.WithField("started", match.Started()).Warn("dropping waiting match that is not ready to start")
			q.waiting = q.waiting[1:]
			continue
		}

		entry, err := q.start(scope, match, head.Options)
		switch {
		case err == nil:
			q.waiting = q.waiting[1:]
			q.running = append(q.running, entry)
			started = append(started, match.ID)
			q.recordStart()
			continue
		case errors.Is(err, ports.ErrNoPortAvailable):
			// the head keeps its place until a port frees up
			log.WithError(err).Warn("waiting for a special port")
			q.recordFailure(constants.ReasonNoPortAvailable)
		case errors.Is(err, ports.ErrTooManySpecialPorts):
			log.WithError(err).Error("match can never be scheduled with the configured special ports")
			q.waiting = q.waiting[1:]
			q.recordFailure(constants.ReasonTooManySpecialPorts)
			errs = append(errs, q.markUnableToStart(scope, match))
			continue
		default:
			log.WithError(err).Error("unable to start match")
			q.waiting = q.waiting[1:]
			q.recordFailure(constants.ReasonSpawnFailed)
			errs = append(errs, err)
			continue
		}
		break
	}

	q.persist(scope)

	return started, errors.Join(errs...)
}

func (q *TableQueue) hasRoom() bool {
	maxMatches := q.opts.Game.MaxNumMatches
	return maxMatches <= 0 || len(q.running) < maxMatches
}

// reap kills running matches whose dealer died, whose record is gone or
// that outlived the configured lifespan.
func (q *TableQueue) reap(scope *envelope.Scope) error {
	var errs []error
	for _, entry := range slices.Clone(q.running) {
		reason := ""
		_, err := q.opts.Store.Find(scope, entry.MatchID)
		switch {
		case errors.Is(err, store.ErrMatchNotFound):
			reason = constants.ReapReasonMatchMissing
		case err != nil:
			errs = append(errs, err)
			continue
		case !q.opts.Launcher.IsAlive(entry.DealerPID):
			reason = constants.ReapReasonDealerDead
		case q.opts.Lifespan > 0 && q.opts.Now().Sub(entry.StartedAt) > q.opts.Lifespan:
			reason = constants.ReapReasonExpired
		default:
			continue
		}

		scope.Log.WithFields(logrus.Fields{
			envelope.MatchIDLogField: entry.MatchID,
			"reason":                 reason,
		}).Info("reaping running match")
		errs = append(errs, q.kill(scope, entry.MatchID))
	}

	return errors.Join(errs...)
}

// start allocates ports and spawns the dealer, retrying once, then the players.
func (q *TableQueue) start(scope *envelope.Scope, match *models.Match, options string) (store.RunningEntry, error) {
	if options != "" {
		match.DealerOptions = options
	}
	requirements := match.SpecialPortRequirements()

	var portNumbers []int
	var dealerPID int
	err := utils.WithRetry(scope.Ctx, startAttempts, q.opts.RetryDelay, func(attempt int) error {
		reserved, err := q.opts.Ledger.Reserve(match.ID, requirements)
		if errors.Is(err, ports.ErrTooManySpecialPorts) {
			return utils.Permanent(err)
		}
		if err != nil {
			return err
		}

		dealer, err := q.opts.Launcher.StartDealer(scope, match, reserved)
		if err != nil {
			q.opts.Ledger.Release(match.ID)
			scope.Log.WithError(err).WithField("attempt", attempt+1).Warn("dealer did not start")
			return err
		}
		portNumbers, dealerPID = dealer.PortNumbers, dealer.PID
		return nil
	})
	if errors.Is(err, ports.ErrNoPortAvailable) || errors.Is(err, ports.ErrTooManySpecialPorts) {
		return store.RunningEntry{}, err
	}
	if err != nil {
		return store.RunningEntry{}, errors.Join(fmt.Errorf("%w %s", ErrUnableToStart, match.ID), err, q.markUnableToStart(scope, match))
	}

	match.PortNumbers = portNumbers
	match.DealerPID = dealerPID
	match.ReadyToStart = false
	match.UnableToStartDealer = false
	if len(match.PlayerPIDs) != len(match.Players) {
		match.PlayerPIDs = make([]int, len(match.Players))
	}
	if err := q.recordProcesses(scope, match); err != nil {
		return store.RunningEntry{}, errors.Join(err, q.teardown(scope, match))
	}

	for i := range match.Players {
		pid, err := q.startPlayer(scope, match, i)
		if err != nil {
			err = errors.Join(fmt.Errorf("%w %s: seat %d", ErrUnableToStart, match.ID, i+1), err, q.teardown(scope, match))
			return store.RunningEntry{}, errors.Join(err, q.markUnableToStart(scope, match))
		}
		match.PlayerPIDs[i] = pid
		if i == match.Seat-1 {
			match.ProxyPID = pid
		}
	}
	if err := q.recordProcesses(scope, match); err != nil {
		return store.RunningEntry{}, errors.Join(err, q.teardown(scope, match))
	}

	scope.Log.WithFields(logrus.Fields{
		envelope.MatchIDLogField: match.ID,
		"ports":                  match.PortNumbers,
		"dealer_pid":             match.DealerPID,
		"player_pids":            match.PlayerPIDs,
	}).Info("match started")

	return store.RunningEntry{
		MatchID:     match.ID,
		DealerPID:   match.DealerPID,
		PortNumbers: slices.Clone(match.PortNumbers),
		PlayerPIDs:  slices.Clone(match.PlayerPIDs),
		StartedAt:   q.opts.Now().UTC(),
	}, nil
}

func (q *TableQueue) startPlayer(scope *envelope.Scope, match *models.Match, seatIndex int) (int, error) {
	var pid int
	err := utils.WithRetry(scope.Ctx, startAttempts, q.opts.RetryDelay, func(int) error {
		var err error
		pid, err = q.opts.Launcher.StartPlayer(scope, match, seatIndex, match.PortNumbers[seatIndex])
		return err
	})

	return pid, err
}

// teardown kills whatever was spawned for a match that failed to start.
func (q *TableQueue) teardown(scope *envelope.Scope, match *models.Match) error {
	errs := q.killAll(scope, match.ProcessIDs())
	if len(errs) == 0 {
		match.ClearProcesses()
		q.opts.Ledger.Release(match.ID)
	}

	return errors.Join(errs...)
}

func (q *TableQueue) markUnableToStart(scope *envelope.Scope, match *models.Match) error {
	match.UnableToStartDealer = true
	match.ReadyToStart = false
	if err := q.recordProcesses(scope, match); err != nil && !errors.Is(err, store.ErrMatchNotFound) {
		return err
	}

	return nil
}

// recordProcesses writes the runtime fields of match to its stored record,
// leaving the slice history the proxy writes untouched.
func (q *TableQueue) recordProcesses(scope *envelope.Scope, match *models.Match) error {
	return q.opts.Store.Update(scope, match.ID, func(stored *models.Match) error {
		stored.DealerOptions = match.DealerOptions
		stored.PortNumbers = slices.Clone(match.PortNumbers)
		stored.DealerPID = match.DealerPID
		stored.ProxyPID = match.ProxyPID
		stored.PlayerPIDs = slices.Clone(match.PlayerPIDs)
		stored.ReadyToStart = match.ReadyToStart
		stored.UnableToStartDealer = match.UnableToStartDealer
		return nil
	})
}

// kill keeps the running entry, and its pids, until every process is confirmed dead.
// A failed record lookup still kills every pid the queue holds.
func (q *TableQueue) kill(scope *envelope.Scope, matchID string) error {
	if i := q.waitingIndex(matchID); i >= 0 {
		q.waiting = slices.Delete(q.waiting, i, i+1)
	}

	var pids []int
	i := q.runningIndex(matchID)
	if i >= 0 {
		pids = append([]int{q.running[i].DealerPID}, q.running[i].PlayerPIDs...)
	}

	var lookupErr error
	match, err := q.opts.Store.Find(scope, matchID)
	switch {
	case err == nil:
		pids = append(pids, match.ProcessIDs()...)
	case !errors.Is(err, store.ErrMatchNotFound):
		scope.Log.WithError(err).Warn("killing the pids held by the queue without the match record")
		lookupErr = err
	}

	if errs := q.killAll(scope, pids); len(errs) > 0 {
		scope.Log.WithError(errors.Join(errs...)).Error("match could not be fully torn down")
		q.persist(scope)
		return errors.Join(append(errs, lookupErr)...)
	}

	if i >= 0 {
		q.running = slices.Delete(q.running, i, i+1)
	}
	q.opts.Ledger.Release(matchID)
	q.persist(scope)

	if match != nil && len(match.ProcessIDs()) > 0 {
		err := q.opts.Store.Update(scope, matchID, func(stored *models.Match) error {
			stored.ClearProcesses()
			stored.ReadyToStart = false
			return nil
		})
		if err != nil && !errors.Is(err, store.ErrMatchNotFound) {
			return err
		}
	}

	return lookupErr
}

// killAll tries every pid even when some fail.
func (q *TableQueue) killAll(scope *envelope.Scope, pids []int) []error {
	var errs []error
	seen := map[int]bool{}
	for _, pid := range pids {
		if pid <= 0 || seen[pid] {
			continue
		}
		seen[pid] = true
		if err := q.opts.Launcher.Kill(scope, pid); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

func (q *TableQueue) waitingIndex(matchID string) int {
	return slices.IndexFunc(q.waiting, func(e store.QueueEntry) bool { return e.MatchID == matchID })
}

func (q *TableQueue) runningIndex(matchID string) int {
	return slices.IndexFunc(q.running, func(e store.RunningEntry) bool { return e.MatchID == matchID })
}

func (q *TableQueue) state() store.QueueState {
	return store.QueueState{
		Waiting: slices.Clone(q.waiting),
		Running: slices.Clone(q.running),
	}
}

func (q *TableQueue) persist(scope *envelope.Scope) {
	if q.opts.Metrics != nil {
		q.opts.Metrics.QueueLength(q.opts.GameType, len(q.waiting), len(q.running))
	}
	if q.opts.StateFile == nil {
		return
	}
	if err := q.opts.StateFile.Save(q.opts.GameType, q.state()); err != nil {
		scope.Log.WithError(err).Error("unable to persist queue state")
	}
}

func (q *TableQueue) recordStart() {
	if q.opts.Metrics != nil {
		q.opts.Metrics.AddMatchStarted(q.opts.GameType)
	}
}

func (q *TableQueue) recordFailure(reason string) {
	if q.opts.Metrics != nil {
		q.opts.Metrics.AddMatchStartFailure(q.opts.GameType, reason)
	}
}
