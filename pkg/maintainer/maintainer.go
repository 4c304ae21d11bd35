// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package maintainer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-table-manager/pkg/envelope"
	"github.com/AccelByte/extend-table-manager/pkg/models"
	"github.com/AccelByte/extend-table-manager/pkg/notifier"
	"github.com/AccelByte/extend-table-manager/pkg/process"
	"github.com/AccelByte/extend-table-manager/pkg/store"
	"github.com/AccelByte/extend-table-manager/pkg/tablequeue"
)

var ErrUnknownGameType = errors.New("no table queue for game type")

// Queue is the part of a table queue the maintainer drives.
type Queue interface {
	GameType() string
	Enqueue(scope *envelope.Scope, matchID string, options string) ([]string, error)
	Check(scope *envelope.Scope) ([]string, error)
	Kill(scope *envelope.Scope, matchID string) error
	StartProxy(scope *envelope.Scope, matchID string) error
	Snapshot() (store.QueueState, error)
}

type Options struct {
	// Queues holds one table queue per game type.
	Queues     map[string]Queue
	Store      store.MatchStore
	Supervisor process.Supervisor
	Notifier   notifier.Notifier
	// Retention is how long a match may go without updates before it is deleted.
	Retention time.Duration
	Now       func() time.Time
}

// Maintainer keeps every table queue moving. Ticks never overlap.
type Maintainer struct {
	opts    Options
	mu      sync.Mutex
	trigger chan struct{}
}

func New(opts Options) *Maintainer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Notifier == nil {
		opts.Notifier = notifier.LogNotifier{}
	}

	return &Maintainer{opts: opts, trigger: make(chan struct{}, 1)}
}

// Run ticks every interval, and whenever Trigger is called, until ctx is done.
func (m *Maintainer) Run(ctx context.Context, rootScope *envelope.Scope, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rootScope.Log.WithField("interval", interval.String()).Info("maintainer started")
	for {
		select {
		case <-ctx.Done():
			rootScope.Log.Info("maintainer stopped")
			return
		case <-ticker.C:
		case <-m.trigger:
		}
		_ = m.Maintain(rootScope)
	}
}

// Trigger asks Run for an extra tick; triggers that arrive during a tick are merged.
func (m *Maintainer) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Maintain runs one tick: re-enqueue ready matches, kill orphaned
// processes, check every queue and purge stale matches. Failures, panics
// included, are reported and returned but never propagate further.
func (m *Maintainer) Maintain(rootScope *envelope.Scope) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	scope := rootScope.NewChildScope("maintainer.Maintain")
	defer scope.Finish()
	defer notifier.Recover(scope, m.opts.Notifier, "maintainer", &err)

	errs := []error{
		m.enqueueReadyMatches(scope),
		m.killOrphans(scope),
	}
	for _, gameType := range m.gameTypes() {
		if _, checkErr := m.opts.Queues[gameType].Check(scope); checkErr != nil {
			errs = append(errs, fmt.Errorf("check %s: %w", gameType, checkErr))
		}
	}
	if _, cleanErr := m.CleanUpMatches(scope); cleanErr != nil {
		errs = append(errs, cleanErr)
	}

	if err = errors.Join(errs...); err != nil {
		m.opts.Notifier.Notify(scope, "maintainer", err)
	}

	return err
}

// enqueueReadyMatches puts back matches a restart forgot about, oldest first.
func (m *Maintainer) enqueueReadyMatches(scope *envelope.Scope) error {
	matches, err := m.opts.Store.List(scope, store.Filter{})
	if err != nil {
		return err
	}

	var errs []error
	for _, match := range pie.Filter(matches, func(match *models.Match) bool {
		return match.ReadyToStart && !match.Started() && !match.Running(m.opts.Supervisor.IsAlive)
	}) {
		queue, ok := m.opts.Queues[match.GameDefinitionKey]
		if !ok {
			scope.Log.WithField(envelope.MatchIDLogField, match.ID).
				WithField(envelope.GameTypeLogField, match.GameDefinitionKey).
				Warn("ready match has no table queue")
			continue
		}
		if _, err := queue.Enqueue(scope, match.ID, ""); err != nil && !errors.Is(err, tablequeue.ErrAlreadyRunning) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (m *Maintainer) killOrphans(scope *envelope.Scope) error {
	matches, err := m.opts.Store.List(scope, store.Filter{})
	if err != nil {
		return err
	}

	pairs := pie.Map(pie.Filter(matches, func(match *models.Match) bool {
		return match.DealerPID > 0 || match.ProxyPID > 0
	}), func(match *models.Match) process.Pair {
		return process.Pair{MatchID: match.ID, DealerPID: match.DealerPID, ProxyPID: match.ProxyPID}
	})

	killed, err := process.KillOrphans(scope, m.opts.Supervisor, pairs)
	if len(killed) > 0 {
		scope.Log.WithField("pids", killed).Info("orphaned processes killed")
	}

	return err
}

// EnqueueMatch hands a finalized match to its game's queue. A match whose
// record is gone is killed instead.
func (m *Maintainer) EnqueueMatch(rootScope *envelope.Scope, matchID string, options string) error {
	scope := rootScope.WithMatch("maintainer.EnqueueMatch", matchID, "")
	defer scope.Finish()

	match, err := m.opts.Store.Find(scope, matchID)
	if errors.Is(err, store.ErrMatchNotFound) {
		scope.Log.Info("match record is gone, killing it")
		return m.KillMatch(scope, matchID)
	}
	if err != nil {
		return err
	}

	queue, err := m.queue(match.GameDefinitionKey)
	if err != nil {
		return err
	}
	started, err := queue.Enqueue(scope, matchID, options)
	if len(started) > 0 {
		scope.Log.WithField("started", started).Info("matches started")
	}

	return err
}

// KillMatch is idempotent. Without a record to say which queue owns the
// match, every queue is asked, and a failed lookup is reported alongside.
func (m *Maintainer) KillMatch(rootScope *envelope.Scope, matchID string) error {
	scope := rootScope.WithMatch("maintainer.KillMatch", matchID, "")
	defer scope.Finish()

	var errs []error
	match, err := m.opts.Store.Find(scope, matchID)
	switch {
	case err == nil:
		if queue, ok := m.opts.Queues[match.GameDefinitionKey]; ok {
			return queue.Kill(scope, matchID)
		}
	case !errors.Is(err, store.ErrMatchNotFound):
		scope.Log.WithError(err).Warn("match lookup failed, asking every queue to kill it")
		errs = append(errs, err)
	}

	for _, gameType := range m.gameTypes() {
		errs = append(errs, m.opts.Queues[gameType].Kill(scope, matchID))
	}

	return errors.Join(errs...)
}

// StartProxy replaces the user's proxy of a running match.
func (m *Maintainer) StartProxy(rootScope *envelope.Scope, matchID string) error {
	scope := rootScope.WithMatch("maintainer.StartProxy", matchID, "")
	defer scope.Finish()

	match, err := m.opts.Store.Find(scope, matchID)
	if err != nil {
		return err
	}
	queue, err := m.queue(match.GameDefinitionKey)
	if err != nil {
		return err
	}

	return queue.StartProxy(scope, matchID)
}

// CheckMatch kills a match whose record vanished or that started and then
// lost its dealer or proxy before finishing.
func (m *Maintainer) CheckMatch(rootScope *envelope.Scope, matchID string) error {
	scope := rootScope.WithMatch("maintainer.CheckMatch", matchID, "")
	defer scope.Finish()

	match, err := m.opts.Store.Find(scope, matchID)
	switch {
	case errors.Is(err, store.ErrMatchNotFound):
		scope.Log.Info("match record is gone, killing it")
		return m.KillMatch(scope, matchID)
	case err != nil:
		return err
	case match.Defunct(m.opts.Supervisor.IsAlive):
		scope.Log.Warn("match lost a process, killing it")
		return m.KillMatch(scope, matchID)
	}

	return nil
}

// CleanUpMatches deletes matches past the retention window and finished
// matches whose every slice was viewed. It returns how many were deleted.
func (m *Maintainer) CleanUpMatches(rootScope *envelope.Scope) (int, error) {
	scope := rootScope.NewChildScope("maintainer.CleanUpMatches")
	defer scope.Finish()

	var errs []error
	deleted := 0
	if m.opts.Retention > 0 {
		cutoff := m.opts.Now().Add(-m.opts.Retention)
		stale, err := m.opts.Store.List(scope, store.Filter{})
		if err != nil {
			return 0, err
		}
		for _, match := range pie.Filter(stale, func(match *models.Match) bool { return match.UpdatedAt.Before(cutoff) }) {
			errs = append(errs, m.KillMatch(scope, match.ID))
		}

		n, err := m.opts.Store.DeleteOlderThan(scope, cutoff)
		deleted += n
		errs = append(errs, err)
	}

	matches, err := m.opts.Store.List(scope, store.Filter{})
	if err != nil {
		return deleted, errors.Join(append(errs, err)...)
	}
	for _, match := range matches {
		if !match.Finished() || !match.AllSlicesViewed() {
			continue
		}
		if err := m.KillMatch(scope, match.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := m.opts.Store.Delete(scope, match.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		scope.Log.WithFields(logrus.Fields{"deleted": deleted}).Info("matches cleaned up")
	}

	return deleted, errors.Join(errs...)
}

// Snapshot returns every queue's waiting and running lists by game type.
func (m *Maintainer) Snapshot() (map[string]store.QueueState, error) {
	states := make(map[string]store.QueueState, len(m.opts.Queues))
	for gameType, queue := range m.opts.Queues {
		state, err := queue.Snapshot()
		if err != nil {
			return nil, err
		}
		states[gameType] = state
	}

	return states, nil
}

func (m *Maintainer) queue(gameType string) (Queue, error) {
	queue, ok := m.opts.Queues[gameType]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownGameType, gameType)
	}
	return queue, nil
}

func (m *Maintainer) gameTypes() []string {
	return pie.Sort(pie.Keys(m.opts.Queues))
}
