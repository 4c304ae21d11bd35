// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package proxy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-table-manager/pkg/acpc"
	"github.com/AccelByte/extend-table-manager/pkg/bus"
	"github.com/AccelByte/extend-table-manager/pkg/config"
	"github.com/AccelByte/extend-table-manager/pkg/constants"
	"github.com/AccelByte/extend-table-manager/pkg/envelope"
	"github.com/AccelByte/extend-table-manager/pkg/metrics"
	"github.com/AccelByte/extend-table-manager/pkg/models"
	"github.com/AccelByte/extend-table-manager/pkg/notifier"
	"github.com/AccelByte/extend-table-manager/pkg/store"
)

// Reasons an update was published.
const (
	ReasonState  = "state"
	ReasonResend = "resend"
)

// Dealer is the proxy's side of the dealer connection.
type Dealer interface {
	Receive(ctx context.Context) (acpc.MatchState, error)
	Send(state acpc.MatchState, action acpc.Action) error
	Close() error
}

type Options struct {
	ID      string
	MatchID string
	// PlayerNames are indexed by seat.
	PlayerNames  []string
	NumHands     int
	GameDef      *acpc.GameDef
	Dealer       Dealer
	Communicator Communicator
	// Store, Metrics and Notifier are optional.
	Store    store.MatchStore
	Metrics  metrics.TableManagerMetrics
	Notifier notifier.Notifier
	// ReceiveTimeout bounds each wait for a client message.
	ReceiveTimeout time.Duration
	// ActionTimeout is how long the player may stay silent on their turn; zero waits forever.
	ActionTimeout time.Duration
	OnTimeout     string
	Now           func() time.Time
}

// Proxy plays one seat for a remote client.
type Proxy struct {
	opts Options
	view view

	// stateIndex numbers published updates; it never repeats.
	stateIndex  int
	lastMessage time.Time

	table    *acpc.Table
	previous *acpc.Table
	slice    models.MatchSlice

	balances     []int
	settledHand  int
	disconnected bool
	matchMissing bool
}

func New(opts Options) (*Proxy, error) {
	if opts.GameDef == nil || opts.Dealer == nil || opts.Communicator == nil {
		return nil, errors.New("proxy needs a game definition, a dealer and a communicator")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = 10 * time.Second
	}
	if opts.OnTimeout == "" {
		opts.OnTimeout = config.OnProxyTimeoutFold
	}

	return &Proxy{
		opts:        opts,
		view:        view{names: opts.PlayerNames, numHands: opts.NumHands},
		balances:    make([]int, opts.GameDef.NumPlayers),
		settledHand: -1,
	}, nil
}

// StateIndex is the index the next published update will carry.
func (p *Proxy) StateIndex() int {
	return p.stateIndex
}

// Run plays until the match ends, the client asks to stop or the dealer
// goes away. Both channels are cleared on the way in and on the way out.
func (p *Proxy) Run(rootScope *envelope.Scope) (err error) {
	scope := rootScope.WithMatch("proxy.Run", p.opts.MatchID, "")
	defer scope.Finish()
	scope.Log = scope.Log.WithField("proxyID", p.opts.ID)

	defer notifier.Recover(scope, p.opts.Notifier, "proxy "+p.opts.ID, &err)
	defer p.shutdown(scope)

	if err := p.opts.Communicator.Clear(scope); err != nil {
		return fmt.Errorf("clear channels: %w", err)
	}
	p.lastMessage = p.opts.Now()

	if err := p.advance(scope, false); err != nil {
		return p.fail(scope, err)
	}

	for !p.matchOver() {
		message, err := p.opts.Communicator.Receive(scope, p.opts.ReceiveTimeout)
		switch {
		case errors.Is(err, bus.ErrTimeout):
			if p.onTimeout(scope) {
				return nil
			}
			continue
		case errors.Is(err, ErrMalformedMessage):
			scope.Log.WithError(err).Warn("ignoring client message")
			continue
		case err != nil:
			return p.fail(scope, err)
		}

		stop, err := p.handle(scope, message)
		if err != nil {
			return p.fail(scope, err)
		}
		p.lastMessage = p.opts.Now()
		if stop {
			return nil
		}
	}

	scope.Log.Info("match over")
	return nil
}

func (p *Proxy) fail(scope *envelope.Scope, err error) error {
	scope.RecordError(err)
	if p.opts.Notifier != nil {
		p.opts.Notifier.Notify(scope, "proxy "+p.opts.ID, err)
	}
	return err
}

func (p *Proxy) shutdown(scope *envelope.Scope) {
	if err := p.opts.Communicator.Clear(scope); err != nil {
		scope.Log.WithError(err).Warn("unable to clear channels")
	}
	if err := p.opts.Dealer.Close(); err != nil {
		scope.Log.WithError(err).Debug("dealer connection already closed")
	}
}

// handle applies one client message and reports whether the proxy should stop.
func (p *Proxy) handle(scope *envelope.Scope, message models.ClientMessage) (bool, error) {
	switch {
	case message.Resend:
		scope.Log.Debug("resending match state")
		return false, p.publish(scope, ReasonResend)
	case message.Kill:
		scope.Log.Info("client asked the proxy to exit")
		return true, nil
	case message.Action == constants.NextHandAction:
		if p.table == nil || !p.table.HandEnded || p.matchOver() {
			return false, nil
		}
		return false, p.advance(scope, false)
	case message.Action != "":
		if !p.usersTurn() {
			scope.Log.WithField("action", message.Action).Debug("ignoring action out of turn")
			return false, nil
		}
		action, ok := p.wireAction(message.Action)
		if !ok {
			scope.Log.WithField("action", message.Action).Warn("ignoring illegal action")
			return false, nil
		}
		return false, p.play(scope, action, false)
	}

	return false, nil
}

// onTimeout reports whether the proxy should stop.
func (p *Proxy) onTimeout(scope *envelope.Scope) bool {
	if p.matchOver() {
		return true
	}
	now := p.opts.Now()
	if !p.usersTurn() {
		p.lastMessage = now
		return false
	}
	if p.opts.ActionTimeout <= 0 || now.Sub(p.lastMessage) <= p.opts.ActionTimeout {
		return false
	}

	log := scope.Log.WithFields(logrus.Fields{
		"idle":   now.Sub(p.lastMessage).String(),
		"policy": p.opts.OnTimeout,
	})
	if p.opts.OnTimeout == config.OnProxyTimeoutExit {
		log.Info("player timed out, exiting")
		return true
	}

	action := acpc.Action{Type: acpc.WireCall}
	name := "call"
	if p.slice.CanAct(acpc.LegalFold) {
		action, name = acpc.Action{Type: acpc.WireFold}, "fold"
	}
	log.WithField("action", name).Info("player timed out, acting for them")
	if p.opts.Metrics != nil {
		p.opts.Metrics.AddAutoAction(name)
	}
	if err := p.play(scope, action, true); err != nil {
		scope.Log.WithError(err).Error("unable to act for the player")
		p.disconnected = true
		return true
	}
	p.lastMessage = p.opts.Now()

	return p.matchOver()
}

func (p *Proxy) play(scope *envelope.Scope, action acpc.Action, fastForward bool) error {
	scope.Log.WithField("action", action.String()).Debug("sending action to dealer")
	if err := p.opts.Dealer.Send(p.table.State, action); err != nil {
		scope.Log.WithError(err).Warn("dealer connection dropped")
		p.disconnected = true
		return nil
	}
	return p.advance(scope, fastForward)
}

// advance reads dealer states, publishing each, until the player has to do
// something or the match is over.
func (p *Proxy) advance(scope *envelope.Scope, fastForward bool) error {
	for {
		state, err := p.opts.Dealer.Receive(scope.Ctx)
		if err != nil {
			if scope.Ctx.Err() != nil {
				return scope.Ctx.Err()
			}
			scope.Log.WithError(err).Info("dealer stream ended")
			p.disconnected = true
			return nil
		}

		table, err := acpc.NewTable(p.opts.GameDef, state)
		if err != nil {
			scope.Log.WithError(err).Error("unreadable match state")
			p.disconnected = true
			return nil
		}
		if err := p.onState(scope, table, fastForward); err != nil {
			return err
		}

		if table.HandEnded || p.usersTurn() || p.matchOver() {
			return nil
		}
	}
}

func (p *Proxy) onState(scope *envelope.Scope, table *acpc.Table, fastForward bool) error {
	if p.table != nil && p.table.State.HandNumber == table.State.HandNumber {
		p.previous = p.table
	} else {
		p.previous = nil
	}
	p.table = table

	if table.HandEnded && table.State.HandNumber > p.settledHand {
		n := table.Def.NumPlayers
		for seat := range p.balances {
			pos := acpc.PositionOf(seat, table.State.HandNumber, n)
			p.balances[seat] += table.Winnings[pos] - table.Total(pos)
		}
		p.settledHand = table.State.HandNumber
	}

	p.slice = p.view.slice(table, p.balances, p.opts.Now())
	p.slice.Messages = p.view.messages(p.previous, table)

	if err := p.record(scope, fastForward); err != nil {
		return err
	}
	return p.publish(scope, ReasonState)
}

func (p *Proxy) record(scope *envelope.Scope, fastForward bool) error {
	if p.opts.Store == nil || p.opts.MatchID == "" {
		return nil
	}
	err := p.opts.Store.AppendSlice(scope, p.opts.MatchID, p.slice, fastForward)
	if errors.Is(err, store.ErrMatchNotFound) {
		scope.Log.Warn("match record is gone, stopping")
		p.matchMissing = true
		return nil
	}
	return err
}

func (p *Proxy) publish(scope *envelope.Scope, reason string) error {
	if p.table == nil {
		return nil
	}
	if err := p.opts.Communicator.Publish(scope, p.slice.Update(p.stateIndex)); err != nil {
		return fmt.Errorf("publish update: %w", err)
	}
	p.stateIndex++
	if p.opts.Metrics != nil {
		p.opts.Metrics.AddPublishedUpdate(reason)
	}
	return nil
}

func (p *Proxy) usersTurn() bool {
	return p.table != nil && !p.table.HandEnded && p.table.NextToAct == p.table.State.Position
}

// matchOver is true once the dealer hung up, the record vanished or the
// last hand ended.
func (p *Proxy) matchOver() bool {
	if p.disconnected || p.matchMissing {
		return true
	}
	return p.table != nil && p.view.matchEnded(p.table)
}

// wireAction validates a client action such as "c", "k", "f", "b" or "r250".
func (p *Proxy) wireAction(code string) (acpc.Action, bool) {
	if code == "" {
		return acpc.Action{}, false
	}

	kind := code[:1]
	switch kind {
	case acpc.LegalFold:
		return acpc.Action{Type: acpc.WireFold}, p.slice.CanAct(acpc.LegalFold)
	case acpc.LegalCall, acpc.LegalCheck:
		return acpc.Action{Type: acpc.WireCall}, true
	case acpc.LegalBet, acpc.LegalRaise:
		if !p.slice.CanAct(acpc.LegalBet) && !p.slice.CanAct(acpc.LegalRaise) {
			return acpc.Action{}, false
		}
		action := acpc.Action{Type: acpc.WireRaise}
		if !p.table.Def.NoLimit() {
			return action, true
		}

		action.Amount = p.table.MinRaiseTo()
		if len(code) > 1 {
			amount, err := strconv.Atoi(code[1:])
			if err != nil {
				return acpc.Action{}, false
			}
			stack := p.table.Def.Stacks[p.table.State.Position]
			action.Amount = min(max(amount, action.Amount), stack)
		}
		return action, true
	}

	return acpc.Action{}, false
}
